// Package expiry implements time-to-live semantics on top of any driver by
// wrapping stored values in an envelope carrying an absolute expiration
// timestamp. Expired entries are removed lazily when read and, when a sweep
// interval is configured, proactively by a background sweeper goroutine.
//
// Values without an envelope pass through unchanged, so the plugin can be
// enabled on an instance that already holds plain data.
package expiry
