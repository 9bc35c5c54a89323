// Package quota implements storage accounting and automatic eviction for an
// instance. It tracks the byte usage of every stored entry, rejects writes
// that would exceed the configured capacity, and under the LRU policy frees
// space by removing the least recently used entries through the normal
// remove path of the instance.
//
// Accounting charges len(key)+len(value) per entry and measures values as
// they reach the backend, so envelopes added by higher-priority plugins
// (expiry, compression, encryption) count toward the quota. The usage index
// is built lazily on the first quota decision by scanning the backend, which
// makes accounting correct across process restarts on persistent drivers.
//
// Batch writes are admitted atomically: either the whole batch fits (after
// eviction under LRU) or the whole batch is rejected. Keys written by the
// batch itself are exempt from eviction while the batch is admitted.
package quota
