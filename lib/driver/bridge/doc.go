// Package bridge adapts a narrow host-provided key-value facility (as found
// on mobile platforms or embedded hosts) to the full driver.IDriver
// contract. The host side only needs to implement the small Bridge
// interface; batch operations are emulated with per-key loops and native
// transactions are not supported.
//
// The package also ships LoopbackBridge, an in-process Bridge
// implementation used for tests and as a reference for host integrations.
package bridge
