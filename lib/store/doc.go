// Package store provides the high-level instance facade of uKV. An instance
// binds a resolved configuration, a selected driver and a plugin pipeline
// into one object applications talk to, with unified error handling and
// operation metrics.
//
// The package focuses on:
//   - A unified interface (IInstance) for key-value operations regardless of
//     which backend actually stores the data
//   - Driver selection from an ordered candidate list, falling back through
//     the registry until a supported backend is found
//   - Running every operation through the plugin pipeline so quota, expiry,
//     compression and encryption apply uniformly across drivers
//
// Key Components:
//
//   - IInstance Interface: The core abstraction applications use. All
//     operations return typed errors carrying a stable RetCode, allowing
//     callers to make informed decisions based on specific error
//     conditions rather than generic errors. A callback-style surface
//     (GetItemCB and friends) is available in compatibility mode for hosts
//     that cannot consume multiple return values.
//
//   - CreateInstance: The factory. It normalizes the configuration,
//     selects a driver, initializes storage, registers the configured
//     plugins and runs their init hooks. A failure at any step returns the
//     partially constructed instance together with the error so callers
//     can inspect Ready().
//
//   - Batch Splitting: When the driver declares a maximum batch size,
//     oversized batches are split transparently between the pipeline and
//     the driver. Plugins always observe the whole batch, so batch-atomic
//     decisions like quota admission stay correct.
//
// Thread Safety:
//
//	Instances are safe for concurrent use. Destroy may be called at most
//	once; operations after Destroy fail with a typed error.
package store
