// Package driver defines the uniform contract every storage backend of uKV
// implements, together with the shared configuration, feature flags and
// error taxonomy used across the library.
//
// The package focuses on:
//   - A unified interface (IDriver) for key-value operations across different
//     backends, covering single-item, batch, traversal and transactional
//     operations
//   - Capability discovery through Feature bit flags, so callers can check
//     support before dispatching an operation
//   - A registry from which the instance facade selects the first supported
//     driver out of an ordered candidate list
//
// Key Components:
//
//   - IDriver Interface: The core abstraction all backends share. Every
//     operation returns an explicit error; typed errors (Error with a
//     RetCode) carry a stable machine-readable code alongside the
//     human-readable message.
//
//   - Config: The full set of recognized instance options. Name and
//     StoreName together derive the namespace a backend stores values
//     under, so independent instances never observe each other's keys.
//
//   - Txn: The operation set available inside one native transaction.
//     All reads and writes through a Txn observe the isolation of the
//     underlying backend transaction.
//
// Implementations:
//
//	The library ships three drivers:
//
//	- bolt: a structured, transactional on-device database built on bbolt.
//	  Available in the "github.com/ValentinKolb/uKV/lib/driver/bolt" package.
//
//	- memory: a simple key-string store backed by a concurrent map.
//	  Available in the "github.com/ValentinKolb/uKV/lib/driver/memory" package.
//
//	- bridge: an adapter delegating to a narrow, already-atomic host bridge,
//	  as found on mobile platforms.
//	  Available in the "github.com/ValentinKolb/uKV/lib/driver/bridge" package.
package driver
