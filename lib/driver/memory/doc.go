// Package memory implements a volatile driver backed by a concurrent map.
// All data is lost when the process exits, which makes it the default
// fallback backend and the backend of choice for tests.
//
// Single-item operations run lock-free on an xsync.MapOf. Write
// transactions take a store-wide lock so their changes become visible
// atomically; read transactions share the lock in read mode.
package memory
