// Package bolt implements the driver.IDriver contract on top of bbolt, a
// single-file B+tree database. It is the most capable backend of the
// library: it supports every feature flag including native transactions,
// durability control and instance statistics.
//
// The package focuses on:
//   - Mapping each instance namespace onto its own bbolt bucket so multiple
//     instances can share one database file without observing each other
//   - Admission control for concurrent transactions with a bounded active
//     set and a FIFO queue of waiting requests
//   - Optional durability relaxation (NoSync) and write coalescing for
//     high-frequency small writes
//
// Key Components:
//
//   - boltDriver: The driver facade. It owns the database handle, lazily
//     reopens it after idle close and routes every operation through
//     RunTransaction so single-item calls and explicit transactions share
//     one code path.
//
//   - dbContext: The transaction admission controller. It tracks the number
//     of active transactions against the configured limit, queues the
//     overflow in arrival order and grants queued requests one at a time as
//     active transactions finalize. Native transaction begin runs outside
//     the controller's mutex because a writable begin can block on bbolt's
//     single-writer lock.
//
//   - Txn: The per-transaction scope handed to callers. Commit and Rollback
//     are guarded so exactly one finalization reaches the native
//     transaction no matter how often or in which order they are called,
//     and the admission slot is released exactly once.
//
//   - coalescer: An optional write combiner. Writes arriving within the
//     configured window are merged into a single native write transaction,
//     last write per key wins, and every caller observes the outcome of
//     the shared flush.
//
// Idle Handling:
//
//	When ConnectionIdle is configured the database file is closed after
//	the idle period and transparently reopened by the next operation.
//	The close is skipped while transactions are active or queued.
//
// Thread Safety:
//
//	The driver is safe for concurrent use. Transactions obtained from
//	RunTransaction must each be used from one goroutine at a time, which
//	matches the underlying bbolt transaction contract.
package bolt
