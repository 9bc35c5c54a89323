// Package plugin implements the hook pipeline that lets instance behavior
// be extended without touching the drivers. Plugins observe and transform
// operations before they reach the backend and after results come back,
// which is how quota enforcement, expiry, compression and encryption are
// layered onto any driver.
//
// The package focuses on:
//   - A plain-data Plugin type whose optional hook functions are discovered
//     once at registration and cached as per-operation dispatch lists
//   - Deterministic ordering: before-hooks run in descending priority,
//     after-hooks in the exact mirror order, so nested value envelopes
//     unwrap in the reverse order they were applied
//   - Strict batch isolation: a batch-shaped call runs only batch hooks,
//     and single-item hooks reached from inside a batch can detect that
//     via Context.IsBatch
//
// Key Components:
//
//   - Plugin: The hook set a plugin author fills in. Only Name is required.
//     The Enabled predicate is evaluated once against the resolved instance
//     configuration; a disabled plugin stays registered but contributes no
//     hooks.
//
//   - Pipeline: The dispatcher owned by an instance. Registration assigns
//     each plugin an opaque Handle and rebuilds the dispatch lists; plugins
//     registered with equal priority keep their registration order.
//
//   - Context: The per-invocation view handed to every hook. It carries the
//     resolved configuration, driver information, a callback facade into the
//     owning instance, per-invocation state shared by all hooks of one
//     operation, and handle-namespaced metadata that persists across
//     operations for the instance lifetime.
//
//   - HookError: The error wrapper describing which plugin failed in which
//     stage of which operation. Every plugin's OnError hook observes it
//     before the error propagates to the caller; a panic inside OnError is
//     swallowed so observers can never mask the original failure.
//
// Re-entrancy:
//
//	Hooks may call back into the instance through Context.Instance. Such
//	calls run the full pipeline again as independent top-level operations
//	with fresh per-invocation state. Plugins that hold locks must release
//	them before calling back in.
//
// Thread Safety:
//
//	Pipeline dispatch is read-only after registration and safe for
//	concurrent use. Metadata is backed by a concurrent map; per-invocation
//	state is confined to one operation and needs no synchronization.
package plugin
