package store

import (
	"io"

	"github.com/ValentinKolb/uKV/lib/driver"
	"github.com/ValentinKolb/uKV/lib/plugin"
)

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config bundles the resolved driver configuration with the ordered plugin
// registrations applied at construction.
type Config struct {
	driver.Config

	// Plugins are registered in order at construction. Registration order
	// breaks priority ties.
	Plugins []plugin.Plugin
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IInstance is the public face of one configured storage instance. Every
// operation runs through the plugin pipeline: before-hooks in descending
// priority order, then the backend, then after-hooks in ascending order.
//
// All methods return a *driver.Error carrying a stable machine-readable
// code on failure. No operation silently drops a requested mutation.
type IInstance interface {

	// --------------------------------------------------------------------------
	// Single-Item Operations
	// --------------------------------------------------------------------------

	// GetItem retrieves the value for a key. The boolean return value
	// indicates whether a value for the key was found.
	GetItem(key string) (value []byte, found bool, err error)

	// SetItem inserts or updates a key-value pair.
	SetItem(key string, value []byte) (err error)

	// RemoveItem deletes a key-value pair. Removing a missing key is a
	// no-op, a second removal never errors.
	RemoveItem(key string) (err error)

	// --------------------------------------------------------------------------
	// Batch Operations
	// --------------------------------------------------------------------------

	// GetItems retrieves values for all keys, preserving input order.
	// Missing keys carry a nil Value.
	GetItems(keys []string) (items []driver.Item, err error)

	// SetItems writes all items. Oversized batches are split across
	// transactions according to MaxBatchSize.
	SetItems(items []driver.Item) (err error)

	// RemoveItems deletes all given keys.
	RemoveItems(keys []string) (err error)

	// --------------------------------------------------------------------------
	// Traversal and Introspection
	// --------------------------------------------------------------------------

	// Iterate produces a lazy, finite, non-restartable traversal of all
	// entries, bypassing value-transforming hooks (values appear as
	// stored).
	Iterate(fn func(key string, value []byte) bool) (err error)

	// Length returns the number of stored entries.
	Length() (n int, err error)

	// Key returns the key at the given position in the backend's order.
	Key(index int) (key string, err error)

	// Keys returns all keys.
	Keys() (keys []string, err error)

	// Clear removes every entry in the instance namespace.
	Clear() (err error)

	// --------------------------------------------------------------------------
	// Transactions
	// --------------------------------------------------------------------------

	// RunTransaction executes scope within one native backend transaction.
	// All reads and writes through the scope observe that transaction's
	// isolation. Hooks do not run inside transaction scopes.
	RunTransaction(mode driver.Mode, scope func(txn driver.Txn) error) (err error)

	// --------------------------------------------------------------------------
	// Compatibility Mode (error-first callbacks)
	// --------------------------------------------------------------------------

	// GetItemCB, SetItemCB and RemoveItemCB invoke cb with an error-first
	// signature after the operation completed. They fail with
	// RetCUnsupportedOperation unless CompatibilityMode is configured.
	GetItemCB(key string, cb func(err error, value []byte, found bool))
	SetItemCB(key string, value []byte, cb func(err error))
	RemoveItemCB(key string, cb func(err error))

	// --------------------------------------------------------------------------
	// Lifecycle
	// --------------------------------------------------------------------------

	// Ready reports whether the instance finished construction with a
	// usable backend. It returns the construction error otherwise.
	Ready() (err error)

	// Destroy runs every plugin's OnDestroy hook, tears down persistent
	// plugin metadata and closes the backend. The instance is unusable
	// afterwards.
	Destroy() (err error)

	// DropInstance removes the whole namespace from the backend and
	// destroys the instance.
	DropInstance() (err error)

	// --------------------------------------------------------------------------
	// Introspection
	// --------------------------------------------------------------------------

	// Config returns the resolved configuration snapshot.
	Config() driver.Config

	// GetInfo returns information about the selected backend.
	GetInfo() (info driver.Info)

	// WriteStats writes instance and driver performance statistics in
	// Prometheus text format to w. It fails with RetCUnsupportedOperation
	// if the driver does not support stats.
	WriteStats(w io.Writer) (err error)
}
