package driver

import (
	"io"
	"time"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Mode selects the isolation level of a transaction.
type Mode string

const (
	ModeReadOnly  Mode = "readonly"
	ModeReadWrite Mode = "readwrite"
)

// Durability is a hint controlling when write transactions are flushed
// to stable storage. DurabilityRelaxed allows the backend to defer syncing.
type Durability string

const (
	DurabilityStrict  Durability = "strict"
	DurabilityRelaxed Durability = "relaxed"
)

// EvictionPolicy selects how the quota subsystem reclaims space.
type EvictionPolicy string

const (
	EvictLRU   EvictionPolicy = "lru"
	EvictError EvictionPolicy = "error"
)

// Item is a single key-value pair. Batch read results preserve the order of
// the requested keys; a missing key is reported with a nil Value.
type Item struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// Feature represents driver capabilities as bit flags
type Feature uint64

const (
	FeatureGet         Feature = 1 << iota // Support for single-item reads
	FeatureSet                             // Support for single-item writes
	FeatureRemove                          // Support for single-item removal
	FeatureBatch                           // Support for getItems/setItems/removeItems
	FeatureIterate                         // Support for lazy traversal
	FeatureTransaction                     // Support for scoped native transactions
	FeatureDrop                            // Support for dropping a whole instance
	FeatureStats                           // Support for the performance stats accessor
)

func (f Feature) String() string {
	switch f {
	case FeatureGet:
		return "Get"
	case FeatureSet:
		return "Set"
	case FeatureRemove:
		return "Remove"
	case FeatureBatch:
		return "Batch"
	case FeatureIterate:
		return "Iterate"
	case FeatureTransaction:
		return "Transaction"
	case FeatureDrop:
		return "Drop"
	case FeatureStats:
		return "Stats"
	default:
		return "Unknown"
	}
}

// Info describes the backend behind an initialized driver.
// It is not guaranteed that all fields are filled in or up-to-date.
type Info struct {
	Driver            string    `json:"driver"`
	SizeBytes         int64     `json:"size_bytes"`
	EntryCount        int       `json:"entry_count"`
	SupportedFeatures []Feature `json:"supported_features"`
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config holds all options recognized when creating an instance. The zero
// value is usable; Normalize fills in defaults.
type Config struct {
	// Name and StoreName together form the namespace every backend stores
	// values under. Two instances sharing both see the same data.
	Name      string
	StoreName string

	// Version and Description are informational only.
	Version     string
	Description string

	// Drivers is an ordered candidate list, the first registered and
	// supported driver wins. An empty list means "any registered driver".
	Drivers []string

	// Size is a sizing hint in bytes forwarded to backends that accept one.
	Size int64

	// Durability controls the flush timing of write transactions.
	Durability Durability

	// MaxBatchSize splits oversized batches across multiple transactions.
	// Zero means no splitting.
	MaxBatchSize int

	// MaxConcurrentTransactions caps how many native transactions may be
	// open concurrently on one connection. Zero means unbounded.
	MaxConcurrentTransactions int

	// ConnectionIdle auto-closes a backend connection that has been idle
	// this long; the next operation transparently reopens it. Zero disables
	// the idle timer. In-flight operations are never cancelled.
	ConnectionIdle time.Duration

	// CoalesceWrites merges rapid single writes into one transaction.
	// CoalesceWindow is how long a write may wait for companions.
	CoalesceWrites bool
	CoalesceWindow time.Duration

	// CompatibilityMode enables legacy error-first callback variants
	// alongside the primary return values.
	CompatibilityMode bool

	// Options carries driver specific settings (e.g. "path" for the bolt
	// driver, "bridge" for the bridge driver).
	Options map[string]interface{}
}

// Namespace returns the storage namespace derived from Name and StoreName.
func (c Config) Namespace() string {
	return c.Name + "/" + c.StoreName
}

// Normalize fills in defaults for unset fields.
func (c Config) Normalize() Config {
	if c.Name == "" {
		c.Name = "ukv"
	}
	if c.StoreName == "" {
		c.StoreName = "keyvaluepairs"
	}
	if c.Durability == "" {
		c.Durability = DurabilityStrict
	}
	if c.CoalesceWrites && c.CoalesceWindow <= 0 {
		c.CoalesceWindow = 5 * time.Millisecond
	}
	return c
}

// --------------------------------------------------------------------------
// Driver Interface
// --------------------------------------------------------------------------

// Txn exposes the operations available inside one native transaction.
// All reads and writes through a Txn observe that transaction's isolation.
type Txn interface {
	// Get retrieves the value for a key. The boolean return value indicates
	// whether a value for the key was found.
	Get(key string) (value []byte, found bool, err error)
	// Set inserts or updates a key-value pair.
	Set(key string, value []byte) (err error)
	// Remove deletes a key-value pair. Removing a missing key is not an error.
	Remove(key string) (err error)
	// Keys returns all keys in the namespace.
	Keys() (keys []string, err error)
	// Iterate calls fn for every entry until fn returns false.
	Iterate(fn func(key string, value []byte) bool) (err error)
	// Clear removes every entry in the namespace.
	Clear() (err error)
}

// IDriver is the uniform operation set every storage backend implements.
// Implementations can vary in their feature support, which can be queried
// with SupportsFeature; the instance facade checks capabilities before
// dispatching and reports RetCUnsupportedOperation otherwise.
type IDriver interface {

	// --------------------------------------------------------------------------
	// Lifecycle
	// --------------------------------------------------------------------------

	// Name returns the registered driver name.
	Name() string

	// Supported reports whether the driver can run in the current
	// environment (host capability check). It must be callable before
	// InitStorage.
	Supported() (ok bool)

	// InitStorage prepares the backend for the given configuration.
	// It must be called exactly once before any other operation.
	InitStorage(cfg Config) (err error)

	// Close releases the backend connection. Operations after Close fail
	// with RetCDriverUnavailable.
	Close() (err error)

	// --------------------------------------------------------------------------
	// Single-Item Operations
	// --------------------------------------------------------------------------

	// GetItem retrieves the value for a key. The boolean return value
	// indicates whether a value for the key was found.
	GetItem(key string) (value []byte, found bool, err error)

	// SetItem inserts or updates a key-value pair.
	SetItem(key string, value []byte) (err error)

	// RemoveItem deletes a key-value pair. Removing a missing key is a no-op.
	RemoveItem(key string) (err error)

	// --------------------------------------------------------------------------
	// Batch Operations
	// --------------------------------------------------------------------------

	// GetItems retrieves the values for the given keys. The result preserves
	// the input order; missing keys carry a nil Value.
	GetItems(keys []string) (items []Item, err error)

	// SetItems writes all items atomically where the backend allows it.
	SetItems(items []Item) (err error)

	// RemoveItems deletes all given keys.
	RemoveItems(keys []string) (err error)

	// --------------------------------------------------------------------------
	// Traversal and Introspection
	// --------------------------------------------------------------------------

	// Iterate produces a lazy, finite, non-restartable traversal of all
	// entries. fn returning false stops the traversal early.
	Iterate(fn func(key string, value []byte) bool) (err error)

	// Length returns the number of stored entries.
	Length() (n int, err error)

	// Key returns the key at the given position in the backend's key order.
	Key(index int) (key string, err error)

	// Keys returns all keys.
	Keys() (keys []string, err error)

	// Clear removes every entry in the instance namespace.
	Clear() (err error)

	// --------------------------------------------------------------------------
	// Transactions
	// --------------------------------------------------------------------------

	// RunTransaction executes scope within one native transaction of the
	// given mode. Returning an error from scope rolls the transaction back.
	RunTransaction(mode Mode, scope func(txn Txn) error) (err error)

	// --------------------------------------------------------------------------
	// Optional Capabilities (gated by SupportsFeature)
	// --------------------------------------------------------------------------

	// DropInstance removes the whole namespace including its metadata.
	DropInstance() (err error)

	// WriteStats writes the driver's performance statistics in Prometheus
	// text format to w.
	WriteStats(w io.Writer)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the driver supports the specified feature.
	// Multiple features can be checked at once using the bitwise OR operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the backend.
	GetInfo() (info Info)
}
