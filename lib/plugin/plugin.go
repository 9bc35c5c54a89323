package plugin

import (
	"fmt"

	"github.com/ValentinKolb/uKV/lib/driver"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Operation identifies the top-level operation a hook runs for.
type Operation string

const (
	OpGet         Operation = "get"
	OpSet         Operation = "set"
	OpRemove      Operation = "remove"
	OpGetItems    Operation = "getItems"
	OpSetItems    Operation = "setItems"
	OpRemoveItems Operation = "removeItems"
)

// Stage identifies where in an operation a hook ran.
type Stage string

const (
	StageBefore  Stage = "before"
	StageAfter   Stage = "after"
	StageInit    Stage = "init"
	StageDestroy Stage = "destroy"
)

// HookError describes a failed plugin hook. It is handed to every plugin's
// OnError hook before the underlying error propagates to the caller.
type HookError struct {
	Plugin    string
	Operation Operation
	Stage     Stage
	Key       string // empty for batch operations
	Err       error
}

// Error implements the error interface.
func (e *HookError) Error() string {
	return fmt.Sprintf("plugin %q failed in %s-%s: %v", e.Plugin, e.Stage, e.Operation, e.Err)
}

// Unwrap exposes the underlying error to errors.Is / errors.As.
func (e *HookError) Unwrap() error {
	return e.Err
}

// Instance is the subset of the instance facade plugins may call back into.
// Calls made through it run the full pipeline again as independent top-level
// operations (e.g. quota eviction goes through the normal remove path).
type Instance interface {
	GetItem(key string) (value []byte, found bool, err error)
	RemoveItem(key string) (err error)
	Iterate(fn func(key string, value []byte) bool) (err error)
	Keys() (keys []string, err error)
}

// --------------------------------------------------------------------------
// Plugin Definition
// --------------------------------------------------------------------------

// Plugin is a plain-data hook set. Only Name is required; the pipeline
// checks which hooks are defined once at registration and caches the result
// as per-operation dispatch lists.
//
// Ordering: before-hooks run in descending Priority order, after-hooks in
// the exact mirror order, so the plugin that wraps a value last before
// storage is the first to unwrap it after retrieval.
//
// Batch isolation: when the top-level call is batch-shaped only the batch
// hooks run. Single-item hooks that may be reached from inside a batch
// should consult Context.IsBatch and early-return.
type Plugin struct {
	// Name must be unique per pipeline.
	Name string
	// Version is informational only.
	Version string
	// Priority orders hook execution, higher runs first in the before
	// phase. Defaults to 0. Equal priorities keep registration order.
	Priority int
	// Enabled is evaluated once at registration against the resolved
	// configuration. A nil predicate means always enabled.
	Enabled func(cfg driver.Config) bool

	// Lifecycle hooks, run once per instance lifecycle. Their failures
	// surface to the caller of create/destroy and are never retried.
	OnInit    func(ctx *Context) error
	OnDestroy func(ctx *Context) error

	// OnError observes failed hooks of any plugin on the instance. It is
	// best-effort: a panic inside OnError is swallowed so it can never
	// mask the original error.
	OnError func(ctx *Context, hookErr *HookError)

	// Single-item hooks. Before-hooks may rewrite the key or value before
	// it reaches the backend; after-hooks receive the raw backend result
	// and may transform or replace it.
	BeforeGet    func(ctx *Context, key string) (string, error)
	AfterGet     func(ctx *Context, key string, value []byte, found bool) ([]byte, bool, error)
	BeforeSet    func(ctx *Context, key string, value []byte) (string, []byte, error)
	AfterSet     func(ctx *Context, key string, value []byte) error
	BeforeRemove func(ctx *Context, key string) (string, error)
	AfterRemove  func(ctx *Context, key string) error

	// Batch counterparts.
	BeforeGetItems    func(ctx *Context, keys []string) ([]string, error)
	AfterGetItems     func(ctx *Context, items []driver.Item) ([]driver.Item, error)
	BeforeSetItems    func(ctx *Context, items []driver.Item) ([]driver.Item, error)
	AfterSetItems     func(ctx *Context, items []driver.Item) error
	BeforeRemoveItems func(ctx *Context, keys []string) ([]string, error)
	AfterRemoveItems  func(ctx *Context, keys []string) error
}

// Handle is the opaque registration handle a plugin uses to namespace its
// persistent metadata, avoiding key collisions between plugins.
type Handle struct {
	name string
}

// Name returns the registered plugin name the handle belongs to.
func (h *Handle) Name() string { return h.name }
