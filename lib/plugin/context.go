package plugin

import (
	"github.com/ValentinKolb/uKV/lib/driver"
	"github.com/puzpuzpuz/xsync/v3"
)

// stateIsBatch marks an invocation as batch-shaped in the operation state.
const stateIsBatch = "isBatch"

// --------------------------------------------------------------------------
// Plugin Context
// --------------------------------------------------------------------------

// Context is the per-invocation aggregate every hook receives. One Context
// is shared by all hooks of one top-level operation; the pipeline hands each
// plugin a view bound to its own registration handle.
//
// Two kinds of plugin-owned storage hang off the context:
//
//   - Metadata: persistent, namespaced per plugin, shared across invocations
//     and scoped to the instance; it dies at instance teardown.
//   - State: transient, scoped to one top-level invocation; it passes data
//     from a before-hook to its paired after-hook and never leaks across two
//     top-level operations.
type Context struct {
	// Instance is the owning facade. Calls through it are independent
	// top-level operations.
	Instance Instance
	// Driver is the resolved backend name.
	Driver string
	// Info is a snapshot of the backend information.
	Info driver.Info
	// Config is a snapshot of the resolved instance configuration.
	Config driver.Config
	// Operation is the current top-level operation kind.
	Operation Operation

	handle *Handle
	meta   *xsync.MapOf[string, interface{}]
	state  map[string]interface{}
}

// NewContext creates the shared context of one top-level invocation.
// meta is the instance-owned persistent metadata map.
func NewContext(inst Instance, driverName string, info driver.Info, cfg driver.Config, op Operation, meta *xsync.MapOf[string, interface{}]) *Context {
	return &Context{
		Instance:  inst,
		Driver:    driverName,
		Info:      info,
		Config:    cfg,
		Operation: op,
		meta:      meta,
		state:     map[string]interface{}{},
	}
}

// forPlugin returns a view of the context bound to the given handle. The
// view shares metadata and operation state with the original.
func (c *Context) forPlugin(h *Handle) *Context {
	view := *c
	view.handle = h
	return &view
}

// --------------------------------------------------------------------------
// Persistent Metadata (namespaced per plugin)
// --------------------------------------------------------------------------

// metaKey prefixes a key with the owning plugin's namespace.
func (c *Context) metaKey(key string) string {
	return c.handle.name + "\x00" + key
}

// SetMetadata stores a persistent value under the calling plugin's
// namespace. It survives across invocations until instance teardown.
func (c *Context) SetMetadata(key string, value interface{}) {
	c.meta.Store(c.metaKey(key), value)
}

// Metadata loads a persistent value from the calling plugin's namespace.
func (c *Context) Metadata(key string) (interface{}, bool) {
	return c.meta.Load(c.metaKey(key))
}

// DeleteMetadata removes a persistent value from the calling plugin's
// namespace.
func (c *Context) DeleteMetadata(key string) {
	c.meta.Delete(c.metaKey(key))
}

// --------------------------------------------------------------------------
// Transient Operation State (one top-level invocation)
// --------------------------------------------------------------------------

// SetState stores a transient value scoped to the current top-level
// invocation. State keys are shared by all plugins of the invocation, so
// plugins should prefix their own keys.
func (c *Context) SetState(key string, value interface{}) {
	c.state[key] = value
}

// State loads a transient value of the current top-level invocation.
func (c *Context) State(key string) (interface{}, bool) {
	value, ok := c.state[key]
	return value, ok
}

// DeleteState removes a transient value of the current top-level invocation.
func (c *Context) DeleteState(key string) {
	delete(c.state, key)
}

// MarkBatch marks the invocation as batch-shaped. The pipeline sets this for
// every batch operation before any hook runs.
func (c *Context) MarkBatch() {
	c.state[stateIsBatch] = true
}

// IsBatch reports whether the current top-level operation is batch-shaped.
// Well-behaved single-item hooks early-return when it is set, preventing
// double processing of the same logical write.
func (c *Context) IsBatch() bool {
	v, ok := c.state[stateIsBatch]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
