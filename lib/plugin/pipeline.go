package plugin

import (
	"fmt"
	"sort"

	"github.com/ValentinKolb/uKV/lib/driver"
	"github.com/ValentinKolb/uKV/lib/logger"
)

var log = logger.GetLogger("plugin")

// --------------------------------------------------------------------------
// Pipeline
// --------------------------------------------------------------------------

// registration is one registered plugin together with its handle and
// registration sequence (used as tie-breaker for equal priorities).
type registration struct {
	plugin  Plugin
	handle  *Handle
	seq     int
	enabled bool
}

// hookKind indexes the cached dispatch lists.
type hookKind int

const (
	hookGet hookKind = iota
	hookSet
	hookRemove
	hookGetItems
	hookSetItems
	hookRemoveItems
	hookKinds
)

// Pipeline threads every instance-level operation through an ordered chain
// of plugin hooks. Which plugin defines which hook is checked once at
// registration and cached as per-operation dispatch lists; the lists are
// recomputed per plugin-set change, never per call.
//
// Thread-safety: Register is not safe for concurrent use with running
// operations; plugins are registered at instance construction only.
type Pipeline struct {
	regs []*registration

	// before-phase dispatch order (descending priority, stable). The
	// after phase iterates the same list back to front: the plugin that
	// wraps a value last is the first to unwrap it.
	before [hookKinds][]*registration

	// plugins defining OnError, in registration order
	errorHooks []*registration
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Register adds a plugin. Names must be unique. The enabled predicate is
// evaluated once against the resolved configuration; a disabled plugin keeps
// its registration but contributes no hooks.
func (p *Pipeline) Register(pl Plugin, cfg driver.Config) (*Handle, error) {
	if pl.Name == "" {
		return nil, driver.NewError(driver.RetCInvalidArgument, "plugin name must not be empty")
	}
	for _, reg := range p.regs {
		if reg.plugin.Name == pl.Name {
			return nil, driver.NewError(driver.RetCInvalidArgument, fmt.Sprintf("duplicate plugin %q", pl.Name))
		}
	}

	reg := &registration{
		plugin:  pl,
		handle:  &Handle{name: pl.Name},
		seq:     len(p.regs),
		enabled: pl.Enabled == nil || pl.Enabled(cfg),
	}
	p.regs = append(p.regs, reg)
	p.rebuild()

	if !reg.enabled {
		log.Debugf("plugin %q registered but disabled by predicate", pl.Name)
	}
	return reg.handle, nil
}

// rebuild recomputes the cached dispatch lists.
func (p *Pipeline) rebuild() {
	ordered := make([]*registration, len(p.regs))
	copy(ordered, p.regs)
	sort.SliceStable(ordered, func(a, b int) bool {
		return ordered[a].plugin.Priority > ordered[b].plugin.Priority
	})

	has := [hookKinds]func(Plugin) bool{
		hookGet:         func(pl Plugin) bool { return pl.BeforeGet != nil || pl.AfterGet != nil },
		hookSet:         func(pl Plugin) bool { return pl.BeforeSet != nil || pl.AfterSet != nil },
		hookRemove:      func(pl Plugin) bool { return pl.BeforeRemove != nil || pl.AfterRemove != nil },
		hookGetItems:    func(pl Plugin) bool { return pl.BeforeGetItems != nil || pl.AfterGetItems != nil },
		hookSetItems:    func(pl Plugin) bool { return pl.BeforeSetItems != nil || pl.AfterSetItems != nil },
		hookRemoveItems: func(pl Plugin) bool { return pl.BeforeRemoveItems != nil || pl.AfterRemoveItems != nil },
	}

	for kind := hookKind(0); kind < hookKinds; kind++ {
		list := []*registration{}
		for _, reg := range ordered {
			if reg.enabled && has[kind](reg.plugin) {
				list = append(list, reg)
			}
		}
		p.before[kind] = list
	}

	p.errorHooks = nil
	for _, reg := range p.regs {
		if reg.enabled && reg.plugin.OnError != nil {
			p.errorHooks = append(p.errorHooks, reg)
		}
	}
}

// Plugins returns the names of all registered plugins in registration order.
func (p *Pipeline) Plugins() []string {
	names := make([]string, 0, len(p.regs))
	for _, reg := range p.regs {
		names = append(names, reg.plugin.Name)
	}
	return names
}

// --------------------------------------------------------------------------
// Lifecycle Hooks
// --------------------------------------------------------------------------

// RunInit runs every plugin's OnInit hook in registration order. The first
// failure aborts initialization and surfaces to the caller of create.
func (p *Pipeline) RunInit(ctx *Context) error {
	for _, reg := range p.regs {
		if !reg.enabled || reg.plugin.OnInit == nil {
			continue
		}
		if err := reg.plugin.OnInit(ctx.forPlugin(reg.handle)); err != nil {
			return p.fail(ctx, reg, StageInit, "", err)
		}
	}
	return nil
}

// RunDestroy runs every plugin's OnDestroy hook in registration order. All
// hooks run even when one fails; the first error surfaces to the caller.
func (p *Pipeline) RunDestroy(ctx *Context) error {
	var firstErr error
	for _, reg := range p.regs {
		if !reg.enabled || reg.plugin.OnDestroy == nil {
			continue
		}
		if err := reg.plugin.OnDestroy(ctx.forPlugin(reg.handle)); err != nil && firstErr == nil {
			firstErr = p.fail(ctx, reg, StageDestroy, "", err)
		}
	}
	return firstErr
}

// fail notifies every OnError hook and returns the original error wrapped
// with its hook provenance.
func (p *Pipeline) fail(ctx *Context, reg *registration, stage Stage, key string, err error) error {
	hookErr := &HookError{
		Plugin:    reg.plugin.Name,
		Operation: ctx.Operation,
		Stage:     stage,
		Key:       key,
		Err:       err,
	}
	for _, observer := range p.errorHooks {
		func() {
			// an OnError failure must never mask the original error
			defer func() {
				if r := recover(); r != nil {
					log.Warningf("OnError of plugin %q panicked: %v", observer.plugin.Name, r)
				}
			}()
			observer.plugin.OnError(ctx.forPlugin(observer.handle), hookErr)
		}()
	}
	return hookErr
}

// --------------------------------------------------------------------------
// Single-Item Hook Chains
// --------------------------------------------------------------------------

// RunBeforeGet threads the key through all before-get hooks in descending
// priority order. A hook error aborts the chain.
func (p *Pipeline) RunBeforeGet(ctx *Context, key string) (string, error) {
	for _, reg := range p.before[hookGet] {
		if reg.plugin.BeforeGet == nil {
			continue
		}
		k, err := reg.plugin.BeforeGet(ctx.forPlugin(reg.handle), key)
		if err != nil {
			return "", p.fail(ctx, reg, StageBefore, key, err)
		}
		key = k
	}
	return key, nil
}

// RunAfterGet threads the raw backend result through all after-get hooks in
// ascending priority order (mirror of the before phase).
func (p *Pipeline) RunAfterGet(ctx *Context, key string, value []byte, found bool) ([]byte, bool, error) {
	list := p.before[hookGet]
	for i := len(list) - 1; i >= 0; i-- {
		reg := list[i]
		if reg.plugin.AfterGet == nil {
			continue
		}
		v, f, err := reg.plugin.AfterGet(ctx.forPlugin(reg.handle), key, value, found)
		if err != nil {
			return nil, false, p.fail(ctx, reg, StageAfter, key, err)
		}
		value, found = v, f
	}
	return value, found, nil
}

// RunBeforeSet threads key and value through all before-set hooks.
func (p *Pipeline) RunBeforeSet(ctx *Context, key string, value []byte) (string, []byte, error) {
	for _, reg := range p.before[hookSet] {
		if reg.plugin.BeforeSet == nil {
			continue
		}
		k, v, err := reg.plugin.BeforeSet(ctx.forPlugin(reg.handle), key, value)
		if err != nil {
			return "", nil, p.fail(ctx, reg, StageBefore, key, err)
		}
		key, value = k, v
	}
	return key, value, nil
}

// RunAfterSet notifies all after-set hooks in mirror order.
func (p *Pipeline) RunAfterSet(ctx *Context, key string, value []byte) error {
	list := p.before[hookSet]
	for i := len(list) - 1; i >= 0; i-- {
		reg := list[i]
		if reg.plugin.AfterSet == nil {
			continue
		}
		if err := reg.plugin.AfterSet(ctx.forPlugin(reg.handle), key, value); err != nil {
			return p.fail(ctx, reg, StageAfter, key, err)
		}
	}
	return nil
}

// RunBeforeRemove threads the key through all before-remove hooks.
func (p *Pipeline) RunBeforeRemove(ctx *Context, key string) (string, error) {
	for _, reg := range p.before[hookRemove] {
		if reg.plugin.BeforeRemove == nil {
			continue
		}
		k, err := reg.plugin.BeforeRemove(ctx.forPlugin(reg.handle), key)
		if err != nil {
			return "", p.fail(ctx, reg, StageBefore, key, err)
		}
		key = k
	}
	return key, nil
}

// RunAfterRemove notifies all after-remove hooks in mirror order.
func (p *Pipeline) RunAfterRemove(ctx *Context, key string) error {
	list := p.before[hookRemove]
	for i := len(list) - 1; i >= 0; i-- {
		reg := list[i]
		if reg.plugin.AfterRemove == nil {
			continue
		}
		if err := reg.plugin.AfterRemove(ctx.forPlugin(reg.handle), key); err != nil {
			return p.fail(ctx, reg, StageAfter, key, err)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Batch Hook Chains
// --------------------------------------------------------------------------

// RunBeforeGetItems threads the key list through all before-getItems hooks.
func (p *Pipeline) RunBeforeGetItems(ctx *Context, keys []string) ([]string, error) {
	ctx.MarkBatch()
	for _, reg := range p.before[hookGetItems] {
		if reg.plugin.BeforeGetItems == nil {
			continue
		}
		ks, err := reg.plugin.BeforeGetItems(ctx.forPlugin(reg.handle), keys)
		if err != nil {
			return nil, p.fail(ctx, reg, StageBefore, "", err)
		}
		keys = ks
	}
	return keys, nil
}

// RunAfterGetItems threads the raw batch result through all after-getItems
// hooks in mirror order.
func (p *Pipeline) RunAfterGetItems(ctx *Context, items []driver.Item) ([]driver.Item, error) {
	list := p.before[hookGetItems]
	for i := len(list) - 1; i >= 0; i-- {
		reg := list[i]
		if reg.plugin.AfterGetItems == nil {
			continue
		}
		its, err := reg.plugin.AfterGetItems(ctx.forPlugin(reg.handle), items)
		if err != nil {
			return nil, p.fail(ctx, reg, StageAfter, "", err)
		}
		items = its
	}
	return items, nil
}

// RunBeforeSetItems threads the item list through all before-setItems hooks.
func (p *Pipeline) RunBeforeSetItems(ctx *Context, items []driver.Item) ([]driver.Item, error) {
	ctx.MarkBatch()
	for _, reg := range p.before[hookSetItems] {
		if reg.plugin.BeforeSetItems == nil {
			continue
		}
		its, err := reg.plugin.BeforeSetItems(ctx.forPlugin(reg.handle), items)
		if err != nil {
			return nil, p.fail(ctx, reg, StageBefore, "", err)
		}
		items = its
	}
	return items, nil
}

// RunAfterSetItems notifies all after-setItems hooks in mirror order.
func (p *Pipeline) RunAfterSetItems(ctx *Context, items []driver.Item) error {
	list := p.before[hookSetItems]
	for i := len(list) - 1; i >= 0; i-- {
		reg := list[i]
		if reg.plugin.AfterSetItems == nil {
			continue
		}
		if err := reg.plugin.AfterSetItems(ctx.forPlugin(reg.handle), items); err != nil {
			return p.fail(ctx, reg, StageAfter, "", err)
		}
	}
	return nil
}

// RunBeforeRemoveItems threads the key list through all before-removeItems
// hooks.
func (p *Pipeline) RunBeforeRemoveItems(ctx *Context, keys []string) ([]string, error) {
	ctx.MarkBatch()
	for _, reg := range p.before[hookRemoveItems] {
		if reg.plugin.BeforeRemoveItems == nil {
			continue
		}
		ks, err := reg.plugin.BeforeRemoveItems(ctx.forPlugin(reg.handle), keys)
		if err != nil {
			return nil, p.fail(ctx, reg, StageBefore, "", err)
		}
		keys = ks
	}
	return keys, nil
}

// RunAfterRemoveItems notifies all after-removeItems hooks in mirror order.
func (p *Pipeline) RunAfterRemoveItems(ctx *Context, keys []string) error {
	list := p.before[hookRemoveItems]
	for i := len(list) - 1; i >= 0; i-- {
		reg := list[i]
		if reg.plugin.AfterRemoveItems == nil {
			continue
		}
		if err := reg.plugin.AfterRemoveItems(ctx.forPlugin(reg.handle), keys); err != nil {
			return p.fail(ctx, reg, StageAfter, "", err)
		}
	}
	return nil
}
