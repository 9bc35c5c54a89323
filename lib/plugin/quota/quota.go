package quota

import (
	"fmt"

	"github.com/ValentinKolb/uKV/lib/driver"
	"github.com/ValentinKolb/uKV/lib/logger"
	"github.com/ValentinKolb/uKV/lib/plugin"
)

var log = logger.GetLogger("plugin/quota")

// PluginName is the registered name of the quota plugin.
const PluginName = "quota"

// statePending passes the admitted write from the before-hook to its paired
// after-hook within one invocation.
const statePending = "quota.pending"

// Options configures the quota plugin.
type Options struct {
	// MaxSize is the configured capacity ceiling in bytes. Required.
	MaxSize int64

	// Policy selects what happens when a write would exceed capacity:
	// EvictLRU reclaims least-recently-used entries, EvictError fails the
	// write immediately. Defaults to EvictLRU.
	Policy driver.EvictionPolicy

	// Priority of the plugin. The default of -100 places the quota hooks
	// after all value-transforming hooks, so sizes are measured on the
	// exact bytes the backend will store.
	Priority int

	// OnQuotaExceeded is called before a write fails with
	// RetCQuotaExceeded. Optional.
	OnQuotaExceeded func(key string, needed, capacity int64)

	// EstimateQuota optionally reports a host quota estimate in bytes.
	// The effective capacity is the minimum of MaxSize and the estimate.
	EstimateQuota func() (int64, error)
}

// pendingWrite is one admitted entry awaiting commit by the after-hook.
type pendingWrite struct {
	key   string
	size  int64
	delta int64
}

// New creates the quota/eviction plugin. It tracks the serialized size of
// every key and performs least-recently-used eviction through the normal
// remove path to keep usage within capacity.
func New(opts Options) plugin.Plugin {
	if opts.Policy == "" {
		opts.Policy = driver.EvictLRU
	}
	priority := opts.Priority
	if priority == 0 {
		priority = -100
	}

	q := &quotaPlugin{opts: opts, ix: newIndex()}

	return plugin.Plugin{
		Name:     PluginName,
		Priority: priority,
		Enabled: func(driver.Config) bool {
			return opts.MaxSize > 0
		},

		BeforeSet:    q.beforeSet,
		AfterSet:     q.afterSet,
		AfterGet:     q.afterGet,
		AfterRemove:  q.afterRemove,
		BeforeRemove: q.beforeRemove,

		BeforeSetItems:   q.beforeSetItems,
		AfterSetItems:    q.afterSetItems,
		AfterGetItems:    q.afterGetItems,
		AfterRemoveItems: q.afterRemoveItems,
	}
}

type quotaPlugin struct {
	opts Options
	ix   *index
}

// capacity returns the effective ceiling: the minimum of the configured
// maximum and the host-reported estimate, if any.
func (q *quotaPlugin) capacity() int64 {
	c := q.opts.MaxSize
	if q.opts.EstimateQuota != nil {
		if est, err := q.opts.EstimateQuota(); err == nil && est > 0 && est < c {
			c = est
		}
	}
	return c
}

// entrySize measures an entry exactly as the backend stores it: key bytes
// plus the fully transformed value bytes.
func entrySize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}

// --------------------------------------------------------------------------
// Single-Item Hooks
// --------------------------------------------------------------------------

func (q *quotaPlugin) beforeSet(ctx *plugin.Context, key string, value []byte) (string, []byte, error) {
	if ctx.IsBatch() {
		return key, value, nil
	}
	if err := q.ix.ensureBuilt(ctx); err != nil {
		return "", nil, err
	}

	size := entrySize(key, value)
	delta := size - q.ix.sizeOf(key)

	if err := q.admit(ctx, key, delta, map[string]bool{key: true}); err != nil {
		return "", nil, err
	}

	ctx.SetState(statePending, pendingWrite{key: key, size: size, delta: delta})
	return key, value, nil
}

func (q *quotaPlugin) afterSet(ctx *plugin.Context, key string, value []byte) error {
	if ctx.IsBatch() {
		return nil
	}
	raw, ok := ctx.State(statePending)
	if !ok {
		return nil
	}
	ctx.DeleteState(statePending)
	q.ix.commit(raw.(pendingWrite))
	return nil
}

func (q *quotaPlugin) afterGet(ctx *plugin.Context, key string, value []byte, found bool) ([]byte, bool, error) {
	if found && !ctx.IsBatch() {
		q.ix.touch(key)
	}
	return value, found, nil
}

// beforeRemove exists so remove participates in the dispatch even when only
// the after hook does work.
func (q *quotaPlugin) beforeRemove(ctx *plugin.Context, key string) (string, error) {
	return key, nil
}

func (q *quotaPlugin) afterRemove(ctx *plugin.Context, key string) error {
	if ctx.IsBatch() {
		return nil
	}
	q.ix.forget(key)
	return nil
}

// --------------------------------------------------------------------------
// Batch Hooks
// --------------------------------------------------------------------------

func (q *quotaPlugin) beforeSetItems(ctx *plugin.Context, items []driver.Item) ([]driver.Item, error) {
	if err := q.ix.ensureBuilt(ctx); err != nil {
		return nil, err
	}

	// de-duplicate repeated keys, the last value wins (matching the
	// eventual on-disk state), then admit or reject the net delta of the
	// whole batch atomically
	last := map[string][]byte{}
	for _, item := range items {
		last[item.Key] = item.Value
	}

	var delta int64
	exempt := make(map[string]bool, len(last))
	pending := make([]pendingWrite, 0, len(last))
	for key, value := range last {
		size := entrySize(key, value)
		delta += size - q.ix.sizeOf(key)
		exempt[key] = true
		pending = append(pending, pendingWrite{key: key, size: size, delta: size - q.ix.sizeOf(key)})
	}

	if err := q.admit(ctx, fmt.Sprintf("batch of %d", len(items)), delta, exempt); err != nil {
		return nil, err
	}

	ctx.SetState(statePending, pending)
	return items, nil
}

func (q *quotaPlugin) afterSetItems(ctx *plugin.Context, items []driver.Item) error {
	raw, ok := ctx.State(statePending)
	if !ok {
		return nil
	}
	ctx.DeleteState(statePending)
	for _, pw := range raw.([]pendingWrite) {
		q.ix.commit(pw)
	}
	return nil
}

func (q *quotaPlugin) afterGetItems(ctx *plugin.Context, items []driver.Item) ([]driver.Item, error) {
	for _, item := range items {
		if item.Value != nil {
			q.ix.touch(item.Key)
		}
	}
	return items, nil
}

func (q *quotaPlugin) afterRemoveItems(ctx *plugin.Context, keys []string) error {
	for _, key := range keys {
		q.ix.forget(key)
	}
	return nil
}

// --------------------------------------------------------------------------
// Admission
// --------------------------------------------------------------------------

// admit ensures capacity for a write of the given net delta, evicting
// least-recently-used entries through the instance's normal remove path.
// Keys being written in the current invocation are eviction-exempt.
func (q *quotaPlugin) admit(ctx *plugin.Context, what string, delta int64, exempt map[string]bool) error {
	capacity := q.capacity()

	for {
		usage := q.ix.currentUsage()
		if usage+delta <= capacity {
			return nil
		}
		if q.opts.Policy != driver.EvictLRU {
			return q.reject(what, usage+delta, capacity)
		}

		victims := q.ix.evictionOrder(exempt, usage+delta-capacity)
		if len(victims) == 0 {
			return q.reject(what, usage+delta, capacity)
		}

		for _, victim := range victims {
			log.Debugf("evicting %q to admit %s", victim, what)
			if err := ctx.Instance.RemoveItem(victim); err != nil {
				// a failed eviction is fatal only to the triggering write
				return driver.WrapError(driver.RetCQuotaExceeded,
					fmt.Sprintf("eviction of %q failed", victim), err)
			}
		}

		if q.ix.currentUsage() >= usage {
			// no progress, avoid spinning
			return q.reject(what, q.ix.currentUsage()+delta, capacity)
		}
	}
}

func (q *quotaPlugin) reject(what string, needed, capacity int64) error {
	if q.opts.OnQuotaExceeded != nil {
		q.opts.OnQuotaExceeded(what, needed, capacity)
	}
	return driver.NewError(driver.RetCQuotaExceeded,
		fmt.Sprintf("write of %s needs %d bytes, capacity is %d", what, needed, capacity))
}
