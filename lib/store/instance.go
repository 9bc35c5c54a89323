package store

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/uKV/lib/driver"
	"github.com/ValentinKolb/uKV/lib/logger"
	"github.com/ValentinKolb/uKV/lib/plugin"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("store")

// instanceImpl is the instance facade: it resolves configuration, selects
// the backend, owns the ready state and drives hook invocation around every
// backend call.
type instanceImpl struct {
	id  string
	cfg driver.Config

	drv  driver.IDriver
	pipe *plugin.Pipeline
	info driver.Info

	// persistent per-plugin metadata, scoped to the instance
	meta *xsync.MapOf[string, interface{}]

	readyErr  error
	destroyed atomic.Bool

	stats *metrics.Set
}

// CreateInstance resolves the configuration, selects and initializes the
// first supported driver and registers all configured plugins. Plugin OnInit
// failures surface to the caller and leave the instance not ready.
func CreateInstance(cfg Config) (IInstance, error) {
	resolved := cfg.Config.Normalize()

	inst := &instanceImpl{
		id:    uuid.NewString(),
		cfg:   resolved,
		pipe:  plugin.NewPipeline(),
		meta:  xsync.NewMapOf[string, interface{}](),
		stats: metrics.NewSet(),
	}

	drv, err := driver.Select(resolved.Drivers)
	if err != nil {
		inst.readyErr = err
		return inst, err
	}
	if err := drv.InitStorage(resolved); err != nil {
		inst.readyErr = err
		return inst, err
	}
	inst.drv = drv
	inst.info = drv.GetInfo()

	for _, pl := range cfg.Plugins {
		if _, err := inst.pipe.Register(pl, resolved); err != nil {
			inst.readyErr = err
			_ = drv.Close()
			return inst, err
		}
	}

	if err := inst.pipe.RunInit(inst.newContext("")); err != nil {
		inst.readyErr = err
		_ = drv.Close()
		return inst, err
	}

	log.Infof("instance %s ready (driver=%s, namespace=%s, plugins=%v)",
		inst.id, drv.Name(), resolved.Namespace(), inst.pipe.Plugins())
	return inst, nil
}

// newContext creates the shared plugin context of one top-level invocation.
func (i *instanceImpl) newContext(op plugin.Operation) *plugin.Context {
	name := ""
	if i.drv != nil {
		name = i.drv.Name()
	}
	return plugin.NewContext(i, name, i.info, i.cfg, op, i.meta)
}

// guard rejects operations on a not-ready or destroyed instance.
func (i *instanceImpl) guard() error {
	if i.destroyed.Load() {
		return driver.NewError(driver.RetCDriverUnavailable, "instance destroyed")
	}
	return i.readyErr
}

// observe records one operation in the instance statistics.
func (i *instanceImpl) observe(op string, start time.Time) {
	i.stats.GetOrCreateCounter(fmt.Sprintf(`ukv_ops_total{op=%q,driver=%q}`, op, i.drv.Name())).Inc()
	i.stats.GetOrCreateHistogram(fmt.Sprintf(`ukv_op_duration_seconds{op=%q,driver=%q}`, op, i.drv.Name())).UpdateDuration(start)
}

// --------------------------------------------------------------------------
// Single-Item Operations
// --------------------------------------------------------------------------

func (i *instanceImpl) GetItem(key string) ([]byte, bool, error) {
	if err := i.guard(); err != nil {
		return nil, false, err
	}
	defer i.observe("get", time.Now())

	ctx := i.newContext(plugin.OpGet)
	key, err := i.pipe.RunBeforeGet(ctx, key)
	if err != nil {
		return nil, false, err
	}
	value, found, err := i.drv.GetItem(key)
	if err != nil {
		return nil, false, err
	}
	return i.pipe.RunAfterGet(ctx, key, value, found)
}

func (i *instanceImpl) SetItem(key string, value []byte) error {
	if err := i.guard(); err != nil {
		return err
	}
	defer i.observe("set", time.Now())

	ctx := i.newContext(plugin.OpSet)
	key, value, err := i.pipe.RunBeforeSet(ctx, key, value)
	if err != nil {
		return err
	}
	if err := i.drv.SetItem(key, value); err != nil {
		return err
	}
	return i.pipe.RunAfterSet(ctx, key, value)
}

func (i *instanceImpl) RemoveItem(key string) error {
	if err := i.guard(); err != nil {
		return err
	}
	defer i.observe("remove", time.Now())

	ctx := i.newContext(plugin.OpRemove)
	key, err := i.pipe.RunBeforeRemove(ctx, key)
	if err != nil {
		return err
	}
	if err := i.drv.RemoveItem(key); err != nil {
		return err
	}
	return i.pipe.RunAfterRemove(ctx, key)
}

// --------------------------------------------------------------------------
// Batch Operations
// --------------------------------------------------------------------------

// chunked splits n into runs of at most MaxBatchSize and calls fn with the
// bounds of each run. Zero MaxBatchSize means one run.
func (i *instanceImpl) chunked(n int, fn func(lo, hi int) error) error {
	size := i.cfg.MaxBatchSize
	if size <= 0 || size >= n {
		return fn(0, n)
	}
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		if err := fn(lo, hi); err != nil {
			return err
		}
	}
	return nil
}

func (i *instanceImpl) GetItems(keys []string) ([]driver.Item, error) {
	if err := i.guard(); err != nil {
		return nil, err
	}
	if err := i.requireFeature(driver.FeatureBatch, "getItems"); err != nil {
		return nil, err
	}
	defer i.observe("getItems", time.Now())

	ctx := i.newContext(plugin.OpGetItems)
	keys, err := i.pipe.RunBeforeGetItems(ctx, keys)
	if err != nil {
		return nil, err
	}

	items := make([]driver.Item, 0, len(keys))
	err = i.chunked(len(keys), func(lo, hi int) error {
		chunk, err := i.drv.GetItems(keys[lo:hi])
		if err != nil {
			return err
		}
		items = append(items, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return i.pipe.RunAfterGetItems(ctx, items)
}

func (i *instanceImpl) SetItems(items []driver.Item) error {
	if err := i.guard(); err != nil {
		return err
	}
	if err := i.requireFeature(driver.FeatureBatch, "setItems"); err != nil {
		return err
	}
	defer i.observe("setItems", time.Now())

	ctx := i.newContext(plugin.OpSetItems)
	items, err := i.pipe.RunBeforeSetItems(ctx, items)
	if err != nil {
		return err
	}
	err = i.chunked(len(items), func(lo, hi int) error {
		return i.drv.SetItems(items[lo:hi])
	})
	if err != nil {
		return err
	}
	return i.pipe.RunAfterSetItems(ctx, items)
}

func (i *instanceImpl) RemoveItems(keys []string) error {
	if err := i.guard(); err != nil {
		return err
	}
	if err := i.requireFeature(driver.FeatureBatch, "removeItems"); err != nil {
		return err
	}
	defer i.observe("removeItems", time.Now())

	ctx := i.newContext(plugin.OpRemoveItems)
	keys, err := i.pipe.RunBeforeRemoveItems(ctx, keys)
	if err != nil {
		return err
	}
	err = i.chunked(len(keys), func(lo, hi int) error {
		return i.drv.RemoveItems(keys[lo:hi])
	})
	if err != nil {
		return err
	}
	return i.pipe.RunAfterRemoveItems(ctx, keys)
}

// --------------------------------------------------------------------------
// Traversal and Introspection
// --------------------------------------------------------------------------

func (i *instanceImpl) requireFeature(f driver.Feature, op string) error {
	if !i.drv.SupportsFeature(f) {
		return driver.NewError(driver.RetCUnsupportedOperation,
			fmt.Sprintf("%s operation is not supported by driver %q", op, i.drv.Name()))
	}
	return nil
}

func (i *instanceImpl) Iterate(fn func(key string, value []byte) bool) error {
	if err := i.guard(); err != nil {
		return err
	}
	if err := i.requireFeature(driver.FeatureIterate, "iterate"); err != nil {
		return err
	}
	return i.drv.Iterate(fn)
}

func (i *instanceImpl) Length() (int, error) {
	if err := i.guard(); err != nil {
		return 0, err
	}
	return i.drv.Length()
}

func (i *instanceImpl) Key(index int) (string, error) {
	if err := i.guard(); err != nil {
		return "", err
	}
	return i.drv.Key(index)
}

func (i *instanceImpl) Keys() ([]string, error) {
	if err := i.guard(); err != nil {
		return nil, err
	}
	return i.drv.Keys()
}

func (i *instanceImpl) Clear() error {
	if err := i.guard(); err != nil {
		return err
	}
	defer i.observe("clear", time.Now())
	return i.drv.Clear()
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

func (i *instanceImpl) RunTransaction(mode driver.Mode, scope func(txn driver.Txn) error) error {
	if err := i.guard(); err != nil {
		return err
	}
	if err := i.requireFeature(driver.FeatureTransaction, "transaction"); err != nil {
		return err
	}
	defer i.observe("transaction", time.Now())
	return i.drv.RunTransaction(mode, scope)
}

// --------------------------------------------------------------------------
// Compatibility Mode
// --------------------------------------------------------------------------

func (i *instanceImpl) compatGuard() error {
	if !i.cfg.CompatibilityMode {
		return driver.NewError(driver.RetCUnsupportedOperation, "callback variants require CompatibilityMode")
	}
	return nil
}

func (i *instanceImpl) GetItemCB(key string, cb func(err error, value []byte, found bool)) {
	if err := i.compatGuard(); err != nil {
		cb(err, nil, false)
		return
	}
	value, found, err := i.GetItem(key)
	cb(err, value, found)
}

func (i *instanceImpl) SetItemCB(key string, value []byte, cb func(err error)) {
	if err := i.compatGuard(); err != nil {
		cb(err)
		return
	}
	cb(i.SetItem(key, value))
}

func (i *instanceImpl) RemoveItemCB(key string, cb func(err error)) {
	if err := i.compatGuard(); err != nil {
		cb(err)
		return
	}
	cb(i.RemoveItem(key))
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (i *instanceImpl) Ready() error {
	return i.guard()
}

func (i *instanceImpl) Destroy() error {
	if i.destroyed.Swap(true) {
		return nil
	}

	var firstErr error
	if i.readyErr == nil {
		firstErr = i.pipe.RunDestroy(i.newContext(""))
	}

	// metadata is scoped to the instance and dies with it
	i.meta.Clear()

	if i.drv != nil {
		if err := i.drv.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	log.Infof("instance %s destroyed", i.id)
	return firstErr
}

func (i *instanceImpl) DropInstance() error {
	if err := i.guard(); err != nil {
		return err
	}
	if err := i.requireFeature(driver.FeatureDrop, "dropInstance"); err != nil {
		return err
	}
	if err := i.drv.DropInstance(); err != nil {
		return err
	}
	return i.Destroy()
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

func (i *instanceImpl) Config() driver.Config {
	return i.cfg
}

func (i *instanceImpl) GetInfo() driver.Info {
	if i.drv == nil {
		return driver.Info{}
	}
	return i.drv.GetInfo()
}

func (i *instanceImpl) WriteStats(w io.Writer) error {
	if err := i.guard(); err != nil {
		return err
	}
	if err := i.requireFeature(driver.FeatureStats, "stats"); err != nil {
		return err
	}
	i.stats.WritePrometheus(w)
	i.drv.WriteStats(w)
	return nil
}
