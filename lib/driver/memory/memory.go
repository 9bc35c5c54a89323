package memory

import (
	"io"
	"sort"
	"sync"

	"github.com/ValentinKolb/uKV/lib/driver"
	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// DriverName is the name the driver registers under.
const DriverName = "memory"

func init() {
	driver.Register(DriverName, func() driver.IDriver { return &memoryDriver{} })
}

// memoryDriver implements the simple key-string backend on a concurrent map.
// Single operations are already atomic; transactions are emulated by
// serializing all scoped access behind one lock.
type memoryDriver struct {
	data  *xsync.MapOf[string, []byte]
	txnMu sync.RWMutex // held by RunTransaction scopes
	cfg   driver.Config
	stats *metrics.Set
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (d *memoryDriver) Name() string { return DriverName }

func (d *memoryDriver) Supported() bool { return true }

func (d *memoryDriver) InitStorage(cfg driver.Config) error {
	if d.data != nil {
		return driver.NewError(driver.RetCInvalidConfig, "driver already initialized")
	}
	d.cfg = cfg.Normalize()
	d.data = xsync.NewMapOf[string, []byte]()
	d.stats = metrics.NewSet()
	d.stats.GetOrCreateGauge("ukv_memory_entries", func() float64 {
		return float64(d.data.Size())
	})
	return nil
}

func (d *memoryDriver) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Single-Item Operations
// --------------------------------------------------------------------------

func (d *memoryDriver) GetItem(key string) ([]byte, bool, error) {
	d.txnMu.RLock()
	defer d.txnMu.RUnlock()
	value, found := d.data.Load(key)
	return value, found, nil
}

func (d *memoryDriver) SetItem(key string, value []byte) error {
	d.txnMu.RLock()
	defer d.txnMu.RUnlock()
	d.data.Store(key, append([]byte(nil), value...))
	return nil
}

func (d *memoryDriver) RemoveItem(key string) error {
	d.txnMu.RLock()
	defer d.txnMu.RUnlock()
	d.data.Delete(key)
	return nil
}

// --------------------------------------------------------------------------
// Batch Operations
// --------------------------------------------------------------------------

func (d *memoryDriver) GetItems(keys []string) ([]driver.Item, error) {
	d.txnMu.RLock()
	defer d.txnMu.RUnlock()

	items := make([]driver.Item, 0, len(keys))
	for _, key := range keys {
		value, found := d.data.Load(key)
		if !found {
			value = nil
		}
		items = append(items, driver.Item{Key: key, Value: value})
	}
	return items, nil
}

func (d *memoryDriver) SetItems(items []driver.Item) error {
	d.txnMu.RLock()
	defer d.txnMu.RUnlock()
	for _, item := range items {
		d.data.Store(item.Key, append([]byte(nil), item.Value...))
	}
	return nil
}

func (d *memoryDriver) RemoveItems(keys []string) error {
	d.txnMu.RLock()
	defer d.txnMu.RUnlock()
	for _, key := range keys {
		d.data.Delete(key)
	}
	return nil
}

// --------------------------------------------------------------------------
// Traversal and Introspection
// --------------------------------------------------------------------------

func (d *memoryDriver) Iterate(fn func(key string, value []byte) bool) error {
	d.txnMu.RLock()
	defer d.txnMu.RUnlock()
	d.data.Range(func(key string, value []byte) bool {
		return fn(key, value)
	})
	return nil
}

func (d *memoryDriver) Length() (int, error) {
	return d.data.Size(), nil
}

func (d *memoryDriver) Key(index int) (string, error) {
	if index < 0 {
		return "", driver.NewError(driver.RetCInvalidArgument, "negative key index")
	}
	keys, err := d.Keys()
	if err != nil {
		return "", err
	}
	if index >= len(keys) {
		return "", nil
	}
	return keys[index], nil
}

// Keys returns all keys in sorted order so Key(index) is stable between
// calls without intervening writes.
func (d *memoryDriver) Keys() ([]string, error) {
	keys := []string{}
	_ = d.Iterate(func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)
	return keys, nil
}

func (d *memoryDriver) Clear() error {
	d.txnMu.RLock()
	defer d.txnMu.RUnlock()
	d.data.Clear()
	return nil
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// memTxn provides the transaction scope operations. Isolation comes from the
// exclusive lock held for the whole scope; there is no rollback, so a failed
// scope may leave earlier writes applied. This matches the isolation the
// host backend itself offers.
type memTxn struct {
	d        *memoryDriver
	writable bool
}

func (t *memTxn) Get(key string) ([]byte, bool, error) {
	value, found := t.d.data.Load(key)
	return value, found, nil
}

func (t *memTxn) Set(key string, value []byte) error {
	if !t.writable {
		return driver.NewError(driver.RetCInvalidArgument, "write in read-only transaction")
	}
	t.d.data.Store(key, append([]byte(nil), value...))
	return nil
}

func (t *memTxn) Remove(key string) error {
	if !t.writable {
		return driver.NewError(driver.RetCInvalidArgument, "write in read-only transaction")
	}
	t.d.data.Delete(key)
	return nil
}

func (t *memTxn) Keys() ([]string, error) {
	keys := []string{}
	t.d.data.Range(func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)
	return keys, nil
}

func (t *memTxn) Iterate(fn func(key string, value []byte) bool) error {
	t.d.data.Range(func(key string, value []byte) bool {
		return fn(key, value)
	})
	return nil
}

func (t *memTxn) Clear() error {
	if !t.writable {
		return driver.NewError(driver.RetCInvalidArgument, "write in read-only transaction")
	}
	t.d.data.Clear()
	return nil
}

func (d *memoryDriver) RunTransaction(mode driver.Mode, scope func(txn driver.Txn) error) error {
	if mode == driver.ModeReadOnly {
		d.txnMu.RLock()
		defer d.txnMu.RUnlock()
	} else {
		d.txnMu.Lock()
		defer d.txnMu.Unlock()
	}
	return scope(&memTxn{d: d, writable: mode == driver.ModeReadWrite})
}

// --------------------------------------------------------------------------
// Optional Capabilities
// --------------------------------------------------------------------------

func (d *memoryDriver) DropInstance() error {
	d.data.Clear()
	return nil
}

func (d *memoryDriver) WriteStats(w io.Writer) {
	d.stats.WritePrometheus(w)
}

// --------------------------------------------------------------------------
// Feature Support
// --------------------------------------------------------------------------

func (d *memoryDriver) SupportsFeature(feature driver.Feature) bool {
	supported := driver.FeatureGet | driver.FeatureSet | driver.FeatureRemove |
		driver.FeatureBatch | driver.FeatureIterate | driver.FeatureTransaction |
		driver.FeatureDrop | driver.FeatureStats
	return supported&feature == feature
}

func (d *memoryDriver) GetInfo() driver.Info {
	var size int64
	_ = d.Iterate(func(key string, value []byte) bool {
		size += int64(len(key) + len(value))
		return true
	})
	return driver.Info{
		Driver:     DriverName,
		SizeBytes:  size,
		EntryCount: d.data.Size(),
		SupportedFeatures: []driver.Feature{
			driver.FeatureGet, driver.FeatureSet, driver.FeatureRemove,
			driver.FeatureBatch, driver.FeatureIterate, driver.FeatureTransaction,
			driver.FeatureDrop, driver.FeatureStats,
		},
	}
}
