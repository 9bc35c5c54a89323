package bridge

import (
	"io"

	"github.com/ValentinKolb/uKV/lib/driver"
	"github.com/VictoriaMetrics/metrics"
)

// DriverName is the name the driver registers under.
const DriverName = "bridge"

func init() {
	driver.Register(DriverName, func() driver.IDriver { return &bridgeDriver{} })
}

// Bridge is the narrow operation set a host platform exposes, e.g. a mobile
// native storage bridge. Every operation is already atomic on the host side;
// the driver widens this set to the full driver contract.
type Bridge interface {
	// Get retrieves the value for a key within a namespace.
	Get(namespace, key string) (value []byte, found bool, err error)
	// Set stores a key-value pair within a namespace.
	Set(namespace, key string, value []byte) (err error)
	// Remove deletes a key within a namespace. Missing keys are a no-op.
	Remove(namespace, key string) (err error)
	// Keys lists all keys within a namespace.
	Keys(namespace string) (keys []string, err error)
	// Clear removes all keys within a namespace.
	Clear(namespace string) (err error)
}

// bridgeDriver adapts a host Bridge to the driver contract. Batch operations
// degrade to per-key calls; transactions are not offered because the host
// side cannot group operations.
type bridgeDriver struct {
	bridge    Bridge
	namespace string
	stats     *metrics.Set
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (d *bridgeDriver) Name() string { return DriverName }

// Supported is always true; whether a host bridge was actually handed in
// via the "bridge" option is checked in InitStorage.
func (d *bridgeDriver) Supported() bool { return true }

func (d *bridgeDriver) InitStorage(cfg driver.Config) error {
	if d.bridge != nil {
		return driver.NewError(driver.RetCInvalidConfig, "driver already initialized")
	}
	cfg = cfg.Normalize()

	raw, ok := cfg.Options["bridge"]
	if !ok {
		return driver.NewError(driver.RetCInvalidConfig, `option "bridge" is required for the bridge driver`)
	}
	b, ok := raw.(Bridge)
	if !ok {
		return driver.NewError(driver.RetCInvalidConfig, `option "bridge" must implement bridge.Bridge`)
	}

	d.bridge = b
	d.namespace = cfg.Namespace()
	d.stats = metrics.NewSet()
	return nil
}

func (d *bridgeDriver) Close() error { return nil }

// --------------------------------------------------------------------------
// Single-Item Operations
// --------------------------------------------------------------------------

func (d *bridgeDriver) GetItem(key string) ([]byte, bool, error) {
	value, found, err := d.bridge.Get(d.namespace, key)
	if err != nil {
		return nil, false, driver.WrapError(driver.RetCOperationFailed, "bridge get failed", err)
	}
	return value, found, nil
}

func (d *bridgeDriver) SetItem(key string, value []byte) error {
	if err := d.bridge.Set(d.namespace, key, value); err != nil {
		return driver.WrapError(driver.RetCOperationFailed, "bridge set failed", err)
	}
	return nil
}

func (d *bridgeDriver) RemoveItem(key string) error {
	if err := d.bridge.Remove(d.namespace, key); err != nil {
		return driver.WrapError(driver.RetCOperationFailed, "bridge remove failed", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Batch Operations
// --------------------------------------------------------------------------

func (d *bridgeDriver) GetItems(keys []string) ([]driver.Item, error) {
	items := make([]driver.Item, 0, len(keys))
	for _, key := range keys {
		value, found, err := d.GetItem(key)
		if err != nil {
			return nil, err
		}
		if !found {
			value = nil
		}
		items = append(items, driver.Item{Key: key, Value: value})
	}
	return items, nil
}

func (d *bridgeDriver) SetItems(items []driver.Item) error {
	for _, item := range items {
		if err := d.SetItem(item.Key, item.Value); err != nil {
			return err
		}
	}
	return nil
}

func (d *bridgeDriver) RemoveItems(keys []string) error {
	for _, key := range keys {
		if err := d.RemoveItem(key); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Traversal and Introspection
// --------------------------------------------------------------------------

func (d *bridgeDriver) Iterate(fn func(key string, value []byte) bool) error {
	keys, err := d.Keys()
	if err != nil {
		return err
	}
	for _, key := range keys {
		value, found, err := d.GetItem(key)
		if err != nil {
			return err
		}
		if !found {
			// removed between listing and read, skip
			continue
		}
		if !fn(key, value) {
			return nil
		}
	}
	return nil
}

func (d *bridgeDriver) Length() (int, error) {
	keys, err := d.Keys()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (d *bridgeDriver) Key(index int) (string, error) {
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

func (d *bridgeDriver) Keys() ([]string, error) {
	keys, err := d.bridge.Keys(d.namespace)
	if err != nil {
		return nil, driver.WrapError(driver.RetCOperationFailed, "bridge keys failed", err)
	}
	return keys, nil
}

func (d *bridgeDriver) Clear() error {
	if err := d.bridge.Clear(d.namespace); err != nil {
		return driver.WrapError(driver.RetCOperationFailed, "bridge clear failed", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

func (d *bridgeDriver) RunTransaction(driver.Mode, func(txn driver.Txn) error) error {
	return driver.NewError(driver.RetCUnsupportedOperation, "bridge driver does not support transactions")
}

// --------------------------------------------------------------------------
// Optional Capabilities
// --------------------------------------------------------------------------

func (d *bridgeDriver) DropInstance() error {
	return d.Clear()
}

func (d *bridgeDriver) WriteStats(w io.Writer) {
	d.stats.WritePrometheus(w)
}

// --------------------------------------------------------------------------
// Feature Support
// --------------------------------------------------------------------------

func (d *bridgeDriver) SupportsFeature(feature driver.Feature) bool {
	supported := driver.FeatureGet | driver.FeatureSet | driver.FeatureRemove |
		driver.FeatureBatch | driver.FeatureIterate | driver.FeatureDrop
	return supported&feature == feature
}

func (d *bridgeDriver) GetInfo() driver.Info {
	info := driver.Info{
		Driver: DriverName,
		SupportedFeatures: []driver.Feature{
			driver.FeatureGet, driver.FeatureSet, driver.FeatureRemove,
			driver.FeatureBatch, driver.FeatureIterate, driver.FeatureDrop,
		},
	}
	if n, err := d.Length(); err == nil {
		info.EntryCount = n
	}
	return info
}
