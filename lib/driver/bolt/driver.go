package bolt

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ValentinKolb/uKV/lib/driver"
	"github.com/ValentinKolb/uKV/lib/logger"
	"github.com/VictoriaMetrics/metrics"
	bolt "go.etcd.io/bbolt"
)

const (
	// DriverName is the name the driver registers under.
	DriverName = "bolt"

	// openTimeout bounds how long opening the database file may wait for
	// a competing process to release its file lock.
	openTimeout = 1 * time.Second
)

var log = logger.GetLogger("driver/bolt")

func init() {
	driver.Register(DriverName, func() driver.IDriver { return &boltDriver{} })
}

// boltDriver implements the structured transactional backend on top of a
// bbolt database file. Every instance namespace maps to one bucket.
type boltDriver struct {
	mu     sync.Mutex // guards db handle, idle timer and init state
	db     *bolt.DB
	closed bool
	inited bool

	cfg    driver.Config
	path   string
	bucket []byte

	dbCtx *dbContext
	coal  *coalescer
	idle  *time.Timer

	stats *metrics.Set
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (d *boltDriver) Name() string { return DriverName }

// Supported reports whether a database file can be created. The driver needs
// a writable filesystem.
func (d *boltDriver) Supported() bool {
	return true
}

func (d *boltDriver) InitStorage(cfg driver.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inited {
		return driver.NewError(driver.RetCInvalidConfig, "driver already initialized")
	}

	cfg = cfg.Normalize()
	path := cfg.Name + ".db"
	if p, ok := cfg.Options["path"]; ok {
		ps, ok := p.(string)
		if !ok || ps == "" {
			return driver.NewError(driver.RetCInvalidConfig, `option "path" must be a non-empty string`)
		}
		path = ps
	}

	d.cfg = cfg
	d.path = path
	d.bucket = []byte(cfg.Namespace())
	d.stats = metrics.NewSet()
	d.dbCtx = newDBContext(cfg.MaxConcurrentTransactions, d.bucket, d.begin)

	if err := d.open(); err != nil {
		return err
	}

	// create the namespace bucket up front so read transactions on a fresh
	// database see an empty namespace instead of a missing one
	if err := d.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(d.bucket)
		return err
	}); err != nil {
		return driver.WrapError(driver.RetCDriverUnavailable, "cannot create namespace bucket", err)
	}

	if cfg.CoalesceWrites {
		d.coal = newCoalescer(cfg.CoalesceWindow, d.flushCoalesced)
	}

	d.stats.GetOrCreateGauge("ukv_bolt_txn_active", func() float64 {
		return float64(d.dbCtx.activeCount())
	})
	d.stats.GetOrCreateGauge("ukv_bolt_txn_pending", func() float64 {
		return float64(d.dbCtx.pendingCount())
	})

	d.inited = true
	return nil
}

// open creates the native handle. Caller must hold d.mu.
func (d *boltDriver) open() error {
	opts := &bolt.Options{Timeout: openTimeout}
	if d.cfg.Size > 0 {
		opts.InitialMmapSize = int(d.cfg.Size)
	}
	db, err := bolt.Open(d.path, 0600, opts)
	if err != nil {
		return driver.WrapError(driver.RetCDriverUnavailable, fmt.Sprintf("cannot open %s", d.path), err)
	}
	db.NoSync = d.cfg.Durability == driver.DurabilityRelaxed
	d.db = db
	d.stats.GetOrCreateCounter("ukv_bolt_opens_total").Inc()
	return nil
}

// begin is the native transaction factory handed to the concurrency
// controller. It transparently reopens a connection the idle timer closed.
func (d *boltDriver) begin(writable bool) (*bolt.Tx, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, fmt.Errorf("connection closed")
	}
	if d.db == nil {
		log.Debugf("reopening idle-closed connection %s", d.path)
		if err := d.open(); err != nil {
			d.mu.Unlock()
			return nil, err
		}
	}
	db := d.db
	d.mu.Unlock()

	return db.Begin(writable)
}

// touchIdle (re)arms the idle-connection timer after an operation finished.
func (d *boltDriver) touchIdle() {
	if d.cfg.ConnectionIdle <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.idle != nil {
		d.idle.Stop()
	}
	d.idle = time.AfterFunc(d.cfg.ConnectionIdle, d.closeIdle)
}

// closeIdle closes the native handle if no transaction is in flight. An
// in-flight transaction simply keeps the handle; the timer is rearmed when
// its operation completes.
func (d *boltDriver) closeIdle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.db == nil || d.dbCtx.activeCount() > 0 {
		return
	}
	log.Debugf("closing idle connection %s", d.path)
	if err := d.db.Close(); err != nil {
		log.Warningf("idle close of %s failed: %v", d.path, err)
		return
	}
	d.db = nil
}

func (d *boltDriver) Close() error {
	if d.coal != nil {
		d.coal.close()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.idle != nil {
		d.idle.Stop()
	}
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	if err != nil {
		return driver.WrapError(driver.RetCOperationFailed, "close failed", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// RunTransaction acquires a transaction from the concurrency controller and
// executes scope inside it. An error from scope rolls the transaction back
// and is returned unchanged.
func (d *boltDriver) RunTransaction(mode driver.Mode, scope func(txn driver.Txn) error) error {
	defer d.touchIdle()

	type grant struct {
		txn *Txn
		err error
	}
	ch := make(chan grant, 1)
	d.dbCtx.request(mode, func(txn *Txn, err error) {
		ch <- grant{txn: txn, err: err}
	})
	g := <-ch
	if g.err != nil {
		return g.err
	}

	if err := scope(g.txn); err != nil {
		_ = g.txn.Rollback()
		return err
	}
	return g.txn.Commit()
}

// --------------------------------------------------------------------------
// Single-Item Operations
// --------------------------------------------------------------------------

func (d *boltDriver) GetItem(key string) (value []byte, found bool, err error) {
	err = d.RunTransaction(driver.ModeReadOnly, func(txn driver.Txn) error {
		value, found, err = txn.Get(key)
		return err
	})
	return value, found, err
}

func (d *boltDriver) SetItem(key string, value []byte) error {
	if d.coal != nil {
		defer d.touchIdle()
		return d.coal.add(key, value)
	}
	return d.RunTransaction(driver.ModeReadWrite, func(txn driver.Txn) error {
		return txn.Set(key, value)
	})
}

func (d *boltDriver) RemoveItem(key string) error {
	return d.RunTransaction(driver.ModeReadWrite, func(txn driver.Txn) error {
		return txn.Remove(key)
	})
}

// flushCoalesced writes one coalesced write window in a single transaction.
func (d *boltDriver) flushCoalesced(items []driver.Item) error {
	return d.RunTransaction(driver.ModeReadWrite, func(txn driver.Txn) error {
		for _, item := range items {
			if err := txn.Set(item.Key, item.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// --------------------------------------------------------------------------
// Batch Operations
// --------------------------------------------------------------------------

func (d *boltDriver) GetItems(keys []string) (items []driver.Item, err error) {
	items = make([]driver.Item, 0, len(keys))
	err = d.RunTransaction(driver.ModeReadOnly, func(txn driver.Txn) error {
		for _, key := range keys {
			value, found, err := txn.Get(key)
			if err != nil {
				return err
			}
			if !found {
				value = nil
			}
			items = append(items, driver.Item{Key: key, Value: value})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (d *boltDriver) SetItems(items []driver.Item) error {
	return d.RunTransaction(driver.ModeReadWrite, func(txn driver.Txn) error {
		for _, item := range items {
			if err := txn.Set(item.Key, item.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *boltDriver) RemoveItems(keys []string) error {
	return d.RunTransaction(driver.ModeReadWrite, func(txn driver.Txn) error {
		for _, key := range keys {
			if err := txn.Remove(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// --------------------------------------------------------------------------
// Traversal and Introspection
// --------------------------------------------------------------------------

func (d *boltDriver) Iterate(fn func(key string, value []byte) bool) error {
	return d.RunTransaction(driver.ModeReadOnly, func(txn driver.Txn) error {
		return txn.Iterate(fn)
	})
}

func (d *boltDriver) Length() (n int, err error) {
	err = d.RunTransaction(driver.ModeReadOnly, func(txn driver.Txn) error {
		return txn.Iterate(func(string, []byte) bool {
			n++
			return true
		})
	})
	return n, err
}

func (d *boltDriver) Key(index int) (key string, err error) {
	if index < 0 {
		return "", driver.NewError(driver.RetCInvalidArgument, "negative key index")
	}
	i := 0
	err = d.RunTransaction(driver.ModeReadOnly, func(txn driver.Txn) error {
		return txn.Iterate(func(k string, _ []byte) bool {
			if i == index {
				key = k
				return false
			}
			i++
			return true
		})
	})
	return key, err
}

func (d *boltDriver) Keys() (keys []string, err error) {
	err = d.RunTransaction(driver.ModeReadOnly, func(txn driver.Txn) error {
		keys, err = txn.Keys()
		return err
	})
	return keys, err
}

func (d *boltDriver) Clear() error {
	return d.RunTransaction(driver.ModeReadWrite, func(txn driver.Txn) error {
		return txn.Clear()
	})
}

// --------------------------------------------------------------------------
// Optional Capabilities
// --------------------------------------------------------------------------

// DropInstance removes the namespace bucket. When no other namespace shares
// the database file, the file itself is removed as well.
func (d *boltDriver) DropInstance() error {
	var remaining int
	err := d.RunTransaction(driver.ModeReadWrite, func(txn driver.Txn) error {
		t := txn.(*Txn)
		if t.readBucket() != nil {
			if err := t.tx.DeleteBucket(d.bucket); err != nil {
				return driver.WrapError(driver.RetCOperationFailed, "drop failed", err)
			}
		}
		return t.tx.ForEach(func([]byte, *bolt.Bucket) error {
			remaining++
			return nil
		})
	})
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	if err := d.Close(); err != nil {
		return err
	}
	if err := os.Remove(d.path); err != nil {
		return driver.WrapError(driver.RetCOperationFailed, "cannot remove database file", err)
	}
	log.Infof("dropped instance %s (%s)", d.cfg.Namespace(), filepath.Base(d.path))
	return nil
}

func (d *boltDriver) WriteStats(w io.Writer) {
	d.stats.WritePrometheus(w)
}

// --------------------------------------------------------------------------
// Feature Support
// --------------------------------------------------------------------------

func (d *boltDriver) SupportsFeature(feature driver.Feature) bool {
	supported := driver.FeatureGet | driver.FeatureSet | driver.FeatureRemove |
		driver.FeatureBatch | driver.FeatureIterate | driver.FeatureTransaction |
		driver.FeatureDrop | driver.FeatureStats
	return supported&feature == feature
}

func (d *boltDriver) GetInfo() driver.Info {
	info := driver.Info{
		Driver: DriverName,
		SupportedFeatures: []driver.Feature{
			driver.FeatureGet, driver.FeatureSet, driver.FeatureRemove,
			driver.FeatureBatch, driver.FeatureIterate, driver.FeatureTransaction,
			driver.FeatureDrop, driver.FeatureStats,
		},
	}
	_ = d.RunTransaction(driver.ModeReadOnly, func(txn driver.Txn) error {
		t := txn.(*Txn)
		if b := t.readBucket(); b != nil {
			st := b.Stats()
			info.EntryCount = st.KeyN
			info.SizeBytes = int64(st.LeafInuse)
		}
		return nil
	})
	return info
}
