package bolt

import (
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/uKV/lib/driver"
	bolt "go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// Transaction Concurrency Controller
// --------------------------------------------------------------------------

// grantFn receives a granted transaction, or the error that prevented
// the grant. Exactly one of the two arguments is non-nil.
type grantFn func(txn *Txn, err error)

// txnRequest is one waiting transaction request. Requests are removed from
// the pending queue strictly in arrival order.
type txnRequest struct {
	mode      driver.Mode
	onGranted grantFn
}

// beginFn opens a native transaction. It may fail synchronously, e.g. on a
// closed connection.
type beginFn func(writable bool) (*bolt.Tx, error)

// dbContext tracks the transaction bookkeeping of one opened connection.
// bbolt does not itself bound concurrent transaction creation, so the
// context performs admission control: at most cap transactions are open at
// any instant, further requests queue FIFO until a slot frees up.
//
// Thread-safety: all methods are safe for concurrent use.
type dbContext struct {
	mu       sync.Mutex
	cap      int // 0 = unbounded
	active   int
	pending  []*txnRequest
	draining bool
	begin    beginFn
	bucket   []byte

	granted atomic.Uint64
	queued  atomic.Uint64
}

func newDBContext(cap int, bucket []byte, begin beginFn) *dbContext {
	return &dbContext{cap: cap, bucket: bucket, begin: begin}
}

// request grants a transaction immediately if a slot is free, otherwise
// enqueues the request. onGranted is invoked exactly once, either with the
// opened transaction or with the error that prevented opening it. A request
// whose native open fails synchronously is never queued.
func (c *dbContext) request(mode driver.Mode, onGranted grantFn) {
	c.mu.Lock()
	if c.cap > 0 && c.active >= c.cap {
		c.pending = append(c.pending, &txnRequest{mode: mode, onGranted: onGranted})
		c.queued.Add(1)
		c.mu.Unlock()
		return
	}
	c.active++
	c.mu.Unlock()

	c.admit(mode, onGranted)
}

// admit opens the native transaction for an already reserved slot and hands
// it to the requester. On open failure the slot is released (which may admit
// a queued request) and the requester sees a driver-unavailable error.
func (c *dbContext) admit(mode driver.Mode, onGranted grantFn) {
	tx, err := c.begin(mode == driver.ModeReadWrite)
	if err != nil {
		c.release()
		onGranted(nil, driver.WrapError(driver.RetCDriverUnavailable, "cannot open transaction", err))
		return
	}
	c.granted.Add(1)
	onGranted(&Txn{tx: tx, ctx: c, bucket: c.bucket, writable: mode == driver.ModeReadWrite}, nil)
}

// release returns a slot and drains the pending queue. The drain is
// iterative: a finalize triggered from within an admitted request only
// decrements the counter and returns, while the outer loop re-checks
// capacity, keeping call depth bounded under rapid-fire completions.
func (c *dbContext) release() {
	c.mu.Lock()
	c.active--
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.pending) > 0 && (c.cap == 0 || c.active < c.cap) {
		req := c.pending[0]
		c.pending = c.pending[1:]
		c.active++
		c.mu.Unlock()

		c.admit(req.mode, req.onGranted)

		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}

// activeCount returns the number of currently open transactions.
func (c *dbContext) activeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// pendingCount returns the number of queued requests.
func (c *dbContext) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// Txn wraps one native bbolt transaction. A transaction may observe several
// terminal signals (a failed operation followed by a rollback, a rollback
// after a failed commit); its finalize routine runs at most once, guarded by
// a flag that is set before any counter or queue mutation.
type Txn struct {
	tx        *bolt.Tx
	ctx       *dbContext
	writable  bool
	bucket    []byte
	finalized atomic.Bool
}

// Commit finishes the transaction, writing all changes. A second terminal
// signal on the same transaction is a no-op.
func (t *Txn) Commit() error {
	if !t.finalized.CompareAndSwap(false, true) {
		return nil
	}
	err := t.tx.Commit()
	t.ctx.release()
	if err != nil {
		return driver.WrapError(driver.RetCOperationFailed, "commit failed", err)
	}
	return nil
}

// Rollback aborts the transaction. A second terminal signal on the same
// transaction is a no-op.
func (t *Txn) Rollback() error {
	if !t.finalized.CompareAndSwap(false, true) {
		return nil
	}
	err := t.tx.Rollback()
	t.ctx.release()
	if err != nil {
		return driver.WrapError(driver.RetCOperationFailed, "rollback failed", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// driver.Txn scope operations
// --------------------------------------------------------------------------

// readBucket returns the namespace bucket, or nil if it does not exist yet
// (an empty namespace).
func (t *Txn) readBucket() *bolt.Bucket {
	return t.tx.Bucket(t.bucket)
}

// writeBucket returns the namespace bucket, creating it if necessary.
func (t *Txn) writeBucket() (*bolt.Bucket, error) {
	b, err := t.tx.CreateBucketIfNotExists(t.bucket)
	if err != nil {
		return nil, driver.WrapError(driver.RetCOperationFailed, "cannot open bucket", err)
	}
	return b, nil
}

func (t *Txn) Get(key string) ([]byte, bool, error) {
	b := t.readBucket()
	if b == nil {
		return nil, false, nil
	}
	// a cursor seek distinguishes a missing key from a stored empty value
	k, v := b.Cursor().Seek([]byte(key))
	if k == nil || string(k) != key {
		return nil, false, nil
	}
	// bbolt memory is only valid for the lifetime of the transaction
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (t *Txn) Set(key string, value []byte) error {
	if !t.writable {
		return driver.NewError(driver.RetCInvalidArgument, "write in read-only transaction")
	}
	b, err := t.writeBucket()
	if err != nil {
		return err
	}
	if err := b.Put([]byte(key), value); err != nil {
		return driver.WrapError(driver.RetCOperationFailed, "put failed", err)
	}
	return nil
}

func (t *Txn) Remove(key string) error {
	if !t.writable {
		return driver.NewError(driver.RetCInvalidArgument, "write in read-only transaction")
	}
	b := t.readBucket()
	if b == nil {
		return nil
	}
	if err := b.Delete([]byte(key)); err != nil {
		return driver.WrapError(driver.RetCOperationFailed, "delete failed", err)
	}
	return nil
}

func (t *Txn) Keys() ([]string, error) {
	keys := []string{}
	err := t.Iterate(func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	return keys, err
}

func (t *Txn) Iterate(fn func(key string, value []byte) bool) error {
	b := t.readBucket()
	if b == nil {
		return nil
	}
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		val := make([]byte, len(v))
		copy(val, v)
		if !fn(string(k), val) {
			return nil
		}
	}
	return nil
}

func (t *Txn) Clear() error {
	if !t.writable {
		return driver.NewError(driver.RetCInvalidArgument, "write in read-only transaction")
	}
	if t.readBucket() == nil {
		return nil
	}
	if err := t.tx.DeleteBucket(t.bucket); err != nil {
		return driver.WrapError(driver.RetCOperationFailed, "clear failed", err)
	}
	if _, err := t.tx.CreateBucket(t.bucket); err != nil {
		return driver.WrapError(driver.RetCOperationFailed, "clear failed", err)
	}
	return nil
}
