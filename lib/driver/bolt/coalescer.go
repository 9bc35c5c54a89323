package bolt

import (
	"sync"
	"time"

	"github.com/ValentinKolb/uKV/lib/driver"
)

// --------------------------------------------------------------------------
// Write Coalescer
// --------------------------------------------------------------------------

// coalescer merges rapid single writes into one transaction. Writes arriving
// within one window are flushed together; every caller blocks until its
// window's flush completed and observes the flush result. Within a window
// the last write to a key wins, matching the eventual on-disk state.
type coalescer struct {
	mu     sync.Mutex
	window time.Duration
	flush  func(items []driver.Item) error
	cur    *writeWindow
	closed bool
}

// writeWindow collects the writes of one coalescing window.
type writeWindow struct {
	values map[string][]byte
	order  []string // first-insertion order of keys
	once   sync.Once
	done   chan struct{}
	err    error // valid after done is closed
}

func newCoalescer(window time.Duration, flush func(items []driver.Item) error) *coalescer {
	return &coalescer{window: window, flush: flush}
}

// add registers a write and blocks until the write window it joined has been
// flushed. It returns the flush result.
func (c *coalescer) add(key string, value []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return driver.NewError(driver.RetCDriverUnavailable, "driver closed")
	}
	if c.cur == nil {
		w := &writeWindow{
			values: map[string][]byte{},
			done:   make(chan struct{}),
		}
		c.cur = w
		time.AfterFunc(c.window, func() { c.flushWindow(w) })
	}
	w := c.cur
	if _, seen := w.values[key]; !seen {
		w.order = append(w.order, key)
	}
	w.values[key] = value
	c.mu.Unlock()

	<-w.done
	return w.err
}

// flushWindow detaches the window and writes it in one transaction. The
// flush runs at most once even when the close path races the window timer.
func (c *coalescer) flushWindow(w *writeWindow) {
	c.mu.Lock()
	if c.cur == w {
		c.cur = nil
	}
	c.mu.Unlock()

	w.once.Do(func() {
		items := make([]driver.Item, 0, len(w.order))
		for _, key := range w.order {
			items = append(items, driver.Item{Key: key, Value: w.values[key]})
		}
		w.err = c.flush(items)
		close(w.done)
	})
}

// close flushes a pending window synchronously and rejects further writes.
func (c *coalescer) close() {
	c.mu.Lock()
	c.closed = true
	w := c.cur
	c.mu.Unlock()

	if w != nil {
		c.flushWindow(w)
	}
}
