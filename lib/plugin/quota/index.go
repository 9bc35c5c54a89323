package quota

import (
	"sync"

	"github.com/ValentinKolb/uKV/lib/plugin"
	"github.com/emirpasic/gods/trees/binaryheap"
)

// --------------------------------------------------------------------------
// Quota Index
// --------------------------------------------------------------------------

// index is the per-instance usage bookkeeping: the last measured size of
// every tracked key, a monotonic access counter per key (LRU order) and the
// running usage total. It is owned exclusively by the quota plugin and
// mutated only through the before/after hook pair.
//
// Thread-safety: all methods are safe for concurrent use.
type index struct {
	mu     sync.Mutex
	sizes  map[string]int64
	access map[string]uint64
	clock  uint64
	usage  int64

	built    bool
	building chan struct{} // non-nil while a rebuild is in flight
	buildErr error
}

func newIndex() *index {
	return &index{
		sizes:  map[string]int64{},
		access: map[string]uint64{},
	}
}

// ensureBuilt lazily seeds the index with a full backend scan measuring
// each existing key's stored size. A concurrent caller awaits the single
// in-flight rebuild rather than starting a second one.
func (ix *index) ensureBuilt(ctx *plugin.Context) error {
	ix.mu.Lock()
	if ix.built {
		ix.mu.Unlock()
		return nil
	}
	if ix.building != nil {
		ch := ix.building
		ix.mu.Unlock()
		<-ch
		ix.mu.Lock()
		err := ix.buildErr
		ix.mu.Unlock()
		return err
	}
	ch := make(chan struct{})
	ix.building = ch
	ix.mu.Unlock()

	sizes := map[string]int64{}
	access := map[string]uint64{}
	var usage int64
	var clock uint64
	err := ctx.Instance.Iterate(func(key string, value []byte) bool {
		size := entrySize(key, value)
		sizes[key] = size
		clock++
		access[key] = clock
		usage += size
		return true
	})

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.building = nil
	ix.buildErr = err
	if err == nil {
		ix.sizes = sizes
		ix.access = access
		ix.usage = usage
		ix.clock = clock
		ix.built = true
	}
	close(ch)
	return err
}

// sizeOf returns the last measured size of a key, 0 for untracked keys.
func (ix *index) sizeOf(key string) int64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.sizes[key]
}

// currentUsage returns the running usage total.
func (ix *index) currentUsage() int64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.usage
}

// commit applies an admitted write: size map, access-counter bump and usage
// total.
func (ix *index) commit(pw pendingWrite) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.sizes[pw.key] = pw.size
	ix.usage += pw.delta
	ix.clock++
	ix.access[pw.key] = ix.clock
}

// touch bumps the access counter of a tracked key.
func (ix *index) touch(key string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, tracked := ix.sizes[key]; !tracked {
		return
	}
	ix.clock++
	ix.access[key] = ix.clock
}

// forget clears size and access tracking for a key and decrements usage.
// Forgetting an untracked key is a no-op, so tracking settles at zero no
// matter how often a key is removed.
func (ix *index) forget(key string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	size, tracked := ix.sizes[key]
	if !tracked {
		return
	}
	ix.usage -= size
	delete(ix.sizes, key)
	delete(ix.access, key)
}

// candidate is one eviction candidate ordered by access counter.
type candidate struct {
	key    string
	access uint64
	size   int64
}

// evictionOrder returns tracked, non-exempt keys in ascending access order
// until their combined size covers the requested amount of bytes. An empty
// result means nothing is evictable.
func (ix *index) evictionOrder(exempt map[string]bool, needed int64) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	heap := binaryheap.NewWith(func(a, b interface{}) int {
		ca, cb := a.(candidate), b.(candidate)
		switch {
		case ca.access < cb.access:
			return -1
		case ca.access > cb.access:
			return 1
		default:
			return 0
		}
	})
	for key, size := range ix.sizes {
		if exempt[key] {
			continue
		}
		heap.Push(candidate{key: key, access: ix.access[key], size: size})
	}

	victims := []string{}
	var reclaimed int64
	for reclaimed < needed {
		v, ok := heap.Pop()
		if !ok {
			break
		}
		c := v.(candidate)
		victims = append(victims, c.key)
		reclaimed += c.size
	}
	return victims
}
