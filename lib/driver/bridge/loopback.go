package bridge

import (
	"sort"
	"sync"
)

// LoopbackBridge is an in-process Bridge implementation. It stands in for a
// real host bridge in tests and single-binary deployments.
type LoopbackBridge struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte // namespace -> key -> value
}

// NewLoopbackBridge creates an empty in-process bridge.
func NewLoopbackBridge() *LoopbackBridge {
	return &LoopbackBridge{data: map[string]map[string][]byte{}}
}

func (b *LoopbackBridge) Get(namespace, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	value, found := b.data[namespace][key]
	return value, found, nil
}

func (b *LoopbackBridge) Set(namespace, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ns, ok := b.data[namespace]
	if !ok {
		ns = map[string][]byte{}
		b.data[namespace] = ns
	}
	ns[key] = append([]byte(nil), value...)
	return nil
}

func (b *LoopbackBridge) Remove(namespace, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data[namespace], key)
	return nil
}

func (b *LoopbackBridge) Keys(namespace string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.data[namespace]))
	for key := range b.data[namespace] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *LoopbackBridge) Clear(namespace string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, namespace)
	return nil
}
