package driver

import (
	"fmt"
	"sort"
	"sync"
)

// --------------------------------------------------------------------------
// Driver Registry
// --------------------------------------------------------------------------

// Factory creates a fresh, uninitialized driver instance.
type Factory func() IDriver

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
	// registration order, used when no candidate list is configured
	order []string
)

// Register makes a driver available for selection under the given name.
// Registering the same name twice panics, this is a programming error.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("driver: duplicate registration of %q", name))
	}
	registry[name] = factory
	order = append(order, name)
}

// Registered returns the names of all registered drivers in sorted order.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select picks the first registered and supported driver from the candidate
// list. An empty candidate list tries all registered drivers in registration
// order. The returned driver is fresh and not yet initialized.
func Select(candidates []string) (IDriver, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if len(candidates) == 0 {
		candidates = order
	}

	for _, name := range candidates {
		factory, ok := registry[name]
		if !ok {
			continue
		}
		d := factory()
		if d.Supported() {
			return d, nil
		}
	}
	return nil, NewError(RetCDriverNotFound, fmt.Sprintf("no supported driver among %v", candidates))
}
