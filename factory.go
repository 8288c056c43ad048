package convkit

import (
	"fmt"
	"sync"
)

// StoreFactory is a function that creates a Store from a config
type StoreFactory func(cfg *Config) (Store, error)

var (
	storeFactories = make(map[string]StoreFactory)
	factoryMutex   sync.RWMutex
)

// RegisterStore registers a store factory function
func RegisterStore(name string, factory StoreFactory) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	storeFactories[name] = factory
}

// OpenStore creates the store named by cfg.Store. The store's package must be
// imported for its factory to be registered.
func OpenStore(cfg *Config) (Store, error) {
	factoryMutex.RLock()
	factory, exists := storeFactories[cfg.Store]
	factoryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w %q", ErrUnknownStore, cfg.Store)
	}

	return factory(cfg)
}
