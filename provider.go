package resilientcache

import (
	"errors"
	"sync"
)

// Compile-time interface checks: both variants satisfy the shared contract.
var (
	_ Cache = (*Client)(nil)
	_ Cache = (*MemoryCache)(nil)
)

// The process-wide handle exists for call sites that cannot take the cache
// as an explicit dependency (prefer the fx module where possible). It is
// guarded against double initialization; tests call Reset between cases.
var (
	providerMu sync.RWMutex
	defaultVar Cache
)

// ErrAlreadyInitialized is returned by Init when a default cache is already
// registered.
var ErrAlreadyInitialized = errors.New("resilientcache: default cache already initialized")

// ErrNotInitialized is returned by Default before Init has been called.
var ErrNotInitialized = errors.New("resilientcache: default cache not initialized")

// Init registers the process-wide default cache. Calling it twice without an
// intervening Reset is a programming error.
func Init(cache Cache) error {
	if cache == nil {
		return errors.New("resilientcache: cache must not be nil")
	}
	providerMu.Lock()
	defer providerMu.Unlock()
	if defaultVar != nil {
		return ErrAlreadyInitialized
	}
	defaultVar = cache
	return nil
}

// Default returns the process-wide cache registered with Init.
func Default() (Cache, error) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	if defaultVar == nil {
		return nil, ErrNotInitialized
	}
	return defaultVar, nil
}

// Reset drops the process-wide handle so Init may be called again.
func Reset() {
	providerMu.Lock()
	defaultVar = nil
	providerMu.Unlock()
}
