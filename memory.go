package resilientcache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

// errNotInteger mirrors the wire protocol's type fault for counter
// operations on non-numeric values.
var errNotInteger = errors.New("value is not an integer or out of range")

// storedEntry is one in-memory record. A zero expiresAt means no expiry;
// expired entries are removed lazily on read.
type storedEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is a deterministic in-memory Cache variant for tests and
// local development. It shares the networked client's external contracts:
// the same validation faults, the same serialization round trip, the same
// graceful/throw semantics and sentinel values. Unavailability is simulated
// with FailWith.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]storedEntry
	failure error

	conn        *connection
	defaultMode ErrorMode

	// now is injectable for expiry tests.
	now func() time.Time
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithMemoryDefaultErrorMode sets the cache-wide graceful/throw policy.
func WithMemoryDefaultErrorMode(mode ErrorMode) MemoryOption {
	return func(m *MemoryCache) { m.defaultMode = mode }
}

// WithMemoryClock substitutes the time source, letting tests age entries
// without sleeping.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryCache) {
		m.now = now
		m.conn.now = now
	}
}

// NewMemoryCache creates an empty in-memory cache in the connected state.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	m := &MemoryCache{
		entries:     make(map[string]storedEntry),
		conn:        newConnection(time.Second, 0),
		defaultMode: ModeGraceful,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.conn.attemptSucceeded()
	return m
}

// FailWith makes every subsequent command behave as if the cache were
// unreachable with the given cause. Pass nil to restore availability.
func (m *MemoryCache) FailWith(err error) {
	m.mu.Lock()
	m.failure = err
	m.mu.Unlock()
}

// Connect is a no-op beyond the state transition.
func (m *MemoryCache) Connect(_ context.Context) error {
	m.conn.attemptSucceeded()
	return nil
}

// Disconnect marks the cache disconnected; entries survive.
func (m *MemoryCache) Disconnect(_ context.Context) error {
	m.conn.disconnected()
	return nil
}

// Status returns a point-in-time snapshot.
func (m *MemoryCache) Status() ConnectionStatus {
	return m.conn.Status()
}

// OnStateChange registers a transition observer.
func (m *MemoryCache) OnStateChange(handler StateChangeHandler) {
	m.conn.onStateChange(handler)
}

// OnError registers a connectivity fault observer.
func (m *MemoryCache) OnError(handler ErrorHandler) {
	m.conn.onError(handler)
}

// Len reports the number of live entries; expired ones are swept first.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		m.expireLocked(key)
	}
	return len(m.entries)
}

func (m *MemoryCache) mode(opts []CallOption) ErrorMode {
	settings := callSettings{mode: m.defaultMode}
	for _, opt := range opts {
		opt(&settings)
	}
	return settings.mode
}

// unavailability returns the simulated connectivity fault for op, or nil.
func (m *MemoryCache) unavailability(op string) error {
	m.mu.Lock()
	failure := m.failure
	disconnected := m.conn.currentState() != StateConnected
	m.mu.Unlock()
	if failure != nil {
		return newUnavailableError(op, failure)
	}
	if disconnected {
		return newUnavailableError(op, ErrNotConnected)
	}
	return nil
}

// expireLocked lazily drops key when it is past its lifetime.
func (m *MemoryCache) expireLocked(key string) {
	entry, ok := m.entries[key]
	if !ok {
		return
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
	}
}

func (m *MemoryCache) lookupLocked(key string) (storedEntry, bool) {
	m.expireLocked(key)
	entry, ok := m.entries[key]
	return entry, ok
}

func (m *MemoryCache) storeLocked(key, value string, ttlSeconds int64) {
	entry := storedEntry{value: value}
	if ttlSeconds > 0 {
		entry.expiresAt = m.now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	m.entries[key] = entry
}

// Get reads a key; misses return nil.
func (m *MemoryCache) Get(ctx context.Context, key string, opts ...CallOption) (any, error) {
	if err := validateKey("get", key); err != nil {
		return nil, err
	}
	if err := m.unavailability("get"); err != nil {
		if m.mode(opts) == ModeGraceful {
			return nil, nil
		}
		return nil, err
	}
	m.mu.Lock()
	entry, ok := m.lookupLocked(key)
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return decodeValue(entry.value), nil
}

// GetOrDefault reads a key, returning def on a miss.
func (m *MemoryCache) GetOrDefault(ctx context.Context, key string, def any, opts ...CallOption) (any, error) {
	value, err := m.Get(ctx, key, opts...)
	if err != nil {
		return def, err
	}
	if value == nil {
		return def, nil
	}
	return value, nil
}

// Set writes a value with an optional lifetime in seconds.
func (m *MemoryCache) Set(ctx context.Context, key string, value any, ttlSeconds int64, opts ...CallOption) (bool, error) {
	if err := validateKey("set", key); err != nil {
		return false, err
	}
	if err := validateTTL("set", ttlSeconds); err != nil {
		return false, err
	}
	encoded, err := encodeValue("set", value)
	if err != nil {
		return false, err
	}
	if err := m.unavailability("set"); err != nil {
		if m.mode(opts) == ModeGraceful {
			return false, nil
		}
		return false, err
	}
	m.mu.Lock()
	m.storeLocked(key, encoded, ttlSeconds)
	m.mu.Unlock()
	return true, nil
}

// Delete removes a key, reporting whether it existed.
func (m *MemoryCache) Delete(ctx context.Context, key string, opts ...CallOption) (bool, error) {
	if err := validateKey("delete", key); err != nil {
		return false, err
	}
	if err := m.unavailability("delete"); err != nil {
		if m.mode(opts) == ModeGraceful {
			return false, nil
		}
		return false, err
	}
	m.mu.Lock()
	_, existed := m.lookupLocked(key)
	delete(m.entries, key)
	m.mu.Unlock()
	return existed, nil
}

// DeleteByPrefix removes every key with the given literal prefix. A trailing
// wildcard is accepted and normalized.
func (m *MemoryCache) DeleteByPrefix(ctx context.Context, prefix string, opts ...CallOption) (int64, error) {
	normalized := strings.TrimSuffix(prefix, "*")
	if err := validateKey("deleteByPrefix", normalized); err != nil {
		return -1, err
	}
	if err := m.unavailability("deleteByPrefix"); err != nil {
		if m.mode(opts) == ModeGraceful {
			return -1, nil
		}
		return -1, err
	}
	var deleted int64
	m.mu.Lock()
	for key := range m.entries {
		m.expireLocked(key)
		if _, ok := m.entries[key]; !ok {
			continue
		}
		if strings.HasPrefix(key, normalized) {
			delete(m.entries, key)
			deleted++
		}
	}
	m.mu.Unlock()
	return deleted, nil
}

// Flush removes every entry.
func (m *MemoryCache) Flush(ctx context.Context, opts ...CallOption) (bool, error) {
	if err := m.unavailability("flush"); err != nil {
		if m.mode(opts) == ModeGraceful {
			return false, nil
		}
		return false, err
	}
	m.mu.Lock()
	m.entries = make(map[string]storedEntry)
	m.mu.Unlock()
	return true, nil
}

// Increment adds delta, resetting to fallback when the key is absent or
// holds a non-integer.
func (m *MemoryCache) Increment(ctx context.Context, key string, delta, fallback int64, opts ...CallOption) (int64, error) {
	return m.adjust(ctx, "increment", key, delta, fallback, opts)
}

// Decrement subtracts delta with the same fallback behavior as Increment.
func (m *MemoryCache) Decrement(ctx context.Context, key string, delta, fallback int64, opts ...CallOption) (int64, error) {
	return m.adjust(ctx, "decrement", key, -delta, fallback, opts)
}

func (m *MemoryCache) adjust(_ context.Context, op, key string, delta, fallback int64, opts []CallOption) (int64, error) {
	if err := validateKey(op, key); err != nil {
		return fallback, err
	}
	if err := m.unavailability(op); err != nil {
		if m.mode(opts) == ModeGraceful {
			return fallback, nil
		}
		return fallback, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.lookupLocked(key)
	if !ok {
		m.storeLocked(key, strconv.FormatInt(fallback, 10), 0)
		return fallback, nil
	}
	current, numeric := parseInteger(entry.value)
	if !numeric {
		m.storeLocked(key, strconv.FormatInt(fallback, 10), 0)
		return fallback, nil
	}
	next := current + delta
	entry.value = strconv.FormatInt(next, 10)
	m.entries[key] = entry
	return next, nil
}

// DecrementOrInit atomically decrements by one or initializes to initial
// with the given lifetime. A non-numeric existing value raises the type
// fault, matching the networked variant.
func (m *MemoryCache) DecrementOrInit(ctx context.Context, key string, initial, ttlSeconds int64, opts ...CallOption) (int64, error) {
	if err := validateKey("decrementOrInit", key); err != nil {
		return initial, err
	}
	if err := validateTTL("decrementOrInit", ttlSeconds); err != nil {
		return initial, err
	}
	if err := m.unavailability("decrementOrInit"); err != nil {
		if m.mode(opts) == ModeGraceful {
			return initial, nil
		}
		return initial, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.lookupLocked(key)
	if !ok {
		m.storeLocked(key, strconv.FormatInt(initial, 10), ttlSeconds)
		return initial, nil
	}
	current, numeric := parseInteger(entry.value)
	if !numeric {
		return initial, errNotInteger
	}
	next := current - 1
	entry.value = strconv.FormatInt(next, 10)
	m.entries[key] = entry
	return next, nil
}

// Exists reports whether key is present and unexpired.
func (m *MemoryCache) Exists(ctx context.Context, key string, opts ...CallOption) (bool, error) {
	if err := validateKey("exists", key); err != nil {
		return false, err
	}
	if err := m.unavailability("exists"); err != nil {
		if m.mode(opts) == ModeGraceful {
			return false, nil
		}
		return false, err
	}
	m.mu.Lock()
	_, ok := m.lookupLocked(key)
	m.mu.Unlock()
	return ok, nil
}

// TTL returns the remaining lifetime in seconds, -1 for no expiry, -2 for a
// missing key.
func (m *MemoryCache) TTL(ctx context.Context, key string, opts ...CallOption) (int64, error) {
	if err := validateKey("ttl", key); err != nil {
		return -2, err
	}
	if err := m.unavailability("ttl"); err != nil {
		if m.mode(opts) == ModeGraceful {
			return -2, nil
		}
		return -2, err
	}
	m.mu.Lock()
	entry, ok := m.lookupLocked(key)
	now := m.now()
	m.mu.Unlock()
	if !ok {
		return -2, nil
	}
	if entry.expiresAt.IsZero() {
		return -1, nil
	}
	remaining := entry.expiresAt.Sub(now)
	seconds := int64(remaining / time.Second)
	if remaining%time.Second > 0 {
		seconds++
	}
	return seconds, nil
}

// SetIfAbsent writes only when the key is absent.
func (m *MemoryCache) SetIfAbsent(ctx context.Context, key string, value any, ttlSeconds int64, opts ...CallOption) (bool, error) {
	if err := validateKey("setIfAbsent", key); err != nil {
		return false, err
	}
	if err := validateTTL("setIfAbsent", ttlSeconds); err != nil {
		return false, err
	}
	encoded, err := encodeValue("setIfAbsent", value)
	if err != nil {
		return false, err
	}
	if err := m.unavailability("setIfAbsent"); err != nil {
		if m.mode(opts) == ModeGraceful {
			return false, nil
		}
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lookupLocked(key); ok {
		return false, nil
	}
	m.storeLocked(key, encoded, ttlSeconds)
	return true, nil
}

// GetMany reads a batch of keys; absent keys are omitted from the result.
func (m *MemoryCache) GetMany(ctx context.Context, keys []string, opts ...CallOption) (map[string]any, error) {
	if err := validateKeys("getMany", keys); err != nil {
		return nil, err
	}
	if err := m.unavailability("getMany"); err != nil {
		if m.mode(opts) == ModeGraceful {
			return nil, nil
		}
		return nil, err
	}
	result := make(map[string]any, len(keys))
	m.mu.Lock()
	for _, key := range keys {
		if entry, ok := m.lookupLocked(key); ok {
			result[key] = decodeValue(entry.value)
		}
	}
	m.mu.Unlock()
	return result, nil
}

// SetMany writes a batch of values with a shared optional lifetime.
func (m *MemoryCache) SetMany(ctx context.Context, values map[string]any, ttlSeconds int64, opts ...CallOption) (bool, error) {
	if len(values) == 0 {
		return false, newValidationError("setMany", "at least one value is required")
	}
	if err := validateTTL("setMany", ttlSeconds); err != nil {
		return false, err
	}
	encoded := make(map[string]string, len(values))
	for key, value := range values {
		if err := validateKey("setMany", key); err != nil {
			return false, err
		}
		raw, err := encodeValue("setMany", value)
		if err != nil {
			return false, err
		}
		encoded[key] = raw
	}
	if err := m.unavailability("setMany"); err != nil {
		if m.mode(opts) == ModeGraceful {
			return false, nil
		}
		return false, err
	}
	m.mu.Lock()
	for key, raw := range encoded {
		m.storeLocked(key, raw, ttlSeconds)
	}
	m.mu.Unlock()
	return true, nil
}

// UpdateTTL replaces the remaining lifetime of an existing key.
func (m *MemoryCache) UpdateTTL(ctx context.Context, key string, ttlSeconds int64, opts ...CallOption) (bool, error) {
	if err := validateKey("updateTTL", key); err != nil {
		return false, err
	}
	if err := validateRequiredTTL("updateTTL", ttlSeconds); err != nil {
		return false, err
	}
	if err := m.unavailability("updateTTL"); err != nil {
		if m.mode(opts) == ModeGraceful {
			return false, nil
		}
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.lookupLocked(key)
	if !ok {
		return false, nil
	}
	entry.expiresAt = m.now().Add(time.Duration(ttlSeconds) * time.Second)
	m.entries[key] = entry
	return true, nil
}

// Ping reports availability.
func (m *MemoryCache) Ping(ctx context.Context, opts ...CallOption) (bool, error) {
	if err := m.unavailability("ping"); err != nil {
		if m.mode(opts) == ModeGraceful {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetOrSet implements cache-aside semantics identical to the networked
// client: forced-graceful read and store, factory errors propagate.
func (m *MemoryCache) GetOrSet(ctx context.Context, key string, factory Factory, ttlSeconds int64, isValid Validator) (any, error) {
	if factory == nil {
		return nil, newValidationError("getOrSet", "factory must not be nil")
	}
	if err := validateKey("getOrSet", key); err != nil {
		return nil, err
	}
	if err := validateTTL("getOrSet", ttlSeconds); err != nil {
		return nil, err
	}

	cached, err := m.Get(ctx, key, Graceful())
	if err == nil && cached != nil {
		if isValid == nil || isValid(cached) {
			return cached, nil
		}
	}

	value, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	_, _ = m.Set(ctx, key, value, ttlSeconds, Graceful())
	return value, nil
}
