package resilientcache

import (
	"context"
	"time"
)

// ConnectionState describes where the client currently sits in its
// connection lifecycle. Exactly one state is active at a time.
type ConnectionState int32

const (
	// StateDisconnected means no connection exists and none is being attempted.
	StateDisconnected ConnectionState = iota
	// StateConnecting means the initial connect attempt is in flight.
	StateConnecting
	// StateConnected means commands may hit the network.
	StateConnected
	// StateCooldown means a connectivity failure occurred recently; commands
	// are rejected without I/O until the cooldown window elapses.
	StateCooldown
	// StateReconnecting means a reconnect attempt is in flight.
	StateReconnecting
	// StateFailed means the reconnect budget is exhausted; only a new command
	// resets the counter and retries.
	StateFailed
)

// String returns the lowercase state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateCooldown:
		return "cooldown"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConnectionStatus is a point-in-time snapshot of the connection machinery.
// Consumers must treat it as a copy, not a live view.
type ConnectionStatus struct {
	State             ConnectionState
	LastError         error
	LastConnectedAt   time.Time
	LastSuccessAt     time.Time
	LastFailedAt      time.Time
	ReconnectAttempts int
	CooldownEndsAt    time.Time
}

// ErrorMode selects how a command surfaces cache unavailability.
type ErrorMode int

const (
	// ModeGraceful returns the operation's documented sentinel value and a
	// nil error when the cache is unavailable.
	ModeGraceful ErrorMode = iota
	// ModeThrow returns a typed *CacheError when the cache is unavailable.
	ModeThrow
)

// CallOption overrides client-wide error handling for exactly one invocation.
type CallOption func(*callSettings)

type callSettings struct {
	mode ErrorMode
}

// Graceful forces graceful error handling for a single call.
func Graceful() CallOption {
	return func(s *callSettings) { s.mode = ModeGraceful }
}

// Throw forces throw error handling for a single call.
func Throw() CallOption {
	return func(s *callSettings) { s.mode = ModeThrow }
}

// StateChangeHandler receives a status snapshot after every accepted
// transition. Panics inside handlers are swallowed.
type StateChangeHandler func(status ConnectionStatus)

// ErrorHandler receives every connectivity fault the client records.
// Panics inside handlers are swallowed.
type ErrorHandler func(err error)

// Factory computes a value for GetOrSet when the cache cannot supply one.
type Factory func(ctx context.Context) (any, error)

// Validator reports whether a cached value is still fresh enough to serve.
type Validator func(value any) bool

// Driver is the narrow contract the command pipeline needs from the wire
// protocol. The production implementation wraps go-redis; tests substitute
// a deterministic fake.
type Driver interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int64, error)
	Scan(ctx context.Context, cursor uint64, pattern string, count int64) (keys []string, next uint64, err error)
	Flush(ctx context.Context) error
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	DecrBy(ctx context.Context, key string, delta int64) (int64, error)
	EvalAtomic(ctx context.Context, script string, keys []string, args ...any) (any, error)
	Exists(ctx context.Context, key string) (bool, error)
	// TTL returns remaining lifetime in whole seconds, -1 when the key has no
	// expiry and -2 when the key does not exist.
	TTL(ctx context.Context, key string) (int64, error)
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	MGet(ctx context.Context, keys ...string) ([]any, error)
	MSet(ctx context.Context, pairs map[string]string, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Ping(ctx context.Context) error
}

// Cache is the capability surface shared by the networked client and the
// in-memory variant. Both honor identical validation, serialization and
// graceful/throw semantics.
type Cache interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	Get(ctx context.Context, key string, opts ...CallOption) (any, error)
	GetOrDefault(ctx context.Context, key string, def any, opts ...CallOption) (any, error)
	Set(ctx context.Context, key string, value any, ttlSeconds int64, opts ...CallOption) (bool, error)
	Delete(ctx context.Context, key string, opts ...CallOption) (bool, error)
	DeleteByPrefix(ctx context.Context, prefix string, opts ...CallOption) (int64, error)
	Flush(ctx context.Context, opts ...CallOption) (bool, error)
	Increment(ctx context.Context, key string, delta, fallback int64, opts ...CallOption) (int64, error)
	Decrement(ctx context.Context, key string, delta, fallback int64, opts ...CallOption) (int64, error)
	DecrementOrInit(ctx context.Context, key string, initial, ttlSeconds int64, opts ...CallOption) (int64, error)
	Exists(ctx context.Context, key string, opts ...CallOption) (bool, error)
	TTL(ctx context.Context, key string, opts ...CallOption) (int64, error)
	SetIfAbsent(ctx context.Context, key string, value any, ttlSeconds int64, opts ...CallOption) (bool, error)
	GetMany(ctx context.Context, keys []string, opts ...CallOption) (map[string]any, error)
	SetMany(ctx context.Context, values map[string]any, ttlSeconds int64, opts ...CallOption) (bool, error)
	UpdateTTL(ctx context.Context, key string, ttlSeconds int64, opts ...CallOption) (bool, error)
	Ping(ctx context.Context, opts ...CallOption) (bool, error)
	GetOrSet(ctx context.Context, key string, factory Factory, ttlSeconds int64, isValid Validator) (any, error)

	Status() ConnectionStatus
	OnStateChange(handler StateChangeHandler)
	OnError(handler ErrorHandler)
}

// Option configures a Client at construction time.
type Option func(*Client)
