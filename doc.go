// Package resilientcache provides a resilient client wrapper around a remote
// key-value cache server, built so that cache unavailability never blocks or
// crashes the calling application:
//
//   - Per-command connection gating through a circuit-breaker-style state
//     machine (disconnected / connecting / connected / cooldown /
//     reconnecting / failed) driven only by commands, never by timers
//   - Hard per-command and per-connect timeouts with leak-free timer release
//   - Graceful or throw error policy, client-wide with per-call overrides
//   - Connect attempt deduplication (concurrent callers share one attempt)
//   - Cache-aside GetOrSet with optional staleness validation
//   - A deterministic in-memory variant sharing identical contracts
//   - Prometheus metrics and structured logging behind a small Logger
//     interface (zap adapter included), plus an fx provider module
//
// Design goals:
//   - Fail fast under trouble: a single connectivity fault opens the circuit
//     and commands short-circuit without I/O until the cooldown elapses
//   - One attempt per call, no retry storms, no background reconnect loops
//   - Validation faults always surface; they signal caller bugs, not cache
//     trouble
//
// Typical usage:
//
//	cache := resilientcache.New(
//	    resilientcache.WithHost("cache.internal"),
//	    resilientcache.WithCommandTimeout(500*time.Millisecond),
//	    resilientcache.WithReconnectCooldown(10*time.Second),
//	)
//	value, _ := cache.GetOrSet(ctx, "user:42", loadUser, 300, nil)
//
// In graceful mode (the default) every operation documents a sentinel value
// returned when the cache is unreachable; callers treat it as "not found".
package resilientcache
