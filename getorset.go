package resilientcache

import "context"

// GetOrSet implements cache-aside semantics: consult the cache first and
// fall back to factory on a miss, storing the computed value best-effort.
// The read and the write both run in forced-graceful mode, so a cache
// failure is indistinguishable from a miss and never reaches the caller.
// When isValid is supplied and reports a cached value stale, the factory
// runs and its result replaces the cached value. Errors from factory
// propagate unchanged; they are not cache errors.
func (c *Client) GetOrSet(ctx context.Context, key string, factory Factory, ttlSeconds int64, isValid Validator) (any, error) {
	if factory == nil {
		return nil, newValidationError("getOrSet", "factory must not be nil")
	}
	if err := validateKey("getOrSet", key); err != nil {
		return nil, err
	}
	if err := validateTTL("getOrSet", ttlSeconds); err != nil {
		return nil, err
	}

	cached, err := c.Get(ctx, key, Graceful())
	if err == nil && cached != nil {
		if isValid == nil || isValid(cached) {
			c.metrics.RecordCacheAside(true)
			return cached, nil
		}
	}

	c.metrics.RecordCacheAside(false)
	value, err := factory(ctx)
	if err != nil {
		return nil, err
	}

	// Best effort: the caller gets the computed value whether or not the
	// store succeeds.
	_, _ = c.Set(ctx, key, value, ttlSeconds, Graceful())
	return value, nil
}
