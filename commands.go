package resilientcache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// decrementOrInitScript runs server-side so racing callers on the same key
// can never both observe "absent": either the key exists and is decremented,
// or it is initialized exactly once.
const decrementOrInitScript = `
local v = redis.call('GET', KEYS[1])
if v then
  return redis.call('DECRBY', KEYS[1], 1)
end
local ttl = tonumber(ARGV[2]) or 0
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'EX', ttl)
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return tonumber(ARGV[1])
`

// Get reads a key. A miss returns nil; in graceful mode unavailability also
// returns nil with no error.
func (c *Client) Get(ctx context.Context, key string, opts ...CallOption) (any, error) {
	if err := validateKey("get", key); err != nil {
		return nil, err
	}
	var result any
	err := c.exec(ctx, "get", func(ctx context.Context) error {
		raw, found, err := c.driver.Get(ctx, key)
		if err != nil {
			return err
		}
		if found {
			result = decodeValue(raw)
		}
		return nil
	})
	if err != nil {
		if c.suppress(err, opts) {
			return nil, nil
		}
		return nil, err
	}
	return result, nil
}

// GetOrDefault reads a key, returning def on a miss and, in graceful mode,
// on unavailability.
func (c *Client) GetOrDefault(ctx context.Context, key string, def any, opts ...CallOption) (any, error) {
	value, err := c.Get(ctx, key, opts...)
	if err != nil {
		return def, err
	}
	if value == nil {
		return def, nil
	}
	return value, nil
}

// Set writes a value with an optional lifetime in seconds (0 means no
// expiry). Returns true on success; in graceful mode unavailability returns
// false with no error.
func (c *Client) Set(ctx context.Context, key string, value any, ttlSeconds int64, opts ...CallOption) (bool, error) {
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
	err = c.exec(ctx, "set", func(ctx context.Context) error {
		return c.driver.Set(ctx, key, encoded, time.Duration(ttlSeconds)*time.Second)
	})
	if err != nil {
		if c.suppress(err, opts) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes a key, reporting whether it existed.
func (c *Client) Delete(ctx context.Context, key string, opts ...CallOption) (bool, error) {
	if err := validateKey("delete", key); err != nil {
		return false, err
	}
	var removed bool
	err := c.exec(ctx, "delete", func(ctx context.Context) error {
		n, err := c.driver.Delete(ctx, key)
		if err != nil {
			return err
		}
		removed = n > 0
		return nil
	})
	if err != nil {
		if c.suppress(err, opts) {
			return false, nil
		}
		return false, err
	}
	return removed, nil
}

// DeleteByPrefix removes every key with the given literal prefix using an
// incremental cursor scan with bounded batches, so the server is never asked
// to enumerate its whole keyspace in one round trip. A trailing wildcard on
// the prefix is accepted and normalized. Returns the number of keys deleted;
// in graceful mode unavailability returns -1.
func (c *Client) DeleteByPrefix(ctx context.Context, prefix string, opts ...CallOption) (int64, error) {
	normalized := strings.TrimSuffix(prefix, "*")
	if err := validateKey("deleteByPrefix", normalized); err != nil {
		return -1, err
	}
	pattern := normalized + "*"

	// The command timeout bounds each Scan and Delete round trip separately,
	// not the loop as a whole: iterating a large keyspace on a healthy server
	// must not read as a connectivity fault.
	var deleted int64
	err := c.execBudget(ctx, "deleteByPrefix", 0, func(ctx context.Context) error {
		var cursor uint64
		for {
			var keys []string
			var next uint64
			err := runWithTimeout(ctx, "deleteByPrefix", c.commandTimeout, func(ctx context.Context) error {
				var err error
				keys, next, err = c.driver.Scan(ctx, cursor, pattern, c.scanBatchSize)
				return err
			})
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				err := runWithTimeout(ctx, "deleteByPrefix", c.commandTimeout, func(ctx context.Context) error {
					n, err := c.driver.Delete(ctx, keys...)
					if err != nil {
						return err
					}
					deleted += n
					return nil
				})
				if err != nil {
					return err
				}
			}
			if next == 0 {
				return nil
			}
			cursor = next
		}
	})
	if err != nil {
		if c.suppress(err, opts) {
			return -1, nil
		}
		return -1, err
	}
	return deleted, nil
}

// Flush removes every key in the database.
func (c *Client) Flush(ctx context.Context, opts ...CallOption) (bool, error) {
	err := c.exec(ctx, "flush", func(ctx context.Context) error {
		return c.driver.Flush(ctx)
	})
	if err != nil {
		if c.suppress(err, opts) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Increment adds delta to the numeric value stored at key. When the key is
// absent, or holds something that does not parse as an integer, the key is
// reset to fallback and fallback is returned. In graceful mode
// unavailability also returns fallback.
func (c *Client) Increment(ctx context.Context, key string, delta, fallback int64, opts ...CallOption) (int64, error) {
	return c.adjust(ctx, "increment", key, delta, fallback, opts)
}

// Decrement subtracts delta, with the same absent-or-non-numeric fallback
// behavior as Increment.
func (c *Client) Decrement(ctx context.Context, key string, delta, fallback int64, opts ...CallOption) (int64, error) {
	return c.adjust(ctx, "decrement", key, -delta, fallback, opts)
}

func (c *Client) adjust(ctx context.Context, op, key string, delta, fallback int64, opts []CallOption) (int64, error) {
	if err := validateKey(op, key); err != nil {
		return fallback, err
	}
	var result int64
	err := c.exec(ctx, op, func(ctx context.Context) error {
		raw, found, err := c.driver.Get(ctx, key)
		if err != nil {
			return err
		}
		if !found {
			result = fallback
			return c.driver.Set(ctx, key, strconv.FormatInt(fallback, 10), 0)
		}
		if _, numeric := parseInteger(raw); !numeric {
			result = fallback
			return c.driver.Set(ctx, key, strconv.FormatInt(fallback, 10), 0)
		}
		if delta < 0 {
			result, err = c.driver.DecrBy(ctx, key, -delta)
		} else {
			result, err = c.driver.IncrBy(ctx, key, delta)
		}
		return err
	})
	if err != nil {
		if c.suppress(err, opts) {
			return fallback, nil
		}
		return fallback, err
	}
	return result, nil
}

// DecrementOrInit atomically decrements key by one, or initializes it to
// initial with the given lifetime when absent. The whole operation is a
// single server-side script, so concurrent callers racing on the same key
// lose no decrements and initialize at most once. A non-numeric existing
// value surfaces the driver's type fault unchanged.
func (c *Client) DecrementOrInit(ctx context.Context, key string, initial, ttlSeconds int64, opts ...CallOption) (int64, error) {
	if err := validateKey("decrementOrInit", key); err != nil {
		return initial, err
	}
	if err := validateTTL("decrementOrInit", ttlSeconds); err != nil {
		return initial, err
	}
	var result int64
	err := c.exec(ctx, "decrementOrInit", func(ctx context.Context) error {
		reply, err := c.driver.EvalAtomic(ctx, decrementOrInitScript, []string{key}, initial, ttlSeconds)
		if err != nil {
			return err
		}
		n, ok := reply.(int64)
		if !ok {
			return fmt.Errorf("resilientcache: unexpected script reply %T", reply)
		}
		result = n
		return nil
	})
	if err != nil {
		if c.suppress(err, opts) {
			return initial, nil
		}
		return initial, err
	}
	return result, nil
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string, opts ...CallOption) (bool, error) {
	if err := validateKey("exists", key); err != nil {
		return false, err
	}
	var present bool
	err := c.exec(ctx, "exists", func(ctx context.Context) error {
		var err error
		present, err = c.driver.Exists(ctx, key)
		return err
	})
	if err != nil {
		if c.suppress(err, opts) {
			return false, nil
		}
		return false, err
	}
	return present, nil
}

// TTL returns the remaining lifetime of key in seconds: -1 when the key has
// no expiry, -2 when the key does not exist. In graceful mode unavailability
// returns -2.
func (c *Client) TTL(ctx context.Context, key string, opts ...CallOption) (int64, error) {
	if err := validateKey("ttl", key); err != nil {
		return -2, err
	}
	var remaining int64
	err := c.exec(ctx, "ttl", func(ctx context.Context) error {
		var err error
		remaining, err = c.driver.TTL(ctx, key)
		return err
	})
	if err != nil {
		if c.suppress(err, opts) {
			return -2, nil
		}
		return -2, err
	}
	return remaining, nil
}

// SetIfAbsent writes a value only when the key does not already exist.
// Returns true when the write happened.
func (c *Client) SetIfAbsent(ctx context.Context, key string, value any, ttlSeconds int64, opts ...CallOption) (bool, error) {
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
	var stored bool
	err = c.exec(ctx, "setIfAbsent", func(ctx context.Context) error {
		var err error
		stored, err = c.driver.SetIfAbsent(ctx, key, encoded, time.Duration(ttlSeconds)*time.Second)
		return err
	})
	if err != nil {
		if c.suppress(err, opts) {
			return false, nil
		}
		return false, err
	}
	return stored, nil
}

// GetMany reads a batch of keys in one round trip. The result maps each
// present key to its decoded value; absent keys are omitted. In graceful
// mode unavailability returns a nil map.
func (c *Client) GetMany(ctx context.Context, keys []string, opts ...CallOption) (map[string]any, error) {
	if err := validateKeys("getMany", keys); err != nil {
		return nil, err
	}
	var result map[string]any
	err := c.exec(ctx, "getMany", func(ctx context.Context) error {
		values, err := c.driver.MGet(ctx, keys...)
		if err != nil {
			return err
		}
		result = make(map[string]any, len(keys))
		for i, value := range values {
			if value == nil {
				continue
			}
			if raw, ok := value.(string); ok {
				result[keys[i]] = decodeValue(raw)
			}
		}
		return nil
	})
	if err != nil {
		if c.suppress(err, opts) {
			return nil, nil
		}
		return nil, err
	}
	return result, nil
}

// SetMany writes a batch of values with a shared optional lifetime.
func (c *Client) SetMany(ctx context.Context, values map[string]any, ttlSeconds int64, opts ...CallOption) (bool, error) {
	if len(values) == 0 {
		return false, newValidationError("setMany", "at least one value is required")
	}
	if err := validateTTL("setMany", ttlSeconds); err != nil {
		return false, err
	}
	pairs := make(map[string]string, len(values))
	for key, value := range values {
		if err := validateKey("setMany", key); err != nil {
			return false, err
		}
		encoded, err := encodeValue("setMany", value)
		if err != nil {
			return false, err
		}
		pairs[key] = encoded
	}
	err := c.exec(ctx, "setMany", func(ctx context.Context) error {
		return c.driver.MSet(ctx, pairs, time.Duration(ttlSeconds)*time.Second)
	})
	if err != nil {
		if c.suppress(err, opts) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// UpdateTTL replaces the remaining lifetime of an existing key. Returns true
// when the key existed.
func (c *Client) UpdateTTL(ctx context.Context, key string, ttlSeconds int64, opts ...CallOption) (bool, error) {
	if err := validateKey("updateTTL", key); err != nil {
		return false, err
	}
	if err := validateRequiredTTL("updateTTL", ttlSeconds); err != nil {
		return false, err
	}
	var updated bool
	err := c.exec(ctx, "updateTTL", func(ctx context.Context) error {
		var err error
		updated, err = c.driver.Expire(ctx, key, time.Duration(ttlSeconds)*time.Second)
		return err
	})
	if err != nil {
		if c.suppress(err, opts) {
			return false, nil
		}
		return false, err
	}
	return updated, nil
}

// Ping checks that the server answers. Returns true on success; in graceful
// mode any unavailability returns false.
func (c *Client) Ping(ctx context.Context, opts ...CallOption) (bool, error) {
	err := c.exec(ctx, "ping", func(ctx context.Context) error {
		return c.driver.Ping(ctx)
	})
	if err != nil {
		if c.suppress(err, opts) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
