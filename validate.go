package resilientcache

import (
	"fmt"
	"math"
)

// maxKeyLength bounds cache keys so they stay well under wire limits.
const maxKeyLength = 512

// validateKey rejects keys that would break the wire protocol: empty keys,
// oversized keys and keys containing control characters.
func validateKey(op, key string) error {
	if key == "" {
		return newValidationError(op, "key must not be empty")
	}
	if len(key) > maxKeyLength {
		return newValidationError(op, fmt.Sprintf("key exceeds %d characters", maxKeyLength))
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c < 0x20 || c == 0x7f {
			return newValidationError(op, fmt.Sprintf("key contains control character at index %d", i))
		}
	}
	return nil
}

// validateKeys validates every key in a batch.
func validateKeys(op string, keys []string) error {
	if len(keys) == 0 {
		return newValidationError(op, "at least one key is required")
	}
	for _, key := range keys {
		if err := validateKey(op, key); err != nil {
			return err
		}
	}
	return nil
}

// validateTTL rejects negative lifetimes. Zero means "no expiry" and is
// allowed wherever the TTL is optional.
func validateTTL(op string, ttlSeconds int64) error {
	if ttlSeconds < 0 {
		return newValidationError(op, "ttl must be a positive number of seconds")
	}
	return nil
}

// validateRequiredTTL rejects lifetimes that are absent or not positive.
func validateRequiredTTL(op string, ttlSeconds int64) error {
	if ttlSeconds <= 0 {
		return newValidationError(op, "ttl must be a positive number of seconds")
	}
	return nil
}

// validateFinite rejects NaN and infinite numeric arguments before they ever
// reach the serializer or the wire.
func validateFinite(op string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return newValidationError(op, "numeric argument must be finite")
	}
	return nil
}
