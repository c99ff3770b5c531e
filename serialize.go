package resilientcache

import (
	"encoding/json"
	"fmt"
	"math"
)

// encodeValue turns a value into its transportable string form. Strings pass
// through untouched; everything else is JSON-encoded.
func encodeValue(op string, value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		if err := validateFinite(op, v); err != nil {
			return "", err
		}
	case float32:
		if err := validateFinite(op, float64(v)); err != nil {
			return "", err
		}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return "", newValidationError(op, fmt.Sprintf("value is not serializable: %v", err))
	}
	return string(raw), nil
}

// decodeValue reverses encodeValue. A payload that does not parse as JSON is
// returned as the raw string; decoded object graphs are sanitized before
// being handed to the caller.
func decodeValue(raw string) any {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return raw
	}
	return sanitizeValue(decoded)
}

// pollutionKeys are object keys stripped from deserialized payloads. A
// payload written by a non-Go producer can smuggle these in to pollute the
// consumer's object model.
var pollutionKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

// sanitizeValue walks a decoded value and removes dangerous object keys at
// every nesting level. Scalars pass through unchanged.
func sanitizeValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for key, nested := range v {
			if _, dangerous := pollutionKeys[key]; dangerous {
				delete(v, key)
				continue
			}
			v[key] = sanitizeValue(nested)
		}
		return v
	case []any:
		for i, nested := range v {
			v[i] = sanitizeValue(nested)
		}
		return v
	default:
		return value
	}
}

// parseInteger interprets a stored payload as an int64 for the counter
// operations. JSON numbers decode as float64, so whole floats are accepted.
func parseInteger(raw string) (int64, bool) {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return 0, false
	}
	f, ok := decoded.(float64)
	if !ok {
		return 0, false
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return int64(f), true
}
