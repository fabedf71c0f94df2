package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Generate creates a deterministic fingerprint for a payload.
// The fingerprint is a SHA256 hash of the canonicalized JSON.
func Generate(data map[string]any) string {
	return GenerateWithExclusions(data, nil)
}

// GenerateWithExclusions creates a fingerprint skipping the named top-level
// keys. Records that differ only in excluded keys share a fingerprint, which
// is what makes the fingerprint the comparable-fields identity of a record.
// Exclusions apply to top-level keys only; the same key nested deeper still
// participates.
func GenerateWithExclusions(data map[string]any, exclude []string) string {
	excludeSet := make(map[string]bool, len(exclude))
	for _, key := range exclude {
		excludeSet[key] = true
	}

	canonical := canonicalizeMap(data, excludeSet)

	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}

// GenerateFromJSON creates a fingerprint from raw JSON.
func GenerateFromJSON(data json.RawMessage) (string, error) {
	return GenerateFromJSONWithExclusions(data, nil)
}

// GenerateFromJSONWithExclusions creates a fingerprint from raw JSON,
// skipping the named top-level keys.
func GenerateFromJSONWithExclusions(data json.RawMessage, exclude []string) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return "", err
	}
	return GenerateWithExclusions(m, exclude), nil
}

// Equal reports whether two payloads are deeply equal under canonicalization:
// same key set, same values per key, order-independent, nested values
// compared structurally.
func Equal(a, b map[string]any) bool {
	return canonicalizeMap(a, nil) == canonicalizeMap(b, nil)
}

// canonicalize creates a deterministic string representation of a value
// by sorting keys and recursively processing nested structures.
func canonicalize(data any) string {
	switch v := data.(type) {
	case map[string]any:
		return canonicalizeMap(v, nil)
	case []any:
		return canonicalizeArray(v)
	default:
		// primitives use JSON encoding
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func canonicalizeMap(m map[string]any, excludeKeys map[string]bool) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := "{"
	first := true
	for _, k := range keys {
		if excludeKeys[k] {
			continue
		}

		if !first {
			result += ","
		}
		first = false
		keyJSON, _ := json.Marshal(k)
		result += string(keyJSON) + ":" + canonicalize(m[k])
	}
	result += "}"
	return result
}

func canonicalizeArray(arr []any) string {
	result := "["
	for i, v := range arr {
		if i > 0 {
			result += ","
		}
		result += canonicalize(v)
	}
	result += "]"
	return result
}
