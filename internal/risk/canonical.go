package risk

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalHash returns the SHA-256 of body's canonical JSON form. Object keys
// are emitted in sorted order at every depth and numbers are normalised
// through float64, so {"a":1,"b":2} and {"b":2.0,"a":1} hash identically.
func CanonicalHash(body any) string {
	data, err := json.Marshal(normalize(body))
	if err != nil {
		// Unmarshalable values cannot come from a JSON decoder; fall back to
		// the Go representation so the hash stays deterministic.
		data = []byte(fmt.Sprintf("%#v", body))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// normalize rewrites json.Number and integer types to float64 and recurses
// into containers. encoding/json already sorts map keys on output.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalizeValue(val)
		}
		return out
	default:
		return normalizeValue(v)
	}
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalizeValue(val)
		}
		return out
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case int:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return v
	}
}
