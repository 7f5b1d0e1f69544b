// Package fingerprint produces deterministic content hashes used for upsert
// change detection: two mapped attribute sets with equal fingerprints need no
// write.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Generate creates a SHA256 fingerprint of the canonicalized map
func Generate(data map[string]any) string {
	canonical := canonicalize(data)
	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}

// GenerateFromStruct fingerprints any JSON-marshalable value. Marshaling
// through a map strips ordering differences between struct and map inputs.
func GenerateFromStruct(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	return Generate(m), nil
}

// GenerateFromJSON creates a fingerprint from raw JSON
func GenerateFromJSON(data json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return "", err
	}
	return Generate(m), nil
}

// canonicalize renders a value into a deterministic string by sorting map
// keys and recursing into nested structures
func canonicalize(data any) string {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sb strings.Builder
		sb.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(",")
			}
			keyJSON, _ := json.Marshal(k)
			sb.Write(keyJSON)
			sb.WriteString(":")
			sb.WriteString(canonicalize(v[k]))
		}
		sb.WriteString("}")
		return sb.String()
	case []any:
		var sb strings.Builder
		sb.WriteString("[")
		for i, item := range v {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(canonicalize(item))
		}
		sb.WriteString("]")
		return sb.String()
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
