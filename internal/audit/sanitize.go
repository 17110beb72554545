package audit

import (
	"encoding/json"
	"strings"
)

// Redacted replaces the value of any credential-like key in stored snapshots.
const Redacted = "[REDACTED]"

var secretKeyFragments = []string{"password", "token", "secret"}

// Sanitize decodes a JSON body and redacts every key matching a
// password/token/secret-like name, any case, at any nesting depth. Non-JSON
// bodies are dropped rather than stored raw.
func Sanitize(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	out, err := json.Marshal(redact(v))
	if err != nil {
		return nil
	}
	return out
}

func redact(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if isSecretKey(k) {
				t[k] = Redacted
				continue
			}
			t[k] = redact(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = redact(val)
		}
		return t
	default:
		return v
	}
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range secretKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
