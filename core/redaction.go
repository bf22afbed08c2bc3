package core

import "strings"

const RedactedValue = "[REDACTED]"

// RedactSensitiveMap deep-copies metadata with secret-bearing keys replaced
// by RedactedValue. Nested maps and slices are walked recursively.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(metadata)
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	default:
		return value
	}
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	sensitiveTokens := []string{
		"password",
		"secret",
		"token",
		"authorization",
		"api_key",
		"apikey",
		"access_key",
		"private_key",
		"credential",
		"signature",
		"ssn",
		"card_number",
		"account_number",
	}
	for _, token := range sensitiveTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

// Traceability identifiers are never redacted even when they pattern-match a
// sensitive token; losing them would break audit correlation.
func isTraceabilityKey(key string) bool {
	switch key {
	case "event_id",
		"event_type",
		"entity_type",
		"entity_id",
		"idempotency_key",
		"content_hash",
		"sequence_number",
		"request_id",
		"trace_id",
		"source_ip":
		return true
	default:
		return false
	}
}
