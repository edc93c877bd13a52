// Package sanitization scrubs log fields and payloads before they reach a log sink.
package sanitization

import (
	"fmt"
	"strings"
)

const redactedValue = "[REDACTED]"

// SensitiveFields are lowercased field names that are always fully redacted.
var SensitiveFields = map[string]bool{
	"authorization":         true,
	"cookie":                true,
	"set-cookie":            true,
	"x-api-key":             true,
	"x-amz-security-token":  true,
	"aws_access_key_id":     true,
	"aws_secret_access_key": true,
	"aws_session_token":     true,
	"password":              true,
}

var blockedSubstrings = []string{
	"secret",
	"token",
	"password",
	"credential",
	"api_key",
	"authorization",
}

// SanitizeLogString removes CR and LF so a value cannot forge extra log lines.
func SanitizeLogString(value string) string {
	if value == "" {
		return value
	}
	return strings.NewReplacer("\r", "", "\n", "").Replace(value)
}

// SanitizeFieldValue redacts value when key names a credential, and strips control
// characters otherwise.
func SanitizeFieldValue(key string, value any) any {
	keyLower := strings.ToLower(strings.TrimSpace(key))
	if keyLower != "" {
		if SensitiveFields[keyLower] {
			return redactedValue
		}
		for _, substr := range blockedSubstrings {
			if strings.Contains(keyLower, substr) {
				return redactedValue
			}
		}
	}
	return sanitizeValue(value)
}

// SanitizeHeaders returns a copy of headers with credential-bearing values redacted.
func SanitizeHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if s, ok := SanitizeFieldValue(k, v).(string); ok {
			out[k] = s
			continue
		}
		out[k] = redactedValue
	}
	return out
}

func sanitizeValue(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case string:
		return SanitizeLogString(typed)
	case []byte:
		return SanitizeLogString(string(typed))
	case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return typed
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = SanitizeFieldValue(k, v)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = SanitizeFieldValue(k, v)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = sanitizeValue(typed[i])
		}
		return out
	case error:
		return SanitizeLogString(typed.Error())
	default:
		return SanitizeLogString(fmt.Sprintf("%v", typed))
	}
}
