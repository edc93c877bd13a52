package sanitization

import (
	"encoding/json"
	"fmt"
)

// SanitizeJSON returns body as compact JSON with sensitive fields redacted.
func SanitizeJSON(body []byte) string {
	if len(body) == 0 {
		return "(empty)"
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return fmt.Sprintf("(malformed JSON: %s)", SanitizeLogString(err.Error()))
	}

	out, err := json.Marshal(sanitizeJSONValue(data))
	if err != nil {
		return "(error marshaling sanitized JSON)"
	}
	return string(out)
}

func sanitizeJSONValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, inner := range v {
			sanitized := SanitizeFieldValue(key, inner)
			if s, ok := sanitized.(string); ok && s == redactedValue {
				result[key] = s
				continue
			}
			result[key] = sanitizeJSONValue(inner)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i := range v {
			result[i] = sanitizeJSONValue(v[i])
		}
		return result
	default:
		return sanitizeValue(v)
	}
}
