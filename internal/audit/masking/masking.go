package masking

import "strings"

const maskToken = "****"

// sensitiveKeys are metadata keys whose string values are masked before an
// audit row is written.
var sensitiveKeys = map[string]struct{}{
	"account_number": {},
	"bank_account":   {},
	"secret":         {},
}

// MaskSecret redacts a value while keeping its last four characters.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskSensitive returns a copy of input with sensitive string values masked,
// descending into nested maps.
func MaskSensitive(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		switch cast := value.(type) {
		case map[string]any:
			out[key] = MaskSensitive(cast)
		case string:
			if _, ok := sensitiveKeys[key]; ok {
				out[key] = MaskSecret(cast)
				continue
			}
			out[key] = cast
		default:
			out[key] = value
		}
	}
	return out
}
