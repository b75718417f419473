package masking

import "strings"

const maskToken = "****"

var sensitiveKeys = map[string]struct{}{
	"bank_transaction_no": {},
	"secure_hash":         {},
	"vnp_securehash":      {},
}

// MaskSecret redacts a value while keeping the last four characters for reconciliation.
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

// MaskMetadata returns a copy of input with sensitive string values masked.
func MaskMetadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			out[key] = MaskMetadata(nested)
			continue
		}
		if str, ok := value.(string); ok {
			if _, sensitive := sensitiveKeys[strings.ToLower(key)]; sensitive {
				out[key] = MaskSecret(str)
				continue
			}
		}
		out[key] = value
	}
	return out
}
