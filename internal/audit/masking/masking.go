package masking

import "strings"

const maskToken = "****"

var sensitiveKeys = map[string]struct{}{
	"gstin":        {},
	"pan":          {},
	"bank_account": {},
	"account_no":   {},
}

// MaskSecret redacts a tax identifier while keeping the last four characters.
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

// MaskIdentifiers returns a copy of metadata with sensitive string values masked.
// Nested maps are walked; other values are copied as-is.
func MaskIdentifiers(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		masked[trimmedKey] = maskValue(trimmedKey, value)
	}

	if len(masked) == 0 {
		return nil
	}
	return masked
}

func maskValue(key string, value any) any {
	switch cast := value.(type) {
	case string:
		if _, ok := sensitiveKeys[strings.ToLower(key)]; ok {
			return MaskSecret(cast)
		}
		return cast
	case map[string]any:
		return MaskIdentifiers(cast)
	default:
		return value
	}
}
