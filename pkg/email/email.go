package email

import (
	"strings"
	"unicode"
)

// Normalize lowercases an address for case-insensitive comparison.
// Custodian emails are unique within a hold under this normalization.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DeriveDisplayName builds a readable name from an address local part.
// Used when a custodian intake list carries emails without names.
func DeriveDisplayName(email string) string {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "Custodian"
	}

	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
