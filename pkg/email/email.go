// Package email normalizes operator sign-in addresses.
package email

import (
	"net/mail"
	"strings"
	"unicode"

	dErrors "mutuelle/pkg/domain-errors"
)

const maxLength = 254

// Normalize trims and lowercases addr and checks it is a bare address
// (no display name).
func Normalize(addr string) (string, error) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "email is required")
	}
	if len(addr) > maxLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "email is too long")
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr || parsed.Name != "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "email is malformed")
	}
	return addr, nil
}

// DisplayName derives "First Last" from the local part of addr, for
// operators registered without a name.
func DisplayName(addr string) string {
	localPart := addr
	if at := strings.IndexByte(addr, '@'); at > 0 {
		localPart = addr[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+' || unicode.IsDigit(r)
	})
	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	if len(parts) == 0 {
		return "Operator"
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
