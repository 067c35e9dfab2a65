// Package security validates untrusted identifiers and masks secrets.
package security

import (
	"regexp"
	"strings"
	"unicode"

	"stockwatch/internal/errors"
)

const (
	maxSymbolLen = 16
	maxUserIDLen = 128
)

// Exchange tickers, share classes (BRK.B, BRK-B) and Yahoo index or
// currency symbols (^GSPC, EURUSD=X).
var symbolPattern = regexp.MustCompile(`^\^?[A-Z0-9][A-Z0-9.\-]*(=X|=F)?$`)

// NormalizeSymbol trims and upper-cases symbol and rejects anything that is
// not a plausible ticker.
func NormalizeSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if symbol == "" {
		return "", errors.NewValidationError("symbol", symbol, "must not be empty")
	}
	if len(symbol) > maxSymbolLen {
		return "", errors.NewValidationError("symbol", symbol, "too long")
	}
	if !symbolPattern.MatchString(symbol) {
		return "", errors.NewValidationError("symbol", symbol, "invalid format")
	}
	return symbol, nil
}

// NormalizeUserID trims id and rejects empty, oversized or non-printable ids.
func NormalizeUserID(id string) (string, error) {
	id = strings.TrimSpace(id)

	if id == "" {
		return "", errors.NewValidationError("user_id", id, "must not be empty")
	}
	if len(id) > maxUserIDLen {
		return "", errors.NewValidationError("user_id", id, "too long")
	}
	for _, r := range id {
		if !unicode.IsPrint(r) {
			return "", errors.NewValidationError("user_id", id, "contains non-printable characters")
		}
	}
	return id, nil
}

// MaskCredential masks a credential value for display.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
