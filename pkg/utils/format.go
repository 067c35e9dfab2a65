// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strings"

	"github.com/guregu/null/v6"
)

// FormatUSD formats an amount as US dollars with thousands separators.
func FormatUSD(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")

	result := "$" + groupThousands(parts[0]) + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// groupThousands inserts a comma every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatChange formats an absolute change with sign.
func FormatChange(change float64) string {
	if change > 0 {
		return "+" + FormatUSD(change)
	}
	return FormatUSD(change)
}

// FormatNullUSD formats a nullable price, printing "n/a" when absent.
func FormatNullUSD(v null.Float) string {
	if !v.Valid {
		return "n/a"
	}
	return FormatUSD(v.Float64)
}

// FormatNullChange formats a nullable change, printing "n/a" when absent.
func FormatNullChange(v null.Float) string {
	if !v.Valid {
		return "n/a"
	}
	return FormatChange(v.Float64)
}

// FormatNullPercent formats a nullable percentage, printing "n/a" when absent.
func FormatNullPercent(v null.Float) string {
	if !v.Valid {
		return "n/a"
	}
	return FormatPercent(v.Float64)
}

// TruncateString shortens s to maxLen runes, ending with "...".
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
