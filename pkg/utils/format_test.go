package utils

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// For any amount FormatUSD must carry a $ prefix, exactly 2 decimals,
// comma groups of three, and parse back to the rounded value.
func TestProperty_USDFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	grouping := regexp.MustCompile(`^\d{1,3}(,\d{3})*$`)

	properties.Property("FormatUSD produces a valid dollar amount", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatUSD(amount)

			rest := formatted
			if amount < 0 {
				if !strings.HasPrefix(rest, "-$") {
					t.Logf("Expected -$ prefix for %f, got %s", amount, formatted)
					return false
				}
				rest = strings.TrimPrefix(rest, "-")
			}
			if !strings.HasPrefix(rest, "$") {
				t.Logf("Expected $ prefix for %f, got %s", amount, formatted)
				return false
			}
			rest = strings.TrimPrefix(rest, "$")

			parts := strings.Split(rest, ".")
			if len(parts) != 2 || len(parts[1]) != 2 {
				t.Logf("Expected 2 decimal places for %f, got %s", amount, formatted)
				return false
			}
			if !grouping.MatchString(parts[0]) {
				t.Logf("Invalid grouping for %f: %s", amount, formatted)
				return false
			}

			parsed, err := strconv.ParseFloat(strings.ReplaceAll(rest, ",", ""), 64)
			if err != nil {
				return false
			}
			return math.Abs(parsed-math.Abs(amount)) <= 0.006
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.TestingRun(t)
}

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{1.5, "$1.50"},
		{999.999, "$1,000.00"},
		{1234567.891, "$1,234,567.89"},
		{-42.1, "-$42.10"},
	}

	for _, tt := range tests {
		if got := FormatUSD(tt.in); got != tt.want {
			t.Errorf("FormatUSD(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatNullable(t *testing.T) {
	if got := FormatNullUSD(null.Float{}); got != "n/a" {
		t.Errorf("expected n/a, got %q", got)
	}
	if got := FormatNullChange(null.FloatFrom(3.25)); got != "+$3.25" {
		t.Errorf("expected +$3.25, got %q", got)
	}
	if got := FormatNullPercent(null.FloatFrom(-1.2)); got != "-1.20%" {
		t.Errorf("expected -1.20%%, got %q", got)
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("Apple Inc.", 20); got != "Apple Inc." {
		t.Errorf("unexpected %q", got)
	}
	if got := TruncateString("International Business Machines", 12); got != "Internati..." {
		t.Errorf("unexpected %q", got)
	}
}

func TestGetMarketSession(t *testing.T) {
	ny := NewYorkLocation
	tests := []struct {
		name string
		at   time.Time
		want MarketSession
	}{
		{"saturday", time.Date(2026, 1, 3, 12, 0, 0, 0, ny), SessionClosed},
		{"pre-market", time.Date(2026, 1, 5, 8, 0, 0, 0, ny), SessionPreMarket},
		{"open bell", time.Date(2026, 1, 5, 9, 30, 0, 0, ny), SessionOpen},
		{"after hours", time.Date(2026, 1, 5, 16, 0, 0, 0, ny), SessionAfterHours},
		{"overnight", time.Date(2026, 1, 5, 22, 0, 0, 0, ny), SessionClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetMarketSession(tt.at); got != tt.want {
				t.Errorf("GetMarketSession = %s, want %s", got, tt.want)
			}
		})
	}

	friday := time.Date(2026, 1, 9, 17, 0, 0, 0, ny)
	next := GetNextMarketOpen(friday)
	if next.Weekday() != time.Monday || next.Hour() != 9 || next.Minute() != 30 {
		t.Errorf("expected Monday 9:30, got %v", next)
	}
}
