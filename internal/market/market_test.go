package market

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func TestComputeChange(t *testing.T) {
	tests := []struct {
		name     string
		last     float64
		previous float64
		want     Change
		ok       bool
	}{
		{"gain", 110, 100, Change{Last: 110, Absolute: 10, Percent: 10}, true},
		{"loss", 95.5, 100, Change{Last: 95.5, Absolute: -4.5, Percent: -4.5}, true},
		{"rounding", 185.25, 182.5, Change{Last: 185.25, Absolute: 2.75, Percent: 1.51}, true},
		{"flat", 42, 42, Change{Last: 42, Absolute: 0, Percent: 0}, true},
		{"tie on stored floats", 1.81, 1.6, Change{Last: 1.81, Absolute: 0.21, Percent: 13.12}, true},
		{"tie with inexact previous", 2.1, 1.92, Change{Last: 2.1, Absolute: 0.18, Percent: 9.37}, true},
		{"zero previous", 10, 0, Change{}, false},
		{"nan", math.NaN(), 10, Change{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ComputeChange(tt.last, tt.previous)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ComputeChange(%v, %v) = %+v, want %+v", tt.last, tt.previous, got, tt.want)
			}
		})
	}
}

// Property: percent change is consistent with the stored last price and
// absolute change: percent == round(abs / (last - abs) * 100, 2).
func TestProperty_ChangeFieldsConsistent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("percent change derivable from last and absolute change", prop.ForAll(
		func(last, previous float64) bool {
			c, ok := ComputeChange(last, previous)
			if !ok {
				return true
			}

			prev := c.Last - c.Absolute
			if prev == 0 {
				return false
			}
			return Round2(c.Absolute/prev*100) == c.Percent
		},
		gen.Float64Range(0.01, 5000),
		gen.Float64Range(0.01, 5000),
	))

	properties.Property("values are rounded to two decimals", prop.ForAll(
		func(last, previous float64) bool {
			c, ok := ComputeChange(last, previous)
			if !ok {
				return true
			}
			for _, v := range []float64{c.Last, c.Absolute, c.Percent} {
				if !decimal.NewFromFloat(v).Equal(decimal.NewFromFloat(v).Round(2)) {
					return false
				}
			}
			return true
		},
		gen.Float64Range(0.01, 5000),
		gen.Float64Range(0.01, 5000),
	))

	properties.TestingRun(t)
}

func TestValidPeriodsAndIntervals(t *testing.T) {
	if !IsValidPeriod("ytd") || IsValidPeriod("3w") {
		t.Error("period validation wrong")
	}
	if !IsValidInterval("1wk") || IsValidInterval("1s") {
		t.Error("interval validation wrong")
	}
}
