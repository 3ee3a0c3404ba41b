package utils

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var thousandsPattern = regexp.MustCompile(`^\d{1,3}(,\d{3})*$`)

// parseCurrency reverses FormatCurrency.
func parseCurrency(s string) float64 {
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	v, _ := strconv.ParseFloat(s, 64)
	if negative {
		return -v
	}
	return v
}

func TestProperty_CurrencyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("FormatCurrency groups thousands with two decimals", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatCurrency(amount)

			prefix := "$"
			if amount < 0 {
				prefix = "-$"
			}
			if !strings.HasPrefix(formatted, prefix) {
				t.Logf("Expected %s prefix for %f, got %s", prefix, amount, formatted)
				return false
			}

			parts := strings.Split(strings.TrimPrefix(formatted, prefix), ".")
			if len(parts) != 2 || len(parts[1]) != 2 {
				t.Logf("Expected two decimals for %f, got %s", amount, formatted)
				return false
			}
			if !thousandsPattern.MatchString(parts[0]) {
				t.Logf("Bad grouping for %f: %s", amount, formatted)
				return false
			}
			return true
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("FormatCurrency preserves value", prop.ForAll(
		func(amount float64) bool {
			parsed := parseCurrency(FormatCurrency(amount))
			return math.Abs(parsed-math.Round(amount*100)/100) <= 0.01
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("FormatPnL signs gains", prop.ForAll(
		func(pnl float64) bool {
			formatted := FormatPnL(pnl)
			if pnl > 0 {
				return strings.HasPrefix(formatted, "+$")
			}
			return !strings.HasPrefix(formatted, "+")
		},
		gen.Float64Range(-1e6, 1e6),
	))

	properties.Property("TruncateString respects the limit", prop.ForAll(
		func(s string, n int) bool {
			out := TruncateString(s, n)
			if utf8.RuneCountInString(s) <= n {
				return out == s
			}
			return utf8.RuneCountInString(out) == n && strings.HasSuffix(out, "…")
		},
		gen.AnyString(),
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}
