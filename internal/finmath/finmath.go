// Package finmath provides exact money arithmetic for trade P&L and statistics.
//
// Values enter and leave as float64; intermediate arithmetic is carried out in
// shopspring/decimal so that repeated aggregation does not drift.
package finmath

import (
	"math"

	"github.com/shopspring/decimal"
)

// resultPlaces bounds the precision of values handed back as float64.
const resultPlaces = 10

func d(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func f(v decimal.Decimal) float64 {
	out, _ := v.Round(resultPlaces).Float64()
	return out
}

// PnL returns (price - entry) x quantity x direction.
func PnL(entry, price float64, quantity int, direction float64) float64 {
	return f(d(price).Sub(d(entry)).Mul(decimal.NewFromInt(int64(quantity))).Mul(d(direction)))
}

// Percent returns value / base x 100, or 0 when base is 0.
func Percent(value, base float64) float64 {
	if base == 0 {
		return 0
	}
	return f(d(value).Div(d(base)).Mul(decimal.NewFromInt(100)))
}

// Notional returns price x quantity.
func Notional(price float64, quantity int) float64 {
	return f(d(price).Mul(decimal.NewFromInt(int64(quantity))))
}

// Add returns a + b.
func Add(a, b float64) float64 {
	return f(d(a).Add(d(b)))
}

// Sub returns a - b.
func Sub(a, b float64) float64 {
	return f(d(a).Sub(d(b)))
}

// RunningMean folds value into a mean over n previous observations.
func RunningMean(mean float64, n int, value float64) float64 {
	if n <= 0 {
		return value
	}
	num := d(mean).Mul(decimal.NewFromInt(int64(n))).Add(d(value))
	return f(num.Div(decimal.NewFromInt(int64(n + 1))))
}

// Commission returns perTrade x 2 + rate x (entryNotional + exitNotional).
func Commission(perTrade, rate, entryNotional, exitNotional float64) float64 {
	legs := d(perTrade).Mul(decimal.NewFromInt(2))
	return f(legs.Add(d(rate).Mul(d(entryNotional).Add(d(exitNotional)))))
}

// Mean returns the arithmetic mean of values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation of values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Slope returns the least-squares slope of ys against their index.
func Slope(ys []float64) float64 {
	xs := make([]float64, len(ys))
	for i := range xs {
		xs[i] = float64(i)
	}
	return SlopeXY(xs, ys)
}

// SlopeXY returns the least-squares slope of ys against xs. Mismatched
// lengths and fewer than two points yield zero.
func SlopeXY(xs, ys []float64) float64 {
	n := float64(len(ys))
	if len(xs) != len(ys) || n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := xs[i]
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / den
}
