package ledger

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"paper-ledger/internal/models"
)

func closedTrade(id, symbol string, pnl float64, holdSeconds int64, exit time.Time) models.Trade {
	return models.Trade{
		ID:             id,
		Symbol:         symbol,
		Side:           models.OrderSideBuy,
		Quantity:       10,
		EntryPrice:     100,
		EntryTime:      exit.Add(-time.Duration(holdSeconds) * time.Second),
		ExitTime:       &exit,
		Status:         models.TradeClosed,
		PnL:            models.Float(pnl),
		HoldingSeconds: &holdSeconds,
	}
}

func TestApplyExample(t *testing.T) {
	s := models.TradingSession{ID: "s1", Symbols: []string{}}
	for i, pnl := range []float64{50, -20, 30} {
		s = Apply(s, closedTrade(fmt.Sprintf("t%d", i), "AAPL", pnl, 60, baseTime.Add(time.Duration(i)*time.Minute)))
	}

	assert.Equal(t, 3, s.TradeCount)
	assert.Equal(t, 2, s.WinCount)
	assert.Equal(t, 1, s.LossCount)
	assert.InDelta(t, 66.67, s.WinRate, 0.01)
	assert.InDelta(t, 40.0, s.AverageWin, 1e-9)
	assert.InDelta(t, -20.0, s.AverageLoss, 1e-9)
	assert.Equal(t, 50.0, s.LargestWin)
	assert.Equal(t, -20.0, s.LargestLoss)
	assert.InDelta(t, 60.0, s.TotalPnL, 1e-9)
	assert.InDelta(t, 3000.0, s.TotalVolume, 1e-9)
}

func TestApplyZeroPnLCountsTowardNeither(t *testing.T) {
	s := Apply(models.TradingSession{}, closedTrade("t1", "AAPL", 0, 30, baseTime))
	assert.Equal(t, 1, s.TradeCount)
	assert.Zero(t, s.WinCount)
	assert.Zero(t, s.LossCount)
	assert.Zero(t, s.WinRate)
	assert.InDelta(t, 30.0, s.AverageHoldSeconds, 1e-9)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	in := models.TradingSession{Symbols: []string{"MSFT"}}
	out := Apply(in, closedTrade("t1", "AAPL", 10, 30, baseTime))
	assert.Equal(t, []string{"MSFT"}, in.Symbols)
	assert.Equal(t, []string{"AAPL", "MSFT"}, out.Symbols)
	assert.Zero(t, in.TradeCount)
}

func TestRecomputeIgnoresOpenAndCancelled(t *testing.T) {
	trades := []models.Trade{
		closedTrade("b", "AAPL", 10, 10, baseTime.Add(time.Minute)),
		{ID: "open", Symbol: "TSLA", Status: models.TradeOpen},
		{ID: "cxl", Symbol: "NFLX", Status: models.TradeCancelled},
		closedTrade("a", "MSFT", -5, 20, baseTime),
	}
	s := Recompute(models.TradingSession{ID: "s1", TradeCount: 99}, trades)
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, 2, s.TradeCount)
	assert.Equal(t, []string{"AAPL", "MSFT"}, s.Symbols)
}

// Property: incremental aggregates equal a batch computation over history.
func TestProperty_IncrementalMatchesBatch(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("apply fold equals batch statistics", prop.ForAll(
		func(pnls []float64, holds []int64) bool {
			symbols := []string{"AAPL", "MSFT", "TSLA"}
			var trades []models.Trade
			for i, pnl := range pnls {
				hold := int64(60)
				if i < len(holds) {
					hold = holds[i]
				}
				trades = append(trades, closedTrade(fmt.Sprintf("t%03d", i), symbols[i%3], math.Round(pnl*100)/100, hold,
					baseTime.Add(time.Duration(i)*time.Minute)))
			}

			inc := models.TradingSession{Symbols: []string{}}
			for _, tr := range trades {
				inc = Apply(inc, tr)
			}

			var wins, losses, holdsAll []float64
			largestWin, largestLoss, total := 0.0, 0.0, 0.0
			for _, tr := range trades {
				p := *tr.PnL
				total += p
				holdsAll = append(holdsAll, float64(*tr.HoldingSeconds))
				if p > 0 {
					if len(wins) == 0 || p > largestWin {
						largestWin = p
					}
					wins = append(wins, p)
				}
				if p < 0 {
					if len(losses) == 0 || p < largestLoss {
						largestLoss = p
					}
					losses = append(losses, p)
				}
			}

			const tol = 1e-6
			if inc.TradeCount != len(trades) || inc.WinCount != len(wins) || inc.LossCount != len(losses) {
				return false
			}
			if inc.WinCount+inc.LossCount > inc.TradeCount {
				return false
			}
			if len(trades) > 0 && math.Abs(inc.WinRate-float64(len(wins))/float64(len(trades))*100) > tol {
				return false
			}
			if math.Abs(inc.AverageWin-mean(wins)) > tol || math.Abs(inc.AverageLoss-mean(losses)) > tol {
				return false
			}
			if inc.LargestWin != largestWin || inc.LargestLoss != largestLoss {
				return false
			}
			if math.Abs(inc.AverageHoldSeconds-mean(holdsAll)) > tol || math.Abs(inc.TotalPnL-total) > tol {
				return false
			}
			want := Recompute(models.TradingSession{}, trades)
			return want.TotalPnL == inc.TotalPnL && want.AverageWin == inc.AverageWin && len(want.Symbols) == len(inc.Symbols)
		},
		gen.SliceOf(gen.Float64Range(-500, 500)),
		gen.SliceOf(gen.Int64Range(0, 86400)),
	))

	properties.TestingRun(t)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Property: MFE and MAE bound every floating P&L observed while open.
func TestProperty_ExcursionBounds(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s := h.start(t, "u1")

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("MFE >= floating >= MAE", prop.ForAll(
		func(sell bool, qty int, prices []float64) bool {
			o := marketBuy("u1", s.ID, "AAPL", qty)
			o.Type = models.OrderTypeLimit
			o.LimitPrice = models.Float(100)
			if sell {
				o.Side = models.OrderSideSell
			}
			tr, err := h.manager.Open(ctx, o)
			if err != nil {
				return false
			}
			hi, lo := 0.0, 0.0
			for _, p := range prices {
				floating, err := h.manager.Revalue(ctx, tr.ID, p)
				if err != nil {
					return false
				}
				hi = math.Max(hi, floating)
				lo = math.Min(lo, floating)
			}
			got, err := h.store.GetTrade(ctx, tr.ID)
			if err != nil {
				return false
			}
			return got.MFE >= 0 && got.MAE <= 0 &&
				math.Abs(got.MFE-hi) < 1e-9 && math.Abs(got.MAE-lo) < 1e-9
		},
		gen.Bool(),
		gen.IntRange(1, 100),
		gen.SliceOfN(5, gen.Float64Range(50, 150)),
	))

	properties.TestingRun(t)
}
