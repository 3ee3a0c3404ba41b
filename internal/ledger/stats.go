package ledger

import (
	"sort"

	"paper-ledger/internal/finmath"
	"paper-ledger/internal/models"
)

// Apply folds one closed trade into a session's running aggregates and
// returns the updated session. The input session is not modified.
func Apply(session models.TradingSession, trade models.Trade) models.TradingSession {
	s := session
	s.Symbols = append([]string(nil), session.Symbols...)

	pnl := trade.RealizedPnL()
	hold := trade.Holding().Seconds()
	prior := s.TradeCount

	s.TradeCount++
	switch {
	case pnl > 0:
		s.AverageWin = finmath.RunningMean(s.AverageWin, s.WinCount, pnl)
		if s.WinCount == 0 || pnl > s.LargestWin {
			s.LargestWin = pnl
		}
		s.WinCount++
	case pnl < 0:
		s.AverageLoss = finmath.RunningMean(s.AverageLoss, s.LossCount, pnl)
		if s.LossCount == 0 || pnl < s.LargestLoss {
			s.LargestLoss = pnl
		}
		s.LossCount++
	}

	s.WinRate = finmath.Percent(float64(s.WinCount), float64(s.TradeCount))
	s.AverageHoldSeconds = finmath.RunningMean(s.AverageHoldSeconds, prior, hold)
	s.TotalPnL = finmath.Add(s.TotalPnL, pnl)
	s.TotalVolume = finmath.Add(s.TotalVolume, finmath.Notional(trade.EntryPrice, trade.Quantity))
	s.Symbols = addSymbol(s.Symbols, trade.Symbol)
	return s
}

// Recompute rebuilds a session's aggregates from its closed trades, applied
// in close order. Identity and status fields are kept from session.
func Recompute(session models.TradingSession, trades []models.Trade) models.TradingSession {
	s := resetAggregates(session)
	for _, t := range closeOrder(trades) {
		s = Apply(s, t)
	}
	return s
}

func resetAggregates(session models.TradingSession) models.TradingSession {
	s := session
	s.TradeCount, s.WinCount, s.LossCount = 0, 0, 0
	s.TotalPnL, s.WinRate = 0, 0
	s.AverageWin, s.AverageLoss = 0, 0
	s.LargestWin, s.LargestLoss = 0, 0
	s.AverageHoldSeconds, s.TotalVolume = 0, 0
	s.Symbols = []string{}
	return s
}

// closeOrder returns the closed trades sorted by exit time, then ID.
func closeOrder(trades []models.Trade) []models.Trade {
	closed := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Status == models.TradeClosed && t.ExitTime != nil {
			closed = append(closed, t)
		}
	}
	sort.SliceStable(closed, func(i, j int) bool {
		ei, ej := *closed[i].ExitTime, *closed[j].ExitTime
		if !ei.Equal(ej) {
			return ei.Before(ej)
		}
		return closed[i].ID < closed[j].ID
	})
	return closed
}

func addSymbol(symbols []string, symbol string) []string {
	i := sort.SearchStrings(symbols, symbol)
	if i < len(symbols) && symbols[i] == symbol {
		return symbols
	}
	symbols = append(symbols, "")
	copy(symbols[i+1:], symbols[i:])
	symbols[i] = symbol
	return symbols
}
