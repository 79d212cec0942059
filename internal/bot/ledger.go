package bot

import (
	"time"

	"cryptosim-bot/internal/risk"
)

type ledgerSummary struct {
	trades    int
	closed    int
	realized  float64
	netCash   float64 // SELL totals minus BUY totals
	lastTrade map[string]time.Time
}

// summarizeLedger pairs each SELL with the preceding BUY of its symbol. A SELL
// always closes the whole position, so its profit is the difference of the
// two totals. A SELL without a BUY (truncated ledger) adds no profit.
func summarizeLedger(trades []Trade) ledgerSummary {
	sum := ledgerSummary{lastTrade: make(map[string]time.Time)}
	cost := make(map[string]float64)

	for _, t := range trades {
		sum.trades++
		if t.CreatedAt.After(sum.lastTrade[t.Symbol]) {
			sum.lastTrade[t.Symbol] = t.CreatedAt
		}
		switch t.Type {
		case risk.SideBuy:
			sum.netCash -= t.Total
			cost[t.Symbol] = t.Total
		case risk.SideSell:
			sum.netCash += t.Total
			if entry, ok := cost[t.Symbol]; ok {
				sum.realized += t.Total - entry
				sum.closed++
				delete(cost, t.Symbol)
			}
		}
	}
	return sum
}
