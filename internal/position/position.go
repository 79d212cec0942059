package position

import "time"

// Status of a position
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// ExitReason explains why a position was closed
type ExitReason string

const (
	ExitTakeProfit     ExitReason = "take profit"
	ExitTrailingStop   ExitReason = "trailing stop"
	ExitStopLoss       ExitReason = "stop loss"
	ExitSignalReversal ExitReason = "signal reversal"
	ExitManual         ExitReason = "manual"
)

// Position is a simulated long position on one symbol
type Position struct {
	ID            string     `json:"id"`
	Symbol        string     `json:"symbol"`
	Amount        float64    `json:"amount"`
	EntryPrice    float64    `json:"entry_price"`
	EntryTime     time.Time  `json:"entry_time"`
	StopLossPct   float64    `json:"stop_loss_pct"`
	TakeProfitPct float64    `json:"take_profit_pct"`
	HighestPrice  float64    `json:"highest_price"`
	Status        Status     `json:"status"`
	ExitPrice     *float64   `json:"exit_price,omitempty"`
	ExitTime      *time.Time `json:"exit_time,omitempty"`
	Profit        *float64   `json:"profit,omitempty"`
	ProfitPercent *float64   `json:"profit_percent,omitempty"`
	ExitReason    ExitReason `json:"exit_reason,omitempty"`
}

// PnLPercent returns the unrealised profit percentage at price
func (p *Position) PnLPercent(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice * 100
}

// DropFromPeakPercent returns how far price sits below the highest price seen
func (p *Position) DropFromPeakPercent(price float64) float64 {
	if p.HighestPrice == 0 {
		return 0
	}
	return (p.HighestPrice - price) / p.HighestPrice * 100
}

// UnrealizedProfit returns the profit the position would realise at price
func (p *Position) UnrealizedProfit(price float64) float64 {
	return (price - p.EntryPrice) * p.Amount
}

// StopLossPrice returns the absolute price at which the hard stop fires
func (p *Position) StopLossPrice() float64 {
	return p.EntryPrice * (1 - p.StopLossPct/100)
}

// TakeProfitPrice returns the absolute price at which take-profit fires
func (p *Position) TakeProfitPrice() float64 {
	return p.EntryPrice * (1 + p.TakeProfitPct/100)
}
