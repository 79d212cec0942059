package bot

import (
	"context"
	"time"

	"cryptosim-bot/internal/notification"
	"cryptosim-bot/internal/position"
	"cryptosim-bot/internal/risk"
)

// Status is the controller lifecycle state
type Status string

const (
	StatusIdle    Status = "IDLE"
	StatusRunning Status = "RUNNING"
)

// RiskConfig holds the exit and sizing limits. Percent fields are in
// percent except MaxTradeBalancePercent, which is a fraction of balance.
type RiskConfig struct {
	StopLossPercent        float64 `json:"stop_loss_percent"`
	TakeProfitPercent      float64 `json:"take_profit_percent"`
	MaxDrawdownPercent     float64 `json:"max_drawdown_percent"`
	MaxTradeBalancePercent float64 `json:"max_trade_balance_percent"`
}

// Config is the bot configuration
type Config struct {
	Symbol          string            `json:"symbol"`
	Interval        string            `json:"interval"`
	BaseTradeAmount float64           `json:"base_trade_amount"`
	Risk            RiskConfig        `json:"risk"`
	RandomSizing    risk.RandomSizing `json:"random_sizing"`

	Cooldown       time.Duration `json:"cooldown"`
	Heartbeat      time.Duration `json:"heartbeat"`
	StaleAfter     time.Duration `json:"stale_after"`
	HistoryLimit   int           `json:"history_limit"`
	MinCandles     int           `json:"min_candles"`
	UpdateBuffer   int           `json:"update_buffer"`
	ReportAnalysis bool          `json:"report_analysis"` // Send an analysis notification on every heartbeat
}

// DefaultConfig returns default bot settings
func DefaultConfig() Config {
	return Config{
		Symbol:          "BTC",
		Interval:        "1m",
		BaseTradeAmount: 0.001,
		Risk: RiskConfig{
			StopLossPercent:        2.0,
			TakeProfitPercent:      5.0,
			MaxDrawdownPercent:     10.0,
			MaxTradeBalancePercent: 0.2,
		},
		Cooldown:       60 * time.Second,
		Heartbeat:      60 * time.Second,
		StaleAfter:     5 * time.Minute,
		HistoryLimit:   200,
		MinCandles:     25,
		UpdateBuffer:   256,
		ReportAnalysis: true,
	}
}

// Trade is one simulated execution recorded in the ledger
type Trade struct {
	ID        string    `json:"id"`
	Type      risk.Side `json:"type"`
	Symbol    string    `json:"symbol"`
	Amount    float64   `json:"amount"`
	Price     float64   `json:"price"`
	Total     float64   `json:"total"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// PositionStore persists the open position so it survives restarts
type PositionStore interface {
	GetOpenPosition(ctx context.Context, symbol string) (position.Position, bool, error)
	SavePosition(ctx context.Context, p position.Position) error
	DeletePosition(ctx context.Context, id string) error
}

// TradeLedger records executions
type TradeLedger interface {
	SaveTrade(ctx context.Context, trade Trade) error
}

// TradeHistory returns the whole ledger, oldest first
type TradeHistory interface {
	TradeHistory(ctx context.Context) ([]Trade, error)
}

// StatusStore persists the lifecycle state shown to operators
type StatusStore interface {
	GetBotStatus(ctx context.Context) (Status, string, error)
	SetBotStatus(ctx context.Context, status Status, symbol string) error
}

// ActivityLog records human readable activity (info, trade, warning, error)
type ActivityLog interface {
	LogActivity(ctx context.Context, kind, message string) error
}

// Notifier delivers best-effort operator alerts. Implementations must not block.
type Notifier interface {
	NotifyTradeOpened(symbol string, price, quantity float64)
	NotifyTradeClosed(symbol string, entryPrice, exitPrice, pnl, pnlPercent float64, reason string)
	NotifyAnalysis(report notification.AnalysisReport)
}

func (c Config) positionConfig() position.Config {
	pc := position.DefaultConfig()
	if c.Risk.StopLossPercent > 0 {
		pc.StopLossPercent = c.Risk.StopLossPercent
	}
	if c.Risk.TakeProfitPercent > 0 {
		pc.TakeProfitPercent = c.Risk.TakeProfitPercent
	}
	return pc
}

func (c Config) sizerConfig() risk.SizerConfig {
	return risk.SizerConfig{
		MaxTradeBalancePercent: c.Risk.MaxTradeBalancePercent,
		RandomSizing:           c.RandomSizing,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Symbol == "" {
		c.Symbol = def.Symbol
	}
	if c.Interval == "" {
		c.Interval = def.Interval
	}
	if c.Risk.MaxTradeBalancePercent <= 0 {
		c.Risk.MaxTradeBalancePercent = def.Risk.MaxTradeBalancePercent
	}
	if c.Cooldown < 0 {
		c.Cooldown = 0
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = def.Heartbeat
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = def.HistoryLimit
	}
	if c.MinCandles <= 0 {
		c.MinCandles = def.MinCandles
	}
	if c.UpdateBuffer <= 0 {
		c.UpdateBuffer = def.UpdateBuffer
	}
	return c
}
