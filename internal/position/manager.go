package position

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cryptosim-bot/internal/strategy"
)

var (
	ErrPositionExists  = errors.New("position already open for symbol")
	ErrNoOpenPosition  = errors.New("no open position for symbol")
	ErrInvalidPosition = errors.New("invalid position")
)

// Config holds exit thresholds, all in percent
type Config struct {
	StopLossPercent           float64
	TakeProfitPercent         float64
	TrailingActivationPercent float64 // Profit needed before the trailing stop engages
	TrailingDropPercent       float64 // Pullback from peak that fires the trailing stop
}

// DefaultConfig returns the default exit thresholds
func DefaultConfig() Config {
	return Config{
		StopLossPercent:           2.0,
		TakeProfitPercent:         5.0,
		TrailingActivationPercent: 0.5,
		TrailingDropPercent:       0.5,
	}
}

// Manager tracks at most one open position per symbol and decides exits
type Manager struct {
	mu         sync.RWMutex
	positions  map[string]*Position
	config     Config
	cumulative float64
	closed     int
	logger     zerolog.Logger
}

// NewManager creates a new position manager
func NewManager(config Config, logger zerolog.Logger) *Manager {
	return &Manager{
		positions: make(map[string]*Position),
		config:    config,
		logger:    logger.With().Str("component", "position-manager").Logger(),
	}
}

// SetConfig replaces the thresholds used for positions opened from now on
func (m *Manager) SetConfig(config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
}

// Open creates an OPEN position at price. SL/TP are copied from the
// current config so later config changes do not move live exits.
func (m *Manager) Open(symbol string, amount, price float64, at time.Time) (Position, error) {
	if amount <= 0 || price <= 0 {
		return Position{}, fmt.Errorf("%w: amount=%v price=%v", ErrInvalidPosition, amount, price)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.positions[symbol]; exists {
		return Position{}, ErrPositionExists
	}

	pos := &Position{
		ID:            uuid.New().String(),
		Symbol:        symbol,
		Amount:        amount,
		EntryPrice:    price,
		EntryTime:     at,
		StopLossPct:   m.config.StopLossPercent,
		TakeProfitPct: m.config.TakeProfitPercent,
		HighestPrice:  price,
		Status:        StatusOpen,
	}
	m.positions[symbol] = pos

	m.logger.Info().
		Str("symbol", symbol).
		Str("position_id", pos.ID).
		Float64("amount", amount).
		Float64("entry_price", price).
		Float64("stop_loss_price", pos.StopLossPrice()).
		Float64("take_profit_price", pos.TakeProfitPrice()).
		Msg("Position opened")

	return *pos, nil
}

// Restore installs a persisted OPEN position
func (m *Manager) Restore(p Position) error {
	if p.Status != StatusOpen || p.Symbol == "" || p.EntryPrice <= 0 || p.Amount <= 0 {
		return fmt.Errorf("%w: cannot restore %s position %q", ErrInvalidPosition, p.Status, p.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.positions[p.Symbol]; ok {
		if existing.ID == p.ID {
			return nil
		}
		return ErrPositionExists
	}

	if p.HighestPrice < p.EntryPrice {
		p.HighestPrice = p.EntryPrice
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	restored := p
	m.positions[p.Symbol] = &restored

	m.logger.Info().
		Str("symbol", p.Symbol).
		Str("position_id", p.ID).
		Float64("entry_price", p.EntryPrice).
		Float64("highest_price", p.HighestPrice).
		Msg("Position restored")
	return nil
}

// Get returns a copy of the open position for symbol
func (m *Manager) Get(symbol string) (Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

func (m *Manager) HasOpen(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.positions[symbol]
	return ok
}

// OpenPositions returns copies of every open position
func (m *Manager) OpenPositions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// CheckRisk records price against the peak and evaluates the price-driven
// exits in priority order: take-profit, trailing stop, stop-loss.
func (m *Manager) CheckRisk(symbol string, price float64) (ExitReason, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return "", false
	}
	return m.checkRiskLocked(pos, price)
}

func (m *Manager) checkRiskLocked(pos *Position, price float64) (ExitReason, bool) {
	if price > pos.HighestPrice {
		pos.HighestPrice = price
	}

	pnl := pos.PnLPercent(price)
	drop := pos.DropFromPeakPercent(price)

	switch {
	case pnl >= pos.TakeProfitPct:
		return ExitTakeProfit, true
	case pnl >= m.config.TrailingActivationPercent && drop >= m.config.TrailingDropPercent:
		return ExitTrailingStop, true
	case pnl <= -pos.StopLossPct:
		return ExitStopLoss, true
	}
	return "", false
}

// EvaluateExit runs the price-driven exits, then treats a SELL signal as a
// reversal exit.
func (m *Manager) EvaluateExit(symbol string, price float64, signal strategy.SignalType) (ExitReason, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return "", false
	}
	if reason, hit := m.checkRiskLocked(pos, price); hit {
		return reason, true
	}
	if signal == strategy.SignalSell {
		return ExitSignalReversal, true
	}
	return "", false
}

// Close realises the open position at price and removes it from live state
func (m *Manager) Close(symbol string, price float64, at time.Time, reason ExitReason) (Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return Position{}, ErrNoOpenPosition
	}
	delete(m.positions, symbol)

	closed := *pos
	profit := (price - closed.EntryPrice) * closed.Amount
	profitPct := closed.PnLPercent(price)
	exitPrice, exitTime := price, at

	closed.Status = StatusClosed
	closed.ExitPrice = &exitPrice
	closed.ExitTime = &exitTime
	closed.Profit = &profit
	closed.ProfitPercent = &profitPct
	closed.ExitReason = reason

	m.cumulative += profit
	m.closed++

	m.logger.Info().
		Str("symbol", symbol).
		Str("position_id", closed.ID).
		Str("reason", string(reason)).
		Float64("entry_price", closed.EntryPrice).
		Float64("exit_price", price).
		Float64("profit", profit).
		Float64("profit_percent", profitPct).
		Float64("cumulative_pnl", m.cumulative).
		Msg("Position closed")

	return closed, nil
}

// SetRealized replaces the realised totals, used when rebuilding from a ledger
func (m *Manager) SetRealized(cumulative float64, closed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cumulative = cumulative
	m.closed = closed
}

// CumulativePnL returns realised profit and loss across closed positions
func (m *Manager) CumulativePnL() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cumulative
}

// ClosedCount returns how many positions have been closed
func (m *Manager) ClosedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
