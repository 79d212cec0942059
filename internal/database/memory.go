package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cryptosim-bot/internal/account"
	"cryptosim-bot/internal/bot"
	"cryptosim-bot/internal/commands"
	"cryptosim-bot/internal/position"
)

// MemoryStore is the in-process stand-in for Repository when no database is
// configured. State is lost on restart.
type MemoryStore struct {
	*account.MemoryStore
	*commands.MemoryQueue

	mu        sync.Mutex
	positions map[string]position.Position
	trades    []bot.Trade
	status    bot.Status
	symbol    string
	logs      []LogEntry
}

// NewMemoryStore creates a memory store seeded with balance
func NewMemoryStore(balance float64) *MemoryStore {
	return &MemoryStore{
		MemoryStore: account.NewMemoryStore(balance),
		MemoryQueue: commands.NewMemoryQueue(),
		positions:   make(map[string]position.Position),
		status:      bot.StatusIdle,
	}
}

func (m *MemoryStore) GetOpenPosition(_ context.Context, symbol string) (position.Position, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.positions {
		if p.Symbol == symbol && p.Status == position.StatusOpen {
			return p, true, nil
		}
	}
	return position.Position{}, false, nil
}

func (m *MemoryStore) SavePosition(_ context.Context, p position.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.ID] = p
	return nil
}

func (m *MemoryStore) DeletePosition(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, id)
	return nil
}

func (m *MemoryStore) SaveTrade(_ context.Context, trade bot.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if trade.ID == "" {
		trade.ID = uuid.New().String()
	}
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now()
	}
	m.trades = append(m.trades, trade)
	return nil
}

// ListTrades returns the most recent trades first
func (m *MemoryStore) ListTrades(_ context.Context, limit int) ([]bot.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	out := make([]bot.Trade, 0, limit)
	for i := len(m.trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.trades[i])
	}
	return out, nil
}

// TradeHistory returns every trade, oldest first
func (m *MemoryStore) TradeHistory(context.Context) ([]bot.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bot.Trade(nil), m.trades...), nil
}

func (m *MemoryStore) GetBotStatus(context.Context) (bot.Status, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.symbol, nil
}

func (m *MemoryStore) SetBotStatus(_ context.Context, status bot.Status, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status, m.symbol = status, symbol
	return nil
}

func (m *MemoryStore) LogActivity(_ context.Context, kind, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, LogEntry{
		ID:        int64(len(m.logs) + 1),
		Type:      kind,
		Message:   message,
		CreatedAt: time.Now(),
	})
	return nil
}

// ListLogs returns the most recent activity first
func (m *MemoryStore) ListLogs(_ context.Context, limit int) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]LogEntry(nil), m.logs...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) HealthCheck(context.Context) error {
	return nil
}
