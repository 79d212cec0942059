package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"cryptosim-bot/internal/bot"
	"cryptosim-bot/internal/commands"
	"cryptosim-bot/internal/position"
	"cryptosim-bot/internal/risk"
)

const (
	portfolioID = 1
	botStatusID = 1
)

// LogEntry is one row of the activity log
type LogEntry struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository provides data access methods for every bot store
type Repository struct {
	db     *DB
	logger zerolog.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db, logger: db.logger}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// BALANCE
// ============================================================================

// GetBalance returns the simulated quote balance
func (r *Repository) GetBalance(ctx context.Context) (float64, error) {
	var balance float64
	err := r.db.Pool.QueryRow(ctx, `SELECT usdt_balance FROM portfolios WHERE id = $1`, portfolioID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// UpdateBalance overwrites the simulated quote balance
func (r *Repository) UpdateBalance(ctx context.Context, balance float64) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO portfolios (id, usdt_balance, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET usdt_balance = EXCLUDED.usdt_balance, updated_at = NOW()
	`, portfolioID, balance)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

// ============================================================================
// POSITIONS
// ============================================================================

// GetOpenPosition returns the OPEN position for symbol, if any
func (r *Repository) GetOpenPosition(ctx context.Context, symbol string) (position.Position, bool, error) {
	query := `
		SELECT id::text, symbol, amount, entry_price, entry_time, stop_loss_pct, take_profit_pct, highest_price, status
		FROM positions
		WHERE symbol = $1 AND status = 'OPEN'
	`
	var p position.Position
	var status string
	err := r.db.Pool.QueryRow(ctx, query, symbol).Scan(
		&p.ID, &p.Symbol, &p.Amount, &p.EntryPrice, &p.EntryTime,
		&p.StopLossPct, &p.TakeProfitPct, &p.HighestPrice, &status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return position.Position{}, false, nil
	}
	if err != nil {
		return position.Position{}, false, fmt.Errorf("failed to get open position: %w", err)
	}
	p.Status = position.Status(status)
	return p, true, nil
}

// SavePosition inserts or updates a position
func (r *Repository) SavePosition(ctx context.Context, p position.Position) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO positions (id, symbol, amount, entry_price, entry_time, stop_loss_pct, take_profit_pct, highest_price, status, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			amount = EXCLUDED.amount,
			highest_price = EXCLUDED.highest_price,
			status = EXCLUDED.status,
			updated_at = NOW()
	`, p.ID, p.Symbol, p.Amount, p.EntryPrice, p.EntryTime, p.StopLossPct, p.TakeProfitPct, p.HighestPrice, string(p.Status))
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// DeletePosition removes a closed position
func (r *Repository) DeletePosition(ctx context.Context, id string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM positions WHERE id = $1::uuid`, id); err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

// ============================================================================
// TRADES
// ============================================================================

// SaveTrade appends a trade to the ledger
func (r *Repository) SaveTrade(ctx context.Context, trade bot.Trade) error {
	if trade.ID == "" {
		trade.ID = uuid.New().String()
	}
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now()
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO bot_trades (id, type, symbol, amount, price, total, reason, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)
	`, trade.ID, string(trade.Type), trade.Symbol, trade.Amount, trade.Price, trade.Total, trade.Reason, trade.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// ListTrades returns the most recent trades first
func (r *Repository) ListTrades(ctx context.Context, limit int) ([]bot.Trade, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text, type, symbol, amount, price, total, COALESCE(reason, ''), created_at
		FROM bot_trades
		ORDER BY created_at DESC
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return scanTrades(rows)
}

// TradeHistory returns the whole ledger, oldest first
func (r *Repository) TradeHistory(ctx context.Context) ([]bot.Trade, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text, type, symbol, amount, price, total, COALESCE(reason, ''), created_at
		FROM bot_trades
		ORDER BY created_at ASC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load trade history: %w", err)
	}
	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]bot.Trade, error) {
	defer rows.Close()

	var trades []bot.Trade
	for rows.Next() {
		var t bot.Trade
		var side string
		if err := rows.Scan(&t.ID, &side, &t.Symbol, &t.Amount, &t.Price, &t.Total, &t.Reason, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Type = risk.Side(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ============================================================================
// BOT STATUS
// ============================================================================

// GetBotStatus returns the persisted lifecycle state
func (r *Repository) GetBotStatus(ctx context.Context) (bot.Status, string, error) {
	var status string
	var symbol *string
	err := r.db.Pool.QueryRow(ctx, `SELECT status, symbol FROM bot_status WHERE id = $1`, botStatusID).Scan(&status, &symbol)
	if errors.Is(err, pgx.ErrNoRows) {
		return bot.StatusIdle, "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to get bot status: %w", err)
	}
	if symbol == nil {
		return bot.Status(status), "", nil
	}
	return bot.Status(status), *symbol, nil
}

// SetBotStatus persists the lifecycle state
func (r *Repository) SetBotStatus(ctx context.Context, status bot.Status, symbol string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO bot_status (id, status, symbol, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, symbol = EXCLUDED.symbol, updated_at = NOW()
	`, botStatusID, string(status), symbol)
	if err != nil {
		return fmt.Errorf("failed to update bot status: %w", err)
	}
	return nil
}

// ============================================================================
// ACTIVITY LOG
// ============================================================================

// LogActivity appends an activity log entry
func (r *Repository) LogActivity(ctx context.Context, kind, message string) error {
	if _, err := r.db.Pool.Exec(ctx, `INSERT INTO bot_logs (type, message) VALUES ($1, $2)`, kind, message); err != nil {
		return fmt.Errorf("failed to save log: %w", err)
	}
	return nil
}

// ListLogs returns the most recent activity first
func (r *Repository) ListLogs(ctx context.Context, limit int) ([]LogEntry, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, type, message, created_at FROM bot_logs ORDER BY created_at DESC, id DESC LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.Type, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ============================================================================
// COMMANDS
// ============================================================================

// EnqueueCommand stores a new operator command
func (r *Repository) EnqueueCommand(ctx context.Context, cmd commands.Command) (commands.Command, error) {
	if err := cmd.Validate(); err != nil {
		return commands.Command{}, err
	}
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	cmd.Processed = false
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO bot_commands (id, command, symbol) VALUES ($1::uuid, $2, NULLIF($3, ''))
		RETURNING created_at
	`, cmd.ID, string(cmd.Command), cmd.Symbol).Scan(&cmd.CreatedAt)
	if err != nil {
		return commands.Command{}, fmt.Errorf("failed to enqueue command: %w", err)
	}
	return cmd, nil
}

// PendingCommands returns unprocessed commands oldest first
func (r *Repository) PendingCommands(ctx context.Context) ([]commands.Command, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text, command, COALESCE(symbol, ''), processed, created_at
		FROM bot_commands
		WHERE processed = FALSE
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch commands: %w", err)
	}
	defer rows.Close()

	var pending []commands.Command
	for rows.Next() {
		var c commands.Command
		var kind string
		if err := rows.Scan(&c.ID, &kind, &c.Symbol, &c.Processed, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		c.Command = commands.Kind(kind)
		pending = append(pending, c)
	}
	return pending, rows.Err()
}

// MarkCommandProcessed flags a command as handled
func (r *Repository) MarkCommandProcessed(ctx context.Context, id string) error {
	if _, err := r.db.Pool.Exec(ctx, `UPDATE bot_commands SET processed = TRUE WHERE id = $1::uuid`, id); err != nil {
		return fmt.Errorf("failed to mark command processed: %w", err)
	}
	return nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	}
	return limit
}
