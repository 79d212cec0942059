package account

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultBalance is the simulated starting balance in quote currency
const DefaultBalance = 10000.0

var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrBalanceNotPersisted = errors.New("balance change not persisted")
)

// BalanceStore persists the single shared balance counter
type BalanceStore interface {
	GetBalance(ctx context.Context) (float64, error)
	UpdateBalance(ctx context.Context, balance float64) error
}

// Account serializes every read-modify-write of the simulated balance.
// The last known balance stays authoritative when the store is unavailable.
type Account struct {
	mu      sync.Mutex
	store   BalanceStore
	balance decimal.Decimal
	logger  zerolog.Logger
}

// New creates an account starting from initial until the store is read
func New(store BalanceStore, initial float64, logger zerolog.Logger) *Account {
	return &Account{
		store:   store,
		balance: decimal.NewFromFloat(initial),
		logger:  logger.With().Str("component", "account").Logger(),
	}
}

// Load refreshes the cached balance from the store
func (a *Account) Load(ctx context.Context) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	current, err := a.store.GetBalance(ctx)
	if err != nil {
		return a.balance.InexactFloat64(), fmt.Errorf("failed to load balance: %w", err)
	}
	a.balance = decimal.NewFromFloat(current)
	return current, nil
}

// Balance returns the last known balance
func (a *Account) Balance() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance.InexactFloat64()
}

// Debit subtracts amount, failing without side effects if the balance is short
func (a *Account) Debit(ctx context.Context, amount float64) (float64, error) {
	return a.apply(ctx, decimal.NewFromFloat(amount).Neg())
}

// Credit adds amount
func (a *Account) Credit(ctx context.Context, amount float64) (float64, error) {
	return a.apply(ctx, decimal.NewFromFloat(amount))
}

// apply reads the current balance, computes the new one and writes it back
// while holding the account lock. A failed write still updates the cached
// balance and is reported as ErrBalanceNotPersisted.
func (a *Account) apply(ctx context.Context, delta decimal.Decimal) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	current := a.balance
	if stored, err := a.store.GetBalance(ctx); err != nil {
		a.logger.Warn().Err(err).Str("cached_balance", current.String()).Msg("Balance read failed, using cached balance")
	} else {
		current = decimal.NewFromFloat(stored)
	}

	next := current.Add(delta)
	if next.IsNegative() {
		return current.InexactFloat64(), fmt.Errorf("%w: balance %s, change %s", ErrInsufficientFunds, current.String(), delta.String())
	}
	a.balance = next

	newBalance := next.InexactFloat64()
	if err := a.store.UpdateBalance(ctx, newBalance); err != nil {
		a.logger.Error().Err(err).Float64("balance", newBalance).Msg("Balance write failed")
		return newBalance, fmt.Errorf("%w: %v", ErrBalanceNotPersisted, err)
	}

	a.logger.Debug().Str("change", delta.String()).Float64("balance", newBalance).Msg("Balance updated")
	return newBalance, nil
}

// MemoryStore is an in-process BalanceStore
type MemoryStore struct {
	mu      sync.Mutex
	balance float64
}

// NewMemoryStore creates a memory store holding balance
func NewMemoryStore(balance float64) *MemoryStore {
	return &MemoryStore{balance: balance}
}

func (m *MemoryStore) GetBalance(context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}

func (m *MemoryStore) UpdateBalance(_ context.Context, balance float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = balance
	return nil
}
