package risk

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	ErrAmountTooSmall = errors.New("trade amount too small")
	ErrInvalidPrice   = errors.New("invalid price")
)

// Side of a simulated trade
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// RandomSizing draws BUY budgets uniformly from [0, MaxAmount] quote units
type RandomSizing struct {
	Enabled   bool    `json:"enabled"`
	MaxAmount float64 `json:"max_amount"`
}

// SizerConfig holds sizing limits
type SizerConfig struct {
	MaxTradeBalancePercent float64 // Fraction of balance a single BUY may use (0.2 = 20%)
	RandomSizing           RandomSizing
}

// SizeRequest is a requested trade before limits are applied
type SizeRequest struct {
	Side    Side
	Amount  float64 // Base asset quantity requested
	Price   float64
	Balance float64 // Current quote balance
}

// SizeDecision is the balance-safe trade
type SizeDecision struct {
	Quantity float64
	Value    float64
	Capped   bool
	Random   bool
}

// Sizer converts requested trades into balance-safe quantities
type Sizer struct {
	config SizerConfig
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewSizer creates a new sizer
func NewSizer(config SizerConfig) *Sizer {
	return &Sizer{
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Size applies the balance limits to a BUY. SELLs close the whole position
// and are only checked for a positive quantity.
func (s *Sizer) Size(req SizeRequest) (SizeDecision, error) {
	if req.Price <= 0 {
		return SizeDecision{}, fmt.Errorf("%w: %v", ErrInvalidPrice, req.Price)
	}

	if req.Side == SideSell {
		if req.Amount <= 0 {
			return SizeDecision{}, ErrAmountTooSmall
		}
		return SizeDecision{Quantity: req.Amount, Value: req.Amount * req.Price}, nil
	}

	decision := SizeDecision{Quantity: req.Amount}
	if s.config.RandomSizing.Enabled {
		decision.Quantity = s.randomBudget() / req.Price
		decision.Random = true
	}

	totalValue := decision.Quantity * req.Price
	limit := req.Balance * s.config.MaxTradeBalancePercent

	switch {
	case totalValue > req.Balance:
		capValue := req.Balance
		if limit < capValue {
			capValue = limit
		}
		decision.Quantity = capValue / req.Price
		decision.Capped = true
	case totalValue > limit:
		decision.Quantity = limit / req.Price
		decision.Capped = true
	}

	if decision.Quantity <= 0 {
		return SizeDecision{}, ErrAmountTooSmall
	}
	decision.Value = decision.Quantity * req.Price
	return decision, nil
}

func (s *Sizer) randomBudget() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() * s.config.RandomSizing.MaxAmount
}
