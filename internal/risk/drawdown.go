package risk

import (
	"fmt"
	"sync"
)

// DrawdownGuard blocks new entries once realised losses exceed a share of
// the reference balance
type DrawdownGuard struct {
	maxDrawdownPercent float64
	reference          float64
	mu                 sync.RWMutex
}

// NewDrawdownGuard creates a guard. maxDrawdownPercent <= 0 disables it.
func NewDrawdownGuard(maxDrawdownPercent float64) *DrawdownGuard {
	return &DrawdownGuard{maxDrawdownPercent: maxDrawdownPercent}
}

// SetReference sets the balance drawdown is measured against, usually the
// balance at start-up
func (g *DrawdownGuard) SetReference(balance float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reference = balance
}

// CanOpenPosition checks whether a new entry is allowed given realised P/L
func (g *DrawdownGuard) CanOpenPosition(cumulativePnL float64) (bool, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.maxDrawdownPercent <= 0 || g.reference <= 0 || cumulativePnL >= 0 {
		return true, ""
	}

	drawdownPercent := -cumulativePnL / g.reference * 100
	if drawdownPercent >= g.maxDrawdownPercent {
		return false, fmt.Sprintf("drawdown limit reached (%.2f%% >= %.2f%%)", drawdownPercent, g.maxDrawdownPercent)
	}
	return true, ""
}
