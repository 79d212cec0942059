package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptosim-bot/internal/account"
	"cryptosim-bot/internal/logging"
	"cryptosim-bot/internal/notification"
	"cryptosim-bot/internal/position"
	"cryptosim-bot/internal/risk"
	"cryptosim-bot/internal/strategy"
)

// openLocked sizes and executes a BUY: debit, open, persist, record
func (c *Controller) openLocked(ctx context.Context, price float64, result strategy.Result, now time.Time) {
	decision, err := c.sizer.Size(risk.SizeRequest{
		Side:    risk.SideBuy,
		Amount:  c.cfg.BaseTradeAmount,
		Price:   price,
		Balance: c.account.Balance(),
	})
	if err != nil {
		c.rejectLocked(risk.SideBuy, err, true)
		return
	}

	log := logging.TradeContext(c.logger, c.symbol, string(risk.SideBuy), decision.Quantity, price)
	if decision.Capped {
		log.Warn().
			Float64("requested", c.cfg.BaseTradeAmount).
			Float64("value", decision.Value).
			Msg("Trade adjusted to risk limit")
		c.logActivityLocked(ctx, "warning", fmt.Sprintf("📉 Adjusted trade to risk limit: %.4f %s", decision.Quantity, c.symbol))
	}

	balance, err := c.account.Debit(ctx, decision.Value)
	switch {
	case errors.Is(err, account.ErrBalanceNotPersisted):
		c.recordGapLocked(ctx, "update balance", err)
	case err != nil:
		c.rejectLocked(risk.SideBuy, err, true)
		return
	}

	pos, err := c.positions.Open(c.symbol, decision.Quantity, price, now)
	if err != nil {
		if _, cerr := c.account.Credit(ctx, decision.Value); cerr != nil {
			c.recordGapLocked(ctx, "refund balance", cerr)
		}
		c.rejectLocked(risk.SideBuy, err, true)
		return
	}

	reason := fmt.Sprintf("%s signal (%.1f%%)", result.Name, result.Confidence)
	log.Info().
		Str("position_id", pos.ID).
		Float64("value", decision.Value).
		Float64("balance", balance).
		Str("reason", reason).
		Msg("Executing BUY")
	c.logActivityLocked(ctx, "trade", fmt.Sprintf("⚡ EXECUTING: BUY %.4f @ %.2f (%s)", decision.Quantity, price, reason))

	if c.posStore != nil {
		if err := c.posStore.SavePosition(ctx, pos); err != nil {
			c.recordGapLocked(ctx, "save position", err)
		}
	}
	c.recordTradeLocked(ctx, Trade{
		Type:      risk.SideBuy,
		Symbol:    c.symbol,
		Amount:    decision.Quantity,
		Price:     price,
		Total:     decision.Value,
		Reason:    reason,
		CreatedAt: now,
	})

	if c.eventBus != nil {
		c.eventBus.PublishTradeOpened(c.symbol, pos.ID, price, decision.Quantity)
		c.eventBus.PublishBalanceUpdate(balance)
	}
	if c.notifier != nil {
		c.notifier.NotifyTradeOpened(c.symbol, price, decision.Quantity)
	}
}

// closeLocked realises the open position: close, credit, delete, record
func (c *Controller) closeLocked(ctx context.Context, price float64, reason position.ExitReason, now time.Time) error {
	open, ok := c.positions.Get(c.symbol)
	if !ok {
		c.rejectLocked(risk.SideSell, position.ErrNoOpenPosition, false)
		return position.ErrNoOpenPosition
	}

	decision, err := c.sizer.Size(risk.SizeRequest{
		Side:    risk.SideSell,
		Amount:  open.Amount,
		Price:   price,
		Balance: c.account.Balance(),
	})
	if err != nil {
		c.rejectLocked(risk.SideSell, err, true)
		return err
	}

	closed, err := c.positions.Close(c.symbol, price, now, reason)
	if err != nil {
		c.rejectLocked(risk.SideSell, err, true)
		return err
	}

	balance, err := c.account.Credit(ctx, decision.Value)
	if err != nil {
		c.recordGapLocked(ctx, "update balance", err)
	}

	profit, profitPct := derefOr(closed.Profit), derefOr(closed.ProfitPercent)
	log := logging.PositionContext(c.logger, c.symbol, closed.ID, closed.EntryPrice, closed.Amount)
	log.Info().
		Float64("exit_price", price).
		Float64("profit", profit).
		Float64("profit_percent", profitPct).
		Str("reason", string(reason)).
		Float64("balance", balance).
		Msg("Executing SELL")
	c.logActivityLocked(ctx, "trade", fmt.Sprintf("⚡ EXECUTING: SELL %.4f @ %.2f (%s)", closed.Amount, price, reason))

	if c.posStore != nil {
		if err := c.posStore.DeletePosition(ctx, closed.ID); err != nil {
			c.recordGapLocked(ctx, "delete position", err)
		}
	}
	c.recordTradeLocked(ctx, Trade{
		Type:      risk.SideSell,
		Symbol:    c.symbol,
		Amount:    closed.Amount,
		Price:     price,
		Total:     decision.Value,
		Reason:    string(reason),
		CreatedAt: now,
	})

	if c.eventBus != nil {
		c.eventBus.PublishTradeClosed(c.symbol, closed.ID, string(reason), closed.EntryPrice, price, closed.Amount, profit, profitPct)
		c.eventBus.PublishBalanceUpdate(balance)
	}
	if c.notifier != nil {
		c.notifier.NotifyTradeClosed(c.symbol, closed.EntryPrice, price, profit, profitPct, string(reason))
	}
	return nil
}

// recordTradeLocked counts the execution, starts the cooldown and writes the ledger
func (c *Controller) recordTradeLocked(ctx context.Context, trade Trade) {
	c.tradesCount++
	c.lastTrade[trade.Symbol] = trade.CreatedAt
	if c.ledger == nil {
		return
	}
	if err := c.ledger.SaveTrade(ctx, trade); err != nil {
		c.recordGapLocked(ctx, "save trade", err)
	}
}

// persistPeakLocked saves the open position after its peak moved up so the
// trailing stop survives a restart
func (c *Controller) persistPeakLocked(ctx context.Context) {
	if c.posStore == nil {
		return
	}
	p, ok := c.positions.Get(c.symbol)
	if !ok {
		return
	}
	if err := c.posStore.SavePosition(ctx, p); err != nil {
		c.recordGapLocked(ctx, "save position peak", err)
	}
}

// rejectLocked counts a trade that did not happen. Sizing and limit
// rejections are published; routine no-ops are logged at debug level.
func (c *Controller) rejectLocked(side risk.Side, err error, publish bool) {
	c.rejections++
	if !publish {
		c.logger.Debug().Str("symbol", c.symbol).Str("side", string(side)).Err(err).Msg("Trade rejected")
		return
	}
	c.logger.Warn().Str("symbol", c.symbol).Str("side", string(side)).Err(err).Msg("Trade rejected")
	if c.eventBus != nil {
		c.eventBus.PublishTradeRejected(c.symbol, string(side), err.Error())
	}
}

// recordGapLocked notes a store write that failed. In-memory state stays
// authoritative.
func (c *Controller) recordGapLocked(ctx context.Context, op string, err error) {
	c.gaps++
	c.logger.Error().Err(err).Str("operation", op).Int("durability_gaps", c.gaps).Msg("Store operation failed")
	if c.eventBus != nil {
		c.eventBus.PublishError("bot", op, err)
	}
	c.logActivityLocked(ctx, "error", fmt.Sprintf("❌ %s failed: %v", op, err))
}

func (c *Controller) logActivityLocked(ctx context.Context, kind, message string) {
	if c.activity == nil {
		return
	}
	if err := c.activity.LogActivity(ctx, kind, message); err != nil {
		c.gaps++
		c.logger.Error().Err(err).Str("kind", kind).Msg("Failed to save activity log")
	}
}

func (c *Controller) reportLocked(result strategy.Result) notification.AnalysisReport {
	return notification.AnalysisReport{
		Symbol:          c.symbol,
		Signal:          string(result.Signal),
		Score:           result.Confidence,
		TrendScore:      result.TrendScore,
		MomentumScore:   result.MomentumScore,
		VolatilityScore: result.VolatilityScore,
		RSI:             result.Indicators.RSI,
		Price:           result.Indicators.Price,
		Balance:         c.account.Balance(),
	}
}

func derefOr(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
