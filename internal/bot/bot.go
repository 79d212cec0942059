package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"cryptosim-bot/internal/account"
	"cryptosim-bot/internal/commands"
	"cryptosim-bot/internal/events"
	"cryptosim-bot/internal/market"
	"cryptosim-bot/internal/position"
	"cryptosim-bot/internal/risk"
	"cryptosim-bot/internal/strategy"
)

var ErrNoFeed = errors.New("market feed not configured")

// maxSeenCommands bounds the in-process command id memory. Older ids are
// covered by the processed marker in the command store.
const maxSeenCommands = 1024

// Dependencies are the collaborators the controller drives. Only Feed and
// Account are required.
type Dependencies struct {
	Feed      market.Feed
	Account   *account.Account
	Positions PositionStore
	Ledger    TradeLedger
	History   TradeHistory
	Status    StatusStore
	Activity  ActivityLog
	Notifier  Notifier
	Events    *events.EventBus
	Clock     func() time.Time
}

// State is a snapshot of the controller for the API and tests
type State struct {
	Status               Status              `json:"status"`
	Symbol               string              `json:"symbol"`
	LastSignal           strategy.SignalType `json:"last_signal"`
	LastAnalysis         []strategy.Result   `json:"last_analysis"`
	TradesCount          int                 `json:"trades_count"`
	CumulativeProfitLoss float64             `json:"cumulative_profit_loss"`
	LastTradeTime        *time.Time          `json:"last_trade_time,omitempty"`
	CurrentPosition      *position.Position  `json:"current_position,omitempty"`
	Balance              float64             `json:"balance"`
	Candles              int                 `json:"candles"`
	LastUpdate           *time.Time          `json:"last_update,omitempty"`
	Stale                bool                `json:"stale"`
	DurabilityGaps       int                 `json:"durability_gaps"`
	Rejections           int                 `json:"rejections"`
	DroppedUpdates       int64               `json:"dropped_updates"`
}

type candleUpdate struct {
	symbol string
	candle market.Candle
}

// Controller owns the bot lifecycle. Feed updates and heartbeats are
// funnelled into Run; every state change happens under mu.
type Controller struct {
	mu sync.Mutex

	cfg       Config
	feed      market.Feed
	account   *account.Account
	posStore  PositionStore
	ledger    TradeLedger
	history   TradeHistory
	status    StatusStore
	activity  ActivityLog
	notifier  Notifier
	eventBus  *events.EventBus
	clock     func() time.Time
	evaluator *strategy.Evaluator
	positions *position.Manager
	sizer     *risk.Sizer
	guard     *risk.DrawdownGuard
	series    *market.Series

	state       Status
	symbol      string
	lastResult  *strategy.Result
	tradesCount int
	lastTrade   map[string]time.Time
	lastUpdate  time.Time
	seen        map[string]struct{}
	seenOrder   []string
	gaps        int
	rejections  int
	unsubscribe func()
	streamCtx   context.Context
	updates     chan candleUpdate
	dropped     atomic.Int64
	staleWarned bool

	logger zerolog.Logger
}

// New creates a controller in the IDLE state
func New(cfg Config, deps Dependencies, logger zerolog.Logger) (*Controller, error) {
	if deps.Feed == nil {
		return nil, ErrNoFeed
	}
	if deps.Account == nil {
		return nil, errors.New("account not configured")
	}
	cfg = cfg.withDefaults()
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Controller{
		cfg:       cfg,
		feed:      deps.Feed,
		account:   deps.Account,
		posStore:  deps.Positions,
		ledger:    deps.Ledger,
		history:   deps.History,
		status:    deps.Status,
		activity:  deps.Activity,
		notifier:  deps.Notifier,
		eventBus:  deps.Events,
		clock:     clock,
		evaluator: strategy.NewEvaluator(cfg.MinCandles),
		positions: position.NewManager(cfg.positionConfig(), logger),
		sizer:     risk.NewSizer(cfg.sizerConfig()),
		guard:     risk.NewDrawdownGuard(cfg.Risk.MaxDrawdownPercent),
		series:    market.NewSeries(market.DefaultMaxCandles),
		state:     StatusIdle,
		lastTrade: make(map[string]time.Time),
		seen:      make(map[string]struct{}),
		streamCtx: context.Background(),
		updates:   make(chan candleUpdate, cfg.UpdateBuffer),
		logger:    logger.With().Str("component", "bot").Logger(),
	}, nil
}

// Init loads the balance, subscribes to the configured symbol and
// rehydrates persisted state. ctx bounds the lifetime of feed subscriptions.
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	c.streamCtx = ctx
	c.mu.Unlock()

	balance, err := c.account.Load(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Float64("balance", balance).Msg("Using cached balance")
	}
	c.guard.SetReference(balance)

	return c.Rehydrate(ctx)
}

// Rehydrate rebuilds state from storage: trade count, realised P/L, the
// cooldown clock and the drawdown reference come from the ledger, and the
// OPEN positions of the configured symbol and of the persisted RUNNING
// symbol are restored. It resumes RUNNING when a position was restored or
// the persisted status says RUNNING. Calling it again restores nothing twice.
func (c *Controller) Rehydrate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	configured := normalizeSymbol(c.cfg.Symbol)
	target := c.symbol
	if target == "" {
		target = configured
	}

	resume := false
	if c.status != nil {
		persisted, symbol, err := c.status.GetBotStatus(ctx)
		switch {
		case err != nil:
			c.logger.Warn().Err(err).Msg("Failed to read persisted bot status")
		case persisted == StatusRunning:
			resume = true
			if symbol != "" {
				target = normalizeSymbol(symbol)
			}
		}
	}

	c.rebuildFromLedgerLocked(ctx)

	symbols := []string{target}
	if configured != target {
		symbols = append(symbols, configured)
	}
	restored := make(map[string]bool)
	for _, symbol := range symbols {
		if c.restorePositionLocked(ctx, symbol) {
			restored[symbol] = true
		}
	}
	if !restored[target] && restored[configured] {
		// Manage the position rather than the persisted symbol
		target = configured
	}
	if len(restored) > 0 {
		resume = true
	}
	for symbol := range restored {
		if symbol != target {
			c.logger.Warn().
				Str("symbol", symbol).
				Str("current", target).
				Msg("Restored position is held but not managed until its symbol is current")
		}
	}

	if err := c.switchSymbolLocked(ctx, target); err != nil {
		return err
	}

	if resume {
		return c.startLocked(ctx)
	}
	c.persistStatusLocked(ctx)
	c.logActivityLocked(ctx, "info", "Bot service initialized. Waiting for commands...")
	return nil
}

func (c *Controller) restorePositionLocked(ctx context.Context, symbol string) bool {
	if c.posStore == nil {
		return false
	}
	p, found, err := c.posStore.GetOpenPosition(ctx, symbol)
	switch {
	case err != nil:
		c.recordGapLocked(ctx, "load open position", err)
		return false
	case !found:
		return false
	}
	if err := c.positions.Restore(p); err != nil {
		c.logger.Error().Err(err).Str("position_id", p.ID).Msg("Failed to restore position")
		return false
	}
	if p.EntryTime.After(c.lastTrade[symbol]) {
		c.lastTrade[symbol] = p.EntryTime
	}
	c.logger.Info().
		Str("symbol", symbol).
		Str("position_id", p.ID).
		Float64("entry_price", p.EntryPrice).
		Float64("highest_price", p.HighestPrice).
		Msg("Rehydrated open position")
	return true
}

// rebuildFromLedgerLocked replays the trade ledger. Every balance change is a
// ledger entry, so the starting balance is the current balance minus the net
// cash flow of all trades.
func (c *Controller) rebuildFromLedgerLocked(ctx context.Context) {
	if c.history == nil {
		return
	}
	trades, err := c.history.TradeHistory(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to load trade history; counters start from zero")
		return
	}

	sum := summarizeLedger(trades)
	c.tradesCount = sum.trades
	c.positions.SetRealized(sum.realized, sum.closed)
	for symbol, t := range sum.lastTrade {
		if t.After(c.lastTrade[symbol]) {
			c.lastTrade[symbol] = t
		}
	}
	reference := c.account.Balance() - sum.netCash
	c.guard.SetReference(reference)

	c.logger.Info().
		Int("trades", sum.trades).
		Float64("realized_pnl", sum.realized).
		Float64("drawdown_reference", reference).
		Msg("Rebuilt state from trade ledger")
}

// Start moves IDLE to RUNNING and runs an immediate analysis
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(ctx)
}

func (c *Controller) startLocked(ctx context.Context) error {
	if c.state == StatusRunning {
		return nil
	}
	c.state = StatusRunning
	c.persistStatusLocked(ctx)
	c.logger.Info().Str("symbol", c.symbol).Msg("Bot started")
	c.logActivityLocked(ctx, "success", fmt.Sprintf("🟢 Bot STARTED on %s", c.symbol))
	if c.eventBus != nil {
		c.eventBus.PublishBotStarted(c.symbol)
	}
	c.analyzeLocked(ctx, false)
	return nil
}

// Stop moves RUNNING to IDLE. An open position stays persisted but is not
// risk-managed until the bot is started again.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked(ctx)
}

func (c *Controller) stopLocked(ctx context.Context) error {
	if c.state == StatusIdle {
		return nil
	}
	c.state = StatusIdle
	c.persistStatusLocked(ctx)
	if p, ok := c.positions.Get(c.symbol); ok {
		c.logger.Warn().
			Str("symbol", c.symbol).
			Str("position_id", p.ID).
			Msg("Bot stopped with an open position; exits paused until restart")
	}
	c.logger.Info().Str("symbol", c.symbol).Msg("Bot stopped")
	c.logActivityLocked(ctx, "warning", "🔴 Bot STOPPED")
	if c.eventBus != nil {
		c.eventBus.PublishBotStopped(c.symbol)
	}
	return nil
}

// SwitchSymbol reloads history for symbol and resubscribes
func (c *Controller) SwitchSymbol(ctx context.Context, symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.switchSymbolLocked(ctx, normalizeSymbol(symbol))
}

func (c *Controller) switchSymbolLocked(ctx context.Context, symbol string) error {
	if symbol == "" {
		return errors.New("symbol is required")
	}
	if symbol == c.symbol && c.series.Len() > 0 {
		return nil
	}

	if c.symbol != "" && c.positions.HasOpen(c.symbol) {
		c.logger.Warn().
			Str("from", c.symbol).
			Str("to", symbol).
			Msg("Switching symbol with an open position; it is not managed until switched back")
	}

	history, err := c.feed.FetchHistory(ctx, symbol, c.cfg.Interval, c.cfg.HistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to load history for %s: %w", symbol, err)
	}

	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}

	prev := c.symbol
	c.symbol = symbol
	c.series.Reset(history)
	c.lastUpdate = c.clock()
	c.lastResult = nil
	c.staleWarned = false

	cancel, err := c.feed.Subscribe(c.streamCtx, symbol, c.cfg.Interval, c.enqueue(symbol))
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", symbol, err)
	}
	c.unsubscribe = cancel

	c.logger.Info().Str("symbol", symbol).Int("candles", len(history)).Msg("Symbol loaded")
	c.logActivityLocked(ctx, "info", fmt.Sprintf("Switched to %s. Loaded %d candles.", symbol, len(history)))
	if prev != "" && prev != symbol && c.eventBus != nil {
		c.eventBus.PublishSymbolSwitched(prev, symbol)
	}
	return nil
}

// enqueue returns the feed callback. It never blocks the feed.
func (c *Controller) enqueue(symbol string) func(market.Candle) {
	return func(candle market.Candle) {
		select {
		case c.updates <- candleUpdate{symbol: symbol, candle: candle}:
		default:
			if n := c.dropped.Add(1); n%100 == 1 {
				c.logger.Warn().Int64("dropped", n).Msg("Update buffer full, dropping candle update")
			}
		}
	}
}

// Run processes feed updates and heartbeats until ctx is done
func (c *Controller) Run(ctx context.Context) {
	heartbeat := time.NewTicker(c.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			if c.unsubscribe != nil {
				c.unsubscribe()
				c.unsubscribe = nil
			}
			c.mu.Unlock()
			return
		case u := <-c.updates:
			c.OnCandle(ctx, u.symbol, u.candle)
		case <-heartbeat.C:
			c.Heartbeat(ctx)
		}
	}
}

// OnCandle merges a live update into the series and analyzes when RUNNING.
// Updates for a symbol other than the current one are ignored.
func (c *Controller) OnCandle(ctx context.Context, symbol string, candle market.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if symbol != c.symbol {
		return
	}
	if err := c.series.Apply(candle); err != nil {
		c.logger.Debug().Err(err).Int64("time", candle.Time).Msg("Candle rejected")
		return
	}
	c.lastUpdate = c.clock()
	c.staleWarned = false
	if c.eventBus != nil {
		c.eventBus.PublishPriceUpdate(symbol, candle.Close)
	}
	c.analyzeLocked(ctx, false)
}

// Heartbeat re-runs the analysis independently of the feed and reports it
func (c *Controller) Heartbeat(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatusRunning || c.series.Len() == 0 {
		return
	}
	last, _ := c.series.Last()
	c.logActivityLocked(ctx, "info", fmt.Sprintf("📊 Analyzing %s @ $%.2f...", c.symbol, last.Close))
	c.analyzeLocked(ctx, c.cfg.ReportAnalysis)
}

// Analyze runs one decision cycle. ok is false when the bot is IDLE or the
// window is too short.
func (c *Controller) Analyze(ctx context.Context) (strategy.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.analyzeLocked(ctx, false)
}

func (c *Controller) analyzeLocked(ctx context.Context, report bool) (strategy.Result, bool) {
	if c.state != StatusRunning {
		return strategy.Result{}, false
	}
	candles := c.series.Candles()
	if len(candles) < c.evaluator.MinCandles() {
		c.logger.Debug().Int("candles", len(candles)).Int("required", c.evaluator.MinCandles()).Msg("Not enough candles")
		return strategy.Result{}, false
	}

	now := c.clock()
	price := candles[len(candles)-1].Close

	exited := false
	if p, open := c.positions.Get(c.symbol); open {
		reason, hit := c.positions.CheckRisk(c.symbol, price)
		if c.eventBus != nil {
			c.eventBus.PublishPositionUpdate(c.symbol, p.EntryPrice, price, maxFloat(p.HighestPrice, price),
				p.Amount, p.UnrealizedProfit(price), p.PnLPercent(price))
		}
		if hit {
			exited = c.tryCloseLocked(ctx, price, reason, now)
		}
		if !exited && price > p.HighestPrice {
			c.persistPeakLocked(ctx)
		}
	}

	result := c.evaluator.Evaluate(candles)
	if c.isStaleLocked(now) && result.Signal != strategy.SignalHold {
		if !c.staleWarned {
			c.logger.Warn().
				Str("symbol", c.symbol).
				Time("last_update", c.lastUpdate).
				Msg("Market data is stale, holding")
			c.staleWarned = true
		}
		result.Signal = strategy.SignalHold
	}
	c.lastResult = &result

	if c.eventBus != nil {
		c.eventBus.PublishSignal(result.Name, c.symbol, string(result.Signal), result.Confidence, price)
	}

	if !exited {
		c.actOnSignalLocked(ctx, result, price, now)
	}

	if report && c.notifier != nil {
		c.notifier.NotifyAnalysis(c.reportLocked(result))
	}
	return result, true
}

func (c *Controller) actOnSignalLocked(ctx context.Context, result strategy.Result, price float64, now time.Time) {
	switch result.Signal {
	case strategy.SignalBuy:
		if c.positions.HasOpen(c.symbol) {
			c.rejectLocked(risk.SideBuy, position.ErrPositionExists, false)
			return
		}
		if c.inCooldownLocked(now) {
			c.logger.Debug().Str("symbol", c.symbol).Msg("BUY skipped during cooldown")
			return
		}
		if ok, reason := c.guard.CanOpenPosition(c.positions.CumulativePnL()); !ok {
			c.rejectLocked(risk.SideBuy, errors.New(reason), true)
			return
		}
		c.openLocked(ctx, price, result, now)

	case strategy.SignalSell:
		reason, hit := c.positions.EvaluateExit(c.symbol, price, result.Signal)
		if !hit {
			c.rejectLocked(risk.SideSell, position.ErrNoOpenPosition, false)
			return
		}
		c.tryCloseLocked(ctx, price, reason, now)
	}
}

// tryCloseLocked closes unless the symbol is cooling down
func (c *Controller) tryCloseLocked(ctx context.Context, price float64, reason position.ExitReason, now time.Time) bool {
	if c.inCooldownLocked(now) {
		c.logger.Debug().Str("symbol", c.symbol).Str("reason", string(reason)).Msg("Exit deferred during cooldown")
		return false
	}
	return c.closeLocked(ctx, price, reason, now) == nil
}

func (c *Controller) inCooldownLocked(now time.Time) bool {
	last, ok := c.lastTrade[c.symbol]
	return ok && now.Sub(last) < c.cfg.Cooldown
}

func (c *Controller) isStaleLocked(now time.Time) bool {
	return c.cfg.StaleAfter > 0 && !c.lastUpdate.IsZero() && now.Sub(c.lastUpdate) > c.cfg.StaleAfter
}

// HandleCommand applies a start/stop command once. Processed commands and
// ids already applied are ignored. A command that fails is not remembered,
// so a redelivery can apply it.
func (c *Controller) HandleCommand(ctx context.Context, cmd commands.Command) (bool, error) {
	if cmd.Processed {
		return false, nil
	}
	if err := cmd.Validate(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[cmd.ID]; ok && cmd.ID != "" {
		return false, nil
	}

	switch cmd.Command {
	case commands.KindStart:
		c.logActivityLocked(ctx, "info", "📩 Command received: START")
		if cmd.Symbol != "" {
			if err := c.switchSymbolLocked(ctx, cmd.Symbol); err != nil {
				return false, err
			}
		}
		if err := c.startLocked(ctx); err != nil {
			return false, err
		}
	case commands.KindStop:
		if err := c.stopLocked(ctx); err != nil {
			return false, err
		}
	}
	c.rememberLocked(cmd.ID)
	return true, nil
}

func (c *Controller) rememberLocked(id string) {
	if id == "" {
		return
	}
	c.seen[id] = struct{}{}
	c.seenOrder = append(c.seenOrder, id)
	if len(c.seenOrder) > maxSeenCommands {
		delete(c.seen, c.seenOrder[0])
		c.seenOrder = c.seenOrder[1:]
	}
}

// State returns a snapshot of the controller
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Status:               c.state,
		Symbol:               c.symbol,
		LastSignal:           strategy.SignalHold,
		TradesCount:          c.tradesCount,
		CumulativeProfitLoss: c.positions.CumulativePnL(),
		Balance:              c.account.Balance(),
		Candles:              c.series.Len(),
		Stale:                c.isStaleLocked(c.clock()),
		DurabilityGaps:       c.gaps,
		Rejections:           c.rejections,
		DroppedUpdates:       c.dropped.Load(),
	}
	if c.lastResult != nil {
		s.LastSignal = c.lastResult.Signal
		s.LastAnalysis = []strategy.Result{*c.lastResult}
	}
	if t, ok := c.lastTrade[c.symbol]; ok {
		s.LastTradeTime = &t
	}
	if !c.lastUpdate.IsZero() {
		t := c.lastUpdate
		s.LastUpdate = &t
	}
	if p, ok := c.positions.Get(c.symbol); ok {
		s.CurrentPosition = &p
	}
	return s
}

// IsRunning reports whether the bot is RUNNING
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StatusRunning
}

// Shutdown marks the bot IDLE in the status store without touching positions
func (c *Controller) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logActivityLocked(ctx, "error", "🛑 Shutting down...")
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.state = StatusIdle
	c.persistStatusLocked(ctx)
}

func (c *Controller) persistStatusLocked(ctx context.Context) {
	if c.status == nil {
		return
	}
	if err := c.status.SetBotStatus(ctx, c.state, c.symbol); err != nil {
		c.recordGapLocked(ctx, "update bot status", err)
	}
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
