package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cryptosim-bot/internal/account"
	"cryptosim-bot/internal/commands"
	"cryptosim-bot/internal/market"
	"cryptosim-bot/internal/notification"
	"cryptosim-bot/internal/position"
	"cryptosim-bot/internal/risk"
	"cryptosim-bot/internal/strategy"
)

const baseTime = int64(1_700_000_040)

func candles(closes []float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{Time: baseTime + int64(i)*60, Open: c, High: c, Low: c, Close: c}
	}
	return out
}

// buyCloses scores 70/70/80 = 73 and ends at 105.6.
func buyCloses() []float64 {
	closes := make([]float64, 0, 43)
	x := 100.0
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			x += 1.0
		} else {
			x -= 0.4
		}
		closes = append(closes, math.Round(x*100)/100)
	}
	return append(closes, 111.0, 111.6, 105.6)
}

// uptrendCloses is a linear rise that evaluates to HOLD.
func uptrendCloses(start float64) []float64 {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = start + float64(i)
	}
	return closes
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeFeed struct {
	mu        sync.Mutex
	history   map[string][]market.Candle
	fetches   []string
	callbacks map[string]func(market.Candle)
	cancelled []string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		history:   make(map[string][]market.Candle),
		callbacks: make(map[string]func(market.Candle)),
	}
}

func (f *fakeFeed) FetchHistory(_ context.Context, symbol, _ string, _ int) ([]market.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, symbol)
	h, ok := f.history[symbol]
	if !ok {
		return nil, fmt.Errorf("no history for %s", symbol)
	}
	return append([]market.Candle(nil), h...), nil
}

func (f *fakeFeed) Subscribe(_ context.Context, symbol, _ string, onCandle func(market.Candle)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks[symbol] = onCandle
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancelled = append(f.cancelled, symbol)
	}, nil
}

func (f *fakeFeed) emit(symbol string, c market.Candle) {
	f.mu.Lock()
	cb := f.callbacks[symbol]
	f.mu.Unlock()
	cb(c)
}

// memStore implements every bot store in memory
type memStore struct {
	mu        sync.Mutex
	positions map[string]position.Position
	trades    []Trade
	status    Status
	symbol    string
	logs      []string
	saveErr   error
}

func newMemStore() *memStore {
	return &memStore{positions: make(map[string]position.Position), status: StatusIdle}
}

func (m *memStore) GetOpenPosition(_ context.Context, symbol string) (position.Position, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.positions {
		if p.Symbol == symbol && p.Status == position.StatusOpen {
			return p, true, nil
		}
	}
	return position.Position{}, false, nil
}

func (m *memStore) SavePosition(_ context.Context, p position.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.positions[p.ID] = p
	return nil
}

func (m *memStore) DeletePosition(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, id)
	return nil
}

func (m *memStore) SaveTrade(_ context.Context, trade Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trade)
	return nil
}

func (m *memStore) TradeHistory(context.Context) ([]Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Trade(nil), m.trades...), nil
}

func (m *memStore) GetBotStatus(context.Context) (Status, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.symbol, nil
}

func (m *memStore) SetBotStatus(_ context.Context, status Status, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status, m.symbol = status, symbol
	return nil
}

func (m *memStore) LogActivity(_ context.Context, kind, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, kind+": "+message)
	return nil
}

func (m *memStore) tradeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trades)
}

type recordingNotifier struct {
	mu       sync.Mutex
	opened   int
	closed   []string
	analyses []notification.AnalysisReport
}

func (n *recordingNotifier) NotifyTradeOpened(string, float64, float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.opened++
}

func (n *recordingNotifier) NotifyTradeClosed(_ string, _, _, _, _ float64, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = append(n.closed, reason)
}

func (n *recordingNotifier) NotifyAnalysis(report notification.AnalysisReport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.analyses = append(n.analyses, report)
}

type harness struct {
	ctrl     *Controller
	feed     *fakeFeed
	store    *memStore
	balances *account.MemoryStore
	notifier *recordingNotifier
	clock    *fakeClock
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		feed:     newFakeFeed(),
		store:    newMemStore(),
		balances: account.NewMemoryStore(account.DefaultBalance),
		notifier: &recordingNotifier{},
		clock:    &fakeClock{t: time.Unix(baseTime+43*60, 0)},
	}
	h.feed.history["BTC"] = candles(buyCloses())
	h.feed.history["ETH"] = candles(uptrendCloses(3000))
	h.ctrl = h.newController(t, cfg)
	return h
}

// newController builds a controller over the harness stores, as a process
// restart would
func (h *harness) newController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	ctrl, err := New(cfg, Dependencies{
		Feed:      h.feed,
		Account:   account.New(h.balances, account.DefaultBalance, zerolog.Nop()),
		Positions: h.store,
		Ledger:    h.store,
		History:   h.store,
		Status:    h.store,
		Activity:  h.store,
		Notifier:  h.notifier,
		Clock:     h.clock.Now,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ctrl
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestNewRequiresFeed(t *testing.T) {
	_, err := New(DefaultConfig(), Dependencies{}, zerolog.Nop())
	if !errors.Is(err, ErrNoFeed) {
		t.Fatalf("err = %v, want ErrNoFeed", err)
	}
}

func TestBuyThenTakeProfit(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if h.ctrl.IsRunning() {
		t.Fatal("bot should start IDLE")
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	st := h.ctrl.State()
	if st.LastSignal != strategy.SignalBuy || len(st.LastAnalysis) != 1 || !approx(st.LastAnalysis[0].Confidence, 73) {
		t.Fatalf("analysis = %s %+v, want BUY at 73", st.LastSignal, st.LastAnalysis)
	}
	if st.CurrentPosition == nil {
		t.Fatal("expected an open position after BUY")
	}
	p := *st.CurrentPosition
	if p.EntryPrice != 105.6 || p.Amount != 0.001 || p.HighestPrice != 105.6 {
		t.Errorf("unexpected position %+v", p)
	}
	if _, found, _ := h.store.GetOpenPosition(ctx, "BTC"); !found {
		t.Error("open position was not persisted")
	}
	if st.TradesCount != 1 || h.store.tradeCount() != 1 {
		t.Errorf("trades = %d/%d, want 1", st.TradesCount, h.store.tradeCount())
	}
	if !approx(st.Balance, 10000-0.1056) {
		t.Errorf("balance = %v, want %v", st.Balance, 10000-0.1056)
	}
	if h.store.status != StatusRunning {
		t.Errorf("persisted status = %s, want RUNNING", h.store.status)
	}

	h.clock.Advance(61 * time.Second)
	h.ctrl.OnCandle(ctx, "BTC", market.Candle{Time: baseTime + 43*60, Open: 105.6, High: 111, Low: 105.6, Close: 111})

	st = h.ctrl.State()
	if st.CurrentPosition != nil {
		t.Fatalf("position still open: %+v", st.CurrentPosition)
	}
	if st.CumulativeProfitLoss <= 0 || !approx(st.CumulativeProfitLoss, (111-105.6)*0.001) {
		t.Errorf("cumulative P/L = %v, want %v", st.CumulativeProfitLoss, (111-105.6)*0.001)
	}
	if _, found, _ := h.store.GetOpenPosition(ctx, "BTC"); found {
		t.Error("closed position still persisted")
	}
	if h.store.tradeCount() != 2 {
		t.Fatalf("ledger has %d trades, want 2", h.store.tradeCount())
	}
	sell := h.store.trades[1]
	if sell.Type != risk.SideSell || sell.Reason != string(position.ExitTakeProfit) || sell.Price != 111 {
		t.Errorf("unexpected SELL trade %+v", sell)
	}
	if !approx(st.Balance, 10000-0.1056+0.111) {
		t.Errorf("balance = %v, want %v", st.Balance, 10000-0.1056+0.111)
	}
	if got, _ := h.balances.GetBalance(ctx); !approx(got, st.Balance) {
		t.Errorf("stored balance = %v, want %v", got, st.Balance)
	}
	if h.notifier.opened != 1 || len(h.notifier.closed) != 1 {
		t.Errorf("notifications opened=%d closed=%v", h.notifier.opened, h.notifier.closed)
	}
}

func TestAnalyzeIsNoopWhenIdle(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, ok := h.ctrl.Analyze(ctx); ok {
		t.Error("Analyze should not run while IDLE")
	}
	if h.store.tradeCount() != 0 {
		t.Errorf("IDLE bot traded %d times", h.store.tradeCount())
	}
}

func TestAnalyzeNeedsMinimumWindow(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.feed.history["BTC"] = candles(buyCloses()[:20])
	ctx := context.Background()
	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, ok := h.ctrl.Analyze(ctx); ok {
		t.Error("Analyze should not run with 20 candles")
	}
	if h.ctrl.State().CurrentPosition != nil {
		t.Error("position opened on a short window")
	}
}

func TestCooldownDefersExit(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.clock.Advance(10 * time.Second)
	h.ctrl.OnCandle(ctx, "BTC", market.Candle{Time: baseTime + 43*60, Open: 105.6, High: 111, Low: 105.6, Close: 111})
	if h.ctrl.State().CurrentPosition == nil {
		t.Fatal("take profit fired inside the cooldown")
	}

	h.clock.Advance(60 * time.Second)
	if _, ok := h.ctrl.Analyze(ctx); !ok {
		t.Fatal("Analyze did not run")
	}
	if h.ctrl.State().CurrentPosition != nil {
		t.Error("take profit should fire once the cooldown has passed")
	}
}

func TestStopPausesRiskChecks(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	h.clock.Advance(2 * time.Minute)
	h.ctrl.OnCandle(ctx, "BTC", market.Candle{Time: baseTime + 43*60, Open: 105.6, High: 111, Low: 105.6, Close: 111})

	st := h.ctrl.State()
	if st.Status != StatusIdle {
		t.Errorf("status = %s, want IDLE", st.Status)
	}
	if st.CurrentPosition == nil {
		t.Fatal("Stop must leave the position in place")
	}
	if _, found, _ := h.store.GetOpenPosition(ctx, "BTC"); !found {
		t.Error("Stop must not delete the persisted position")
	}
	if h.store.status != StatusIdle {
		t.Errorf("persisted status = %s, want IDLE", h.store.status)
	}
}

func TestStaleFeedForcesHold(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	h.clock.Advance(10 * time.Minute)
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	st := h.ctrl.State()
	if !st.Stale || st.LastSignal != strategy.SignalHold {
		t.Errorf("stale=%v signal=%s, want stale HOLD", st.Stale, st.LastSignal)
	}
	if st.CurrentPosition != nil {
		t.Error("stale data must not open a position")
	}
}

func TestRiskCapLimitsBuy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseTradeAmount = 1000
	h := newHarness(t, cfg)
	ctx := context.Background()
	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	st := h.ctrl.State()
	if st.CurrentPosition == nil {
		t.Fatal("expected a capped BUY")
	}
	if want := 2000 / 105.6; !approx(st.CurrentPosition.Amount, want) {
		t.Errorf("amount = %v, want %v", st.CurrentPosition.Amount, want)
	}
	if !approx(st.Balance, 8000) {
		t.Errorf("balance = %v, want 8000", st.Balance)
	}
}

func TestHandleCommandIdempotent(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	tests := []struct {
		name    string
		cmd     commands.Command
		handled bool
		running bool
	}{
		{"start", commands.Command{ID: "c1", Command: commands.KindStart}, true, true},
		{"redelivered start", commands.Command{ID: "c1", Command: commands.KindStart}, false, true},
		{"already processed stop", commands.Command{ID: "c2", Command: commands.KindStop, Processed: true}, false, true},
		{"stop", commands.Command{ID: "c3", Command: commands.KindStop}, true, false},
		{"redelivered stop after restart", commands.Command{ID: "c3", Command: commands.KindStop}, false, false},
	}
	for _, tt := range tests {
		handled, err := h.ctrl.HandleCommand(ctx, tt.cmd)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if handled != tt.handled || h.ctrl.IsRunning() != tt.running {
			t.Errorf("%s: handled=%v running=%v, want %v/%v", tt.name, handled, h.ctrl.IsRunning(), tt.handled, tt.running)
		}
	}
	if h.store.tradeCount() != 1 {
		t.Errorf("duplicate start must not trade twice, got %d trades", h.store.tradeCount())
	}

	if _, err := h.ctrl.HandleCommand(ctx, commands.Command{ID: "c4", Command: "restart"}); !errors.Is(err, commands.ErrUnknownCommand) {
		t.Errorf("err = %v, want ErrUnknownCommand", err)
	}
}

func TestStartCommandSwitchesSymbol(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	handled, err := h.ctrl.HandleCommand(ctx, commands.Command{ID: "s1", Command: commands.KindStart, Symbol: "eth"})
	if err != nil || !handled {
		t.Fatalf("handled=%v err=%v", handled, err)
	}

	st := h.ctrl.State()
	if st.Symbol != "ETH" || st.Status != StatusRunning || st.Candles != 40 {
		t.Errorf("state = %s/%s/%d candles, want ETH/RUNNING/40", st.Symbol, st.Status, st.Candles)
	}
	if len(h.feed.cancelled) != 1 || h.feed.cancelled[0] != "BTC" {
		t.Errorf("cancelled = %v, want [BTC]", h.feed.cancelled)
	}
	if h.store.symbol != "ETH" {
		t.Errorf("persisted symbol = %s, want ETH", h.store.symbol)
	}

	// Late updates from the old subscription are ignored.
	h.ctrl.OnCandle(ctx, "BTC", market.Candle{Time: baseTime + 43*60, Close: 1})
	if h.ctrl.State().Candles != 40 {
		t.Error("update for the previous symbol was applied")
	}

	if _, err := h.ctrl.HandleCommand(ctx, commands.Command{ID: "s2", Command: commands.KindStart, Symbol: "DOGE"}); err == nil {
		t.Error("expected an error switching to a symbol without history")
	}
	if h.ctrl.State().Symbol != "ETH" {
		t.Error("failed switch must keep the current symbol")
	}

	// A failed command is not remembered, so its redelivery applies
	h.feed.history["DOGE"] = candles(uptrendCloses(1))
	handled, err = h.ctrl.HandleCommand(ctx, commands.Command{ID: "s2", Command: commands.KindStart, Symbol: "DOGE"})
	if err != nil || !handled {
		t.Fatalf("redelivered s2: handled=%v err=%v", handled, err)
	}
	if h.ctrl.State().Symbol != "DOGE" {
		t.Errorf("symbol = %s, want DOGE", h.ctrl.State().Symbol)
	}
}

func TestCommandMemoryIsBounded(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for i := 0; i < maxSeenCommands+10; i++ {
		kind := commands.KindStop
		if i%2 == 0 {
			kind = commands.KindStart
		}
		if _, err := h.ctrl.HandleCommand(ctx, commands.Command{ID: fmt.Sprintf("cmd-%d", i), Command: kind}); err != nil {
			t.Fatalf("command %d: %v", i, err)
		}
	}
	if n := len(h.ctrl.seen); n != maxSeenCommands || len(h.ctrl.seenOrder) != maxSeenCommands {
		t.Errorf("remembered %d/%d ids, want %d", n, len(h.ctrl.seenOrder), maxSeenCommands)
	}
	if _, ok := h.ctrl.seen["cmd-0"]; ok {
		t.Error("oldest id should have been forgotten")
	}
}

func TestRehydrateRestoresOpenPositionOnce(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.feed.history["BTC"] = candles(uptrendCloses(100))
	persisted := position.Position{
		ID:            "pos-1",
		Symbol:        "BTC",
		Amount:        0.5,
		EntryPrice:    139,
		EntryTime:     time.Unix(baseTime, 0),
		StopLossPct:   2,
		TakeProfitPct: 5,
		HighestPrice:  139,
		Status:        position.StatusOpen,
	}
	ctx := context.Background()
	if err := h.store.SavePosition(ctx, persisted); err != nil {
		t.Fatal(err)
	}

	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := h.ctrl.Rehydrate(ctx); err != nil {
		t.Fatalf("second Rehydrate: %v", err)
	}

	st := h.ctrl.State()
	if st.Status != StatusRunning {
		t.Errorf("status = %s, want RUNNING after rehydration", st.Status)
	}
	if st.CurrentPosition == nil || st.CurrentPosition.ID != "pos-1" {
		t.Fatalf("current position = %+v, want pos-1", st.CurrentPosition)
	}
	if n := len(h.ctrl.positions.OpenPositions()); n != 1 {
		t.Errorf("open positions = %d, want 1", n)
	}
	if h.store.tradeCount() != 0 {
		t.Errorf("rehydration traded %d times", h.store.tradeCount())
	}
}

func TestRehydrateResumesPersistedRunningStatus(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.store.status, h.store.symbol = StatusRunning, "ETH"
	ctx := context.Background()

	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	st := h.ctrl.State()
	if st.Status != StatusRunning || st.Symbol != "ETH" {
		t.Errorf("state = %s/%s, want RUNNING/ETH", st.Status, st.Symbol)
	}
}

func TestRehydrateChecksConfiguredSymbol(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.feed.history["BTC"] = candles(uptrendCloses(100))
	h.store.status, h.store.symbol = StatusRunning, "ETH"
	ctx := context.Background()
	_ = h.store.SavePosition(ctx, position.Position{
		ID: "btc-1", Symbol: "BTC", Amount: 0.5, EntryPrice: 139, EntryTime: time.Unix(baseTime, 0),
		StopLossPct: 2, TakeProfitPct: 5, HighestPrice: 139, Status: position.StatusOpen,
	})

	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	st := h.ctrl.State()
	if st.Status != StatusRunning || st.Symbol != "BTC" {
		t.Errorf("state = %s/%s, want RUNNING/BTC", st.Status, st.Symbol)
	}
	if st.CurrentPosition == nil || st.CurrentPosition.ID != "btc-1" {
		t.Errorf("current position = %+v, want btc-1", st.CurrentPosition)
	}
}

func TestPeakSurvivesRestart(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.clock.Advance(10 * time.Second)
	h.ctrl.OnCandle(ctx, "BTC", market.Candle{Time: baseTime + 43*60, Open: 105.6, High: 108, Low: 105.6, Close: 108})
	if p, _, _ := h.store.GetOpenPosition(ctx, "BTC"); p.HighestPrice != 108 {
		t.Fatalf("persisted highest = %v, want 108", p.HighestPrice)
	}
	h.ctrl.Shutdown(ctx)

	restarted := h.newController(t, DefaultConfig())
	if err := restarted.Init(ctx); err != nil {
		t.Fatalf("Init after restart: %v", err)
	}
	st := restarted.State()
	if st.CurrentPosition == nil || st.CurrentPosition.HighestPrice != 108 {
		t.Fatalf("restored position = %+v, want highest 108", st.CurrentPosition)
	}

	// 107.4 is 0.56% below the peak and 1.7% above entry
	h.clock.Advance(61 * time.Second)
	restarted.OnCandle(ctx, "BTC", market.Candle{Time: baseTime + 43*60, Open: 105.6, High: 108, Low: 105.6, Close: 107.4})
	if restarted.State().CurrentPosition != nil {
		t.Fatal("trailing stop did not fire after restart")
	}
	if got := h.notifier.closed; len(got) != 1 || got[0] != string(position.ExitTrailingStop) {
		t.Errorf("closed = %v, want [%s]", got, position.ExitTrailingStop)
	}
}

func TestRestartRebuildsLedgerState(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Risk.MaxDrawdownPercent = 0.00001
	h := newHarness(t, cfg)
	ctx := context.Background()
	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	bought := h.clock.Now()
	h.ctrl.Shutdown(ctx)

	// Restart 5s after the BUY: the cooldown still holds the stop-loss
	h.clock.Advance(5 * time.Second)
	restarted := h.newController(t, cfg)
	if err := restarted.Init(ctx); err != nil {
		t.Fatalf("Init after restart: %v", err)
	}
	st := restarted.State()
	if st.TradesCount != 1 || st.LastTradeTime == nil || !st.LastTradeTime.Equal(bought) {
		t.Fatalf("after restart trades=%d last=%v, want 1 at %v", st.TradesCount, st.LastTradeTime, bought)
	}
	restarted.OnCandle(ctx, "BTC", market.Candle{Time: baseTime + 43*60, Open: 100, High: 100, Low: 100, Close: 100})
	if restarted.State().CurrentPosition == nil || h.store.tradeCount() != 1 {
		t.Fatal("stop-loss fired inside the cooldown after a restart")
	}

	h.clock.Advance(61 * time.Second)
	restarted.Analyze(ctx)
	if restarted.State().CurrentPosition != nil {
		t.Fatal("stop-loss should fire once the cooldown has passed")
	}
	loss := (100 - 105.6) * 0.001
	restarted.Shutdown(ctx)

	// A second restart still knows the realised loss, so the drawdown
	// guard keeps blocking new entries
	h.clock.Advance(2 * time.Minute)
	again := h.newController(t, cfg)
	if err := again.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if err := again.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	st = again.State()
	if st.TradesCount != 2 || !approx(st.CumulativeProfitLoss, loss) {
		t.Errorf("trades=%d pnl=%v, want 2/%v", st.TradesCount, st.CumulativeProfitLoss, loss)
	}
	if st.CurrentPosition != nil || st.Rejections == 0 {
		t.Errorf("BUY should be blocked by the drawdown guard: position=%+v rejections=%d", st.CurrentPosition, st.Rejections)
	}
}

func TestSummarizeLedger(t *testing.T) {
	t0 := time.Unix(baseTime, 0)
	sum := summarizeLedger([]Trade{
		{Type: risk.SideSell, Symbol: "ETH", Total: 50, CreatedAt: t0},
		{Type: risk.SideBuy, Symbol: "BTC", Total: 100, CreatedAt: t0.Add(time.Minute)},
		{Type: risk.SideSell, Symbol: "BTC", Total: 110, CreatedAt: t0.Add(2 * time.Minute)},
		{Type: risk.SideBuy, Symbol: "BTC", Total: 200, CreatedAt: t0.Add(3 * time.Minute)},
	})
	if sum.trades != 4 || sum.closed != 1 || !approx(sum.realized, 10) {
		t.Errorf("trades=%d closed=%d realized=%v, want 4/1/10", sum.trades, sum.closed, sum.realized)
	}
	if !approx(sum.netCash, 50-100+110-200) {
		t.Errorf("net cash = %v", sum.netCash)
	}
	if !sum.lastTrade["BTC"].Equal(t0.Add(3*time.Minute)) || !sum.lastTrade["ETH"].Equal(t0) {
		t.Errorf("last trades = %v", sum.lastTrade)
	}
}

func TestStoreFailureCountsDurabilityGap(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.store.saveErr = errors.New("connection refused")
	ctx := context.Background()
	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	st := h.ctrl.State()
	if st.CurrentPosition == nil {
		t.Fatal("in-memory position must survive a failed save")
	}
	if st.DurabilityGaps != 1 {
		t.Errorf("durability gaps = %d, want 1", st.DurabilityGaps)
	}
}

func TestHeartbeatSendsAnalysisReport(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	h.ctrl.Heartbeat(ctx)
	if len(h.notifier.analyses) != 0 {
		t.Error("IDLE heartbeat must not report")
	}

	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.ctrl.Heartbeat(ctx)
	if len(h.notifier.analyses) != 1 {
		t.Fatalf("reports = %d, want 1", len(h.notifier.analyses))
	}
	r := h.notifier.analyses[0]
	if r.Symbol != "BTC" || r.TrendScore != 70 || r.Price != 105.6 {
		t.Errorf("unexpected report %+v", r)
	}
}

func TestRunProcessesFeedUpdates(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.ctrl.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	done := make(chan struct{})
	go func() {
		h.ctrl.Run(ctx)
		close(done)
	}()

	h.clock.Advance(61 * time.Second)
	h.feed.emit("BTC", market.Candle{Time: baseTime + 43*60, Open: 105.6, High: 111, Low: 105.6, Close: 111})

	deadline := time.Now().Add(2 * time.Second)
	for h.ctrl.State().CurrentPosition != nil {
		if time.Now().After(deadline) {
			t.Fatal("feed update was not processed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done
	h.feed.mu.Lock()
	defer h.feed.mu.Unlock()
	if len(h.feed.cancelled) != 1 {
		t.Errorf("Run should cancel the subscription on exit, cancelled=%v", h.feed.cancelled)
	}
}
