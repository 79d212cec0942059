package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifyAnalysis   NotificationType = "analysis"
	NotifyTradeOpen  NotificationType = "trade_open"
	NotifyTradeClose NotificationType = "trade_close"
	NotifyError      NotificationType = "error"
	NotifyInfo       NotificationType = "info"
)

const sendTimeout = 10 * time.Second

// Field is a labelled value rendered inline by providers that support it
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Notification represents a notification message
type Notification struct {
	Type       NotificationType
	Title      string
	Message    string
	Symbol     string
	Price      float64
	PnL        float64
	PnLPercent float64
	Signal     string
	Fields     []Field
	Timestamp  time.Time
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(ctx context.Context, notification *Notification) error
	Name() string
	IsEnabled() bool
}

// AnalysisReport summarises one evaluation for operators
type AnalysisReport struct {
	Symbol          string
	Signal          string
	Score           float64
	TrendScore      float64
	MomentumScore   float64
	VolatilityScore float64
	RSI             float64
	Price           float64
	TradeValue      float64
	Balance         float64
}

// Manager fans notifications out to every enabled provider. Notify*
// methods are fire-and-forget: failures are logged and never returned.
type Manager struct {
	notifiers []Notifier
	logger    zerolog.Logger
	wg        sync.WaitGroup
}

// NewManager creates a new notification manager
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		logger: logger.With().Str("component", "notification").Logger(),
	}
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Enabled reports whether any provider would deliver
func (m *Manager) Enabled() bool {
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			return true
		}
	}
	return false
}

// Send sends a notification to all enabled providers and returns the last error
func (m *Manager) Send(ctx context.Context, notification *Notification) error {
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now()
	}
	var lastErr error
	for _, n := range m.notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Send(ctx, notification); err != nil {
			m.logger.Warn().Err(err).Str("provider", n.Name()).Str("type", string(notification.Type)).Msg("Notification failed")
			lastErr = err
		}
	}
	return lastErr
}

// dispatch sends in the background with its own timeout
func (m *Manager) dispatch(notification *Notification) {
	if !m.Enabled() {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		_ = m.Send(ctx, notification)
	}()
}

// Wait blocks until background sends finish
func (m *Manager) Wait() {
	m.wg.Wait()
}

// NotifyTradeOpened sends a trade opened alert
func (m *Manager) NotifyTradeOpened(symbol string, price, quantity float64) {
	m.dispatch(&Notification{
		Type:    NotifyTradeOpen,
		Title:   fmt.Sprintf("📈 Trade Opened: %s", symbol),
		Message: fmt.Sprintf("BUY %s\nPrice: %.4f\nQuantity: %.8f\nValue: %.2f", symbol, price, quantity, price*quantity),
		Symbol:  symbol,
		Price:   price,
		Signal:  "BUY",
	})
}

// NotifyTradeClosed sends a trade closed alert
func (m *Manager) NotifyTradeClosed(symbol string, entryPrice, exitPrice, pnl, pnlPercent float64, reason string) {
	emoji := "✅"
	if pnl < 0 {
		emoji = "❌"
	}
	m.dispatch(&Notification{
		Type:       NotifyTradeClose,
		Title:      fmt.Sprintf("%s Trade Closed: %s", emoji, symbol),
		Message:    fmt.Sprintf("Entry: %.4f → Exit: %.4f\nP&L: %.4f (%.2f%%)\nReason: %s", entryPrice, exitPrice, pnl, pnlPercent, reason),
		Symbol:     symbol,
		Price:      exitPrice,
		PnL:        pnl,
		PnLPercent: pnlPercent,
		Signal:     "SELL",
	})
}

// NotifyAnalysis sends a market analysis report
func (m *Manager) NotifyAnalysis(report AnalysisReport) {
	m.dispatch(AnalysisNotification(report))
}

// NotifyError sends an error alert
func (m *Manager) NotifyError(title, message string) {
	m.dispatch(&Notification{
		Type:    NotifyError,
		Title:   fmt.Sprintf("⚠️ %s", title),
		Message: message,
	})
}

// AnalysisNotification renders an analysis report
func AnalysisNotification(report AnalysisReport) *Notification {
	action := "HOLD - Waiting for clearer signal"
	if report.Signal != "HOLD" {
		action = fmt.Sprintf("**%s** @ $%.2f", report.Signal, report.Price)
		if report.TradeValue > 0 {
			action = fmt.Sprintf("**%s** $%.2f @ $%.2f", report.Signal, report.TradeValue, report.Price)
		}
	}
	return &Notification{
		Type:   NotifyAnalysis,
		Title:  fmt.Sprintf("📊 Market Analysis - %s", report.Symbol),
		Symbol: report.Symbol,
		Price:  report.Price,
		Signal: report.Signal,
		Fields: []Field{
			{Name: "📈 Trend", Value: fmt.Sprintf("%.1f", report.TrendScore), Inline: true},
			{Name: "🚀 Momentum", Value: fmt.Sprintf("%.1f (RSI %.1f)", report.MomentumScore, report.RSI), Inline: true},
			{Name: "📉 Volatility", Value: fmt.Sprintf("%.1f", report.VolatilityScore), Inline: true},
			{Name: "🎯 Score", Value: fmt.Sprintf("**%.1f%%**", report.Score)},
			{Name: "Action", Value: action},
			{Name: "💰 Balance", Value: fmt.Sprintf("$%.2f", report.Balance), Inline: true},
		},
	}
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier sends notifications via Telegram
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	enabled  bool
	client   *http.Client
}

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
	APIBase  string // Overrides the Telegram API host, mainly for tests
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	apiBase := config.APIBase
	if apiBase == "" {
		apiBase = telegramAPIBase
	}
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		apiBase:  strings.TrimRight(apiBase, "/"),
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: sendTimeout},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(ctx context.Context, notification *Notification) error {
	if !t.enabled {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n\n%s", notification.Title, notification.Message)
	for _, f := range notification.Fields {
		fmt.Fprintf(&b, "\n%s: %s", f.Name, f.Value)
	}

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       strings.TrimSpace(b.String()),
		"parse_mode": "Markdown",
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	return postJSON(ctx, t.client, url, payload, "telegram", http.StatusOK)
}

// =============================================================================
// DISCORD NOTIFIER
// =============================================================================

// DiscordNotifier sends notifications via Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordConfig holds Discord configuration
type DiscordConfig struct {
	WebhookURL string
	Enabled    bool
}

// NewDiscordNotifier creates a new Discord notifier
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: sendTimeout},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func embedColor(n *Notification) int {
	switch {
	case n.Type == NotifyError:
		return 0xFF0000
	case n.Type == NotifyTradeClose && n.PnL < 0:
		return 0xFF0000
	case n.Signal == "SELL" && n.Type == NotifyAnalysis:
		return 0xFF0000
	case n.Signal == "HOLD":
		return 0x808080
	default:
		return 0x00FF00
	}
}

func (d *DiscordNotifier) Send(ctx context.Context, notification *Notification) error {
	if !d.enabled {
		return nil
	}

	embed := map[string]interface{}{
		"title":     notification.Title,
		"color":     embedColor(notification),
		"timestamp": notification.Timestamp.Format(time.RFC3339),
		"footer":    map[string]string{"text": "🤖 Trading Bot"},
	}
	if notification.Message != "" {
		embed["description"] = notification.Message
	}

	fields := make([]map[string]interface{}, 0, len(notification.Fields)+3)
	for _, f := range notification.Fields {
		fields = append(fields, map[string]interface{}{"name": f.Name, "value": f.Value, "inline": f.Inline})
	}
	if len(notification.Fields) == 0 && notification.Symbol != "" {
		fields = append(fields, map[string]interface{}{"name": "Symbol", "value": notification.Symbol, "inline": true})
		if notification.Price > 0 {
			fields = append(fields, map[string]interface{}{
				"name": "Price", "value": fmt.Sprintf("%.4f", notification.Price), "inline": true,
			})
		}
		if notification.PnL != 0 {
			fields = append(fields, map[string]interface{}{
				"name": "P&L", "value": fmt.Sprintf("%.4f (%.2f%%)", notification.PnL, notification.PnLPercent), "inline": true,
			})
		}
	}
	if len(fields) > 0 {
		embed["fields"] = fields
	}

	payload := map[string]interface{}{
		"username": "🤖 Trading Bot",
		"embeds":   []map[string]interface{}{embed},
	}
	return postJSON(ctx, d.client, d.webhookURL, payload, "discord", http.StatusOK, http.StatusNoContent)
}

func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}, provider string, okStatus ...int) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s message: %w", provider, err)
	}
	defer resp.Body.Close()

	for _, s := range okStatus {
		if resp.StatusCode == s {
			return nil
		}
	}
	return fmt.Errorf("%s API returned status %d", provider, resp.StatusCode)
}
