package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type capture struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]interface{}
}

func (c *capture) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		c.mu.Lock()
		c.paths = append(c.paths, r.URL.Path)
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
		w.WriteHeader(status)
	}
}

func TestDiscordAnalysisEmbed(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler(http.StatusNoContent))
	defer srv.Close()

	d := NewDiscordNotifier(DiscordConfig{WebhookURL: srv.URL, Enabled: true})
	n := AnalysisNotification(AnalysisReport{
		Symbol: "BTC", Signal: "BUY", Score: 73, TrendScore: 70, MomentumScore: 70,
		VolatilityScore: 80, RSI: 30.5, Price: 105.6, TradeValue: 200, Balance: 1000,
	})
	if err := d.Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(c.bodies) != 1 {
		t.Fatalf("expected 1 request, got %d", len(c.bodies))
	}
	embeds := c.bodies[0]["embeds"].([]interface{})
	embed := embeds[0].(map[string]interface{})
	if !strings.Contains(embed["title"].(string), "BTC") {
		t.Errorf("unexpected title %v", embed["title"])
	}
	if embed["color"].(float64) != 0x00FF00 {
		t.Errorf("BUY report should be green, got %v", embed["color"])
	}
	fields := embed["fields"].([]interface{})
	if len(fields) != 6 {
		t.Errorf("expected 6 fields, got %d", len(fields))
	}
}

func TestTelegramSend(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler(http.StatusOK))
	defer srv.Close()

	tg := NewTelegramNotifier(TelegramConfig{BotToken: "tok", ChatID: "42", Enabled: true, APIBase: srv.URL})
	err := tg.Send(context.Background(), &Notification{Title: "Trade Closed", Message: "P&L: 1.0"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if c.paths[0] != "/bottok/sendMessage" {
		t.Errorf("unexpected path %q", c.paths[0])
	}
	if c.bodies[0]["chat_id"] != "42" || !strings.Contains(c.bodies[0]["text"].(string), "Trade Closed") {
		t.Errorf("unexpected body %v", c.bodies[0])
	}
}

func TestDisabledNotifiersDoNothing(t *testing.T) {
	if NewTelegramNotifier(TelegramConfig{Enabled: true}).IsEnabled() {
		t.Error("telegram without token should be disabled")
	}
	if NewDiscordNotifier(DiscordConfig{Enabled: true}).IsEnabled() {
		t.Error("discord without webhook should be disabled")
	}
	m := NewManager(zerolog.Nop())
	m.AddNotifier(NewDiscordNotifier(DiscordConfig{}))
	if m.Enabled() {
		t.Error("manager with only disabled providers should report disabled")
	}
	m.NotifyError("x", "y")
	m.Wait()
}

func TestManagerFailuresAreSwallowed(t *testing.T) {
	var ok, failing capture
	okSrv := httptest.NewServer(ok.handler(http.StatusNoContent))
	defer okSrv.Close()
	badSrv := httptest.NewServer(failing.handler(http.StatusInternalServerError))
	defer badSrv.Close()

	m := NewManager(zerolog.Nop())
	m.AddNotifier(NewDiscordNotifier(DiscordConfig{WebhookURL: badSrv.URL, Enabled: true}))
	m.AddNotifier(NewDiscordNotifier(DiscordConfig{WebhookURL: okSrv.URL, Enabled: true}))

	m.NotifyTradeClosed("BTC", 100, 95, -5, -5, "stop loss")
	m.NotifyTradeOpened("ETH", 50, 2)
	m.Wait()

	ok.mu.Lock()
	defer ok.mu.Unlock()
	if len(ok.bodies) != 2 {
		t.Errorf("healthy provider should still receive both alerts, got %d", len(ok.bodies))
	}

	if err := m.Send(context.Background(), &Notification{Title: "direct"}); err == nil {
		t.Error("Send should surface the failing provider's error")
	}
}
