package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cryptosim-bot/internal/vault"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b := cfg.BotSettings()
	if b.Symbol != "BTC" || b.Cooldown != 60*time.Second || b.Risk.TakeProfitPercent != 5 {
		t.Errorf("unexpected defaults %+v", b)
	}
	if cfg.UseDatabase() {
		t.Error("no database should be configured by default")
	}
	if cfg.CommandPollInterval() != 5*time.Second {
		t.Errorf("poll interval = %v", cfg.CommandPollInterval())
	}
}

func TestFileThenEnvOverrides(t *testing.T) {
	dir := chdirTemp(t)
	body := `{"bot":{"symbol":"eth","base_trade_amount":0.5,"cooldown_seconds":30},"risk":{"stop_loss_percent":3}}`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOT_COOLDOWN_SECONDS", "10")
	t.Setenv("RISK_TAKE_PROFIT_PERCENT", "7.5")
	t.Setenv("DATABASE_URL", "postgres://bot@db/sim")
	t.Setenv("LOG_JSON", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b := cfg.BotSettings()
	tests := []struct {
		name      string
		got, want interface{}
	}{
		{"symbol upper-cased", b.Symbol, "ETH"},
		{"amount from file", b.BaseTradeAmount, 0.5},
		{"cooldown from env", b.Cooldown, 10 * time.Second},
		{"stop loss from file", b.Risk.StopLossPercent, 3.0},
		{"take profit from env", b.Risk.TakeProfitPercent, 7.5},
		{"drawdown default kept", b.Risk.MaxDrawdownPercent, 10.0},
		{"database url", cfg.Database().URL, "postgres://bot@db/sim"},
		{"json logging off", cfg.Logging().JSONFormat, false},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil {
		t.Error("expected a parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero amount", func(c *Config) { c.BotConfig.BaseTradeAmount = 0 }, true},
		{"stop loss 100", func(c *Config) { c.RiskConfig.StopLossPercent = 100 }, true},
		{"balance fraction above one", func(c *Config) { c.RiskConfig.MaxTradeBalancePercent = 20 }, true},
		{"random without ceiling", func(c *Config) { c.RiskConfig.RandomSizing = true }, true},
		{"random with ceiling", func(c *Config) {
			c.RiskConfig.RandomSizing = true
			c.RiskConfig.RandomMaxAmount = 500
		}, false},
		{"bad interval", func(c *Config) { c.BotConfig.Interval = "5x" }, true},
		{"auth without secret", func(c *Config) { c.AuthConfig.Enabled = true }, true},
		{"auth secret from vault", func(c *Config) {
			c.AuthConfig.Enabled = true
			c.VaultConfig.Enabled = true
		}, false},
	}
	for _, tt := range tests {
		cfg := Default()
		tt.mutate(cfg)
		if err := cfg.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestApplySecretsKeepsConfiguredValues(t *testing.T) {
	cfg := Default()
	cfg.DatabaseConfig.Password = "from-env"
	cfg.NotificationConfig.Discord.WebhookURL = "https://discord.test/env"

	cfg.ApplySecrets(vault.Secrets{JWTSecret: "vault-jwt", DiscordWebhookURL: "https://discord.test/vault"})

	if cfg.DatabaseConfig.Password != "from-env" {
		t.Errorf("empty secret overwrote password: %q", cfg.DatabaseConfig.Password)
	}
	if cfg.Auth().JWTSecret != "vault-jwt" {
		t.Errorf("jwt secret = %q", cfg.Auth().JWTSecret)
	}
	if cfg.NotificationConfig.Discord.WebhookURL != "https://discord.test/vault" {
		t.Errorf("webhook = %q", cfg.NotificationConfig.Discord.WebhookURL)
	}
}

func TestGenerateSampleConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.json")
	if err := GenerateSampleConfig(path); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("sample config is invalid: %v", err)
	}
	if !cfg.UseDatabase() || cfg.Redis().Address != "localhost:6379" {
		t.Errorf("sample config missing stores: %+v", cfg.DatabaseConfig)
	}
}
