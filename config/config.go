package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cryptosim-bot/internal/auth"
	"cryptosim-bot/internal/bot"
	"cryptosim-bot/internal/database"
	"cryptosim-bot/internal/logging"
	"cryptosim-bot/internal/market"
	"cryptosim-bot/internal/risk"
	"cryptosim-bot/internal/vault"
)

// DefaultConfigFile is read by Load when present
const DefaultConfigFile = "config.json"

type Config struct {
	BotConfig          BotConfig          `json:"bot"`
	RiskConfig         RiskConfig         `json:"risk"`
	BinanceConfig      BinanceConfig      `json:"binance"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	ServerConfig       ServerConfig       `json:"server"`
	AuthConfig         AuthConfig         `json:"auth"`
	VaultConfig        VaultConfig        `json:"vault"`
	NotificationConfig NotificationConfig `json:"notification"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// BotConfig holds the trading loop settings
type BotConfig struct {
	Symbol           string  `json:"symbol"`
	Interval         string  `json:"interval"` // Kline interval, e.g. 1m
	BaseTradeAmount  float64 `json:"base_trade_amount"`
	InitialBalance   float64 `json:"initial_balance"` // Used when no balance is persisted yet
	CooldownSeconds  int     `json:"cooldown_seconds"`
	HeartbeatSeconds int     `json:"heartbeat_seconds"`
	StaleAfterSec    int     `json:"stale_after_seconds"`
	HistoryLimit     int     `json:"history_limit"`
	MinCandles       int     `json:"min_candles"`
	UpdateBuffer     int     `json:"update_buffer"`
	CommandPollSec   int     `json:"command_poll_seconds"`
	ReportAnalysis   bool    `json:"report_analysis"`
}

type RiskConfig struct {
	StopLossPercent        float64 `json:"stop_loss_percent"`
	TakeProfitPercent      float64 `json:"take_profit_percent"`
	MaxDrawdownPercent     float64 `json:"max_drawdown_percent"`
	MaxTradeBalancePercent float64 `json:"max_trade_balance_percent"` // Fraction, 0.2 = 20%
	RandomSizing           bool    `json:"random_sizing"`
	RandomMaxAmount        float64 `json:"random_max_amount"` // Quote budget ceiling for random sizing
}

type BinanceConfig struct {
	BaseURL        string `json:"base_url"`
	WSURL          string `json:"ws_url"`
	MockMode       bool   `json:"mock_mode"` // Use simulated data when Binance is unavailable
	MockTickMillis int    `json:"mock_tick_millis"`
}

// DatabaseConfig holds PostgreSQL settings. An empty Host and URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL      string `json:"url"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int32  `json:"max_conns"`
	MinConns int32  `json:"min_conns"`
}

// RedisConfig holds Redis configuration for the position cache and command wakeups
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // Comma separated CORS origins
	ReadTimeout     int    `json:"read_timeout"`    // Seconds
	WriteTimeout    int    `json:"write_timeout"`   // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"`
}

// AuthConfig holds operator authentication configuration
type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	Username            string        `json:"username"`
	Password            string        `json:"password"`
	PasswordHash        string        `json:"password_hash"`
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path of the bot secret
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
	MaxSizeMB   int    `json:"max_size_mb"`
	MaxBackups  int    `json:"max_backups"`
	MaxAgeDays  int    `json:"max_age_days"`
}

// Load reads .env, then config.json, then applies environment overrides
func Load() (*Config, error) {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	cfg, err := loadFromFile(DefaultConfigFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = Default()
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config that runs against the mock feed and in-memory stores
func Default() *Config {
	def := bot.DefaultConfig()
	return &Config{
		BotConfig: BotConfig{
			Symbol:           def.Symbol,
			Interval:         def.Interval,
			BaseTradeAmount:  def.BaseTradeAmount,
			InitialBalance:   10000,
			CooldownSeconds:  int(def.Cooldown / time.Second),
			HeartbeatSeconds: int(def.Heartbeat / time.Second),
			StaleAfterSec:    int(def.StaleAfter / time.Second),
			HistoryLimit:     def.HistoryLimit,
			MinCandles:       def.MinCandles,
			UpdateBuffer:     def.UpdateBuffer,
			CommandPollSec:   5,
			ReportAnalysis:   def.ReportAnalysis,
		},
		RiskConfig: RiskConfig{
			StopLossPercent:        def.Risk.StopLossPercent,
			TakeProfitPercent:      def.Risk.TakeProfitPercent,
			MaxDrawdownPercent:     def.Risk.MaxDrawdownPercent,
			MaxTradeBalancePercent: def.Risk.MaxTradeBalancePercent,
		},
		BinanceConfig: BinanceConfig{
			MockTickMillis: 1000,
		},
		ServerConfig: ServerConfig{
			Enabled:         true,
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		AuthConfig: AuthConfig{
			Username:            "admin",
			AccessTokenDuration: 12 * time.Hour,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
// Values already set from the file act as the defaults.
func applyEnvOverrides(cfg *Config) {
	// Bot config
	cfg.BotConfig.Symbol = strings.ToUpper(getEnvOrDefault("BOT_SYMBOL", cfg.BotConfig.Symbol))
	cfg.BotConfig.Interval = getEnvOrDefault("BOT_INTERVAL", cfg.BotConfig.Interval)
	cfg.BotConfig.BaseTradeAmount = getEnvFloatOrDefault("BOT_BASE_TRADE_AMOUNT", cfg.BotConfig.BaseTradeAmount)
	cfg.BotConfig.InitialBalance = getEnvFloatOrDefault("BOT_INITIAL_BALANCE", cfg.BotConfig.InitialBalance)
	cfg.BotConfig.CooldownSeconds = getEnvIntOrDefault("BOT_COOLDOWN_SECONDS", cfg.BotConfig.CooldownSeconds)
	cfg.BotConfig.HeartbeatSeconds = getEnvIntOrDefault("BOT_HEARTBEAT_SECONDS", cfg.BotConfig.HeartbeatSeconds)
	cfg.BotConfig.StaleAfterSec = getEnvIntOrDefault("BOT_STALE_AFTER_SECONDS", cfg.BotConfig.StaleAfterSec)
	cfg.BotConfig.HistoryLimit = getEnvIntOrDefault("BOT_HISTORY_LIMIT", cfg.BotConfig.HistoryLimit)
	cfg.BotConfig.CommandPollSec = getEnvIntOrDefault("BOT_COMMAND_POLL_SECONDS", cfg.BotConfig.CommandPollSec)
	cfg.BotConfig.ReportAnalysis = getEnvBoolOrDefault("BOT_REPORT_ANALYSIS", cfg.BotConfig.ReportAnalysis)

	// Risk config
	cfg.RiskConfig.StopLossPercent = getEnvFloatOrDefault("RISK_STOP_LOSS_PERCENT", cfg.RiskConfig.StopLossPercent)
	cfg.RiskConfig.TakeProfitPercent = getEnvFloatOrDefault("RISK_TAKE_PROFIT_PERCENT", cfg.RiskConfig.TakeProfitPercent)
	cfg.RiskConfig.MaxDrawdownPercent = getEnvFloatOrDefault("RISK_MAX_DRAWDOWN_PERCENT", cfg.RiskConfig.MaxDrawdownPercent)
	cfg.RiskConfig.MaxTradeBalancePercent = getEnvFloatOrDefault("RISK_MAX_TRADE_BALANCE_PERCENT", cfg.RiskConfig.MaxTradeBalancePercent)
	cfg.RiskConfig.RandomSizing = getEnvBoolOrDefault("RISK_RANDOM_SIZING", cfg.RiskConfig.RandomSizing)
	cfg.RiskConfig.RandomMaxAmount = getEnvFloatOrDefault("RISK_RANDOM_MAX_AMOUNT", cfg.RiskConfig.RandomMaxAmount)

	// Binance config
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	cfg.BinanceConfig.WSURL = getEnvOrDefault("BINANCE_WS_URL", cfg.BinanceConfig.WSURL)
	cfg.BinanceConfig.MockMode = getEnvBoolOrDefault("MOCK_MODE", cfg.BinanceConfig.MockMode)
	cfg.BinanceConfig.MockTickMillis = getEnvIntOrDefault("MOCK_TICK_MILLIS", cfg.BinanceConfig.MockTickMillis)

	// Database config
	cfg.DatabaseConfig.URL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseConfig.URL)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", cfg.RedisConfig.PoolSize)

	// Server config
	cfg.ServerConfig.Enabled = getEnvBoolOrDefault("WEB_ENABLED", cfg.ServerConfig.Enabled)
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", cfg.ServerConfig.ShutdownTimeout)

	// Auth config
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.Username = getEnvOrDefault("AUTH_USERNAME", cfg.AuthConfig.Username)
	cfg.AuthConfig.Password = getEnvOrDefault("AUTH_PASSWORD", cfg.AuthConfig.Password)
	cfg.AuthConfig.PasswordHash = getEnvOrDefault("AUTH_PASSWORD_HASH", cfg.AuthConfig.PasswordHash)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", cfg.AuthConfig.AccessTokenDuration)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	if cfg.VaultConfig.Address == "" {
		cfg.VaultConfig.Address = "http://localhost:8200"
	}
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)
	cfg.VaultConfig.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", cfg.VaultConfig.TLSEnabled)

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvBoolOrDefault("NOTIFICATIONS_ENABLED", cfg.NotificationConfig.Enabled)
	cfg.NotificationConfig.Telegram.Enabled = getEnvBoolOrDefault("TELEGRAM_ENABLED", cfg.NotificationConfig.Telegram.Enabled)
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvBoolOrDefault("DISCORD_ENABLED", cfg.NotificationConfig.Discord.Enabled)
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)
}

// Validate rejects settings the bot cannot run with
func (c *Config) Validate() error {
	r := c.RiskConfig
	switch {
	case c.BotConfig.Symbol == "":
		return errors.New("bot.symbol is required")
	case c.BotConfig.BaseTradeAmount <= 0:
		return fmt.Errorf("bot.base_trade_amount must be positive, got %v", c.BotConfig.BaseTradeAmount)
	case c.BotConfig.InitialBalance < 0:
		return fmt.Errorf("bot.initial_balance must not be negative, got %v", c.BotConfig.InitialBalance)
	case r.StopLossPercent <= 0 || r.StopLossPercent >= 100:
		return fmt.Errorf("risk.stop_loss_percent must be in (0, 100), got %v", r.StopLossPercent)
	case r.TakeProfitPercent <= 0:
		return fmt.Errorf("risk.take_profit_percent must be positive, got %v", r.TakeProfitPercent)
	case r.MaxDrawdownPercent < 0 || r.MaxDrawdownPercent > 100:
		return fmt.Errorf("risk.max_drawdown_percent must be in [0, 100], got %v", r.MaxDrawdownPercent)
	case r.MaxTradeBalancePercent <= 0 || r.MaxTradeBalancePercent > 1:
		return fmt.Errorf("risk.max_trade_balance_percent must be in (0, 1], got %v", r.MaxTradeBalancePercent)
	case r.RandomSizing && r.RandomMaxAmount <= 0:
		return errors.New("risk.random_max_amount is required when random sizing is enabled")
	}
	if c.BotConfig.Interval != "" {
		if _, err := market.IntervalDuration(c.BotConfig.Interval); err != nil {
			return fmt.Errorf("bot.interval: %w", err)
		}
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" && !c.VaultConfig.Enabled {
		return errors.New("auth.jwt_secret is required when auth is enabled")
	}
	return nil
}

// BotSettings converts the file/env settings into the controller config
func (c *Config) BotSettings() bot.Config {
	b := c.BotConfig
	return bot.Config{
		Symbol:          b.Symbol,
		Interval:        b.Interval,
		BaseTradeAmount: b.BaseTradeAmount,
		Risk: bot.RiskConfig{
			StopLossPercent:        c.RiskConfig.StopLossPercent,
			TakeProfitPercent:      c.RiskConfig.TakeProfitPercent,
			MaxDrawdownPercent:     c.RiskConfig.MaxDrawdownPercent,
			MaxTradeBalancePercent: c.RiskConfig.MaxTradeBalancePercent,
		},
		RandomSizing: risk.RandomSizing{
			Enabled:   c.RiskConfig.RandomSizing,
			MaxAmount: c.RiskConfig.RandomMaxAmount,
		},
		Cooldown:       time.Duration(b.CooldownSeconds) * time.Second,
		Heartbeat:      time.Duration(b.HeartbeatSeconds) * time.Second,
		StaleAfter:     time.Duration(b.StaleAfterSec) * time.Second,
		HistoryLimit:   b.HistoryLimit,
		MinCandles:     b.MinCandles,
		UpdateBuffer:   b.UpdateBuffer,
		ReportAnalysis: b.ReportAnalysis,
	}
}

// CommandPollInterval is how often the command table is polled without a wakeup
func (c *Config) CommandPollInterval() time.Duration {
	if c.BotConfig.CommandPollSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.BotConfig.CommandPollSec) * time.Second
}

// UseDatabase reports whether PostgreSQL is configured
func (c *Config) UseDatabase() bool {
	return c.DatabaseConfig.URL != "" || c.DatabaseConfig.Host != ""
}

func (c *Config) Database() database.Config {
	d := c.DatabaseConfig
	return database.Config{
		URL:      d.URL,
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		Database: d.Database,
		SSLMode:  d.SSLMode,
		MaxConns: d.MaxConns,
		MinConns: d.MinConns,
	}
}

func (c *Config) Redis() database.RedisConfig {
	r := c.RedisConfig
	return database.RedisConfig{
		Enabled:  r.Enabled,
		Address:  r.Address,
		Password: r.Password,
		DB:       r.DB,
		PoolSize: r.PoolSize,
	}
}

func (c *Config) Auth() auth.Config {
	a := c.AuthConfig
	return auth.Config{
		Enabled:      a.Enabled,
		Username:     a.Username,
		Password:     a.Password,
		PasswordHash: a.PasswordHash,
		JWTSecret:    a.JWTSecret,
		TokenTTL:     a.AccessTokenDuration,
	}
}

func (c *Config) Vault() vault.Config {
	v := c.VaultConfig
	return vault.Config{
		Enabled:    v.Enabled,
		Address:    v.Address,
		Token:      v.Token,
		MountPath:  v.MountPath,
		SecretPath: v.SecretPath,
		TLSEnabled: v.TLSEnabled,
		CACert:     v.CACert,
	}
}

func (c *Config) Logging() logging.Config {
	l := c.LoggingConfig
	return logging.Config{
		Level:       l.Level,
		Output:      l.Output,
		JSONFormat:  l.JSONFormat,
		IncludeFile: l.IncludeFile,
		MaxSizeMB:   l.MaxSizeMB,
		MaxBackups:  l.MaxBackups,
		MaxAgeDays:  l.MaxAgeDays,
	}
}

// ApplySecrets overlays non-empty Vault secrets onto the config
func (c *Config) ApplySecrets(s vault.Secrets) {
	setIfNotEmpty(&c.DatabaseConfig.Password, s.DatabasePassword)
	setIfNotEmpty(&c.RedisConfig.Password, s.RedisPassword)
	setIfNotEmpty(&c.AuthConfig.JWTSecret, s.JWTSecret)
	setIfNotEmpty(&c.AuthConfig.PasswordHash, s.OperatorPasswordHash)
	setIfNotEmpty(&c.NotificationConfig.Discord.WebhookURL, s.DiscordWebhookURL)
	setIfNotEmpty(&c.NotificationConfig.Telegram.BotToken, s.TelegramBotToken)
	setIfNotEmpty(&c.NotificationConfig.Telegram.ChatID, s.TelegramChatID)
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true"
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Default()
	config.BinanceConfig.BaseURL = "https://api.binance.com"
	config.BinanceConfig.WSURL = "wss://stream.binance.com:9443/ws"
	config.DatabaseConfig = DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "cryptosim",
		Database: "cryptosim",
		SSLMode:  "disable",
		MaxConns: 10,
		MinConns: 1,
	}
	config.RedisConfig = RedisConfig{
		Enabled:  false,
		Address:  "localhost:6379",
		PoolSize: 10,
	}
	config.VaultConfig = VaultConfig{
		Address:    "http://localhost:8200",
		MountPath:  "secret",
		SecretPath: "cryptosim-bot",
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
