package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
)

var ErrSecretNotFound = errors.New("secret not found")

// Config holds Vault connection settings
type Config struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"-"`
	MountPath  string `json:"mount_path"`  // KV v2 secrets engine mount path
	SecretPath string `json:"secret_path"` // Path of the bot's secret under the mount
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// Secrets are the credentials the bot can load from Vault. Empty fields
// leave the configured values untouched.
type Secrets struct {
	DatabasePassword     string
	RedisPassword        string
	JWTSecret            string
	OperatorPasswordHash string
	DiscordWebhookURL    string
	TelegramBotToken     string
	TelegramChatID       string
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config Config
	mu     sync.RWMutex
	cached *Secrets
}

// NewClient creates a new Vault client. A disabled config yields a client
// whose LoadSecrets returns empty secrets.
func NewClient(cfg Config) (*Client, error) {
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	if cfg.SecretPath == "" {
		cfg.SecretPath = "cryptosim-bot"
	}
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vaultConfig.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// LoadSecrets reads the bot secret once and caches it
func (c *Client) LoadSecrets(ctx context.Context) (Secrets, error) {
	if !c.config.Enabled {
		return Secrets{}, nil
	}

	c.mu.RLock()
	if c.cached != nil {
		s := *c.cached
		c.mu.RUnlock()
		return s, nil
	}
	c.mu.RUnlock()

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return Secrets{}, fmt.Errorf("failed to read secrets from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return Secrets{}, ErrSecretNotFound
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return Secrets{}, fmt.Errorf("invalid secret format at %s", c.secretPath())
	}

	s := Secrets{
		DatabasePassword:     getString(data, "database_password"),
		RedisPassword:        getString(data, "redis_password"),
		JWTSecret:            getString(data, "jwt_secret"),
		OperatorPasswordHash: getString(data, "operator_password_hash"),
		DiscordWebhookURL:    getString(data, "discord_webhook_url"),
		TelegramBotToken:     getString(data, "telegram_bot_token"),
		TelegramChatID:       getString(data, "telegram_chat_id"),
	}

	c.mu.Lock()
	c.cached = &s
	c.mu.Unlock()
	return s, nil
}

// ClearCache forces the next LoadSecrets to hit Vault
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

// secretPath returns the KV v2 data path
func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
