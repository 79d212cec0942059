package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"cryptosim-bot/config"
	"cryptosim-bot/internal/account"
	"cryptosim-bot/internal/api"
	"cryptosim-bot/internal/auth"
	"cryptosim-bot/internal/binance"
	"cryptosim-bot/internal/bot"
	"cryptosim-bot/internal/commands"
	"cryptosim-bot/internal/database"
	"cryptosim-bot/internal/events"
	"cryptosim-bot/internal/logging"
	"cryptosim-bot/internal/market"
	"cryptosim-bot/internal/notification"
	"cryptosim-bot/internal/vault"
)

// backend is everything the bot, the poller and the API persist through.
// Both database.Repository and database.MemoryStore implement it.
type backend interface {
	account.BalanceStore
	bot.PositionStore
	bot.TradeLedger
	bot.TradeHistory
	bot.StatusStore
	bot.ActivityLog
	commands.Source
	commands.Sink
	api.Store
}

func main() {
	sampleConfig := flag.String("generate-config", "", "write a sample config to the given path and exit")
	flag.Parse()

	if *sampleConfig != "" {
		if err := config.GenerateSampleConfig(*sampleConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Sample config written to %s\n", *sampleConfig)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logCfg := cfg.Logging()
	logCfg.Component = "main"
	logger, logCloser := logging.New(logCfg)
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Bot exited with error")
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Secrets from Vault override file and environment values
	vaultClient, err := vault.NewClient(cfg.Vault())
	if err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if vaultClient.IsEnabled() {
		secrets, err := vaultClient.LoadSecrets(ctx)
		if err != nil {
			return fmt.Errorf("load secrets: %w", err)
		}
		cfg.ApplySecrets(secrets)
		logger.Info().Msg("Secrets loaded from Vault")
	}

	// Stores
	var store backend
	if cfg.UseDatabase() {
		db, err := database.NewDB(ctx, cfg.Database(), logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		store = database.NewRepository(db)
	} else {
		logger.Warn().Msg("No database configured, state will not survive restarts")
		store = database.NewMemoryStore(cfg.BotConfig.InitialBalance)
	}

	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = database.NewRedisClient(cfg.Redis())
		defer redisClient.Close()
	}
	positions := database.NewPositionCache(ctx, redisClient, store, logger)

	// Market data
	var feed market.Feed
	if cfg.BinanceConfig.MockMode {
		tick := time.Duration(cfg.BinanceConfig.MockTickMillis) * time.Millisecond
		feed = binance.NewMockFeed(tick)
		logger.Info().Dur("tick", tick).Msg("Using mock market feed")
	} else {
		feed = binance.NewFeed(cfg.BinanceConfig.BaseURL, cfg.BinanceConfig.WSURL, logger)
	}

	eventBus := events.NewEventBus()
	notifyManager := newNotificationManager(cfg, logger)

	controller, err := bot.New(cfg.BotSettings(), bot.Dependencies{
		Feed:      feed,
		Account:   account.New(store, cfg.BotConfig.InitialBalance, logger),
		Positions: positions,
		Ledger:    store,
		History:   store,
		Status:    store,
		Activity:  store,
		Notifier:  notifyManager,
		Events:    eventBus,
	}, logger)
	if err != nil {
		return err
	}
	if err := controller.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize bot: %w", err)
	}
	go controller.Run(ctx)

	// Commands: poll the queue, and react immediately to wakeups
	poller := commands.NewPoller(store, controller, cfg.CommandPollInterval(), logger)
	go poller.Run(ctx)

	wake := func(context.Context, string) { poller.Wake() }
	if redisClient != nil && positions.IsRedisAvailable() {
		go commands.SubscribeWakeups(ctx, redisClient, poller, logger)
		wake = func(ctx context.Context, id string) {
			if err := commands.PublishWakeup(ctx, redisClient, id); err != nil {
				logger.Warn().Err(err).Str("command_id", id).Msg("Failed to publish command wakeup")
				poller.Wake()
			}
		}
	}

	// HTTP API
	var server *api.Server
	if cfg.ServerConfig.Enabled {
		var authService *auth.Service
		if cfg.AuthConfig.Enabled {
			authService, err = auth.NewService(cfg.Auth(), logger)
			if err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
		server = api.NewServer(api.ServerConfig{
			Port:           cfg.ServerConfig.Port,
			Host:           cfg.ServerConfig.Host,
			AllowedOrigins: splitOrigins(cfg.ServerConfig.AllowedOrigins),
			ReadTimeout:    time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
			WriteTimeout:   time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
			ProductionMode: true,
		}, api.Dependencies{
			Bot:      controller,
			Store:    store,
			Commands: store,
			Wake:     wake,
			Auth:     authService,
			Events:   eventBus,
		}, logger)

		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("HTTP server stopped")
				cancel()
			}
		}()
	}

	state := controller.State()
	logger.Info().
		Str("symbol", state.Symbol).
		Str("status", string(state.Status)).
		Float64("balance", state.Balance).
		Bool("mock_feed", cfg.BinanceConfig.MockMode).
		Msg("Crypto simulator bot ready")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down...")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second+5*time.Second)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Error shutting down HTTP server")
		}
	}
	cancel()
	controller.Shutdown(shutdownCtx)
	notifyManager.Wait()

	logger.Info().Msg("Shutdown complete")
	return nil
}

func newNotificationManager(cfg *config.Config, logger zerolog.Logger) *notification.Manager {
	m := notification.NewManager(logger)
	if !cfg.NotificationConfig.Enabled {
		return m
	}

	if cfg.NotificationConfig.Telegram.Enabled {
		m.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
			BotToken: cfg.NotificationConfig.Telegram.BotToken,
			ChatID:   cfg.NotificationConfig.Telegram.ChatID,
			Enabled:  true,
		}))
		logger.Info().Msg("Telegram notifications enabled")
	}
	if cfg.NotificationConfig.Discord.Enabled {
		m.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
			WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
			Enabled:    true,
		}))
		logger.Info().Msg("Discord notifications enabled")
	}
	return m
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
