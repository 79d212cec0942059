package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"cryptosim-bot/config"
	"cryptosim-bot/internal/auth"
	"cryptosim-bot/internal/commands"
	"cryptosim-bot/internal/database"
	"cryptosim-bot/internal/vault"
)

const usage = `botctl controls a running cryptosim bot through its database.

Usage:
  botctl start [-symbol ETH]   queue a start command
  botctl stop                  queue a stop command
  botctl status                print bot status, balance and open position
  botctl trades [-n 20]        print recent trades
  botctl hash-password         read a password and print its bcrypt hash
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if os.Args[1] == "hash-password" {
		if err := hashPassword(); err != nil {
			fail(err)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fail(fmt.Errorf("load configuration: %w", err))
	}
	if !cfg.UseDatabase() {
		fail(fmt.Errorf("botctl needs DATABASE_URL or DB_HOST; the in-memory store is private to the bot process"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	vaultClient, err := vault.NewClient(cfg.Vault())
	if err != nil {
		fail(err)
	}
	if secrets, err := vaultClient.LoadSecrets(ctx); err != nil {
		fail(fmt.Errorf("load secrets: %w", err))
	} else {
		cfg.ApplySecrets(secrets)
	}

	db, err := database.NewDB(ctx, cfg.Database(), logger)
	if err != nil {
		fail(err)
	}
	defer db.Close()
	repo := database.NewRepository(db)

	switch os.Args[1] {
	case "start", "stop":
		fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
		symbol := fs.String("symbol", "", "symbol to trade, e.g. ETH")
		_ = fs.Parse(os.Args[2:])
		err = enqueue(ctx, cfg, repo, commands.Kind(os.Args[1]), *symbol, logger)
	case "status":
		err = printStatus(ctx, repo)
	case "trades":
		fs := flag.NewFlagSet("trades", flag.ExitOnError)
		n := fs.Int("n", 20, "number of trades")
		_ = fs.Parse(os.Args[2:])
		err = printTrades(ctx, repo, *n)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fail(err)
	}
}

func enqueue(ctx context.Context, cfg *config.Config, repo *database.Repository, kind commands.Kind, symbol string, logger zerolog.Logger) error {
	cmd, err := repo.EnqueueCommand(ctx, commands.Command{Command: kind, Symbol: symbol})
	if err != nil {
		return err
	}
	fmt.Printf("✅ Queued %s", cmd.Command)
	if cmd.Symbol != "" {
		fmt.Printf(" %s", cmd.Symbol)
	}
	fmt.Printf(" (%s)\n", cmd.ID)

	if cfg.RedisConfig.Enabled {
		client := database.NewRedisClient(cfg.Redis())
		defer client.Close()
		if err := commands.PublishWakeup(ctx, client, cmd.ID); err != nil {
			logger.Warn().Err(err).Msg("Wakeup not delivered; the bot will pick the command up on its next poll")
		}
	}
	return nil
}

func printStatus(ctx context.Context, repo *database.Repository) error {
	status, symbol, err := repo.GetBotStatus(ctx)
	if err != nil {
		return err
	}
	balance, err := repo.GetBalance(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Status:  %s\nSymbol:  %s\nBalance: %.2f\n", status, symbol, balance)

	p, found, err := repo.GetOpenPosition(ctx, symbol)
	if err != nil {
		return err
	}
	if !found {
		fmt.Println("Position: none")
		return nil
	}
	fmt.Printf("Position: %s %.6f @ %.4f (SL %.1f%%, TP %.1f%%, peak %.4f) opened %s\n",
		p.Symbol, p.Amount, p.EntryPrice, p.StopLossPct, p.TakeProfitPct, p.HighestPrice,
		p.EntryTime.Format(time.RFC3339))
	return nil
}

func printTrades(ctx context.Context, repo *database.Repository, n int) error {
	trades, err := repo.ListTrades(ctx, n)
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		fmt.Println("No trades yet")
		return nil
	}
	fmt.Printf("%-20s %-4s %-6s %14s %14s %14s  %s\n", "TIME", "SIDE", "SYMBOL", "AMOUNT", "PRICE", "TOTAL", "REASON")
	fmt.Println(strings.Repeat("-", 100))
	for _, t := range trades {
		fmt.Printf("%-20s %-4s %-6s %14.6f %14.4f %14.4f  %s\n",
			t.CreatedAt.Format("2006-01-02 15:04:05"), t.Type, t.Symbol, t.Amount, t.Price, t.Total, t.Reason)
	}
	return nil
}

func hashPassword() error {
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(string(pw), auth.DefaultBcryptCost)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "❌ %v\n", err)
	os.Exit(1)
}
