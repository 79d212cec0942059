package commands

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultPollInterval = 2 * time.Second

	// MaxAttempts is how many polls a failing command is retried before it
	// is marked processed anyway
	MaxAttempts = 5
)

// Poller drains pending commands from a Source into a Handler. Handled and
// unknown commands are marked processed; a command whose handling failed
// stays pending and is retried on later polls, up to MaxAttempts.
type Poller struct {
	source   Source
	handler  Handler
	interval time.Duration
	wake     chan struct{}
	logger   zerolog.Logger

	mu       sync.Mutex
	attempts map[string]int
}

// NewPoller creates a poller
func NewPoller(source Source, handler Handler, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		source:   source,
		handler:  handler,
		interval: interval,
		wake:     make(chan struct{}, 1),
		attempts: make(map[string]int),
		logger:   logger.With().Str("component", "command-poller").Logger(),
	}
}

// Wake triggers an immediate poll
func (p *Poller) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is done
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
		}
		p.PollOnce(ctx)
	}
}

// PollOnce handles every pending command and returns how many took effect
func (p *Poller) PollOnce(ctx context.Context) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending, err := p.source.PendingCommands(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to fetch pending commands")
		return 0
	}

	applied := 0
	for _, cmd := range pending {
		if cmd.Processed {
			continue
		}
		log := p.logger.With().Str("command_id", cmd.ID).Str("command", string(cmd.Command)).Str("symbol", cmd.Symbol).Logger()

		handled, err := p.handler.HandleCommand(ctx, cmd)
		switch {
		case errors.Is(err, ErrUnknownCommand):
			log.Error().Err(err).Msg("Command rejected")
		case err != nil:
			p.attempts[cmd.ID]++
			if n := p.attempts[cmd.ID]; n < MaxAttempts {
				log.Warn().Err(err).Int("attempt", n).Msg("Command failed, will retry")
				continue
			}
			log.Error().Err(err).Int("attempts", MaxAttempts).Msg("Command failed, giving up")
		case handled:
			applied++
			log.Info().Msg("Command applied")
		default:
			log.Debug().Msg("Duplicate command ignored")
		}

		delete(p.attempts, cmd.ID)
		if err := p.source.MarkCommandProcessed(ctx, cmd.ID); err != nil {
			log.Error().Err(err).Msg("Failed to mark command processed")
		}
	}
	return applied
}
