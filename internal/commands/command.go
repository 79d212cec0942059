package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the operator action a command requests
type Kind string

const (
	KindStart Kind = "start"
	KindStop  Kind = "stop"
)

var ErrUnknownCommand = errors.New("unknown command")

// Command is an operator instruction delivered at least once
type Command struct {
	ID        string    `json:"id"`
	Command   Kind      `json:"command"`
	Symbol    string    `json:"symbol,omitempty"`
	Processed bool      `json:"processed"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the command kind and normalises the symbol
func (c *Command) Validate() error {
	c.Command = Kind(strings.ToLower(strings.TrimSpace(string(c.Command))))
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	switch c.Command {
	case KindStart, KindStop:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, c.Command)
	}
}

// Source is the command channel: pending commands plus a processed marker
type Source interface {
	PendingCommands(ctx context.Context) ([]Command, error)
	MarkCommandProcessed(ctx context.Context, id string) error
}

// Sink enqueues new commands
type Sink interface {
	EnqueueCommand(ctx context.Context, cmd Command) (Command, error)
}

// Handler acts on a command. handled is false when the command was a
// duplicate and had no effect.
type Handler interface {
	HandleCommand(ctx context.Context, cmd Command) (handled bool, err error)
}
