package commands

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process command channel
type MemoryQueue struct {
	mu       sync.Mutex
	commands []Command
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) EnqueueCommand(_ context.Context, cmd Command) (Command, error) {
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.commands = append(q.commands, cmd)
	return cmd, nil
}

func (q *MemoryQueue) PendingCommands(context.Context) ([]Command, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var pending []Command
	for _, c := range q.commands {
		if !c.Processed {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

func (q *MemoryQueue) MarkCommandProcessed(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.commands {
		if q.commands[i].ID == id {
			q.commands[i].Processed = true
		}
	}
	return nil
}
