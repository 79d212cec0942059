package commands

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// WakeChannel carries command ids so pollers react without waiting for the next tick
const WakeChannel = "cryptosim:bot:commands"

// PublishWakeup announces a freshly enqueued command
func PublishWakeup(ctx context.Context, client *redis.Client, commandID string) error {
	return client.Publish(ctx, WakeChannel, commandID).Err()
}

// SubscribeWakeups wakes the poller on every message until ctx is done
func SubscribeWakeups(ctx context.Context, client *redis.Client, poller *Poller, logger zerolog.Logger) {
	pubsub := client.Subscribe(ctx, WakeChannel)
	defer pubsub.Close()

	logger.Info().Str("channel", WakeChannel).Msg("Subscribed to command wakeups")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				logger.Warn().Msg("Command wakeup channel closed")
				return
			}
			logger.Debug().Str("command_id", msg.Payload).Msg("Command wakeup")
			poller.Wake()
		}
	}
}
