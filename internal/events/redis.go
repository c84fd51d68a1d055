package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "mailtmpl:events"

// RedisBroker relays events between server instances over Redis pub/sub.
// Publish sends to Redis only; Run delivers everything received, including
// this instance's own events, into the local Hub.
type RedisBroker struct {
	rdb     *redis.Client
	hub     *Hub
	channel string
}

func NewRedisBroker(rdb *redis.Client, hub *Hub) *RedisBroker {
	return &RedisBroker{rdb: rdb, hub: hub, channel: DefaultChannel}
}

func (b *RedisBroker) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("events: redis publish: %w", err)
	}
	return nil
}

// Run forwards messages from Redis to the Hub until ctx is cancelled.
func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("events: redis subscribe: %w", err)
	}
	slog.Info("events: relaying through redis", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				slog.Warn("events: dropping malformed message", "err", err)
				continue
			}
			_ = b.hub.Publish(ctx, e)
		}
	}
}
