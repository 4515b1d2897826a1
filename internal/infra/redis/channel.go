package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"quiz-arena/internal/match"
)

// ChannelFactory builds room channels backed by Redis pub/sub, so two
// participants can race across service instances.
type ChannelFactory struct {
	client *redis.Client
}

func NewChannelFactory(client *redis.Client) *ChannelFactory {
	return &ChannelFactory{client: client}
}

func (f *ChannelFactory) Channel(roomID string) match.RoomChannel {
	return &roomChannel{client: f.client, key: "match:room:" + roomID}
}

type roomChannel struct {
	client *redis.Client
	key    string
}

func (c *roomChannel) Publish(ctx context.Context, msg match.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode room message: %w", err)
	}
	if err := c.client.Publish(ctx, c.key, raw).Err(); err != nil {
		return fmt.Errorf("publish room message: %w", err)
	}
	return nil
}

func (c *roomChannel) Subscribe(ctx context.Context) (<-chan match.Message, func(), error) {
	sub := c.client.Subscribe(ctx, c.key)
	// Force the subscription to be established before we report success.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe room: %w", err)
	}

	out := make(chan match.Message, 16)
	go func() {
		defer close(out)
		for raw := range sub.Channel() {
			var msg match.Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				log.Printf("drop malformed room message on %s: %v", c.key, err)
				continue
			}
			select {
			case out <- msg:
			default:
				// Slow consumer: drop the oldest pending message.
				select {
				case <-out:
				default:
				}
				out <- msg
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}
