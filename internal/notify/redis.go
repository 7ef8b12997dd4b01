package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/drewano/VocalAlchemy/internal/shared/telemetry"
)

// RedisNotifier publishes events on a per-analysis Redis channel so that any
// API instance can serve live updates regardless of which worker produced them.
type RedisNotifier struct {
	Client *redis.Client
}

// NewRedisNotifier connects a notifier to the given Redis URL.
func NewRedisNotifier(url string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisNotifier{Client: redis.NewClient(opts)}, nil
}

func channelFor(analysisID string) string {
	return "analysis:" + analysisID + ":updates"
}

// Publish sends the event to the analysis channel.
func (n *RedisNotifier) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.Client.Publish(ctx, channelFor(event.AnalysisID), payload).Err()
}

// Subscribe streams events for one analysis until cancel is called.
func (n *RedisNotifier) Subscribe(ctx context.Context, analysisID string) (<-chan Event, func(), error) {
	sub := n.Client.Subscribe(ctx, channelFor(analysisID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					telemetry.Warn("notify.decode_failed", map[string]any{
						"analysis_id": analysisID,
						"error":       err.Error(),
					})
					continue
				}
				select {
				case out <- event:
				default:
					// Drop rather than stall the subscriber loop.
				}
			}
		}
	}()

	cancel := func() {
		close(done)
		_ = sub.Close()
	}
	return out, cancel, nil
}

// Close releases the underlying Redis connection.
func (n *RedisNotifier) Close() error {
	return n.Client.Close()
}
