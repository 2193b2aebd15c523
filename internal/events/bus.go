package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Bus publishes run progress over Redis Streams so clients can follow a
// run while it executes.
type Bus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewBus connects to Redis and verifies the connection.
func NewBus(redisURL string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Bus{rdb: rdb, logger: logger}, nil
}

// Event types emitted over a run's stream.
const (
	EventStarted  = "started"
	EventPlanned  = "planned"
	EventStep     = "step"
	EventFinished = "finished"
	EventFailed   = "failed"
)

// RunEvent is one progress notification for a run.
type RunEvent struct {
	RunID     string    `json:"run_id"`
	Type      string    `json:"type"`
	Step      int       `json:"step,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const streamPrefix = "questor:run:"

// readRetryDelay paces re-reads after a failed XRead.
const readRetryDelay = time.Second

// Publish appends an event to the run's stream.
func (b *Bus) Publish(ctx context.Context, ev *RunEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	stream := streamPrefix + ev.RunID
	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	b.logger.Debug("published run event",
		zap.String("run_id", ev.RunID),
		zap.String("type", ev.Type))
	return nil
}

// Subscribe follows a run's stream from its beginning. Returns a channel
// that emits events. Cancel the context to stop.
func (b *Bus) Subscribe(ctx context.Context, runID string) <-chan *RunEvent {
	ch := make(chan *RunEvent, 16)
	stream := streamPrefix + runID

	go func() {
		defer close(ch)
		lastID := "0"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()

			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				// A broken connection fails XRead immediately; pause so a
				// dead Redis does not spin this goroutine.
				if !errors.Is(err, redis.Nil) {
					select {
					case <-ctx.Done():
						return
					case <-time.After(readRetryDelay):
					}
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev RunEvent
					if json.Unmarshal([]byte(data), &ev) == nil {
						ch <- &ev
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
