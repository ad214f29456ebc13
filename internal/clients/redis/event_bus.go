package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
)

// ActionEvent is the fan-out message published when a submission
// reaches a terminal status. Mobile clients subscribe through the
// notification tier rather than polling the API.
type ActionEvent struct {
	ActionID        uuid.UUID `json:"action_id"`
	UserID          uuid.UUID `json:"user_id"`
	Status          string    `json:"status"`
	Score           *float64  `json:"score,omitempty"`
	PointsAwarded   *int      `json:"points_awarded,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

type EventBus interface {
	Publish(ctx context.Context, event ActionEvent) error
	StartForwarder(ctx context.Context, onEvent func(e ActionEvent)) error
	Close() error
}

type redisEventBus struct {
	log     *logger.Logger
	rdb     *redis.Client
	channel string
}

func NewEventBus(log *logger.Logger) (EventBus, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_CHANNEL"))
	if ch == "" {
		ch = "action_events"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisEventBus{
		log:     log.With("client", "RedisEventBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *redisEventBus) Publish(ctx context.Context, event ActionEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *redisEventBus) StartForwarder(ctx context.Context, onEvent func(e ActionEvent)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var event ActionEvent
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					b.log.Warn("bad redis event payload", "error", err)
					continue
				}
				onEvent(event)
			}
		}
	}()

	return nil
}

func (b *redisEventBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
