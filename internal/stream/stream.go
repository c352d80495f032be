// Package stream publishes simulation events to a Redis stream.
package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"predictsim/internal/config"
	"predictsim/internal/event"
	"predictsim/internal/simerr"
)

// New connects to Redis and pings it to verify connectivity.
func New(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: redis ping: %w", simerr.ErrCollaborator, err)
	}
	return rdb, nil
}

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Publisher implements event.Sink with XADD, trimming the stream to roughly
// maxLen entries.
type Publisher struct {
	rdb    streamAdder
	stream string
	maxLen int64
}

func NewPublisher(rdb *redis.Client, cfg config.RedisConfig) *Publisher {
	return &Publisher{rdb: rdb, stream: cfg.Stream, maxLen: cfg.MaxLen}
}

// Publish appends events in order, one stream entry each. It stops at the
// first failure; entries already added stay in the stream.
//
// clue:distributed events carry the hidden outcome and are never published.
// The stored log keeps them.
func (p *Publisher) Publish(ctx context.Context, gameID string, events []event.Event) error {
	for _, e := range events {
		if e.Type() == event.ClueDistributed {
			continue
		}
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", e.Type(), err)
		}
		args := &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: p.maxLen > 0,
			Values: map[string]interface{}{
				"game": gameID,
				"type": string(e.Type()),
				"day":  e.Day,
				"body": body,
			},
		}
		if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("%w: redis stream append %s: %w", simerr.ErrCollaborator, p.stream, err)
		}
	}
	return nil
}

var _ event.Sink = (*Publisher)(nil)
