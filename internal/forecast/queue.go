package forecast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Source supplies the forecasts pending evaluation for a scan cycle
type Source interface {
	Pending(ctx context.Context, max int) ([]*Forecast, error)
}

// RedisQueue consumes forecasts the upstream pipeline pushes onto a Redis
// list. Records that fail to decode are dropped with an error rather than
// poisoning the cycle.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a forecast source backed by a Redis list
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

// Push enqueues a forecast. Used by tests and by the upstream bridge.
func (q *RedisQueue) Push(ctx context.Context, f *Forecast) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal forecast: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push forecast: %w", err)
	}
	return nil
}

// Pending drains up to max forecasts from the queue
func (q *RedisQueue) Pending(ctx context.Context, max int) ([]*Forecast, error) {
	var out []*Forecast
	for len(out) < max {
		data, err := q.client.RPop(ctx, q.key).Bytes()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return out, fmt.Errorf("failed to pop forecast: %w", err)
		}

		var f Forecast
		if err := json.Unmarshal(data, &f); err != nil {
			return out, fmt.Errorf("failed to decode forecast: %w", err)
		}
		out = append(out, &f)
	}
	return out, nil
}

// StaticSource returns a fixed forecast batch once, then nothing. Used for
// single-shot runs and tests.
type StaticSource struct {
	forecasts []*Forecast
	drained   bool
}

// NewStaticSource creates a source over a fixed batch
func NewStaticSource(forecasts ...*Forecast) *StaticSource {
	return &StaticSource{forecasts: forecasts}
}

// Pending returns the batch on the first call and an empty slice afterwards
func (s *StaticSource) Pending(ctx context.Context, max int) ([]*Forecast, error) {
	if s.drained {
		return nil, nil
	}
	s.drained = true
	if len(s.forecasts) > max {
		return s.forecasts[:max], nil
	}
	return s.forecasts, nil
}
