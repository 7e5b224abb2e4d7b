// Package store adapts the earlier Redis storage client
// (pkg/storage/redis.go) from an alert archive into two roles the
// pipeline actually needs: a poller.MetricsStore cache of each
// collector's last sample, and an optional pub/sub-backed
// signals.Emitter so the event stream can fan out across process
// boundaries, not just in-memory.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rodgon/aegis/pkg/signals"
)

// MetricsCache implements poller.MetricsStore by writing each
// collector's latest sample to Redis under a per-collector key,
// grounded on the earlier RedisClient.StoreAlert key/value shape
// (a JSON blob behind a namespaced key) but storing current values
// instead of an append-only alert archive — the pipeline is explicitly
// not a durable history store; see history.Store for the durable side.
type MetricsCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewMetricsCache connects to Redis, the same Ping-on-construct check
// the earlier NewRedisClient performs.
func NewMetricsCache(ctx context.Context, addr, password string, db int, keyPrefix string) (*MetricsCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	if keyPrefix == "" {
		keyPrefix = "aegis:"
	}
	return &MetricsCache{client: client, keyPrefix: keyPrefix, ttl: 10 * time.Minute}, nil
}

// Client returns the underlying connection, so callers that also want
// a Bus on the same Redis instance don't need to dial twice.
func (c *MetricsCache) Client() *redis.Client {
	return c.client
}

// Store implements poller.MetricsStore.
func (c *MetricsCache) Store(collector string, metrics map[string]float64) error {
	data, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshaling metrics for %s: %w", collector, err)
	}
	key := c.keyPrefix + "metrics:" + collector
	if err := c.client.Set(context.Background(), key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("storing metrics for %s: %w", collector, err)
	}
	return nil
}

// Last returns the most recently stored sample for a collector, used
// by operator tooling (e.g. /debug/queue-adjacent endpoints) rather
// than the pipeline's own detection path, which always works off the
// freshly collected sample.
func (c *MetricsCache) Last(ctx context.Context, collector string) (map[string]float64, error) {
	key := c.keyPrefix + "metrics:" + collector
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("reading metrics for %s: %w", collector, err)
	}
	var metrics map[string]float64
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, fmt.Errorf("unmarshaling metrics for %s: %w", collector, err)
	}
	return metrics, nil
}

// Bus is an optional signals.Emitter that publishes events to a Redis
// pub/sub channel instead of (or in addition to) in-process
// subscribers, so a second process (an operator dashboard, an external
// alert router) can observe the same lifecycle events signals.Fanout
// delivers in-process.
type Bus struct {
	client  *redis.Client
	channel string
	logger  func(format string, args ...any)
}

// NewBus builds a Bus over an existing client.
func NewBus(client *redis.Client, channel string, logger func(format string, args ...any)) *Bus {
	if channel == "" {
		channel = "aegis:signals"
	}
	return &Bus{client: client, channel: channel, logger: logger}
}

type busMessage struct {
	Category  signals.Category `json:"category"`
	EventType string           `json:"eventType"`
	Payload   map[string]any   `json:"payload"`
}

// Emit implements signals.Emitter. Marshal and publish failures go to
// the logger passed to NewBus (the agent passes its Debugf) and are
// then swallowed; they never reach the caller.
func (b *Bus) Emit(category signals.Category, eventType string, payload map[string]any) {
	data, err := json.Marshal(busMessage{Category: category, EventType: eventType, Payload: payload})
	if err != nil {
		b.logf("store: marshal signal for publish: %v", err)
		return
	}
	if err := b.client.Publish(context.Background(), b.channel, data).Err(); err != nil {
		b.logf("store: publish signal: %v", err)
	}
}

func (b *Bus) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger(format, args...)
	}
}
