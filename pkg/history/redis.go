package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store as a fallback when no Qdrant endpoint is
// configured (StorageConfig.History == "redis"). Built on an earlier
// pkg/storage.RedisClient: same namespaced-key JSON blob
// and set-index pattern. Redis has no native vector similarity, so —
// exactly like the earlier RedisClient.SearchSimilarAlerts —
// SearchSimilar reports it is unsupported rather than faking a
// similarity ranking; an operator who needs real similarity search
// configures Qdrant instead.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to Redis, the same Ping health check an
// earlier NewRedisClient performs.
func NewRedisStore(ctx context.Context, addr, password string, db int, keyPrefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	if keyPrefix == "" {
		keyPrefix = "aegis:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}, nil
}

// StoreIncident implements Store.
func (s *RedisStore) StoreIncident(vector []float32, incident Incident) error {
	data, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("marshaling incident: %w", err)
	}
	key := fmt.Sprintf("%sincident:%d", s.keyPrefix, incident.Timestamp.UnixNano())
	if err := s.client.Set(context.Background(), key, data, 0).Err(); err != nil {
		return fmt.Errorf("storing incident: %w", err)
	}
	return s.client.SAdd(context.Background(), s.keyPrefix+"incidents", key).Err()
}

// SearchSimilar implements Store. Redis has no built-in vector
// similarity search.
func (s *RedisStore) SearchSimilar(vector []float32, limit int) ([]Incident, error) {
	return nil, fmt.Errorf("vector similarity search not implemented for redis history store")
}
