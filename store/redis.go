package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/2lab-ai/hal9go/cognitive"
	"github.com/2lab-ai/hal9go/core"
	"github.com/2lab-ai/hal9go/topology"
)

// RedisStore persists orchestrator state in Redis under a namespace:
//
//	<ns>:units:<id>       unit snapshot JSON
//	<ns>:edges:<from>-<to> edge record JSON
//	<ns>:gradients        list of gradient JSON, most recent last
type RedisStore struct {
	client    *redis.Client
	namespace string
	logger    core.Logger

	// gradientCap bounds the gradient list so it cannot grow without limit.
	gradientCap int64
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL, namespace string, logger core.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", core.ErrRuleViolation)
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 5 * time.Second
	opt.WriteTimeout = 5 * time.Second

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	if namespace == "" {
		namespace = "hal9"
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RedisStore{
		client:      client,
		namespace:   namespace,
		logger:      logger,
		gradientCap: 10000,
	}, nil
}

// SaveUnit upserts a unit snapshot.
func (s *RedisStore) SaveUnit(ctx context.Context, snapshot cognitive.StateSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal unit %d: %w", snapshot.UnitID.Value(), err)
	}
	key := fmt.Sprintf("%s:units:%d", s.namespace, snapshot.UnitID.Value())
	return s.client.Set(ctx, key, data, 0).Err()
}

// SaveEdge upserts an edge record.
func (s *RedisStore) SaveEdge(ctx context.Context, edge topology.EdgeSnapshot) error {
	data, err := json.Marshal(edge)
	if err != nil {
		return fmt.Errorf("marshal edge: %w", err)
	}
	key := fmt.Sprintf("%s:edges:%d-%d", s.namespace, edge.From.Value(), edge.To.Value())
	return s.client.Set(ctx, key, data, 0).Err()
}

// SaveGradient appends to the bounded gradient list.
func (s *RedisStore) SaveGradient(ctx context.Context, gradient *core.Gradient) error {
	if gradient == nil {
		return nil
	}
	data, err := json.Marshal(gradient)
	if err != nil {
		return fmt.Errorf("marshal gradient %s: %w", gradient.ID, err)
	}
	key := s.namespace + ":gradients"
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -s.gradientCap, -1)
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteUnit removes a unit record.
func (s *RedisStore) DeleteUnit(ctx context.Context, id core.UnitID) error {
	key := fmt.Sprintf("%s:units:%d", s.namespace, id.Value())
	return s.client.Del(ctx, key).Err()
}

// Unit fetches a persisted unit snapshot.
func (s *RedisStore) Unit(ctx context.Context, id core.UnitID) (cognitive.StateSnapshot, error) {
	key := fmt.Sprintf("%s:units:%d", s.namespace, id.Value())
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return cognitive.StateSnapshot{}, fmt.Errorf("unit %d: %w", id.Value(), core.ErrNotFound)
	}
	if err != nil {
		return cognitive.StateSnapshot{}, err
	}
	var snapshot cognitive.StateSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return cognitive.StateSnapshot{}, fmt.Errorf("unmarshal unit %d: %w", id.Value(), err)
	}
	return snapshot, nil
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
