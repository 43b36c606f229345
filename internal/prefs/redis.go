package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "battlescene:prefs:"

// RedisStore keeps each preference record as a JSON string value.
type RedisStore struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisStore connects and pings the server at addr.
func NewRedisStore(ctx context.Context, addr string, db int, logger *zap.Logger) (*RedisStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &RedisStore{rdb: rdb, logger: logger}, nil
}

func (s *RedisStore) Load(ctx context.Context, key string) (Preferences, error) {
	data, err := s.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Preferences{}, ErrNotFound
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("failed to GET preferences %q: %w", key, err)
	}
	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return Preferences{}, fmt.Errorf("failed to decode preferences %q: %w", key, err)
	}
	return p, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, p Preferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	if err := s.rdb.Set(ctx, redisKeyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to SET preferences %q: %w", key, err)
	}
	s.logger.Debug("preferences saved", zap.String("key", key))
	return nil
}

// Close disconnects the client.
func (s *RedisStore) Close() {
	if err := s.rdb.Close(); err != nil {
		s.logger.Warn("failed to close redis client", zap.Error(err))
	}
}
