package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ashureev/betterme/internal/domain"
)

var (
	_ Pinger = (*RedisStateStore)(nil)
	_ Lister = (*RedisStateStore)(nil)
)

// RedisStateStore keeps one JSON value per user under prefix+userID.
type RedisStateStore struct {
	rdb    *goredis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStateStore connects to addr and verifies the connection.
func NewRedisStateStore(addr, prefix string, logger *slog.Logger) (*RedisStateStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStateStore{
		rdb:    rdb,
		prefix: prefix,
		logger: logger.With("component", "RedisStateStore"),
	}, nil
}

func (s *RedisStateStore) key(userID string) string {
	return s.prefix + userID
}

// Load returns the bucket for userID, or a fresh state when absent or corrupt.
func (s *RedisStateStore) Load(ctx context.Context, userID string) (*domain.UserState, error) {
	raw, err := s.rdb.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.NewUserState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get state: %w", err)
	}

	state, err := domain.DecodeUserState(raw)
	if err != nil {
		s.logger.Warn("Corrupt state bucket, starting fresh", "user_id", userID, "error", err)
		return domain.NewUserState(), nil
	}
	return state, nil
}

// Save writes the bucket for userID without expiry.
func (s *RedisStateStore) Save(ctx context.Context, userID string, state *domain.UserState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode user state: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(userID), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set state: %w", err)
	}
	return nil
}

// UserIDs scans the key space under the prefix and returns the user ids, sorted.
func (s *RedisStateStore) UserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan states: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Ping checks the redis connection.
func (s *RedisStateStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *RedisStateStore) Close() error {
	return s.rdb.Close()
}
