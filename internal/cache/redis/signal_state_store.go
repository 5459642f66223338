package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

var _ domain.SignalStateStore = (*SignalStateStore)(nil)

const (
	memoKey     = keyPrefix + "signal:memo"
	catalystKey = keyPrefix + "signal:catalyst"
)

// SignalStateStore implements domain.SignalStateStore as JSON values with a
// TTL. A missing key loads as the zero value.
type SignalStateStore struct {
	rdb *redis.Client
}

// NewSignalStateStore creates a SignalStateStore backed by the given Client.
func NewSignalStateStore(c *Client) *SignalStateStore {
	return &SignalStateStore{rdb: c.Underlying()}
}

func (s *SignalStateStore) SaveMemo(ctx context.Context, memo domain.SignalMemo, ttl time.Duration) error {
	return s.save(ctx, memoKey, memo, ttl)
}

func (s *SignalStateStore) LoadMemo(ctx context.Context) (domain.SignalMemo, error) {
	var memo domain.SignalMemo
	err := s.load(ctx, memoKey, &memo)
	return memo, err
}

func (s *SignalStateStore) SaveCatalyst(ctx context.Context, flag domain.CatalystFlag, ttl time.Duration) error {
	return s.save(ctx, catalystKey, flag, ttl)
}

func (s *SignalStateStore) LoadCatalyst(ctx context.Context) (domain.CatalystFlag, error) {
	var flag domain.CatalystFlag
	err := s.load(ctx, catalystKey, &flag)
	return flag, err
}

func (s *SignalStateStore) save(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: marshal %s: %w", key, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

func (s *SignalStateStore) load(ctx context.Context, key string, v any) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("redis: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("redis: unmarshal %s: %w", key, err)
	}
	return nil
}
