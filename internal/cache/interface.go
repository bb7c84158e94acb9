package cache

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/emergency-chat-relay/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// HistoryCache caches an emergency's history under a version number. Writers
// bump the version, so entries stored for an older version are never read
// again.
type HistoryCache interface {
	Version(ctx context.Context, emergencyID string) (int64, error)
	Get(ctx context.Context, emergencyID string, version int64) ([]domain.HistoryMessage, error)
	Set(ctx context.Context, emergencyID string, version int64, messages []domain.HistoryMessage, ttl time.Duration) error
	Invalidate(ctx context.Context, emergencyID string) error
	Close() error
}

// NopCache never hits.
type NopCache struct{}

func (NopCache) Version(context.Context, string) (int64, error) { return 0, nil }

func (NopCache) Get(context.Context, string, int64) ([]domain.HistoryMessage, error) {
	return nil, ErrCacheMiss
}

func (NopCache) Set(context.Context, string, int64, []domain.HistoryMessage, time.Duration) error {
	return nil
}

func (NopCache) Invalidate(context.Context, string) error { return nil }

func (NopCache) Close() error { return nil }
