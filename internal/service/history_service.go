package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weiawesome/emergency-chat-relay/internal/cache"
	"github.com/weiawesome/emergency-chat-relay/internal/domain"
	"github.com/weiawesome/emergency-chat-relay/internal/store"
	"github.com/weiawesome/emergency-chat-relay/pkg/log"
	"golang.org/x/sync/singleflight"
)

type historyService struct {
	store    store.MessageStore
	cache    cache.HistoryCache
	cacheTTL time.Duration
	sf       singleflight.Group
}

func NewHistoryService(msgStore store.MessageStore, historyCache cache.HistoryCache, cacheTTL time.Duration) HistoryService {
	if historyCache == nil {
		historyCache = cache.NopCache{}
	}
	return &historyService{
		store:    msgStore,
		cache:    historyCache,
		cacheTTL: cacheTTL,
	}
}

func (s *historyService) GetHistory(ctx context.Context, emergencyID string) ([]domain.HistoryMessage, error) {
	version, err := s.cache.Version(ctx, emergencyID)
	if err != nil {
		// Without a version the cache cannot be trusted; read through.
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("cache version error")
		return s.load(ctx, emergencyID)
	}

	key := fmt.Sprintf("%s:%d", emergencyID, version)
	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		return s.fetchWithCache(ctx, emergencyID, version)
	})
	if err != nil {
		return nil, err
	}

	messages, ok := result.([]domain.HistoryMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return messages, nil
}

func (s *historyService) fetchWithCache(ctx context.Context, emergencyID string, version int64) ([]domain.HistoryMessage, error) {
	cached, err := s.cache.Get(ctx, emergencyID, version)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("cache get error")
	}

	messages, err := s.load(ctx, emergencyID)
	if err != nil {
		return nil, err
	}

	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.cache.Set(cacheCtx, emergencyID, version, messages, s.cacheTTL); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("cache set error")
		}
	}()

	return messages, nil
}

func (s *historyService) load(ctx context.Context, emergencyID string) ([]domain.HistoryMessage, error) {
	list, err := s.store.ListByEmergency(ctx, emergencyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	messages := make([]domain.HistoryMessage, 0, len(list))
	for i := range list {
		messages = append(messages, list[i].ToHistory())
	}
	return messages, nil
}

// Invalidate moves the emergency to a new cache version. Failures are logged;
// the next read at worst serves the previous version until its TTL expires.
func (s *historyService) Invalidate(ctx context.Context, emergencyID string) {
	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.cache.Invalidate(cacheCtx, emergencyID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldEmergencyID, emergencyID).Msg("cache invalidate error")
	}
}
