package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/weiawesome/emergency-chat-relay/internal/cache"
	"github.com/weiawesome/emergency-chat-relay/internal/domain"
	"github.com/weiawesome/emergency-chat-relay/internal/idgen"
	"github.com/weiawesome/emergency-chat-relay/internal/store"
	"github.com/weiawesome/emergency-chat-relay/pkg/pubsub"
)

type fakeParticipant struct {
	mu          sync.Mutex
	id          string
	emergencyID string
	userID      string
	frames      [][]byte
	closed      bool
	closeCode   int
}

func newParticipant(id, emergencyID, userID string) *fakeParticipant {
	return &fakeParticipant{id: id, emergencyID: emergencyID, userID: userID}
}

func (f *fakeParticipant) ID() string            { return f.id }
func (f *fakeParticipant) EmergencyID() string   { return f.emergencyID }
func (f *fakeParticipant) ParticipantID() string { return f.userID }

func (f *fakeParticipant) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	f.frames = append(f.frames, payload)
	return nil
}

func (f *fakeParticipant) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCode = code
	return nil
}

func (f *fakeParticipant) decoded(t *testing.T) []map[string]string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]string, 0, len(f.frames))
	for _, fr := range f.frames {
		var m map[string]string
		require.NoError(t, json.Unmarshal(fr, &m))
		out = append(out, m)
	}
	return out
}

type failingStore struct{}

func (failingStore) Append(context.Context, *domain.ChatMessage) (*domain.ChatMessage, error) {
	return nil, errors.Join(domain.ErrStoreUnavailable, errors.New("connection refused"))
}

func (failingStore) ListByEmergency(context.Context, string) ([]domain.ChatMessage, error) {
	return nil, errors.Join(domain.ErrStoreUnavailable, errors.New("connection refused"))
}

func (failingStore) Ping(context.Context) error { return domain.ErrStoreUnavailable }
func (failingStore) Close() error               { return nil }

// countingStore records how often the history was read.
type countingStore struct {
	store.MessageStore
	mu    sync.Mutex
	lists int
}

func (c *countingStore) ListByEmergency(ctx context.Context, emergencyID string) ([]domain.ChatMessage, error) {
	c.mu.Lock()
	c.lists++
	c.mu.Unlock()
	return c.MessageStore.ListByEmergency(ctx, emergencyID)
}

func (c *countingStore) listCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lists
}

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	events   []*pubsub.Event
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, event *pubsub.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type recordingHistory struct {
	mu          sync.Mutex
	invalidated []string
}

func (h *recordingHistory) GetHistory(context.Context, string) ([]domain.HistoryMessage, error) {
	return []domain.HistoryMessage{}, nil
}

func (h *recordingHistory) Invalidate(_ context.Context, emergencyID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invalidated = append(h.invalidated, emergencyID)
}

// memoryCache is an in-process HistoryCache with synchronous sets.
type memoryCache struct {
	mu       sync.Mutex
	versions map[string]int64
	data     map[string][]domain.HistoryMessage
	sets     chan struct{}
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		versions: make(map[string]int64),
		data:     make(map[string][]domain.HistoryMessage),
		sets:     make(chan struct{}, 16),
	}
}

func (c *memoryCache) key(emergencyID string, version int64) string {
	return fmt.Sprintf("%s|%d", emergencyID, version)
}

func (c *memoryCache) Version(_ context.Context, emergencyID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[emergencyID], nil
}

func (c *memoryCache) Get(_ context.Context, emergencyID string, version int64) ([]domain.HistoryMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.data[c.key(emergencyID, version)]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return m, nil
}

func (c *memoryCache) Set(_ context.Context, emergencyID string, version int64, messages []domain.HistoryMessage, _ time.Duration) error {
	c.mu.Lock()
	c.data[c.key(emergencyID, version)] = messages
	c.mu.Unlock()
	c.sets <- struct{}{}
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, emergencyID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[emergencyID]++
	return nil
}

func (c *memoryCache) Close() error { return nil }

func newMemoryStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	seq, err := idgen.NewSnowflake(1, idgen.DefaultEpoch)
	require.NoError(t, err)
	return store.NewMemoryStore(store.NewStamper(seq, seq))
}
