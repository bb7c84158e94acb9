package store

import (
	"context"
	"sort"
	"sync"

	"github.com/weiawesome/emergency-chat-relay/internal/domain"
)

// MemoryStore keeps messages in process memory. Used for development and
// tests.
type MemoryStore struct {
	mu       sync.RWMutex
	stamper  *Stamper
	messages map[string][]domain.ChatMessage
	closed   bool
}

func NewMemoryStore(stamper *Stamper) *MemoryStore {
	return &MemoryStore{
		stamper:  stamper,
		messages: make(map[string][]domain.ChatMessage),
	}
}

func (s *MemoryStore) Append(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("append", err)
	}

	stamped, err := s.stamper.Stamp(msg)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, unavailable("append", errStoreClosed)
	}

	list := s.messages[stamped.EmergencyID]
	i := sort.Search(len(list), func(i int) bool { return stamped.Before(&list[i]) })
	list = append(list, domain.ChatMessage{})
	copy(list[i+1:], list[i:])
	list[i] = *stamped
	s.messages[stamped.EmergencyID] = list

	return stamped, nil
}

func (s *MemoryStore) ListByEmergency(ctx context.Context, emergencyID string) ([]domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, unavailable("list", errStoreClosed)
	}

	list := s.messages[emergencyID]
	out := make([]domain.ChatMessage, len(list))
	copy(out, list)
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return unavailable("ping", errStoreClosed)
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
