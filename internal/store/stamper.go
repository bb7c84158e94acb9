package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/weiawesome/emergency-chat-relay/internal/domain"
	"github.com/weiawesome/emergency-chat-relay/internal/idgen"
)

// Stamper assigns the store-owned fields of a message. Timestamps never go
// backwards within a process, so (timestamp, seq) follows insertion order.
type Stamper struct {
	mu     sync.Mutex
	ids    idgen.Generator
	seq    idgen.Sequencer
	now    func() time.Time
	lastTS time.Time
}

func NewStamper(ids idgen.Generator, seq idgen.Sequencer) *Stamper {
	return &Stamper{
		ids: ids,
		seq: seq,
		now: time.Now,
	}
}

// Stamp validates msg and returns a copy carrying id, seq and timestamp.
func (s *Stamper) Stamp(msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	if msg == nil {
		return nil, domain.NewValidationError("message", "is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	id, err := s.ids.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.seq.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to generate sequence: %w", err)
	}

	// Millisecond precision is what every backend and the wire format keep.
	ts := s.now().UTC().Truncate(time.Millisecond)
	if ts.Before(s.lastTS) {
		ts = s.lastTS
	}
	s.lastTS = ts

	out := *msg
	out.ID = id
	out.Seq = seq
	out.Timestamp = ts
	return &out, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
