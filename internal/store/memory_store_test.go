package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/emergency-chat-relay/internal/config"
	"github.com/weiawesome/emergency-chat-relay/internal/domain"
	"github.com/weiawesome/emergency-chat-relay/internal/idgen"
)

func newTestStamper(t *testing.T) *Stamper {
	t.Helper()
	seq, err := idgen.NewSnowflake(1, idgen.DefaultEpoch)
	require.NoError(t, err)
	return NewStamper(seq, seq)
}

func chat(emergencyID, senderID, body string) *domain.ChatMessage {
	return &domain.ChatMessage{
		EmergencyID: emergencyID,
		SenderID:    senderID,
		ReceiverID:  "doc1",
		SenderType:  domain.SenderPatient,
		Body:        body,
	}
}

func TestMemoryStoreAppendAssignsFields(t *testing.T) {
	s := NewMemoryStore(newTestStamper(t))
	in := chat("E1", "u1", "help")

	got, err := s.Append(context.Background(), in)
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.NotZero(t, got.Seq)
	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, time.UTC, got.Timestamp.Location())
	assert.Equal(t, "help", got.Body)
	assert.Empty(t, in.ID, "input must not be mutated")
}

func TestMemoryStoreListOrderedWithTies(t *testing.T) {
	st := newTestStamper(t)
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return fixed }
	s := NewMemoryStore(st)
	ctx := context.Background()

	for _, body := range []string{"a", "b", "c"} {
		_, err := s.Append(ctx, chat("E1", "u1", body))
		require.NoError(t, err)
	}
	_, err := s.Append(ctx, chat("E2", "u2", "other"))
	require.NoError(t, err)

	list, err := s.ListByEmergency(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].Body)
	assert.Equal(t, "b", list[1].Body)
	assert.Equal(t, "c", list[2].Body)
	for i := 1; i < len(list); i++ {
		assert.True(t, list[i-1].Before(&list[i]))
	}
}

func TestMemoryStoreClockStepsBack(t *testing.T) {
	st := newTestStamper(t)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }
	s := NewMemoryStore(st)
	ctx := context.Background()

	first, err := s.Append(ctx, chat("E1", "u1", "first"))
	require.NoError(t, err)

	now = now.Add(-time.Minute)
	second, err := s.Append(ctx, chat("E1", "u1", "second"))
	require.NoError(t, err)

	assert.False(t, second.Timestamp.Before(first.Timestamp))

	list, err := s.ListByEmergency(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, "first", list[0].Body)
	assert.Equal(t, "second", list[1].Body)
}

func TestMemoryStoreListEmpty(t *testing.T) {
	s := NewMemoryStore(newTestStamper(t))

	list, err := s.ListByEmergency(context.Background(), "nothing")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestMemoryStoreValidation(t *testing.T) {
	s := NewMemoryStore(newTestStamper(t))

	tests := []struct {
		name  string
		msg   *domain.ChatMessage
		field string
	}{
		{"missing receiver", &domain.ChatMessage{EmergencyID: "E1", SenderID: "u1", SenderType: domain.SenderPatient, Body: "x"}, "receiverId"},
		{"blank body", &domain.ChatMessage{EmergencyID: "E1", SenderID: "u1", ReceiverID: "d", SenderType: domain.SenderDoctor, Body: "  "}, "message"},
		{"bad sender type", &domain.ChatMessage{EmergencyID: "E1", SenderID: "u1", ReceiverID: "d", SenderType: "nurse", Body: "x"}, "senderType"},
		{"missing emergency", &domain.ChatMessage{SenderID: "u1", ReceiverID: "d", SenderType: domain.SenderDoctor, Body: "x"}, "emergencyId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Append(context.Background(), tt.msg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))

			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore(newTestStamper(t))
	require.NoError(t, s.Close())

	_, err := s.Append(context.Background(), chat("E1", "u1", "x"))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = s.ListByEmergency(context.Background(), "E1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	assert.ErrorIs(t, s.Ping(context.Background()), domain.ErrStoreUnavailable)
}

func TestMemoryStoreConcurrentAppend(t *testing.T) {
	s := NewMemoryStore(newTestStamper(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Append(ctx, chat("E1", "u1", "m"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := s.ListByEmergency(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, list, 50)

	seen := make(map[string]bool)
	for i := range list {
		assert.False(t, seen[list[i].ID])
		seen[list[i].ID] = true
		if i > 0 {
			assert.True(t, list[i-1].Before(&list[i]))
		}
	}
}

func TestNewUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), configFor("bogus"), newTestStamper(t))
	assert.Error(t, err)
}

func configFor(driver string) config.StoreConfig {
	return config.StoreConfig{Driver: driver}
}
