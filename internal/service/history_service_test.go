package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/emergency-chat-relay/internal/domain"
)

func appendMessage(t *testing.T, s *countingStore, emergencyID, body string) {
	t.Helper()
	_, err := s.Append(context.Background(), &domain.ChatMessage{
		EmergencyID: emergencyID,
		SenderID:    "patient1",
		ReceiverID:  "doctor1",
		SenderType:  domain.SenderPatient,
		Body:        body,
	})
	require.NoError(t, err)
}

func waitForSet(t *testing.T, c *memoryCache) {
	t.Helper()
	select {
	case <-c.sets:
	case <-time.After(2 * time.Second):
		t.Fatal("cache set not observed")
	}
}

func TestGetHistoryEmpty(t *testing.T) {
	svc := NewHistoryService(newMemoryStore(t), nil, time.Minute)

	got, err := svc.GetHistory(context.Background(), "E1")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetHistoryUsesCacheUntilInvalidated(t *testing.T) {
	st := &countingStore{MessageStore: newMemoryStore(t)}
	c := newMemoryCache()
	svc := NewHistoryService(st, c, time.Minute)
	ctx := context.Background()

	appendMessage(t, st, "E1", "first")

	got, err := svc.GetHistory(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	waitForSet(t, c)

	got, err = svc.GetHistory(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, st.listCalls())

	appendMessage(t, st, "E1", "second")
	svc.Invalidate(ctx, "E1")

	got, err = svc.GetHistory(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Message)
	assert.Equal(t, "second", got[1].Message)
	assert.Equal(t, "E1", got[1].EmergencyID)
	assert.Equal(t, 2, st.listCalls())
}

func TestGetHistoryStoreFailure(t *testing.T) {
	svc := NewHistoryService(failingStore{}, nil, time.Minute)

	_, err := svc.GetHistory(context.Background(), "E1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
