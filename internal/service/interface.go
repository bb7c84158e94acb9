package service

import (
	"context"

	"github.com/weiawesome/emergency-chat-relay/internal/domain"
	"github.com/weiawesome/emergency-chat-relay/internal/registry"
)

// Participant is a joined connection as seen by the relay.
type Participant interface {
	registry.Handle
	ID() string
	EmergencyID() string
	ParticipantID() string
}

type RelayService interface {
	HandleJoin(ctx context.Context, p Participant) error
	HandleMessage(ctx context.Context, p Participant, raw []byte) error
	HandleDisconnect(ctx context.Context, p Participant) error
	Participants(emergencyID string) []string
	Start(ctx context.Context) error
	Stop() error
}

type HistoryService interface {
	GetHistory(ctx context.Context, emergencyID string) ([]domain.HistoryMessage, error)
	Invalidate(ctx context.Context, emergencyID string)
}
