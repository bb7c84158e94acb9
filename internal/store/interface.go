package store

import (
	"context"

	"github.com/weiawesome/emergency-chat-relay/internal/domain"
)

// MessageStore is the durable, append-only record of chat messages.
type MessageStore interface {
	// Append validates msg, assigns id, seq and timestamp, persists it and
	// returns the canonical record. Backend failures wrap
	// domain.ErrStoreUnavailable.
	Append(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error)
	// ListByEmergency returns every message of the emergency ordered by
	// (timestamp, seq). It never returns a nil slice on success.
	ListByEmergency(ctx context.Context, emergencyID string) ([]domain.ChatMessage, error)
	Ping(ctx context.Context) error
	Close() error
}
