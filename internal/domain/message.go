package domain

import (
	"strings"
	"time"
)

// SenderType is the role of a message author. The set is closed.
type SenderType string

const (
	SenderPatient SenderType = "patient"
	SenderDoctor  SenderType = "doctor"
)

// Valid reports whether t is one of the admitted sender types.
func (t SenderType) Valid() bool {
	return t == SenderPatient || t == SenderDoctor
}

// ChatMessage is a persisted chat message. It is immutable once the store
// has returned it.
type ChatMessage struct {
	ID          string
	Seq         int64
	EmergencyID string
	SenderID    string
	ReceiverID  string
	SenderType  SenderType
	Body        string
	Timestamp   time.Time
}

// Validate checks the fields a caller must supply before Append.
func (m *ChatMessage) Validate() error {
	switch {
	case strings.TrimSpace(m.EmergencyID) == "":
		return NewValidationError("emergencyId", "is required")
	case strings.TrimSpace(m.SenderID) == "":
		return NewValidationError("senderId", "is required")
	case strings.TrimSpace(m.ReceiverID) == "":
		return NewValidationError("receiverId", "is required")
	case !m.SenderType.Valid():
		return NewValidationError("senderType", "must be one of patient, doctor")
	case strings.TrimSpace(m.Body) == "":
		return NewValidationError("message", "must not be empty")
	}
	return nil
}

// Before reports whether m sorts before o in history order.
func (m *ChatMessage) Before(o *ChatMessage) bool {
	if !m.Timestamp.Equal(o.Timestamp) {
		return m.Timestamp.Before(o.Timestamp)
	}
	return m.Seq < o.Seq
}
