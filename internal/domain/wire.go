package domain

import "time"

// TimestampLayout is the wire format of every timestamp sent to clients.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Client -> Server

// InboundMessage is the chat frame a participant sends over the socket.
type InboundMessage struct {
	SenderID   string `json:"senderId" validate:"required,notblank"`
	SenderType string `json:"senderType" validate:"required,oneof=patient doctor"`
	Message    string `json:"message" validate:"required,notblank"`
	ReceiverID string `json:"receiverId" validate:"required,notblank"`
}

// Server -> Client

// DeliveredMessage is the canonical view broadcast after persistence.
type DeliveredMessage struct {
	ID         string `json:"id,omitempty"`
	SenderID   string `json:"senderId"`
	SenderType string `json:"senderType"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

// ErrorMessage is sent only to the participant whose frame was rejected.
type ErrorMessage struct {
	Error string `json:"error"`
}

// HistoryMessage is one element of the history endpoint's response.
type HistoryMessage struct {
	ID          string `json:"id"`
	SenderID    string `json:"senderId"`
	ReceiverID  string `json:"receiverId"`
	EmergencyID string `json:"emergencyId"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
	SenderType  string `json:"senderType"`
}

func NewErrorMessage(msg string) *ErrorMessage {
	return &ErrorMessage{Error: msg}
}

// FormatTimestamp renders t in the wire layout, always in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ToDelivered builds the broadcast view of a stored message.
func (m *ChatMessage) ToDelivered() *DeliveredMessage {
	return &DeliveredMessage{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderType: string(m.SenderType),
		Message:    m.Body,
		Timestamp:  FormatTimestamp(m.Timestamp),
	}
}

// ToHistory builds the history view of a stored message.
func (m *ChatMessage) ToHistory() HistoryMessage {
	return HistoryMessage{
		ID:          m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		EmergencyID: m.EmergencyID,
		Message:     m.Body,
		Timestamp:   FormatTimestamp(m.Timestamp),
		SenderType:  string(m.SenderType),
	}
}
