package pubsub

import "fmt"

// Channel naming conventions for relay events.
const (
	// Relay -> downstream consumers (notifications, analytics).
	ChannelEmergencyMessages = "chat:emergency:%s:persisted"
)

// Event types published by the relay.
const (
	EventMessagePersisted = "message_persisted"
)

// EmergencyMessagesChannel returns the channel carrying persisted-message
// events for one emergency.
func EmergencyMessagesChannel(emergencyID string) string {
	return fmt.Sprintf(ChannelEmergencyMessages, emergencyID)
}

// MessagePersistedPayload describes a chat message after it reached the
// message store.
type MessagePersistedPayload struct {
	MessageID   string `json:"message_id"`
	EmergencyID string `json:"emergency_id"`
	SenderID    string `json:"sender_id"`
	ReceiverID  string `json:"receiver_id"`
	SenderType  string `json:"sender_type"`
	Message     string `json:"message"`
	Timestamp   int64  `json:"timestamp_unix_ms"`
}
