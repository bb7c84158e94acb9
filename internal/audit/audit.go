package audit

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/weiawesome/emergency-chat-relay/pkg/log"
)

// Audit actions for the relay.
const (
	ActionJoin        = "chat.join"
	ActionReplaced    = "chat.replaced"
	ActionLeave       = "chat.leave"
	ActionSendMessage = "chat.send_message"
	ActionReject      = "chat.reject"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

func entry(ctx context.Context, action, userID string) *zerolog.Event {
	l := log.Ctx(ctx)
	return l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID)
}

// Join records a participant entering an emergency channel.
func Join(ctx context.Context, emergencyID, userID string) {
	entry(ctx, ActionJoin, userID).
		Str(log.FieldEmergencyID, emergencyID).
		Msg("participant joined")
}

// Replaced records an older connection evicted by a newer one for the same
// participant.
func Replaced(ctx context.Context, emergencyID, userID, oldConnID string) {
	entry(ctx, ActionReplaced, userID).
		Str(log.FieldEmergencyID, emergencyID).
		Str(FieldTargetID, oldConnID).
		Msg("previous connection replaced")
}

func Leave(ctx context.Context, emergencyID, userID string) {
	entry(ctx, ActionLeave, userID).
		Str(log.FieldEmergencyID, emergencyID).
		Msg("participant left")
}

// MessageSent records a persisted and broadcast message.
func MessageSent(ctx context.Context, emergencyID, userID, messageID string, delivered int) {
	entry(ctx, ActionSendMessage, userID).
		Str(log.FieldEmergencyID, emergencyID).
		Str(FieldTargetID, messageID).
		Int(log.FieldDelivered, delivered).
		Msg("message relayed")
}

// Reject records a connection closed before it joined.
func Reject(ctx context.Context, emergencyID, userID, detail string) {
	entry(ctx, ActionReject, userID).
		Str(log.FieldEmergencyID, emergencyID).
		Str(FieldDetail, detail).
		Msg("connection rejected")
}
