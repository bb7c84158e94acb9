package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Ctx retrieves the logger from the context.
// If no logger is found, the global logger is returned.
func Ctx(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}

// WithConnection derives a logger scoped to one relay connection and stores
// it in the returned context.
func WithConnection(ctx context.Context, connID, emergencyID, participantID string) context.Context {
	l := Ctx(ctx).With().
		Str(FieldConnID, connID).
		Str(FieldEmergencyID, emergencyID).
		Str(FieldParticipantID, participantID).
		Logger()
	return WithLogger(ctx, l)
}
