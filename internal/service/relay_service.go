package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/weiawesome/emergency-chat-relay/internal/audit"
	"github.com/weiawesome/emergency-chat-relay/internal/domain"
	"github.com/weiawesome/emergency-chat-relay/internal/registry"
	"github.com/weiawesome/emergency-chat-relay/internal/store"
	"github.com/weiawesome/emergency-chat-relay/pkg/log"
	"github.com/weiawesome/emergency-chat-relay/pkg/pubsub"
)

const publishTimeout = 2 * time.Second

type relayService struct {
	registry     *registry.Registry
	store        store.MessageStore
	history      HistoryService
	publisher    pubsub.Publisher
	validate     *validator.Validate
	storeTimeout time.Duration
}

func NewRelayService(
	reg *registry.Registry,
	msgStore store.MessageStore,
	history HistoryService,
	publisher pubsub.Publisher,
	storeTimeout time.Duration,
) RelayService {
	if publisher == nil {
		publisher = pubsub.NopPublisher{}
	}
	return &relayService{
		registry:     reg,
		store:        msgStore,
		history:      history,
		publisher:    publisher,
		validate:     newValidator(),
		storeTimeout: storeTimeout,
	}
}

func (s *relayService) HandleJoin(ctx context.Context, p Participant) error {
	prev := s.registry.Register(p.EmergencyID(), p.ParticipantID(), p)
	if prev != nil && prev != registry.Handle(p) {
		oldID := ""
		if old, ok := prev.(Participant); ok {
			oldID = old.ID()
		}
		if err := prev.Close(domain.CloseReplaced, domain.ReasonReplaced); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Msg("failed to close replaced connection")
		}
		audit.Replaced(ctx, p.EmergencyID(), p.ParticipantID(), oldID)
	}

	audit.Join(ctx, p.EmergencyID(), p.ParticipantID())
	return nil
}

func (s *relayService) HandleMessage(ctx context.Context, p Participant, raw []byte) error {
	in, err := decodeInbound(raw)
	if err == nil {
		err = validateInbound(s.validate, in, p.ParticipantID())
	}
	if err != nil {
		s.reply(ctx, p, errorReply(err))
		return err
	}

	msg := &domain.ChatMessage{
		EmergencyID: p.EmergencyID(),
		SenderID:    in.SenderID,
		ReceiverID:  in.ReceiverID,
		SenderType:  domain.SenderType(in.SenderType),
		Body:        in.Message,
	}

	// The connection closing must not abort an append that already started.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	stored, err := s.store.Append(storeCtx, msg)
	cancel()
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to store message")
		s.reply(ctx, p, errorReply(err))
		if errors.Is(err, domain.ErrValidation) {
			return err
		}
		return fmt.Errorf("failed to store message: %w", err)
	}

	payload, err := json.Marshal(stored.ToDelivered())
	if err != nil {
		return fmt.Errorf("failed to marshal delivered message: %w", err)
	}
	delivered := s.registry.Broadcast(stored.EmergencyID, "", payload)

	s.afterPersist(ctx, stored)
	audit.MessageSent(ctx, stored.EmergencyID, stored.SenderID, stored.ID, delivered)
	return nil
}

// afterPersist runs the best-effort side effects of a stored message.
func (s *relayService) afterPersist(ctx context.Context, msg *domain.ChatMessage) {
	if s.history != nil {
		s.history.Invalidate(ctx, msg.EmergencyID)
	}

	event, err := pubsub.NewEvent(pubsub.EventMessagePersisted, msg.EmergencyID, &pubsub.MessagePersistedPayload{
		MessageID:   msg.ID,
		EmergencyID: msg.EmergencyID,
		SenderID:    msg.SenderID,
		ReceiverID:  msg.ReceiverID,
		SenderType:  string(msg.SenderType),
		Message:     msg.Body,
		Timestamp:   msg.Timestamp.UnixMilli(),
	})
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to build persisted event")
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, pubsub.EmergencyMessagesChannel(msg.EmergencyID), event); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to publish persisted event")
	}
}

func (s *relayService) reply(ctx context.Context, p Participant, text string) {
	data, err := json.Marshal(domain.NewErrorMessage(text))
	if err != nil {
		return
	}
	if err := p.Send(data); err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Msg("error reply dropped")
	}
}

func (s *relayService) HandleDisconnect(ctx context.Context, p Participant) error {
	if s.registry.Release(p.EmergencyID(), p.ParticipantID(), p) {
		audit.Leave(ctx, p.EmergencyID(), p.ParticipantID())
	}
	return nil
}

func (s *relayService) Participants(emergencyID string) []string {
	return s.registry.Participants(emergencyID)
}

func (s *relayService) Start(ctx context.Context) error {
	l := log.Ctx(ctx)
	l.Info().Msg("relay service started")
	return nil
}

func (s *relayService) Stop() error {
	s.registry.CloseAll(domain.CloseServerGoing, domain.ReasonShutdown)
	if err := s.publisher.Close(); err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("failed to close event publisher")
	}
	return nil
}
