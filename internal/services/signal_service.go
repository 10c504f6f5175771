package services

import (
	"context"

	"parley-chat/internal/commands"
	"parley-chat/internal/events"
	"parley-chat/internal/proxy"
	parley_errors "parley-chat/pkg/errors"

	"go.uber.org/zap"
)

// SignalService relays ephemeral room signals. Nothing is persisted and a
// failed relay is only logged; the origin connection is always skipped.
type SignalService struct {
	access      *proxy.AccessControl
	broadcaster events.Broadcaster
	logger      *zap.Logger
}

func NewSignalService(access *proxy.AccessControl, broadcaster events.Broadcaster, logger *zap.Logger) *SignalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignalService{access: access, broadcaster: broadcaster, logger: logger}
}

func (s *SignalService) BroadcastTyping(ctx context.Context, cmd commands.TypingCommand) error {
	if err := s.access.CanSubscribe(ctx, cmd.UserID, cmd.RoomKey); err != nil {
		return err
	}
	s.relay(ctx, events.EventTyping, cmd.RoomKey.String(), cmd.ExceptConn, events.TypingPayload{
		UserID:   cmd.UserID,
		IsTyping: cmd.IsTyping,
	})
	return nil
}

func (s *SignalService) BroadcastReactionPulse(ctx context.Context, cmd commands.ReactionPulseCommand) error {
	if err := s.access.CanSubscribe(ctx, cmd.UserID, cmd.RoomKey); err != nil {
		return err
	}
	s.relay(ctx, events.EventReactionPulse, cmd.RoomKey.String(), cmd.ExceptConn, events.ReactionPulsePayload{
		UserID:    cmd.UserID,
		MessageID: cmd.MessageID,
		Emoji:     cmd.Emoji,
	})
	return nil
}

func (s *SignalService) RegisterHandlers(bus *commands.Bus) {
	bus.Register(commands.TypeTyping, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.TypingCommand)
		if !ok {
			return commands.Result{}, parley_errors.ErrInvalidInput
		}
		return commands.Result{AggregateID: c.RoomKey.String()}, s.BroadcastTyping(ctx, c)
	}))
	bus.Register(commands.TypeReactionPulse, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.ReactionPulseCommand)
		if !ok {
			return commands.Result{}, parley_errors.ErrInvalidInput
		}
		return commands.Result{AggregateID: c.RoomKey.String()}, s.BroadcastReactionPulse(ctx, c)
	}))
}

func (s *SignalService) relay(ctx context.Context, eventType, roomKey, exceptConn string, payload interface{}) {
	env, err := events.NewEnvelope(eventType, roomKey, payload)
	if err != nil {
		s.logger.Error("failed to build signal envelope", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	if _, err := s.broadcaster.Publish(ctx, env, exceptConn); err != nil {
		s.logger.Warn("signal relay failed",
			zap.String("room_key", roomKey),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
