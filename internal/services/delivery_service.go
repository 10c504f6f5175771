package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parley-chat/internal/commands"
	"parley-chat/internal/domain/message"
	"parley-chat/internal/domain/room"
	"parley-chat/internal/events"
	"parley-chat/internal/metrics"
	"parley-chat/internal/proxy"
	"parley-chat/internal/repository"
	parley_errors "parley-chat/pkg/errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// IdempotencyStore remembers the durable message produced for a (sender, tempId).
type IdempotencyStore interface {
	Lookup(ctx context.Context, senderID uuid.UUID, tempID string) (*message.Message, error)
	Remember(ctx context.Context, m message.Message) error
}

// SendResult is the direct acknowledgement of a send.
type SendResult struct {
	Message   message.Message `json:"message"`
	TempID    string          `json:"temp_id,omitempty"`
	Duplicate bool            `json:"duplicate,omitempty"`
}

// DeliveryService persists messages and fans them out to room subscribers.
// Sends to the same room are serialized from append through publish, so
// subscribers observe a room's messages in append order.
type DeliveryService struct {
	repo        repository.MessageRepository
	access      *proxy.AccessControl
	broadcaster events.Broadcaster
	idempotency IdempotencyStore
	locks       *roomLocks
	sendTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
	tracer      trace.Tracer
}

type DeliveryOption func(*DeliveryService)

// WithIdempotency makes retried sends with the same tempId return the first result.
func WithIdempotency(store IdempotencyStore) DeliveryOption {
	return func(s *DeliveryService) { s.idempotency = store }
}

func WithSendTimeout(d time.Duration) DeliveryOption {
	return func(s *DeliveryService) { s.sendTimeout = d }
}

func WithMetrics(m *metrics.Metrics) DeliveryOption {
	return func(s *DeliveryService) { s.metrics = m }
}

func WithLogger(l *zap.Logger) DeliveryOption {
	return func(s *DeliveryService) { s.logger = l }
}

func NewDeliveryService(repo repository.MessageRepository, access *proxy.AccessControl, broadcaster events.Broadcaster, opts ...DeliveryOption) *DeliveryService {
	s := &DeliveryService{
		repo:        repo,
		access:      access,
		broadcaster: broadcaster,
		locks:       newRoomLocks(),
		logger:      zap.NewNop(),
		tracer:      otel.Tracer("parley-chat/delivery"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DeliveryService) Send(ctx context.Context, cmd commands.SendMessageCommand) (SendResult, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "delivery.send")
	defer span.End()

	result, err := s.send(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.SendOutcome(outcomeOf(err))
		return SendResult{}, err
	}
	span.SetAttributes(
		attribute.String("message.id", result.Message.ID),
		attribute.String("room.key", result.Message.ConversationKey.String()),
		attribute.Bool("duplicate", result.Duplicate),
	)
	s.metrics.SendOutcome(outcomeOf(nil))
	s.metrics.ObserveSend(time.Since(started).Seconds())
	return result, nil
}

func (s *DeliveryService) send(ctx context.Context, cmd commands.SendMessageCommand) (SendResult, error) {
	if err := cmd.Validate(); err != nil {
		return SendResult{}, fmt.Errorf("%w: %v", parley_errors.ErrValidation, err)
	}
	if err := s.access.CanSendMessage(ctx, cmd.SenderID, cmd.Target()); err != nil {
		return SendResult{}, err
	}
	key, err := room.ForTarget(cmd.SenderID, cmd.Target())
	if err != nil {
		return SendResult{}, fmt.Errorf("%w: %v", parley_errors.ErrValidation, err)
	}

	unlock := s.locks.Lock(key.String())
	defer unlock()

	if dup, ok := s.lookupDuplicate(ctx, cmd); ok {
		return SendResult{Message: dup, TempID: cmd.TempID, Duplicate: true}, nil
	}

	appendCtx := ctx
	if s.sendTimeout > 0 {
		var cancel context.CancelFunc
		appendCtx, cancel = context.WithTimeout(ctx, s.sendTimeout)
		defer cancel()
	}

	draft := cmd.Message()
	if _, err := s.repo.Append(appendCtx, draft); err != nil {
		if errors.Is(err, parley_errors.ErrValidation) || errors.Is(err, parley_errors.ErrPersistence) {
			return SendResult{}, err
		}
		return SendResult{}, fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
	}
	durable := draft.Clone()

	if s.idempotency != nil && cmd.IdempotencyKey() != "" {
		if err := s.idempotency.Remember(ctx, durable); err != nil {
			s.logger.Warn("failed to remember send for idempotency",
				zap.String("message_id", durable.ID), zap.Error(err))
		}
	}

	// The message is durable from here on; fan-out problems are logged, not returned.
	s.publish(ctx, events.EventMessageNew, key, durable, "")

	return SendResult{Message: durable, TempID: cmd.TempID}, nil
}

func (s *DeliveryService) lookupDuplicate(ctx context.Context, cmd commands.SendMessageCommand) (message.Message, bool) {
	tempID := cmd.IdempotencyKey()
	if s.idempotency == nil || tempID == "" {
		return message.Message{}, false
	}
	prior, err := s.idempotency.Lookup(ctx, cmd.SenderID, tempID)
	if err != nil {
		s.logger.Warn("idempotency lookup failed, sending anyway",
			zap.String("sender_id", cmd.SenderID.String()), zap.Error(err))
		return message.Message{}, false
	}
	if prior == nil {
		return message.Message{}, false
	}
	return *prior, true
}

// MarkSeen records that userID observed messageID. Repeating it changes nothing.
func (s *DeliveryService) MarkSeen(ctx context.Context, userID uuid.UUID, messageID string) error {
	m, err := s.visibleMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}
	if err := s.repo.MarkSeen(ctx, messageID, userID); err != nil {
		return err
	}
	s.publish(ctx, events.EventMessageSeen, m.ConversationKey, events.SeenPayload{
		MessageID: messageID,
		UserID:    userID,
		SeenAt:    time.Now().UTC(),
	}, "")
	return nil
}

// MarkConversationSeen marks every message userID did not send as seen.
func (s *DeliveryService) MarkConversationSeen(ctx context.Context, userID uuid.UUID, key room.Key) (int64, error) {
	if err := s.access.CanViewConversation(ctx, userID, key); err != nil {
		return 0, err
	}
	n, err := s.repo.MarkConversationSeen(ctx, key, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.publish(ctx, events.EventMessageSeen, key, events.SeenPayload{
			UserID: userID,
			SeenAt: time.Now().UTC(),
			Count:  n,
		}, "")
	}
	return n, nil
}

func (s *DeliveryService) AddReaction(ctx context.Context, userID uuid.UUID, messageID, emoji string) error {
	return s.react(ctx, commands.ReactCommand{UserID: userID, MessageID: messageID, Emoji: emoji})
}

func (s *DeliveryService) RemoveReaction(ctx context.Context, userID uuid.UUID, messageID, emoji string) error {
	return s.react(ctx, commands.ReactCommand{UserID: userID, MessageID: messageID, Emoji: emoji, Remove: true})
}

func (s *DeliveryService) react(ctx context.Context, cmd commands.ReactCommand) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("%w: %v", parley_errors.ErrValidation, err)
	}
	m, err := s.visibleMessage(ctx, cmd.UserID, cmd.MessageID)
	if err != nil {
		return err
	}
	if cmd.Remove {
		err = s.repo.RemoveReaction(ctx, cmd.MessageID, cmd.UserID, cmd.Emoji)
	} else {
		err = s.repo.AddReaction(ctx, cmd.MessageID, cmd.UserID, cmd.Emoji)
	}
	if err != nil {
		return err
	}
	s.publish(ctx, events.EventMessageReaction, m.ConversationKey, events.ReactionPayload{
		MessageID: cmd.MessageID,
		UserID:    cmd.UserID,
		Emoji:     cmd.Emoji,
		Removed:   cmd.Remove,
	}, "")
	return nil
}

// SetPin replaces the conversation's pin. A nil messageID clears it.
func (s *DeliveryService) SetPin(ctx context.Context, userID uuid.UUID, key room.Key, messageID *string) error {
	if err := s.access.CanPin(ctx, userID, key); err != nil {
		return err
	}
	if messageID != nil {
		m, err := s.repo.GetByID(ctx, *messageID)
		if err != nil {
			return err
		}
		if m.ConversationKey != key || m.IsDeleted {
			return parley_errors.ErrNotFound
		}
	}
	if err := s.repo.SetPin(ctx, key, messageID, userID); err != nil {
		return err
	}
	s.publish(ctx, events.EventMessagePinned, key, events.PinPayload{
		MessageID: messageID,
		PinnedBy:  userID,
	}, "")
	return nil
}

func (s *DeliveryService) GetPin(ctx context.Context, userID uuid.UUID, key room.Key) (*message.Pin, error) {
	if err := s.access.CanViewConversation(ctx, userID, key); err != nil {
		return nil, err
	}
	return s.repo.GetPin(ctx, key)
}

func (s *DeliveryService) ListHistory(ctx context.Context, userID uuid.UUID, key room.Key, cursor string, limit int) (message.Page, error) {
	if err := s.access.CanViewConversation(ctx, userID, key); err != nil {
		return message.Page{}, err
	}
	return s.repo.ListHistory(ctx, key, userID, cursor, limit)
}

func (s *DeliveryService) Search(ctx context.Context, userID uuid.UUID, key room.Key, query string, limit int) ([]message.Message, error) {
	if err := s.access.CanViewConversation(ctx, userID, key); err != nil {
		return nil, err
	}
	return s.repo.Search(ctx, key, userID, query, limit)
}

// Recall deletes a message for everyone. Only its sender may recall it.
func (s *DeliveryService) Recall(ctx context.Context, userID uuid.UUID, messageID string) error {
	m, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if m.SenderID != userID {
		return fmt.Errorf("%w: only the sender can recall a message", parley_errors.ErrForbidden)
	}
	if m.IsDeleted {
		return nil
	}
	if err := s.repo.Recall(ctx, messageID); err != nil {
		return err
	}
	s.publish(ctx, events.EventMessageDeleted, m.ConversationKey, events.DeletedPayload{
		MessageID: messageID,
		DeletedBy: userID,
	}, "")
	return nil
}

// DeleteForMe hides a message from userID's reads only. Nobody else is told.
func (s *DeliveryService) DeleteForMe(ctx context.Context, userID uuid.UUID, messageID string) error {
	if _, err := s.visibleMessage(ctx, userID, messageID); err != nil {
		return err
	}
	return s.repo.DeleteFor(ctx, messageID, userID)
}

// RegisterHandlers exposes the write operations on the command bus.
func (s *DeliveryService) RegisterHandlers(bus *commands.Bus) {
	bus.Register(commands.TypeSendMessage, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.SendMessageCommand)
		if !ok {
			return commands.Result{}, parley_errors.ErrInvalidInput
		}
		res, err := s.Send(ctx, c)
		if err != nil {
			return commands.Result{}, err
		}
		return commands.Result{AggregateID: res.Message.ID, Payload: res}, nil
	}))

	bus.Register(commands.TypeMarkSeen, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.MarkSeenCommand)
		if !ok {
			return commands.Result{}, parley_errors.ErrInvalidInput
		}
		return commands.Result{AggregateID: c.MessageID}, s.MarkSeen(ctx, c.UserID, c.MessageID)
	}))

	bus.Register(commands.TypeMarkConversationSeen, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.MarkConversationSeenCommand)
		if !ok {
			return commands.Result{}, parley_errors.ErrInvalidInput
		}
		n, err := s.MarkConversationSeen(ctx, c.UserID, c.ConversationKey)
		return commands.Result{AggregateID: c.ConversationKey.String(), Payload: n}, err
	}))

	react := commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.ReactCommand)
		if !ok {
			return commands.Result{}, parley_errors.ErrInvalidInput
		}
		return commands.Result{AggregateID: c.MessageID}, s.react(ctx, c)
	})
	bus.Register(commands.TypeAddReaction, react)
	bus.Register(commands.TypeRemoveReaction, react)

	bus.Register(commands.TypeSetPin, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.SetPinCommand)
		if !ok {
			return commands.Result{}, parley_errors.ErrInvalidInput
		}
		return commands.Result{AggregateID: c.ConversationKey.String()}, s.SetPin(ctx, c.UserID, c.ConversationKey, c.MessageID)
	}))

	bus.Register(commands.TypeRecallMessage, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.RecallMessageCommand)
		if !ok {
			return commands.Result{}, parley_errors.ErrInvalidInput
		}
		return commands.Result{AggregateID: c.MessageID}, s.Recall(ctx, c.UserID, c.MessageID)
	}))

	bus.Register(commands.TypeDeleteForMe, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.DeleteForMeCommand)
		if !ok {
			return commands.Result{}, parley_errors.ErrInvalidInput
		}
		return commands.Result{AggregateID: c.MessageID}, s.DeleteForMe(ctx, c.UserID, c.MessageID)
	}))
}

// visibleMessage loads a message the caller is allowed to act on.
func (s *DeliveryService) visibleMessage(ctx context.Context, userID uuid.UUID, messageID string) (message.Message, error) {
	m, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return message.Message{}, err
	}
	if err := s.access.CanViewConversation(ctx, userID, m.ConversationKey); err != nil {
		return message.Message{}, err
	}
	if !m.VisibleTo(userID) {
		return message.Message{}, parley_errors.ErrNotFound
	}
	return m, nil
}

func (s *DeliveryService) publish(ctx context.Context, eventType string, key room.Key, payload interface{}, exceptConn string) {
	env, err := events.NewEnvelope(eventType, key.String(), payload)
	if err != nil {
		s.logger.Error("failed to build envelope", zap.String("event_type", eventType), zap.Error(err))
		return
	}

	// The write already happened; a caller hanging up must not cancel the fan-out.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	report, err := s.broadcaster.Publish(pubCtx, env, exceptConn)
	if err != nil {
		s.metrics.FanoutFailed()
		s.logger.Error("room fan-out failed",
			zap.String("room_key", key.String()),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}
	if report.Partial() {
		s.logger.Debug("room fan-out partial",
			zap.String("room_key", key.String()),
			zap.Int("dropped", len(report.Dropped)),
			zap.Error(parley_errors.ErrDeliveryPartial),
		)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, parley_errors.ErrValidation):
		return "invalid"
	case errors.Is(err, parley_errors.ErrForbidden):
		return "forbidden"
	case errors.Is(err, parley_errors.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, parley_errors.ErrPersistence):
		return "persistence_error"
	default:
		return "error"
	}
}
