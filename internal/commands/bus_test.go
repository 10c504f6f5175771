package commands

import (
	"context"
	"errors"
	"testing"

	"parley-chat/internal/domain/message"
	"parley-chat/internal/domain/room"
	parley_errors "parley-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rejectProxy struct {
	err   error
	calls int
}

func (p *rejectProxy) Authorize(ctx context.Context, cmd Command) error {
	p.calls++
	return p.err
}

func validSeen() MarkSeenCommand {
	return MarkSeenCommand{UserID: uuid.New(), MessageID: "m1"}
}

func TestBusDispatchesToRegisteredHandler(t *testing.T) {
	bus := NewBus()
	var got Command
	bus.Register(TypeMarkSeen, HandlerFunc(func(ctx context.Context, cmd Command) (Result, error) {
		got = cmd
		return Result{AggregateID: "m1"}, nil
	}))

	res, err := bus.Execute(context.Background(), validSeen())
	require.NoError(t, err)
	assert.Equal(t, "m1", res.AggregateID)
	assert.IsType(t, MarkSeenCommand{}, got)
}

func TestBusUnknownCommand(t *testing.T) {
	_, err := NewBus().Execute(context.Background(), validSeen())
	assert.ErrorIs(t, err, ErrHandlerNotFound)
}

func TestBusWrapsValidationErrors(t *testing.T) {
	bus := NewBus()
	called := false
	bus.Register(TypeMarkSeen, HandlerFunc(func(ctx context.Context, cmd Command) (Result, error) {
		called = true
		return Result{}, nil
	}))

	_, err := bus.Execute(context.Background(), MarkSeenCommand{UserID: uuid.New()})
	assert.ErrorIs(t, err, parley_errors.ErrValidation)
	assert.False(t, called)
}

func TestBusProxyCanReject(t *testing.T) {
	denied := errors.New("denied")
	pass := &rejectProxy{}
	deny := &rejectProxy{err: denied}
	never := &rejectProxy{}

	bus := NewBus(pass, nil, deny, never)
	bus.Register(TypeMarkSeen, HandlerFunc(func(ctx context.Context, cmd Command) (Result, error) {
		t.Fatal("handler must not run")
		return Result{}, nil
	}))

	_, err := bus.Execute(context.Background(), validSeen())
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, 1, pass.calls)
	assert.Equal(t, 1, deny.calls)
	assert.Zero(t, never.calls)
}

func TestSendMessageValidate(t *testing.T) {
	sender, other := uuid.New(), uuid.New()
	to := uuid.NullUUID{UUID: other, Valid: true}
	long := make([]byte, MaxContentLength+1)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name    string
		cmd     SendMessageCommand
		wantErr bool
	}{
		{"text to user", SendMessageCommand{SenderID: sender, ReceiverID: to, Content: "hi"}, false},
		{"attachment only", SendMessageCommand{SenderID: sender, ReceiverID: to, Attachments: []message.Attachment{{URL: "https://x"}}}, false},
		{"no sender", SendMessageCommand{ReceiverID: to, Content: "hi"}, true},
		{"no target", SendMessageCommand{SenderID: sender, Content: "hi"}, true},
		{"both targets", SendMessageCommand{SenderID: sender, ReceiverID: to, GroupID: uuid.NullUUID{UUID: uuid.New(), Valid: true}, Content: "hi"}, true},
		{"blank", SendMessageCommand{SenderID: sender, ReceiverID: to, Content: "  "}, true},
		{"too long", SendMessageCommand{SenderID: sender, ReceiverID: to, Content: string(long)}, true},
		{"attachment without url", SendMessageCommand{SenderID: sender, ReceiverID: to, Attachments: []message.Attachment{{Name: "x"}}}, true},
		{"unknown type", SendMessageCommand{SenderID: sender, ReceiverID: to, Content: "hi", Type: "gif"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSendMessageCarriesTempID(t *testing.T) {
	cmd := SendMessageCommand{SenderID: uuid.New(), ReceiverID: uuid.NullUUID{UUID: uuid.New(), Valid: true}, Content: "hi", TempID: "tmp-1"}
	assert.Equal(t, "tmp-1", cmd.IdempotencyKey())
	assert.Equal(t, "tmp-1", cmd.Message().ClientTempID)

	cmd.TempID = ""
	assert.Empty(t, cmd.IdempotencyKey())
}

func TestReactCommandType(t *testing.T) {
	add := ReactCommand{UserID: uuid.New(), MessageID: "m", Emoji: "👍"}
	assert.Equal(t, TypeAddReaction, add.CommandType())
	add.Remove = true
	assert.Equal(t, TypeRemoveReaction, add.CommandType())

	assert.ErrorIs(t, ReactCommand{UserID: uuid.New(), MessageID: "m"}.Validate(), ErrMissingEmoji)
}

func TestConversationCommandsRequireValidKey(t *testing.T) {
	user := uuid.New()
	assert.NoError(t, MarkConversationSeenCommand{UserID: user, ConversationKey: room.Group(uuid.New())}.Validate())
	assert.Error(t, MarkConversationSeenCommand{UserID: user, ConversationKey: "nope"}.Validate())

	blank := " "
	assert.ErrorIs(t, SetPinCommand{UserID: user, ConversationKey: room.Group(uuid.New()), MessageID: &blank}.Validate(), ErrMissingMessageID)
	assert.NoError(t, SetPinCommand{UserID: user, ConversationKey: room.Group(uuid.New())}.Validate())
}

func TestSignalCommandsRequireRoom(t *testing.T) {
	assert.ErrorIs(t, TypingCommand{UserID: uuid.New()}.Validate(), ErrMissingRoom)
	assert.NoError(t, TypingCommand{UserID: uuid.New(), RoomKey: room.Group(uuid.New()), IsTyping: true}.Validate())
}
