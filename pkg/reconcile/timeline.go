// Package reconcile merges a client's optimistic sends with server
// acknowledgements and room broadcasts so every durable message renders once.
package reconcile

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"parley-chat/internal/domain/message"
	parley_errors "parley-chat/pkg/errors"

	"github.com/google/uuid"
)

const DefaultTimeout = 10 * time.Second

type State int

const (
	Optimistic State = iota
	Confirmed
	Failed
)

func (s State) String() string {
	switch s {
	case Optimistic:
		return "optimistic"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

var (
	ErrEmptyTempID   = errors.New("temp id is required")
	ErrDuplicateTemp = errors.New("temp id already in use")
	ErrUnknownTemp   = errors.New("unknown temp id")
	ErrNotFailed     = errors.New("only failed entries can be retried")
)

// Entry is one rendered row. Message holds the draft until the entry is confirmed.
type Entry struct {
	TempID      string
	State       State
	Message     message.Message
	SubmittedAt time.Time
	Err         error
}

// Timeline is the client side view of one conversation.
type Timeline struct {
	mu      sync.Mutex
	timeout time.Duration
	entries []*Entry
	byTemp  map[string]*Entry
	byID    map[string]*Entry
}

func NewTimeline(timeout time.Duration) *Timeline {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Timeline{
		timeout: timeout,
		byTemp:  make(map[string]*Entry),
		byID:    make(map[string]*Entry),
	}
}

// Submit renders draft immediately as an optimistic entry.
func (t *Timeline) Submit(tempID string, draft message.Message, now time.Time) error {
	if tempID == "" {
		return ErrEmptyTempID
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byTemp[tempID]; ok {
		return ErrDuplicateTemp
	}
	draft.ClientTempID = tempID
	e := &Entry{TempID: tempID, State: Optimistic, Message: draft, SubmittedAt: now}
	t.entries = append(t.entries, e)
	t.byTemp[tempID] = e
	return nil
}

// Confirm applies the direct acknowledgement of a send. The optimistic entry
// is replaced in place. A late acknowledgement also revives a failed entry.
func (t *Timeline) Confirm(tempID string, durable message.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byTemp[tempID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTemp, tempID)
	}
	t.confirmLocked(e, durable)
	return nil
}

// Fail marks a pending entry failed; it stays rendered so the user can retry.
func (t *Timeline) Fail(tempID string, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byTemp[tempID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTemp, tempID)
	}
	if e.State == Optimistic {
		e.State = Failed
		e.Err = cause
	}
	return nil
}

// Expire fails every optimistic entry older than the timeout and returns their temp ids.
func (t *Timeline) Expire(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []string
	for _, e := range t.entries {
		if e.State == Optimistic && now.Sub(e.SubmittedAt) >= t.timeout {
			e.State = Failed
			e.Err = parley_errors.ErrTimeout
			expired = append(expired, e.TempID)
		}
	}
	return expired
}

// Retry resubmits a failed entry under newTempID, keeping its render position.
// An empty newTempID gets a fresh one. The returned draft is what to send.
func (t *Timeline) Retry(tempID, newTempID string, now time.Time) (message.Message, error) {
	if newTempID == "" {
		newTempID = uuid.NewString()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byTemp[tempID]
	if !ok {
		return message.Message{}, fmt.Errorf("%w: %s", ErrUnknownTemp, tempID)
	}
	if e.State != Failed {
		return message.Message{}, ErrNotFailed
	}
	if _, taken := t.byTemp[newTempID]; taken && newTempID != tempID {
		return message.Message{}, ErrDuplicateTemp
	}
	delete(t.byTemp, tempID)
	e.TempID = newTempID
	e.State = Optimistic
	e.Err = nil
	e.SubmittedAt = now
	e.Message.ClientTempID = newTempID
	t.byTemp[newTempID] = e
	return e.Message.Clone(), nil
}

// ApplyBroadcast merges a message.new broadcast. It reports whether anything
// new was rendered: copies of an already rendered message are dropped, and a
// broadcast carrying a pending temp id confirms that entry in place.
func (t *Timeline) ApplyBroadcast(m message.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[m.ID]; ok {
		return false
	}
	if m.ClientTempID != "" {
		if e, ok := t.byTemp[m.ClientTempID]; ok && e.State != Confirmed && (e.Message.SenderID == uuid.Nil || e.Message.SenderID == m.SenderID) {
			t.confirmLocked(e, m)
			return true
		}
	}
	e := &Entry{State: Confirmed, Message: m.Clone(), SubmittedAt: m.CreatedAt}
	t.entries = append(t.entries, e)
	t.byID[m.ID] = e
	return true
}

func (t *Timeline) ApplySeen(messageID string, userID uuid.UUID) bool {
	return t.mutate(messageID, func(m *message.Message) { m.MarkSeen(userID) })
}

func (t *Timeline) ApplyReaction(messageID string, userID uuid.UUID, emoji string, removed bool) bool {
	return t.mutate(messageID, func(m *message.Message) {
		if removed {
			m.RemoveReaction(userID, emoji)
			return
		}
		m.SetReaction(userID, emoji)
	})
}

// ApplyDeleted hides a recalled message.
func (t *Timeline) ApplyDeleted(messageID string) bool {
	return t.mutate(messageID, func(m *message.Message) { m.IsDeleted = true })
}

// Entries returns a copy of the timeline in render order, hiding recalled messages.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		if e.Message.IsDeleted {
			continue
		}
		cp := *e
		cp.Message = e.Message.Clone()
		out = append(out, cp)
	}
	return out
}

// Pending returns the temp ids still waiting for an acknowledgement.
func (t *Timeline) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for _, e := range t.entries {
		if e.State == Optimistic {
			ids = append(ids, e.TempID)
		}
	}
	return ids
}

func (t *Timeline) confirmLocked(e *Entry, durable message.Message) {
	if e.State == Confirmed && e.Message.ID != durable.ID {
		// The entry already owns another durable id; keep the first.
		return
	}
	if other, ok := t.byID[durable.ID]; ok && other != e {
		// Already rendered through another path; drop the optimistic row.
		t.removeLocked(e)
		return
	}
	e.State = Confirmed
	e.Err = nil
	e.Message = durable.Clone()
	t.byID[durable.ID] = e
}

func (t *Timeline) removeLocked(target *Entry) {
	delete(t.byTemp, target.TempID)
	for i, e := range t.entries {
		if e == target {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

func (t *Timeline) mutate(messageID string, fn func(m *message.Message)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byID[messageID]
	if !ok {
		return false
	}
	fn(&e.Message)
	return true
}
