package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-sync/internal/events"
	"github.com/fathima-sithara/chat-sync/internal/metrics"
	"github.com/fathima-sithara/chat-sync/internal/models"
	"github.com/fathima-sithara/chat-sync/internal/store"
)

// SendStep names the sub-effect of a send that failed. The order below is
// also the execution order: the message append comes first so that a partial
// failure leaves a recoverable state (the message exists, the summary or
// counter is stale), never a phantom summary for a message that was lost.
type SendStep string

const (
	SendStepLoad    SendStep = "load"
	SendStepAppend  SendStep = "append"
	SendStepSummary SendStep = "summary"
	SendStepUnread  SendStep = "unread"
)

// SendError tells the caller which step failed and whether the message itself
// made it to the store. Persisted == nil means nothing was written and the UI
// must restore the draft; Persisted != nil means the message is durable and
// only the denormalized fields need a retry.
type SendError struct {
	Step      SendStep
	Persisted *models.Message
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed at %s: %v", e.Step, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// SendMessageCommand is the single transactional unit behind a user pressing
// send: append the message, refresh the parent summary, bump the recipient's
// unread counter, clear the sender's typing flag.
type SendMessageCommand struct {
	ConversationID string
	SenderID       string
	Text           string
}

// Thread synchronizes one conversation's message sequence.
type Thread struct {
	store  store.Store
	events *events.Publisher
	log    *zap.SugaredLogger
}

func NewThread(s store.Store, pub *events.Publisher, log *zap.SugaredLogger) *Thread {
	return &Thread{store: s, events: pub, log: log}
}

// MessageStream is the live ascending message list of one open thread.
type MessageStream struct {
	watch   *store.MessageWatch
	updates chan []*models.Message
}

// Attach subscribes to the thread. The snapshots are ordered ascending by the
// store-assigned timestamp; two clients that sent concurrently converge on
// the same order once their subscriptions deliver the authoritative list.
func (t *Thread) Attach(ctx context.Context, convID string) (*MessageStream, error) {
	w, err := t.store.WatchMessages(ctx, convID)
	if err != nil {
		return nil, err
	}
	s := &MessageStream{watch: w, updates: make(chan []*models.Message, 1)}
	metrics.ActiveSubscriptions.Inc()
	go s.pump(w)
	return s, nil
}

func (s *MessageStream) pump(w *store.MessageWatch) {
	defer metrics.ActiveSubscriptions.Dec()
	defer close(s.updates)
	for list := range w.Updates() {
		if !w.Ordered() {
			sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
		}
		pushLatest(s.updates, list)
	}
}

func (s *MessageStream) Updates() <-chan []*models.Message { return s.updates }

func (s *MessageStream) Close() { s.watch.Close() }

// Messages returns the thread's current messages, ascending.
func (t *Thread) Messages(ctx context.Context, convID string) ([]*models.Message, error) {
	return t.store.ListMessages(ctx, convID)
}

// Send executes the command's sub-effects in their defined order. On failure
// the returned *SendError carries the failed step and the persisted message,
// if any; the caller decides what to retry and restores the draft when
// nothing was written. The typing clear is best-effort and can never fail the
// send.
func (t *Thread) Send(ctx context.Context, cmd SendMessageCommand) (*models.Message, error) {
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return nil, errors.New("message text must not be empty")
	}
	conv, err := t.store.GetConversation(ctx, cmd.ConversationID)
	if err != nil {
		return nil, &SendError{Step: SendStepLoad, Err: err}
	}
	if !conv.HasParticipant(cmd.SenderID) {
		return nil, &SendError{Step: SendStepLoad, Err: errors.New("sender is not a participant")}
	}
	other := conv.Other(cmd.SenderID)

	msg, err := t.store.AppendMessage(ctx, cmd.ConversationID, cmd.SenderID, text)
	if err != nil {
		metrics.SendFailures.WithLabelValues(string(SendStepAppend)).Inc()
		return nil, &SendError{Step: SendStepAppend, Err: err}
	}

	summary := map[string]any{
		"last_message":           text,
		"last_message_sender_id": cmd.SenderID,
		"last_message_at":        store.ServerTimestamp,
		"updated_at":             store.ServerTimestamp,
	}
	if err := t.store.MergeConversation(ctx, cmd.ConversationID, summary); err != nil {
		metrics.SendFailures.WithLabelValues(string(SendStepSummary)).Inc()
		return msg, &SendError{Step: SendStepSummary, Persisted: msg, Err: err}
	}

	if err := t.store.IncrementUnread(ctx, cmd.ConversationID, other, 1); err != nil {
		metrics.SendFailures.WithLabelValues(string(SendStepUnread)).Inc()
		return msg, &SendError{Step: SendStepUnread, Persisted: msg, Err: err}
	}

	if err := t.store.MergeConversation(ctx, cmd.ConversationID, map[string]any{
		"typing." + cmd.SenderID: false,
	}); err != nil {
		t.log.Debugw("typing clear on send dropped", "conversation", cmd.ConversationID, "err", err)
		metrics.TypingDropped.Inc()
	}

	t.events.MessageCreated(ctx, msg)
	metrics.MessagesSent.Inc()
	return msg, nil
}
