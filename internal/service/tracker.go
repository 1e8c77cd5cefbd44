package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-sync/internal/events"
	"github.com/fathima-sithara/chat-sync/internal/metrics"
	"github.com/fathima-sithara/chat-sync/internal/models"
	"github.com/fathima-sithara/chat-sync/internal/store"
)

// Tracker advances read state: per-message read flags first, then the
// reader's unread counter. The counter reset happens strictly after the
// message writes so no observer ever sees a zero counter while the sender
// still sees unread messages.
type Tracker struct {
	store  store.Store
	events *events.Publisher
	log    *zap.SugaredLogger
}

func NewTracker(s store.Store, pub *events.Publisher, log *zap.SugaredLogger) *Tracker {
	return &Tracker{store: s, events: pub, log: log}
}

// MarkThreadRead marks every loaded message from the other participant as
// read and then zeroes the reader's unread counter. Re-invoking it when
// nothing is unread is a no-op: the per-message writes are conditional on the
// flag still being false, and resetting an already-zero counter changes
// nothing. Two participants marking concurrently on overlapping sets are safe
// for the same reason.
func (t *Tracker) MarkThreadRead(ctx context.Context, convID, readerID string) error {
	msgs, err := t.store.ListMessages(ctx, convID)
	if err != nil {
		return fmt.Errorf("load thread: %w", err)
	}
	return t.markAndReset(ctx, convID, readerID, msgs)
}

// MarkLoadedRead is the variant the UI calls while a thread is open: it scans
// the messages the subscription already delivered instead of re-querying.
func (t *Tracker) MarkLoadedRead(ctx context.Context, convID, readerID string, loaded []*models.Message) error {
	return t.markAndReset(ctx, convID, readerID, loaded)
}

func (t *Tracker) markAndReset(ctx context.Context, convID, readerID string, msgs []*models.Message) error {
	marked := 0
	for _, m := range msgs {
		if m.SenderID == readerID || m.Read {
			continue
		}
		ok, err := t.store.MarkMessageRead(ctx, convID, m.ID)
		if err != nil {
			// Counter stays untouched: it may only drop after the
			// message writes landed.
			return fmt.Errorf("mark message %s read: %w", m.ID, err)
		}
		if ok {
			marked++
		}
	}
	if err := t.store.MergeConversation(ctx, convID, map[string]any{
		"unread_counts." + readerID: 0,
	}); err != nil {
		return fmt.Errorf("reset unread counter: %w", err)
	}
	if marked > 0 {
		metrics.ReadMarks.Add(float64(marked))
		t.events.ThreadRead(ctx, convID, readerID)
		t.log.Debugw("thread marked read", "conversation", convID, "reader", readerID, "messages", marked)
	}
	return nil
}
