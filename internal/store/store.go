// Package store is the persistence boundary of the sync engine: a document
// store with point reads and writes, create-if-absent, field-merge updates,
// atomic counters, server-assigned timestamps and live watch subscriptions.
package store

import (
	"context"
	"sync"

	"github.com/fathima-sithara/chat-sync/internal/models"
)

// ServerTimestamp marks a merge field whose value is assigned by the store at
// commit time. Store-assigned times are the authoritative ordering key; client
// clocks are never trusted for ordering.
var ServerTimestamp = serverTimestamp{}

type serverTimestamp struct{}

type Store interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)

	// CreateConversation writes conv only if no record with conv.ID exists.
	// A lost creation race is not an error: the call returns the record that
	// won, with created=false.
	CreateConversation(ctx context.Context, conv *models.Conversation) (stored *models.Conversation, created bool, err error)

	// MergeConversation applies a field-level merge. Keys are dotted paths
	// ("last_message", "typing.<user>", "unread_counts.<user>"); untouched
	// fields keep their value, so concurrent writers on different fields do
	// not clobber each other. ServerTimestamp values are resolved at commit.
	MergeConversation(ctx context.Context, id string, fields map[string]any) error

	// IncrementUnread atomically adds delta to unread_counts[userID].
	IncrementUnread(ctx context.Context, convID, userID string, delta int) error

	// WatchConversations delivers a full snapshot of the user's conversations
	// on attach and after every relevant change. The caller owns the handle
	// and must Close it.
	WatchConversations(ctx context.Context, userID string) (*ConversationWatch, error)

	// AppendMessage persists a new unread message with a store-assigned id and
	// timestamp and returns the stored record.
	AppendMessage(ctx context.Context, convID, senderID, text string) (*models.Message, error)

	ListMessages(ctx context.Context, convID string) ([]*models.Message, error)

	// MarkMessageRead flips read to true with a server-assigned read_at. It is
	// conditional on read still being false: re-marking reports marked=false
	// with no error, and never reverts a read message.
	MarkMessageRead(ctx context.Context, convID, msgID string) (marked bool, err error)

	// WatchMessages delivers the conversation's full message list on attach
	// and after every append or read-state change.
	WatchMessages(ctx context.Context, convID string) (*MessageWatch, error)
}

// ConversationWatch is a live subscription handle. Updates carries full
// snapshots; slow consumers see the latest snapshot rather than a backlog.
// Ordered reports whether the store could serve the updated_at descending
// order itself; when false the consumer sorts client-side.
type ConversationWatch struct {
	updates chan []*models.Conversation
	ordered bool
	stop    func()
	once    sync.Once
}

// NewConversationWatch builds a handle around an updates channel. It is
// exported so Store implementations outside this package can satisfy the
// subscription contract.
func NewConversationWatch(updates chan []*models.Conversation, ordered bool, stop func()) *ConversationWatch {
	return &ConversationWatch{updates: updates, ordered: ordered, stop: stop}
}

func (w *ConversationWatch) Updates() <-chan []*models.Conversation { return w.updates }
func (w *ConversationWatch) Ordered() bool                          { return w.ordered }

// Close releases the subscription. The updates channel is closed once the
// watch has fully detached; Close is safe to call more than once.
func (w *ConversationWatch) Close() {
	w.once.Do(w.stop)
}

// MessageWatch is the thread equivalent of ConversationWatch; snapshots are
// ordered ascending by created_at when Ordered is true.
type MessageWatch struct {
	updates chan []*models.Message
	ordered bool
	stop    func()
	once    sync.Once
}

func NewMessageWatch(updates chan []*models.Message, ordered bool, stop func()) *MessageWatch {
	return &MessageWatch{updates: updates, ordered: ordered, stop: stop}
}

func (w *MessageWatch) Updates() <-chan []*models.Message { return w.updates }
func (w *MessageWatch) Ordered() bool                     { return w.ordered }

func (w *MessageWatch) Close() {
	w.once.Do(w.stop)
}

// pushLatest delivers v without blocking: if the subscriber has not consumed
// the previous snapshot it is replaced, never queued.
func pushLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// IsServerTimestamp reports whether a merge value should be resolved to the
// store's commit time.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}
