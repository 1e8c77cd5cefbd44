// Package service is the conversation sync engine: the directory of
// conversations, the per-thread synchronizer, the typing channel, the read
// tracker and the list aggregator. Everything here is driven by the store's
// live subscriptions; consumers own the stream handles they are given and
// must Close them when the view goes away.
package service

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-sync/internal/metrics"
	"github.com/fathima-sithara/chat-sync/internal/models"
	"github.com/fathima-sithara/chat-sync/internal/store"
)

// startedPreview is the summary line a fresh conversation carries before any
// real message exists. It must stay distinguishable from user content.
const startedPreview = "conversation started"

var ErrSameParticipant = errors.New("cannot start a conversation with yourself")

// Directory owns the canonical pair-to-conversation mapping.
type Directory struct {
	store store.Store
	log   *zap.SugaredLogger
}

func NewDirectory(s store.Store, log *zap.SugaredLogger) *Directory {
	return &Directory{store: s, log: log}
}

// PairID derives the conversation id for an unordered participant pair. Both
// orders of the same two users produce the same id, which is what guarantees
// at most one conversation per pair.
func PairID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "_" + b
}

// FindOrCreate returns the single conversation between selfID and otherID,
// creating it if this is the first contact. Two clients racing to create the
// same pair both succeed and converge on one record: losing the creation race
// is an idempotent outcome, not an error.
func (d *Directory) FindOrCreate(ctx context.Context, selfID, otherID string) (*models.Conversation, error) {
	if selfID == "" || otherID == "" {
		return nil, errors.New("participant ids must not be empty")
	}
	if selfID == otherID {
		return nil, ErrSameParticipant
	}
	id := PairID(selfID, otherID)
	conv, err := d.store.GetConversation(ctx, id)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	conv = &models.Conversation{
		ID:           id,
		Participants: []string{selfID, otherID},
		LastMessage:  startedPreview,
		UnreadCounts: map[string]int{selfID: 0, otherID: 0},
		Typing:       map[string]bool{},
	}
	stored, created, err := d.store.CreateConversation(ctx, conv)
	if err != nil {
		return nil, err
	}
	if !created {
		d.log.Debugw("conversation already existed", "conversation", id)
	}
	return stored, nil
}

// ConversationStream is the live, ordered conversation list for one user.
type ConversationStream struct {
	watch   *store.ConversationWatch
	updates chan []*models.Conversation
}

// ListForUser subscribes to the user's conversations, newest activity first.
// When the store cannot serve the updated_at order itself the stream sorts
// each snapshot client-side instead of failing the subscription.
func (d *Directory) ListForUser(ctx context.Context, userID string) (*ConversationStream, error) {
	w, err := d.store.WatchConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	s := &ConversationStream{
		watch:   w,
		updates: make(chan []*models.Conversation, 1),
	}
	metrics.ActiveSubscriptions.Inc()
	go s.pump(w)
	return s, nil
}

func (s *ConversationStream) pump(w *store.ConversationWatch) {
	defer metrics.ActiveSubscriptions.Dec()
	defer close(s.updates)
	for list := range w.Updates() {
		if !w.Ordered() {
			sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
		}
		pushLatest(s.updates, list)
	}
}

func (s *ConversationStream) Updates() <-chan []*models.Conversation { return s.updates }

// Close releases the underlying subscription; Updates closes shortly after.
func (s *ConversationStream) Close() { s.watch.Close() }

// pushLatest keeps only the newest snapshot for a slow consumer.
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
