package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fathima-sithara/chat-sync/internal/models"
)

// MemoryStore keeps the whole document set in process memory behind one mutex,
// which gives it the same write-serialization the backing database provides.
// It backs the test suite and lets the demo binary run without a Mongo URI.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message
	convWatches   map[*ConversationWatch]string
	msgWatches    map[*MessageWatch]string
	lastTS        time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]*models.Message),
		convWatches:   make(map[*ConversationWatch]string),
		msgWatches:    make(map[*MessageWatch]string),
	}
}

// now returns a strictly increasing commit timestamp. Callers hold mu.
func (s *MemoryStore) now() time.Time {
	t := time.Now().UTC()
	if !t.After(s.lastTS) {
		t = s.lastTS.Add(time.Microsecond)
	}
	s.lastTS = t
	return t
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return conv.Clone(), nil
}

func (s *MemoryStore) CreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, bool, error) {
	if len(conv.Participants) != 2 || conv.Participants[0] == conv.Participants[1] {
		return nil, false, ErrInvalidConversation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.conversations[conv.ID]; ok {
		return existing.Clone(), false, nil
	}
	stored := conv.Clone()
	now := s.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.conversations[stored.ID] = stored
	s.notifyConversation(stored)
	return stored.Clone(), true, nil
}

func (s *MemoryStore) MergeConversation(ctx context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	now := s.now()
	for path, v := range fields {
		if IsServerTimestamp(v) {
			v = now
		}
		applyField(conv, path, v)
	}
	s.notifyConversation(conv)
	return nil
}

// applyField mirrors the dotted-path merge the document database does with
// $set: only the named field moves, sibling map keys survive.
func applyField(conv *models.Conversation, path string, v any) {
	head, sub, _ := strings.Cut(path, ".")
	switch head {
	case "last_message":
		conv.LastMessage, _ = v.(string)
	case "last_message_sender_id":
		conv.LastMessageSenderID, _ = v.(string)
	case "last_message_at":
		if t, ok := v.(time.Time); ok {
			conv.LastMessageAt = t
		}
	case "updated_at":
		if t, ok := v.(time.Time); ok {
			conv.UpdatedAt = t
		}
	case "typing":
		if sub == "" {
			return
		}
		if conv.Typing == nil {
			conv.Typing = make(map[string]bool)
		}
		conv.Typing[sub], _ = v.(bool)
	case "unread_counts":
		if sub == "" {
			return
		}
		if conv.UnreadCounts == nil {
			conv.UnreadCounts = make(map[string]int)
		}
		n, _ := v.(int)
		conv.UnreadCounts[sub] = n
	}
}

func (s *MemoryStore) IncrementUnread(ctx context.Context, convID, userID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[convID]
	if !ok {
		return ErrNotFound
	}
	if conv.UnreadCounts == nil {
		conv.UnreadCounts = make(map[string]int)
	}
	conv.UnreadCounts[userID] += delta
	s.notifyConversation(conv)
	return nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, convID, senderID, text string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[convID]; !ok {
		return nil, ErrNotFound
	}
	m := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		SenderID:       senderID,
		Text:           text,
		CreatedAt:      s.now(),
	}
	s.messages[convID] = append(s.messages[convID], m)
	s.notifyMessages(convID)
	return m.Clone(), nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, convID string) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotMessages(convID), nil
}

func (s *MemoryStore) MarkMessageRead(ctx context.Context, convID, msgID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[convID] {
		if m.ID != msgID {
			continue
		}
		if m.Read {
			return false, nil
		}
		now := s.now()
		m.Read = true
		m.ReadAt = &now
		s.notifyMessages(convID)
		return true, nil
	}
	return false, ErrNotFound
}

func (s *MemoryStore) WatchConversations(ctx context.Context, userID string) (*ConversationWatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updates := make(chan []*models.Conversation, 1)
	var w *ConversationWatch
	w = NewConversationWatch(updates, true, func() {
		s.mu.Lock()
		delete(s.convWatches, w)
		s.mu.Unlock()
		close(updates)
	})
	s.convWatches[w] = userID
	pushLatest(updates, s.snapshotConversations(userID))
	return w, nil
}

func (s *MemoryStore) WatchMessages(ctx context.Context, convID string) (*MessageWatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updates := make(chan []*models.Message, 1)
	var w *MessageWatch
	w = NewMessageWatch(updates, true, func() {
		s.mu.Lock()
		delete(s.msgWatches, w)
		s.mu.Unlock()
		close(updates)
	})
	s.msgWatches[w] = convID
	pushLatest(updates, s.snapshotMessages(convID))
	return w, nil
}

// notifyConversation fans the owning users' refreshed lists out to their
// watches. Callers hold mu.
func (s *MemoryStore) notifyConversation(conv *models.Conversation) {
	for w, userID := range s.convWatches {
		if conv.HasParticipant(userID) {
			pushLatest(w.updates, s.snapshotConversations(userID))
		}
	}
}

func (s *MemoryStore) notifyMessages(convID string) {
	for w, id := range s.msgWatches {
		if id == convID {
			pushLatest(w.updates, s.snapshotMessages(convID))
		}
	}
}

func (s *MemoryStore) snapshotConversations(userID string) []*models.Conversation {
	out := make([]*models.Conversation, 0)
	for _, c := range s.conversations {
		if c.HasParticipant(userID) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (s *MemoryStore) snapshotMessages(convID string) []*models.Message {
	msgs := s.messages[convID]
	out := make([]*models.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
