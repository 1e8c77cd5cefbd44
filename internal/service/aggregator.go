package service

import (
	"context"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-sync/internal/identity"
	"github.com/fathima-sithara/chat-sync/internal/models"
)

const previewMaxRunes = 80

// Row is one displayable conversation-list entry: the conversation joined
// with the other participant's profile and the viewer's live unread and
// typing state.
type Row struct {
	Conversation       *models.Conversation `json:"conversation"`
	Other              *models.Profile      `json:"other"`
	Unread             int                  `json:"unread"`
	OtherTyping        bool                 `json:"other_typing"`
	LastMessagePreview string               `json:"last_message_preview"`
}

// Aggregator composes the directory's live list with resolved profiles.
type Aggregator struct {
	dir      *Directory
	resolver identity.Resolver
	log      *zap.SugaredLogger
}

func NewAggregator(dir *Directory, resolver identity.Resolver, log *zap.SugaredLogger) *Aggregator {
	return &Aggregator{dir: dir, resolver: resolver, log: log}
}

// RowStream is the live conversation list for one user, plus the user's
// current selection. The selected row keeps reconciling with list updates:
// opening a conversation pins its identity, not a point-in-time snapshot, so
// its typing and unread fields stay live.
type RowStream struct {
	inner   *ConversationStream
	updates chan []Row

	mu         sync.Mutex
	profiles   map[string]*models.Profile
	rows       []Row
	selectedID string
}

// Rows subscribes to the user's conversation list. Profiles are resolved at
// most once per participant id for the stream's lifetime; conversation field
// churn never re-triggers the external lookup.
func (a *Aggregator) Rows(ctx context.Context, userID string) (*RowStream, error) {
	inner, err := a.dir.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s := &RowStream{
		inner:    inner,
		updates:  make(chan []Row, 1),
		profiles: make(map[string]*models.Profile),
	}
	go s.pump(ctx, a, userID)
	return s, nil
}

func (s *RowStream) pump(ctx context.Context, a *Aggregator, userID string) {
	defer close(s.updates)
	for convs := range s.inner.Updates() {
		rows := make([]Row, 0, len(convs))
		for _, c := range convs {
			rows = append(rows, Row{
				Conversation:       c,
				Other:              s.profileFor(ctx, a, c.Other(userID)),
				Unread:             c.UnreadCounts[userID],
				OtherTyping:        c.Typing[c.Other(userID)],
				LastMessagePreview: preview(c.LastMessage),
			})
		}
		s.mu.Lock()
		s.rows = rows
		s.mu.Unlock()
		pushLatest(s.updates, rows)
	}
}

// profileFor serves from the stream-scoped cache and falls back to a bare
// id-only profile when the resolver fails, so one directory outage does not
// blank the whole list. Failures are not cached; the next update retries.
func (s *RowStream) profileFor(ctx context.Context, a *Aggregator, otherID string) *models.Profile {
	s.mu.Lock()
	p, ok := s.profiles[otherID]
	s.mu.Unlock()
	if ok {
		return p
	}
	p, err := a.resolver.GetProfile(ctx, otherID)
	if err != nil {
		a.log.Warnw("profile resolve failed", "user", otherID, "err", err)
		return &models.Profile{ID: otherID, DisplayName: otherID}
	}
	s.mu.Lock()
	s.profiles[otherID] = p
	s.mu.Unlock()
	return p
}

func (s *RowStream) Updates() <-chan []Row { return s.updates }

// Select pins a conversation as the open one. Selection is local-only state;
// list updates never discard it.
func (s *RowStream) Select(convID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedID = convID
}

func (s *RowStream) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedID = ""
}

// Selected returns the live row for the pinned conversation, reconciled with
// the latest list snapshot.
func (s *RowStream) Selected() (Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectedID == "" {
		return Row{}, false
	}
	for _, r := range s.rows {
		if r.Conversation.ID == s.selectedID {
			return r, true
		}
	}
	return Row{}, false
}

func (s *RowStream) Close() { s.inner.Close() }

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewMaxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewMaxRunes-1]) + "…"
}
