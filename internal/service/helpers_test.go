package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-sync/internal/models"
	"github.com/fathima-sithara/chat-sync/internal/store"
)

type engine struct {
	store    *store.MemoryStore
	dir      *Directory
	thread   *Thread
	presence *Presence
	tracker  *Tracker
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	log := zap.NewNop().Sugar()
	s := store.NewMemoryStore()
	return &engine{
		store:    s,
		dir:      NewDirectory(s, log),
		thread:   NewThread(s, nil, log),
		presence: NewPresence(s, log),
		tracker:  NewTracker(s, nil, log),
	}
}

func (e *engine) mustConv(t *testing.T, a, b string) *models.Conversation {
	t.Helper()
	conv, err := e.dir.FindOrCreate(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}

func (e *engine) mustSend(t *testing.T, convID, sender, text string) *models.Message {
	t.Helper()
	m, err := e.thread.Send(context.Background(), SendMessageCommand{
		ConversationID: convID,
		SenderID:       sender,
		Text:           text,
	})
	require.NoError(t, err)
	return m
}

func recvUntil[T any](t *testing.T, ch <-chan T, cond func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				t.Fatal("updates channel closed while waiting")
			}
			if cond(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for update")
		}
	}
}
