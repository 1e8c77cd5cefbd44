package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/chat-sync/internal/models"
)

func newConv(id string, a, b string) *models.Conversation {
	return &models.Conversation{
		ID:           id,
		Participants: []string{a, b},
		UnreadCounts: map[string]int{a: 0, b: 0},
		Typing:       map[string]bool{},
	}
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
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestCreateConversationIfAbsent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, created, err := s.CreateConversation(ctx, newConv("a_b", "a", "b"))
	require.NoError(t, err)
	require.True(t, created)
	require.False(t, first.CreatedAt.IsZero())

	second := newConv("a_b", "a", "b")
	second.LastMessage = "should not overwrite"
	got, created, err := s.CreateConversation(ctx, second)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.LastMessage, got.LastMessage)
}

func TestCreateConversationConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	createdCount := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := s.CreateConversation(ctx, newConv("a_b", "a", "b"))
			require.NoError(t, err)
			createdCount <- created
		}()
	}
	wg.Wait()
	close(createdCount)

	wins := 0
	for created := range createdCount {
		if created {
			wins++
		}
	}
	require.Equal(t, 1, wins, "exactly one caller may create the record")
}

func TestCreateConversationRejectsBadPair(t *testing.T) {
	s := NewMemoryStore()
	_, _, err := s.CreateConversation(context.Background(), newConv("a_a", "a", "a"))
	require.ErrorIs(t, err, ErrInvalidConversation)
}

func TestAppendMessageTimestampsMonotonic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, _, err := s.CreateConversation(ctx, newConv("a_b", "a", "b"))
	require.NoError(t, err)

	var prev time.Time
	for i := 0; i < 50; i++ {
		m, err := s.AppendMessage(ctx, "a_b", "a", "hello")
		require.NoError(t, err)
		require.True(t, m.CreatedAt.After(prev), "store timestamps must be strictly increasing")
		prev = m.CreatedAt
	}
}

func TestMarkMessageReadIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, _, err := s.CreateConversation(ctx, newConv("a_b", "a", "b"))
	require.NoError(t, err)
	m, err := s.AppendMessage(ctx, "a_b", "a", "hi")
	require.NoError(t, err)

	marked, err := s.MarkMessageRead(ctx, "a_b", m.ID)
	require.NoError(t, err)
	require.True(t, marked)

	marked, err = s.MarkMessageRead(ctx, "a_b", m.ID)
	require.NoError(t, err)
	require.False(t, marked, "second mark is a no-op, not an error")

	msgs, err := s.ListMessages(ctx, "a_b")
	require.NoError(t, err)
	require.True(t, msgs[0].Read)
	require.NotNil(t, msgs[0].ReadAt)
}

func TestMergeConversationFieldLevel(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, _, err := s.CreateConversation(ctx, newConv("a_b", "a", "b"))
	require.NoError(t, err)

	require.NoError(t, s.MergeConversation(ctx, "a_b", map[string]any{"typing.a": true}))
	require.NoError(t, s.MergeConversation(ctx, "a_b", map[string]any{"unread_counts.b": 3}))
	require.NoError(t, s.MergeConversation(ctx, "a_b", map[string]any{
		"last_message": "hey",
		"updated_at":   ServerTimestamp,
	}))

	conv, err := s.GetConversation(ctx, "a_b")
	require.NoError(t, err)
	require.True(t, conv.Typing["a"], "sibling merge must not clobber typing")
	require.Equal(t, 3, conv.UnreadCounts["b"])
	require.Equal(t, "hey", conv.LastMessage)
	require.True(t, conv.UpdatedAt.After(conv.CreatedAt))
}

func TestIncrementUnread(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, _, err := s.CreateConversation(ctx, newConv("a_b", "a", "b"))
	require.NoError(t, err)

	require.NoError(t, s.IncrementUnread(ctx, "a_b", "b", 1))
	require.NoError(t, s.IncrementUnread(ctx, "a_b", "b", 1))
	conv, err := s.GetConversation(ctx, "a_b")
	require.NoError(t, err)
	require.Equal(t, 2, conv.UnreadCounts["b"])
	require.Equal(t, 0, conv.UnreadCounts["a"])
}

func TestWatchConversationsDeliversSnapshots(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	w, err := s.WatchConversations(ctx, "a")
	require.NoError(t, err)
	defer w.Close()
	require.True(t, w.Ordered())

	recvUntil(t, w.Updates(), func(list []*models.Conversation) bool { return len(list) == 0 })

	_, _, err = s.CreateConversation(ctx, newConv("a_b", "a", "b"))
	require.NoError(t, err)
	recvUntil(t, w.Updates(), func(list []*models.Conversation) bool {
		return len(list) == 1 && list[0].ID == "a_b"
	})

	// Unrelated users' conversations never show up.
	_, _, err = s.CreateConversation(ctx, newConv("c_d", "c", "d"))
	require.NoError(t, err)
	require.NoError(t, s.MergeConversation(ctx, "a_b", map[string]any{"last_message": "x"}))
	list := recvUntil(t, w.Updates(), func(list []*models.Conversation) bool {
		return len(list) == 1 && list[0].LastMessage == "x"
	})
	require.Equal(t, "a_b", list[0].ID)
}

func TestWatchMessagesAscending(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, _, err := s.CreateConversation(ctx, newConv("a_b", "a", "b"))
	require.NoError(t, err)

	w, err := s.WatchMessages(ctx, "a_b")
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 5; i++ {
		_, err := s.AppendMessage(ctx, "a_b", "a", "m")
		require.NoError(t, err)
	}
	msgs := recvUntil(t, w.Updates(), func(list []*models.Message) bool { return len(list) == 5 })
	for i := 1; i < len(msgs); i++ {
		require.True(t, msgs[i].CreatedAt.After(msgs[i-1].CreatedAt))
	}
}

func TestWatchCloseReleasesSubscription(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	w, err := s.WatchConversations(ctx, "a")
	require.NoError(t, err)
	w.Close()
	w.Close() // safe to double-close

	_, ok := <-drain(w.Updates())
	require.False(t, ok, "updates must be closed after Close")
}

// drain consumes the buffered snapshot so the closed-channel read below is
// deterministic.
func drain(ch <-chan []*models.Conversation) <-chan []*models.Conversation {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				out := make(chan []*models.Conversation)
				close(out)
				return out
			}
		default:
			return ch
		}
	}
}
