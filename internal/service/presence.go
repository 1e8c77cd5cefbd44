package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-sync/internal/metrics"
	"github.com/fathima-sithara/chat-sync/internal/store"
)

// DefaultTypingTimeout is how long after the last keystroke the typing flag
// clears itself.
const DefaultTypingTimeout = 2 * time.Second

// Presence propagates the ephemeral typing flag on the conversation record.
// Every write here is best-effort: a failed typing write is dropped, it never
// blocks or errors the send path. Readers observe the other participant's
// flag through the conversation stream; there is no separate subscription.
type Presence struct {
	store store.Store
	log   *zap.SugaredLogger
}

func NewPresence(s store.Store, log *zap.SugaredLogger) *Presence {
	return &Presence{store: s, log: log}
}

// SetTyping writes typing[userID] with field-merge semantics, so two
// participants flipping their own flags concurrently never clobber each
// other.
func (p *Presence) SetTyping(ctx context.Context, convID, userID string, isTyping bool) {
	err := p.store.MergeConversation(ctx, convID, map[string]any{
		"typing." + userID: isTyping,
	})
	if err != nil {
		p.log.Debugw("typing write dropped", "conversation", convID, "user", userID, "err", err)
		metrics.TypingDropped.Inc()
	}
}

// Typist debounces a user's keystrokes for one open conversation. The first
// keystroke after idle writes typing=true and arms the timeout; every later
// keystroke only re-arms the timer, bounding write volume to two writes per
// burst. The timeout firing, a send, or Stop writes typing=false.
type Typist struct {
	presence *Presence
	convID   string
	userID   string
	timeout  time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	active bool
}

func (p *Presence) NewTypist(convID, userID string, timeout time.Duration) *Typist {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &Typist{presence: p, convID: convID, userID: userID, timeout: timeout}
}

// Keystroke records one input event.
func (t *Typist) Keystroke(ctx context.Context) {
	t.mu.Lock()
	if t.active {
		t.timer.Reset(t.timeout)
		t.mu.Unlock()
		return
	}
	t.active = true
	t.timer = time.AfterFunc(t.timeout, t.expire)
	t.mu.Unlock()
	t.presence.SetTyping(ctx, t.convID, t.userID, true)
}

func (t *Typist) expire() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	t.presence.SetTyping(ctx, t.convID, t.userID, false)
}

// Sent clears the flag immediately; a send already clears it server-side but
// the input widget stops being "typing" the moment the draft is submitted.
func (t *Typist) Sent(ctx context.Context) {
	t.clear(ctx)
}

// Stop releases the typist when the thread closes. No write is issued unless
// the flag is currently set.
func (t *Typist) Stop(ctx context.Context) {
	t.clear(ctx)
}

func (t *Typist) clear(ctx context.Context) {
	t.mu.Lock()
	wasActive := t.active
	t.active = false
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
	if wasActive {
		t.presence.SetTyping(ctx, t.convID, t.userID, false)
	}
}
