package api

import (
	"context"
	"errors"

	"github.com/gofiber/websocket/v2"

	"github.com/fathima-sithara/chat-sync/internal/service"
)

// Frames pushed to the client.
type wsFrame struct {
	Type           string            `json:"type"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Rows           []service.Row     `json:"rows,omitempty"`
	Messages       any               `json:"messages,omitempty"`
	Message        any               `json:"message,omitempty"`
	Error          string            `json:"error,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// Commands read from the client.
type wsCommand struct {
	Type           string `json:"type"` // select | send | typing | read
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text,omitempty"`
}

// handleWS bridges the engine's live streams onto one websocket. The
// conversation list streams for the whole session; selecting a conversation
// attaches its thread stream and a debounced typist, and deselecting (or the
// socket closing) releases both. All stream handles are scoped to this
// function, so nothing keeps writing after the client is gone.
func (h *handlers) handleWS(conn *websocket.Conn) {
	uid, _ := conn.Locals("user_id").(string)
	if uid == "" {
		_ = conn.Close()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rows, err := h.d.Agg.Rows(ctx, uid)
	if err != nil {
		h.d.Log.Warnw("list subscription failed", "user", uid, "err", err)
		_ = conn.WriteJSON(wsFrame{Type: "error", Error: "subscription failed"})
		_ = conn.Close()
		return
	}
	defer rows.Close()

	out := make(chan wsFrame, 16)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-out:
				if err := conn.WriteJSON(frame); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	push := func(f wsFrame) {
		select {
		case <-ctx.Done():
		case out <- f:
		}
	}

	go func() {
		for r := range rows.Updates() {
			push(wsFrame{Type: "conversations", Rows: r})
		}
	}()

	var (
		thread *service.MessageStream
		typist *service.Typist
	)
	detach := func() {
		if thread != nil {
			thread.Close()
			thread = nil
		}
		if typist != nil {
			typist.Stop(ctx)
			typist = nil
		}
		rows.ClearSelection()
	}
	defer detach()

	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		switch cmd.Type {
		case "select":
			detach()
			if cmd.ConversationID == "" {
				continue
			}
			ts, err := h.d.Thread.Attach(ctx, cmd.ConversationID)
			if err != nil {
				push(wsFrame{Type: "error", ConversationID: cmd.ConversationID, Error: err.Error()})
				continue
			}
			thread = ts
			typist = h.d.Presence.NewTypist(cmd.ConversationID, uid, h.d.Cfg.TypingTimeout)
			rows.Select(cmd.ConversationID)
			convID := cmd.ConversationID
			go func() {
				for msgs := range ts.Updates() {
					push(wsFrame{Type: "messages", ConversationID: convID, Messages: msgs})
				}
			}()
			// Opening the thread reads it.
			if err := h.d.Tracker.MarkThreadRead(ctx, convID, uid); err != nil {
				h.d.Log.Warnw("mark read on open failed", "conversation", convID, "err", err)
			}
		case "send":
			if cmd.ConversationID == "" {
				continue
			}
			if typist != nil {
				typist.Sent(ctx)
			}
			msg, err := h.d.Thread.Send(ctx, service.SendMessageCommand{
				ConversationID: cmd.ConversationID,
				SenderID:       uid,
				Text:           cmd.Text,
			})
			if err != nil {
				frame := wsFrame{Type: "send_failed", ConversationID: cmd.ConversationID, Error: err.Error()}
				var serr *service.SendError
				if errors.As(err, &serr) && serr.Persisted != nil {
					frame.Message = serr.Persisted
				} else {
					// Nothing was written; hand the draft back so the
					// client can restore the input.
					frame.Extra = map[string]string{"draft": cmd.Text}
				}
				push(frame)
				continue
			}
			push(wsFrame{Type: "sent", ConversationID: cmd.ConversationID, Message: msg})
		case "typing":
			if typist != nil {
				typist.Keystroke(ctx)
			}
		case "read":
			if cmd.ConversationID == "" {
				continue
			}
			if err := h.d.Tracker.MarkThreadRead(ctx, cmd.ConversationID, uid); err != nil {
				push(wsFrame{Type: "error", ConversationID: cmd.ConversationID, Error: err.Error()})
			}
		}
	}
}
