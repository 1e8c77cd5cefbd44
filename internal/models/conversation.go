package models

import "time"

// Conversation is the durable record pairing exactly two participants. Its ID is
// derived from the sorted participant pair, so the same two users always map to
// the same record. Summary fields (last_message*) are denormalized from the most
// recent message so the conversation list can render without loading threads.
type Conversation struct {
	ID                  string          `bson:"_id" json:"id"`
	Participants        []string        `bson:"participants" json:"participants"`
	LastMessage         string          `bson:"last_message" json:"last_message"`
	LastMessageSenderID string          `bson:"last_message_sender_id" json:"last_message_sender_id"`
	LastMessageAt       time.Time       `bson:"last_message_at" json:"last_message_at"`
	UnreadCounts        map[string]int  `bson:"unread_counts" json:"unread_counts"`
	Typing              map[string]bool `bson:"typing" json:"typing"`
	CreatedAt           time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `bson:"updated_at" json:"updated_at"`
}

// Other returns the participant that is not userID, or "" if userID is not a member.
func (c *Conversation) Other(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores can hand snapshots to subscribers without
// sharing mutable maps.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.UnreadCounts = make(map[string]int, len(c.UnreadCounts))
	for k, v := range c.UnreadCounts {
		out.UnreadCounts[k] = v
	}
	out.Typing = make(map[string]bool, len(c.Typing))
	for k, v := range c.Typing {
		out.Typing[k] = v
	}
	return &out
}
