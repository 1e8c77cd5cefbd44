package models

import "time"

// Message belongs to exactly one conversation. ID and CreatedAt are assigned by
// the store; text, sender and created_at never change after the initial write.
// Only the read flag and read_at move, and only from unread to read.
type Message struct {
	ID             string     `bson:"_id" json:"id"`
	ConversationID string     `bson:"conversation_id" json:"conversation_id"`
	SenderID       string     `bson:"sender_id" json:"sender_id"`
	Text           string     `bson:"text" json:"text"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
	Read           bool       `bson:"read" json:"read"`
	ReadAt         *time.Time `bson:"read_at,omitempty" json:"read_at,omitempty"`
}

func (m *Message) Clone() *Message {
	out := *m
	if m.ReadAt != nil {
		t := *m.ReadAt
		out.ReadAt = &t
	}
	return &out
}
