package models

import "time"

// Profile is the read-only user snapshot the identity service exposes.
type Profile struct {
	ID           string    `bson:"_id" json:"id"`
	DisplayName  string    `bson:"display_name" json:"display_name"`
	AvatarURL    string    `bson:"avatar_url" json:"avatar_url"`
	LastActiveAt time.Time `bson:"last_active_at" json:"last_active_at"`
}
