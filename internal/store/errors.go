package store

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidConversation = errors.New("conversation must have exactly two distinct participants")
)
