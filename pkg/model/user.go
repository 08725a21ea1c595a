package model

import "github.com/google/uuid"

// UserID identifies the owner of memories and conversations
type UserID string

// ConversationID identifies one conversation of a user
type ConversationID string

// NewConversationID generates a new unique ConversationID
func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}
