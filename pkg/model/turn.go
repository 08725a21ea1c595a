package model

import (
	"time"

	"github.com/google/uuid"
)

type TurnID string

// NewTurnID generates a new unique TurnID
func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// TurnMetadata describes how an assistant reply was produced
type TurnMetadata struct {
	ProcessingTimeMS int64  `json:"processing_time_ms"`
	ModelID          string `json:"model_id,omitempty"`
}

// ConversationTurn is one message of the in-process transcript. It is not
// persisted unless written to the vault explicitly.
type ConversationTurn struct {
	ID             TurnID         `json:"id"`
	ConversationID ConversationID `json:"conversation_id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Emotion        Emotion        `json:"emotion,omitempty"`
	Metadata       *TurnMetadata  `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// DialogueInput is one user message handed to the dialogue engine
type DialogueInput struct {
	Message        string         `json:"message"`
	ConversationID ConversationID `json:"conversation_id,omitempty"`
	ContextSpaceID string         `json:"context_space_id,omitempty"`
}

// DialogueResult is the assistant reply for one turn
type DialogueResult struct {
	Message     string       `json:"message"`
	Emotion     Emotion      `json:"emotion"`
	Suggestions []string     `json:"suggestions"`
	Metadata    TurnMetadata `json:"metadata"`
}
