package adapter

import (
	"context"

	"github.com/OsoPanda1/isabella/pkg/model"
)

// LLM is the language model service used by the dialogue engine
type LLM interface {
	// Generate sends an ordered message list and returns the reply text
	Generate(ctx context.Context, input *GenerateInput) (*GenerateOutput, error)
}

// Message is one entry of the outbound message list
type Message struct {
	Role    model.Role
	Content string
}

// GenerateInput is the request sent to a language model
type GenerateInput struct {
	Messages    []Message
	Model       string // empty selects the adapter default
	Temperature float64
	MaxTokens   int64

	// UserID and ConversationScopeID are forwarded as request metadata
	// where the backend supports it
	UserID              model.UserID
	ConversationScopeID string
}

// GenerateOutput is the reply of a language model
type GenerateOutput struct {
	Content    string
	Confidence *float64
	ModelID    string
}

// splitSystem separates system messages from the conversation. Backends that
// take the system prompt out of band use this.
func splitSystem(messages []Message) (system []string, rest []Message) {
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return system, rest
}
