package adapter

import (
	"context"
	"strings"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
)

const defaultClaudeModel = anthropic.ModelClaudeSonnet4_20250514

// Claude is an LLM backed by the Anthropic Messages API
type Claude struct {
	client *anthropic.Client
	model  anthropic.Model
}

type ClaudeOption func(*Claude)

// WithClaudeModel sets the default model used when the request names none
func WithClaudeModel(name string) ClaudeOption {
	return func(c *Claude) {
		c.model = anthropic.Model(name)
	}
}

// NewClaude creates a new Claude API client
func NewClaude(apiKey string, opts ...ClaudeOption) (*Claude, error) {
	if apiKey == "" {
		return nil, goerr.New("anthropic API key is required")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	c := &Claude{
		client: &client,
		model:  defaultClaudeModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Claude) Generate(ctx context.Context, input *GenerateInput) (*GenerateOutput, error) {
	params := buildClaudeParams(input, c.model)

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call Claude API", goerr.V("model", params.Model))
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &GenerateOutput{
		Content: text.String(),
		ModelID: string(resp.Model),
	}, nil
}

func buildClaudeParams(input *GenerateInput, fallback anthropic.Model) anthropic.MessageNewParams {
	system, rest := splitSystem(input.Messages)

	messages := make([]anthropic.MessageParam, 0, len(rest))
	for _, msg := range rest {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       fallback,
		Messages:    messages,
		MaxTokens:   input.MaxTokens,
		Temperature: anthropic.Float(input.Temperature),
	}
	if input.Model != "" {
		params.Model = anthropic.Model(input.Model)
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	if input.UserID != "" {
		params.Metadata = anthropic.MetadataParam{UserID: anthropic.String(string(input.UserID))}
	}
	return params
}
