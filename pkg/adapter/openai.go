package adapter

import (
	"context"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = openai.ChatModelGPT4oMini

// OpenAI is an LLM backed by the OpenAI Chat Completions API
type OpenAI struct {
	client *openai.Client
	model  openai.ChatModel
}

type OpenAIOption func(*OpenAI)

// WithOpenAIModel sets the default model used when the request names none
func WithOpenAIModel(name string) OpenAIOption {
	return func(o *OpenAI) {
		o.model = openai.ChatModel(name)
	}
}

// NewOpenAI creates a new OpenAI API client
func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, goerr.New("openai API key is required")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	o := &OpenAI{
		client: &client,
		model:  defaultOpenAIModel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func (o *OpenAI) Generate(ctx context.Context, input *GenerateInput) (*GenerateOutput, error) {
	params := buildOpenAIParams(input, o.model)

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call OpenAI API", goerr.V("model", params.Model))
	}
	if len(resp.Choices) == 0 {
		return nil, goerr.New("no choices in OpenAI response", goerr.V("model", resp.Model))
	}

	return &GenerateOutput{
		Content: resp.Choices[0].Message.Content,
		ModelID: resp.Model,
	}, nil
}

func buildOpenAIParams(input *GenerateInput, fallback openai.ChatModel) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(input.Messages))
	for _, msg := range input.Messages {
		switch msg.Role {
		case model.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               fallback,
		Temperature:         openai.Float(input.Temperature),
		MaxCompletionTokens: openai.Int(input.MaxTokens),
	}
	if input.Model != "" {
		params.Model = openai.ChatModel(input.Model)
	}
	if input.UserID != "" {
		params.User = openai.String(string(input.UserID))
	}
	return params
}
