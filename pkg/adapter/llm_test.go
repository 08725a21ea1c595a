package adapter

import (
	"testing"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/m-mizutani/gt"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

func sampleInput() *GenerateInput {
	return &GenerateInput{
		Messages: []Message{
			{Role: model.RoleSystem, Content: "You are Isabella."},
			{Role: model.RoleUser, Content: "hola"},
			{Role: model.RoleAssistant, Content: "¡Hola!"},
			{Role: model.RoleUser, Content: "¿qué tal?"},
		},
		Temperature: 0.7,
		MaxTokens:   1024,
		UserID:      "user-1",
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem(sampleInput().Messages)
	gt.A(t, system).Length(1)
	gt.Equal(t, system[0], "You are Isabella.")
	gt.A(t, rest).Length(3)
	gt.Equal(t, rest[0].Role, model.RoleUser)
}

func TestBuildClaudeParams(t *testing.T) {
	params := buildClaudeParams(sampleInput(), "claude-default")

	gt.Equal(t, params.Model, anthropic.Model("claude-default"))
	gt.Equal(t, params.MaxTokens, int64(1024))
	gt.A(t, params.Messages).Length(3)
	gt.Equal(t, params.Messages[1].Role, anthropic.MessageParamRoleAssistant)
	gt.A(t, params.System).Length(1)
	gt.Equal(t, params.System[0].Text, "You are Isabella.")

	in := sampleInput()
	in.Model = "claude-override"
	gt.Equal(t, buildClaudeParams(in, "claude-default").Model, anthropic.Model("claude-override"))
}

func TestBuildOpenAIParams(t *testing.T) {
	params := buildOpenAIParams(sampleInput(), openai.ChatModelGPT4oMini)

	gt.Equal(t, params.Model, openai.ChatModelGPT4oMini)
	gt.A(t, params.Messages).Length(4)
	gt.NotNil(t, params.Messages[0].OfSystem)
	gt.NotNil(t, params.Messages[2].OfAssistant)
	gt.NotNil(t, params.Messages[3].OfUser)
}

func TestBuildGeminiRequest(t *testing.T) {
	contents, config := buildGeminiRequest(sampleInput())

	gt.A(t, contents).Length(3)
	gt.Equal(t, contents[0].Role, string(genai.RoleUser))
	gt.Equal(t, contents[1].Role, string(genai.RoleModel))
	gt.Equal(t, contents[1].Parts[0].Text, "¡Hola!")
	gt.NotNil(t, config.SystemInstruction)
	gt.Equal(t, config.MaxOutputTokens, int32(1024))
	gt.NotNil(t, config.Temperature)
}
