package adapter_test

import (
	"context"
	"os"
	"testing"

	"github.com/OsoPanda1/isabella/pkg/adapter"
	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/m-mizutani/gt"
)

func helloInput() *adapter.GenerateInput {
	return &adapter.GenerateInput{
		Messages: []adapter.Message{
			{Role: model.RoleSystem, Content: "Answer in one short sentence."},
			{Role: model.RoleUser, Content: "Hello, what is the capital of France?"},
		},
		Temperature: 0.2,
		MaxTokens:   128,
		UserID:      "adapter-test",
	}
}

func TestGeminiGenerate(t *testing.T) {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}

	ctx := context.Background()
	client, err := adapter.NewGemini(ctx, projectID, "us-central1")
	gt.NoError(t, err)

	resp, err := client.Generate(ctx, helloInput())
	gt.NoError(t, err)
	gt.NotEqual(t, resp.Content, "")
	gt.NotEqual(t, resp.ModelID, "")
	t.Log("response:", resp.Content)
}

func TestClaudeGenerate(t *testing.T) {
	apiKey := os.Getenv("TEST_ANTHROPIC_API_KEY")
	if apiKey == "" {
		t.Skip("TEST_ANTHROPIC_API_KEY is not set")
	}

	client, err := adapter.NewClaude(apiKey)
	gt.NoError(t, err)

	resp, err := client.Generate(context.Background(), helloInput())
	gt.NoError(t, err)
	gt.S(t, resp.Content).Contains("Paris")
}

func TestOpenAIGenerate(t *testing.T) {
	apiKey := os.Getenv("TEST_OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("TEST_OPENAI_API_KEY is not set")
	}

	client, err := adapter.NewOpenAI(apiKey)
	gt.NoError(t, err)

	resp, err := client.Generate(context.Background(), helloInput())
	gt.NoError(t, err)
	gt.S(t, resp.Content).Contains("Paris")
}

func TestNewClientsRequireKey(t *testing.T) {
	_, err := adapter.NewClaude("")
	gt.Error(t, err)
	_, err = adapter.NewOpenAI("")
	gt.Error(t, err)
}
