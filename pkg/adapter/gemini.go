package adapter

import (
	"context"
	"strings"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Gemini is an LLM backed by Gemini on Vertex AI
type Gemini struct {
	client          *genai.Client
	generativeModel string
}

type GeminiOption func(*Gemini)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *Gemini) {
		g.generativeModel = model
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &Gemini{
		client:          client,
		generativeModel: "gemini-2.5-flash",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *Gemini) Generate(ctx context.Context, input *GenerateInput) (*GenerateOutput, error) {
	modelName := g.generativeModel
	if input.Model != "" {
		modelName = input.Model
	}

	contents, config := buildGeminiRequest(input)
	resp, err := g.client.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content", goerr.V("model", modelName))
	}

	out := &GenerateOutput{
		Content: resp.Text(),
		ModelID: resp.ModelVersion,
	}
	if out.ModelID == "" {
		out.ModelID = modelName
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].AvgLogprobs != 0 {
		// average log probability is the closest thing Gemini has to a confidence
		conf := resp.Candidates[0].AvgLogprobs
		out.Confidence = &conf
	}
	return out, nil
}

func buildGeminiRequest(input *GenerateInput) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, rest := splitSystem(input.Messages)

	contents := make([]*genai.Content, 0, len(rest))
	for _, msg := range rest {
		role := genai.Role(genai.RoleUser)
		if msg.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	temperature := float32(input.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(input.MaxTokens),
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, config
}
