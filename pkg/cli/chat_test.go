package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OsoPanda1/isabella/pkg/adapter"
	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/OsoPanda1/isabella/pkg/repository"
	"github.com/OsoPanda1/isabella/pkg/usecase/assistant"
	"github.com/OsoPanda1/isabella/pkg/usecase/dialogue"
	"github.com/m-mizutani/gt"
)

type mockLLM struct {
	generateFn func(ctx context.Context, input *adapter.GenerateInput) (*adapter.GenerateOutput, error)
}

func (m *mockLLM) Generate(ctx context.Context, input *adapter.GenerateInput) (*adapter.GenerateOutput, error) {
	return m.generateFn(ctx, input)
}

func newChatSession(t *testing.T, llm adapter.LLM) (*chatSession, *bytes.Buffer) {
	t.Helper()
	svc, err := assistant.New(repository.NewMemory(), llm)
	gt.NoError(t, err)

	info, err := svc.StartSession(context.Background(), "alice", "")
	gt.NoError(t, err)

	out := &bytes.Buffer{}
	return &chatSession{
		service:        svc,
		userID:         info.UserID,
		conversationID: info.ConversationID,
		assistantName:  "Isabella",
		out:            out,
	}, out
}

func TestChatSessionMessage(t *testing.T) {
	s, out := newChatSession(t, &mockLLM{
		generateFn: func(ctx context.Context, input *adapter.GenerateInput) (*adapter.GenerateOutput, error) {
			return &adapter.GenerateOutput{Content: "¡Hay un concierto genial este sábado!"}, nil
		},
	})
	ctx := context.Background()

	quit, err := s.handle(ctx, "quiero ver un concierto")
	gt.NoError(t, err)
	gt.False(t, quit)
	gt.S(t, out.String()).Contains("Isabella (")
	gt.S(t, out.String()).Contains("¡Hay un concierto genial este sábado!")
	gt.S(t, out.String()).Contains("Ver conciertos")

	out.Reset()
	_, err = s.handle(ctx, "/history")
	gt.NoError(t, err)
	gt.S(t, out.String()).Contains("tú: quiero ver un concierto")
	gt.S(t, out.String()).Contains("Isabella: ¡Hay un concierto genial este sábado!")

	out.Reset()
	_, err = s.handle(ctx, "/clear")
	gt.NoError(t, err)
	out.Reset()
	_, err = s.handle(ctx, "/history")
	gt.NoError(t, err)
	gt.S(t, out.String()).Contains("(sin mensajes)")
}

func TestChatSessionApology(t *testing.T) {
	s, out := newChatSession(t, &mockLLM{
		generateFn: func(ctx context.Context, input *adapter.GenerateInput) (*adapter.GenerateOutput, error) {
			return nil, errors.New("upstream down")
		},
	})

	_, err := s.handle(context.Background(), "hola")
	gt.NoError(t, err)
	gt.S(t, out.String()).Contains(dialogue.ApologyMessage)
	gt.S(t, out.String()).Contains(string(model.EmotionConcerned))
}

func TestChatSessionCommands(t *testing.T) {
	s, out := newChatSession(t, &mockLLM{
		generateFn: func(ctx context.Context, input *adapter.GenerateInput) (*adapter.GenerateOutput, error) {
			return &adapter.GenerateOutput{Content: "ok"}, nil
		},
	})
	ctx := context.Background()

	_, err := s.handle(ctx, "/prefs")
	gt.NoError(t, err)
	gt.S(t, out.String()).Contains("(sin preferencias)")

	_, err = s.service.Remember(ctx, "alice", model.MemoryTypePreference, map[string]any{"idioma": "es"}, nil)
	gt.NoError(t, err)
	out.Reset()
	_, err = s.handle(ctx, "/prefs")
	gt.NoError(t, err)
	gt.S(t, out.String()).Contains("idioma: es")

	out.Reset()
	_, err = s.handle(ctx, "/mood")
	gt.NoError(t, err)
	gt.S(t, out.String()).Contains("(sin emociones registradas)")

	out.Reset()
	_, err = s.handle(ctx, "/unknown")
	gt.NoError(t, err)
	gt.S(t, out.String()).Contains("Comandos:")

	quit, err := s.handle(ctx, "   ")
	gt.NoError(t, err)
	gt.False(t, quit)

	quit, err = s.handle(ctx, "/exit")
	gt.NoError(t, err)
	gt.True(t, quit)
}

func TestParseContent(t *testing.T) {
	content, err := parseContent(`{"color":"azul","n":1}`, []string{"color=rojo", "ciudad=Lima"})
	gt.NoError(t, err)
	gt.Equal(t, content["color"], any("rojo"))
	gt.Equal(t, content["ciudad"], any("Lima"))
	gt.Equal(t, content["n"], any(float64(1)))

	_, err = parseContent("", []string{"novalue"})
	gt.Error(t, err)

	_, err = parseContent("[1,2]", nil)
	gt.Error(t, err)

	_, err = parseContent("", nil)
	gt.Error(t, err)
}

func TestPersona(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	gt.NoError(t, os.WriteFile(path, []byte(`name: Isa
system_prompt: Eres Isa.
temperature: 0.2
timeout: 5s
transcript_capacity: 40
`), 0o600))

	cfg := &config{
		model:       "from-flag",
		temperature: 0.9,
		maxTokens:   512,
		timeout:     time.Minute,
		personaPath: path,
	}
	engineCfg, err := cfg.engineConfig()
	gt.NoError(t, err)
	gt.Equal(t, cfg.assistantName, "Isa")
	gt.Equal(t, engineCfg.SystemPrompt, "Eres Isa.")
	gt.Equal(t, engineCfg.Model, "from-flag")
	gt.Equal(t, engineCfg.Temperature, 0.2)
	gt.Equal(t, engineCfg.MaxTokens, int64(512))
	gt.Equal(t, engineCfg.Timeout, 5*time.Second)
	gt.Equal(t, engineCfg.TranscriptCapacity, 40)
}

func TestPersonaInvalid(t *testing.T) {
	dir := t.TempDir()

	badTimeout := filepath.Join(dir, "timeout.yaml")
	gt.NoError(t, os.WriteFile(badTimeout, []byte("timeout: soon\n"), 0o600))
	_, err := loadPersona(badTimeout)
	gt.Error(t, err)

	_, err = loadPersona(filepath.Join(dir, "missing.yaml"))
	gt.Error(t, err)

	hot := filepath.Join(dir, "hot.yaml")
	gt.NoError(t, os.WriteFile(hot, []byte("temperature: 3.5\n"), 0o600))
	cfg := &config{maxTokens: 100, timeout: time.Second, personaPath: hot}
	_, err = cfg.engineConfig()
	gt.Error(t, err)
}

func TestEngineConfigDefaults(t *testing.T) {
	cfg := &config{temperature: dialogue.DefaultTemperature, maxTokens: dialogue.DefaultMaxTokens, timeout: dialogue.DefaultTimeout}
	engineCfg, err := cfg.engineConfig()
	gt.NoError(t, err)
	gt.Equal(t, cfg.assistantName, defaultAssistantName)
	gt.Equal(t, engineCfg.SystemPrompt, dialogue.DefaultSystemPrompt)
}

func TestNewLLMRequiresCredentials(t *testing.T) {
	ctx := context.Background()
	for _, provider := range []string{providerClaude, providerOpenAI, providerGemini, "unknown"} {
		t.Run(provider, func(t *testing.T) {
			cfg := &config{llmProvider: provider}
			_, err := cfg.newLLM(ctx)
			gt.Error(t, err)
		})
	}
}
