package dialogue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/OsoPanda1/isabella/pkg/adapter"
	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/OsoPanda1/isabella/pkg/usecase/dialogue"
	"github.com/m-mizutani/gt"
)

type mockLLM struct {
	generateFn func(ctx context.Context, input *adapter.GenerateInput) (*adapter.GenerateOutput, error)

	mu    sync.Mutex
	calls []*adapter.GenerateInput
}

func (m *mockLLM) Generate(ctx context.Context, input *adapter.GenerateInput) (*adapter.GenerateOutput, error) {
	m.mu.Lock()
	m.calls = append(m.calls, input)
	m.mu.Unlock()
	return m.generateFn(ctx, input)
}

func (m *mockLLM) lastCall() *adapter.GenerateInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

func echoLLM() *mockLLM {
	return &mockLLM{
		generateFn: func(ctx context.Context, input *adapter.GenerateInput) (*adapter.GenerateOutput, error) {
			last := input.Messages[len(input.Messages)-1]
			return &adapter.GenerateOutput{Content: "eco: " + last.Content, ModelID: "mock-model"}, nil
		},
	}
}

func failingLLM(err error) *mockLLM {
	return &mockLLM{
		generateFn: func(ctx context.Context, input *adapter.GenerateInput) (*adapter.GenerateOutput, error) {
			return nil, err
		},
	}
}

func send(e *dialogue.Engine, msg string) *model.DialogueResult {
	return e.ProcessMessage(context.Background(), "user-1", &model.DialogueInput{Message: msg})
}

func TestProcessMessage(t *testing.T) {
	llm := &mockLLM{
		generateFn: func(ctx context.Context, input *adapter.GenerateInput) (*adapter.GenerateOutput, error) {
			return &adapter.GenerateOutput{Content: "¡Felicidades! Hay un concierto en tu DreamSpace", ModelID: "mock-model"}, nil
		},
	}
	e := dialogue.New(llm)

	result := send(e, "hola")
	gt.Equal(t, result.Message, "¡Felicidades! Hay un concierto en tu DreamSpace")
	gt.Equal(t, result.Emotion, model.EmotionCelebratory)
	gt.Equal(t, result.Suggestions, []string{"Ver conciertos", "Explorar DreamSpaces"})
	gt.Equal(t, result.Metadata.ModelID, "mock-model")

	call := llm.lastCall()
	gt.A(t, call.Messages).Length(2)
	gt.Equal(t, call.Messages[0].Role, model.RoleSystem)
	gt.Equal(t, call.Messages[0].Content, dialogue.DefaultSystemPrompt)
	gt.Equal(t, call.Messages[1].Content, "hola")
	gt.Equal(t, call.Temperature, dialogue.DefaultTemperature)
	gt.Equal(t, call.MaxTokens, int64(dialogue.DefaultMaxTokens))
	gt.Equal(t, call.UserID, model.UserID("user-1"))

	history := e.History()
	gt.A(t, history).Length(2)
	gt.Equal(t, history[0].Role, model.RoleUser)
	gt.Equal(t, history[1].Role, model.RoleAssistant)
	gt.Equal(t, history[1].Emotion, model.EmotionCelebratory)
}

func TestWindowBound(t *testing.T) {
	llm := echoLLM()
	e := dialogue.New(llm)

	for i := 0; i < 15; i++ {
		send(e, fmt.Sprintf("mensaje %d", i))
	}
	send(e, "mensaje 15")

	call := llm.lastCall()
	gt.A(t, call.Messages).Length(1 + dialogue.WindowSize + 1)
	gt.Equal(t, call.Messages[0].Role, model.RoleSystem)

	// the window holds the last five pairs, oldest first
	gt.Equal(t, call.Messages[1].Role, model.RoleUser)
	gt.Equal(t, call.Messages[1].Content, "mensaje 10")
	gt.Equal(t, call.Messages[10].Role, model.RoleAssistant)
	gt.Equal(t, call.Messages[10].Content, "eco: mensaje 14")
	gt.Equal(t, call.Messages[11].Content, "mensaje 15")
}

func TestFailureDegradation(t *testing.T) {
	llm := echoLLM()
	e := dialogue.New(llm)
	send(e, "hola")
	before := len(e.History())

	llm.generateFn = func(ctx context.Context, input *adapter.GenerateInput) (*adapter.GenerateOutput, error) {
		return nil, errors.New("service down")
	}
	result := send(e, "¿sigues ahí?")

	gt.Equal(t, result.Emotion, model.EmotionConcerned)
	gt.Equal(t, result.Message, dialogue.ApologyMessage)
	gt.NotEqual(t, result.Message, "")
	gt.A(t, result.Suggestions).Length(0)
	gt.Equal(t, result.Metadata.ModelID, "")
	gt.A(t, e.History()).Length(before)
}

func TestNilInputDegrades(t *testing.T) {
	llm := echoLLM()
	var outcomes []dialogue.TurnOutcome
	e := dialogue.New(llm, dialogue.WithTurnHook(func(ctx context.Context, outcome dialogue.TurnOutcome) {
		outcomes = append(outcomes, outcome)
	}))
	send(e, "hola")
	before := len(e.History())

	result := e.ProcessMessage(context.Background(), "user-1", nil)
	gt.V(t, result).NotNil()
	gt.Equal(t, result.Message, dialogue.ApologyMessage)
	gt.Equal(t, result.Emotion, model.EmotionConcerned)
	gt.A(t, result.Suggestions).Length(0)
	gt.A(t, e.History()).Length(before)
	gt.A(t, llm.calls).Length(1)

	gt.A(t, outcomes).Length(2)
	gt.True(t, errors.Is(outcomes[1].Err, model.ErrInvalidInput))
}

func TestEmptyReplyIsFailure(t *testing.T) {
	llm := &mockLLM{
		generateFn: func(ctx context.Context, input *adapter.GenerateInput) (*adapter.GenerateOutput, error) {
			return &adapter.GenerateOutput{Content: "  "}, nil
		},
	}
	e := dialogue.New(llm)

	result := send(e, "hola")
	gt.Equal(t, result.Emotion, model.EmotionConcerned)
	gt.A(t, e.History()).Length(0)
}

func TestTimeout(t *testing.T) {
	llm := &mockLLM{
		generateFn: func(ctx context.Context, input *adapter.GenerateInput) (*adapter.GenerateOutput, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	var outcome dialogue.TurnOutcome
	cfg := dialogue.DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	e := dialogue.New(llm,
		dialogue.WithConfig(cfg),
		dialogue.WithTurnHook(func(ctx context.Context, o dialogue.TurnOutcome) { outcome = o }),
	)

	result := send(e, "hola")
	gt.Equal(t, result.Emotion, model.EmotionConcerned)
	gt.A(t, e.History()).Length(0)
	gt.True(t, errors.Is(outcome.Err, model.ErrServiceUnavailable))
	gt.True(t, outcome.Duration >= cfg.Timeout)
}

func TestClearHistoryIdempotent(t *testing.T) {
	e := dialogue.New(echoLLM())
	send(e, "hola")

	e.ClearHistory()
	gt.A(t, e.History()).Length(0)
	e.ClearHistory()
	gt.A(t, e.History()).Length(0)

	send(e, "otra vez")
	gt.A(t, e.History()).Length(2)
}

func TestHistoryIsCopy(t *testing.T) {
	e := dialogue.New(echoLLM())
	send(e, "hola")

	history := e.History()
	history[0].Content = "modificado"
	_ = append(history, model.ConversationTurn{Content: "extra"})

	fresh := e.History()
	gt.A(t, fresh).Length(2)
	gt.Equal(t, fresh[0].Content, "hola")
}

func TestTranscriptCapacity(t *testing.T) {
	cfg := dialogue.DefaultConfig()
	cfg.TranscriptCapacity = 12
	e := dialogue.New(echoLLM(), dialogue.WithConfig(cfg))

	for i := 0; i < 20; i++ {
		send(e, fmt.Sprintf("m%d", i))
	}

	history := e.History()
	gt.A(t, history).Length(12)
	gt.Equal(t, history[0].Content, "m14")
	gt.Equal(t, history[11].Content, "eco: m19")
}

func TestTranscriptCapacityNeverBelowWindow(t *testing.T) {
	cfg := dialogue.DefaultConfig()
	cfg.TranscriptCapacity = 2
	e := dialogue.New(echoLLM(), dialogue.WithConfig(cfg))

	gt.Equal(t, e.Config().TranscriptCapacity, dialogue.WindowSize)
	for i := 0; i < 8; i++ {
		send(e, fmt.Sprintf("m%d", i))
	}
	gt.A(t, e.History()).Length(dialogue.WindowSize)
}

func TestUpdateConfig(t *testing.T) {
	llm := echoLLM()
	e := dialogue.New(llm)
	send(e, "antes")

	modelName := "custom-model"
	temperature := 0.2
	prompt := "Eres breve."
	gt.NoError(t, e.UpdateConfig(dialogue.ConfigPatch{
		Model:        &modelName,
		Temperature:  &temperature,
		SystemPrompt: &prompt,
	}))

	send(e, "después")
	call := llm.lastCall()
	gt.Equal(t, call.Model, "custom-model")
	gt.Equal(t, call.Temperature, 0.2)
	gt.Equal(t, call.Messages[0].Content, "Eres breve.")
	gt.Equal(t, call.MaxTokens, int64(dialogue.DefaultMaxTokens))

	gt.Equal(t, e.History()[0].Content, "antes")

	bad := -1.0
	err := e.UpdateConfig(dialogue.ConfigPatch{Temperature: &bad})
	gt.True(t, errors.Is(err, model.ErrInvalidInput))
	gt.Equal(t, e.Config().Temperature, 0.2)
}

type mockProvider struct {
	promptContextFn func(ctx context.Context, userID model.UserID) (string, error)
}

func (m *mockProvider) PromptContext(ctx context.Context, userID model.UserID) (string, error) {
	return m.promptContextFn(ctx, userID)
}

func TestContextProvider(t *testing.T) {
	llm := echoLLM()
	e := dialogue.New(llm, dialogue.WithContextProvider(&mockProvider{
		promptContextFn: func(ctx context.Context, userID model.UserID) (string, error) {
			return "Preferencias: theme=light", nil
		},
	}))
	send(e, "hola")
	gt.S(t, llm.lastCall().Messages[0].Content).Contains("Preferencias: theme=light")

	failing := echoLLM()
	e2 := dialogue.New(failing, dialogue.WithContextProvider(&mockProvider{
		promptContextFn: func(ctx context.Context, userID model.UserID) (string, error) {
			return "", errors.New("store down")
		},
	}))
	result := send(e2, "hola")
	gt.Equal(t, result.Message, "eco: hola")
	gt.Equal(t, failing.lastCall().Messages[0].Content, dialogue.DefaultSystemPrompt)
}

func TestConversationScope(t *testing.T) {
	llm := echoLLM()
	e := dialogue.New(llm, dialogue.WithConversationID("conv-1"))

	send(e, "hola")
	gt.Equal(t, llm.lastCall().ConversationScopeID, "conv-1")

	e.ProcessMessage(context.Background(), "user-1", &model.DialogueInput{Message: "hola", ConversationID: "conv-2"})
	gt.Equal(t, llm.lastCall().ConversationScopeID, "conv-2")
}

func TestConcurrentTurnsDoNotInterleave(t *testing.T) {
	e := dialogue.New(echoLLM())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			send(e, fmt.Sprintf("m%d", i))
		}(i)
	}
	wg.Wait()

	history := e.History()
	gt.A(t, history).Length(10)
	for i := 0; i < len(history); i += 2 {
		gt.Equal(t, history[i].Role, model.RoleUser)
		gt.Equal(t, history[i+1].Content, "eco: "+history[i].Content)
	}
}

func TestFailingServiceNeverPanics(t *testing.T) {
	e := dialogue.New(failingLLM(context.Canceled))
	result := send(e, "hola")
	gt.Equal(t, result.Emotion, model.EmotionConcerned)
}
