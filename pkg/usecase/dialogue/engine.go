package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/OsoPanda1/isabella/pkg/adapter"
	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/OsoPanda1/isabella/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// ApologyMessage is returned in place of a reply when the language model
// call fails
const ApologyMessage = "Lo siento, tuve un problema al procesar tu mensaje. ¿Podrías intentarlo de nuevo?"

func apology(elapsed time.Duration) *model.DialogueResult {
	return &model.DialogueResult{
		Message:     ApologyMessage,
		Emotion:     model.EmotionConcerned,
		Suggestions: []string{},
		Metadata:    model.TurnMetadata{ProcessingTimeMS: elapsed.Milliseconds()},
	}
}

// ContextProvider supplies extra system prompt text for a user, such as
// remembered preferences. An error or empty text leaves the prompt as is.
type ContextProvider interface {
	PromptContext(ctx context.Context, userID model.UserID) (string, error)
}

// TurnOutcome describes one finished ProcessMessage call
type TurnOutcome struct {
	UserID   model.UserID
	Duration time.Duration
	Err      error // nil when a reply was produced
}

// TurnHook observes every finished turn
type TurnHook func(ctx context.Context, outcome TurnOutcome)

// Engine produces one assistant reply per user message and keeps a bounded
// transcript of the conversation. Calls to ProcessMessage on one engine are
// serialized.
type Engine struct {
	llm            adapter.LLM
	classifier     EmotionClassifier
	suggester      Suggester
	provider       ContextProvider
	hook           TurnHook
	conversationID model.ConversationID

	// turnMu serializes whole turns; mu guards cfg and transcript
	turnMu     sync.Mutex
	mu         sync.RWMutex
	cfg        Config
	transcript *transcript
}

type Option func(*Engine)

func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

func WithEmotionClassifier(c EmotionClassifier) Option {
	return func(e *Engine) {
		e.classifier = c
	}
}

func WithSuggester(s Suggester) Option {
	return func(e *Engine) {
		e.suggester = s
	}
}

// WithContextProvider appends provider text to the system prompt of every
// request
func WithContextProvider(p ContextProvider) Option {
	return func(e *Engine) {
		e.provider = p
	}
}

func WithTurnHook(hook TurnHook) Option {
	return func(e *Engine) {
		e.hook = hook
	}
}

// WithConversationID sets the scope forwarded to the language model when the
// input carries none
func WithConversationID(id model.ConversationID) Option {
	return func(e *Engine) {
		e.conversationID = id
	}
}

// New creates a new dialogue engine
func New(llm adapter.LLM, opts ...Option) *Engine {
	e := &Engine{
		llm:        llm,
		classifier: HeuristicClassifier{},
		suggester:  HeuristicSuggester{},
		cfg:        DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg = e.cfg.normalize()
	e.transcript = newTranscript(e.cfg.TranscriptCapacity)
	return e
}

// ProcessMessage runs one turn. It never returns an error: failures of the
// language model, and a nil input, produce ApologyMessage tagged concerned
// and leave the transcript untouched.
func (e *Engine) ProcessMessage(ctx context.Context, userID model.UserID, input *model.DialogueInput) *model.DialogueResult {
	e.turnMu.Lock()
	defer e.turnMu.Unlock()

	start := time.Now()
	logger := logging.From(ctx).With("user_id", userID)

	if input == nil {
		err := goerr.Wrap(model.ErrInvalidInput, "dialogue input is required")
		logger.Warn("rejected turn", "error", err)
		elapsed := time.Since(start)
		if e.hook != nil {
			e.hook(ctx, TurnOutcome{UserID: userID, Duration: elapsed, Err: err})
		}
		return apology(elapsed)
	}

	e.mu.RLock()
	cfg := e.cfg
	window := e.transcript.last(WindowSize)
	e.mu.RUnlock()

	conversationID := input.ConversationID
	if conversationID == "" {
		conversationID = e.conversationID
	}

	messages := make([]adapter.Message, 0, len(window)+2)
	messages = append(messages, adapter.Message{Role: model.RoleSystem, Content: e.systemPrompt(ctx, cfg, userID)})
	for _, turn := range window {
		messages = append(messages, adapter.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, adapter.Message{Role: model.RoleUser, Content: input.Message})

	out, err := e.generate(ctx, cfg, &adapter.GenerateInput{
		Messages:            messages,
		Model:               cfg.Model,
		Temperature:         cfg.Temperature,
		MaxTokens:           cfg.MaxTokens,
		UserID:              userID,
		ConversationScopeID: string(conversationID),
	})

	elapsed := time.Since(start)
	if e.hook != nil {
		defer func() {
			e.hook(ctx, TurnOutcome{UserID: userID, Duration: elapsed, Err: err})
		}()
	}

	if err != nil {
		logger.Error("failed to generate reply", "error", err)
		return apology(elapsed)
	}

	emotion := e.classifier.Classify(ctx, out.Content)
	suggestions := e.suggester.Suggest(ctx, out.Content)
	if len(suggestions) > MaxSuggestions {
		suggestions = suggestions[:MaxSuggestions]
	}
	metadata := model.TurnMetadata{
		ProcessingTimeMS: elapsed.Milliseconds(),
		ModelID:          out.ModelID,
	}

	now := time.Now().UTC()
	e.mu.Lock()
	e.transcript.append(
		model.ConversationTurn{
			ID:             model.NewTurnID(),
			ConversationID: conversationID,
			Role:           model.RoleUser,
			Content:        input.Message,
			CreatedAt:      now,
		},
		model.ConversationTurn{
			ID:             model.NewTurnID(),
			ConversationID: conversationID,
			Role:           model.RoleAssistant,
			Content:        out.Content,
			Emotion:        emotion,
			Metadata:       &metadata,
			CreatedAt:      now,
		},
	)
	e.mu.Unlock()

	logger.Debug("reply generated", "emotion", emotion, "processing_time_ms", metadata.ProcessingTimeMS)

	return &model.DialogueResult{
		Message:     out.Content,
		Emotion:     emotion,
		Suggestions: suggestions,
		Metadata:    metadata,
	}
}

func (e *Engine) systemPrompt(ctx context.Context, cfg Config, userID model.UserID) string {
	if e.provider == nil {
		return cfg.SystemPrompt
	}

	extra, err := e.provider.PromptContext(ctx, userID)
	if err != nil {
		logging.From(ctx).Warn("failed to build prompt context", "error", err, "user_id", userID)
		return cfg.SystemPrompt
	}
	if strings.TrimSpace(extra) == "" {
		return cfg.SystemPrompt
	}
	return cfg.SystemPrompt + "\n\n" + extra
}

func (e *Engine) generate(ctx context.Context, cfg Config, input *adapter.GenerateInput) (*adapter.GenerateOutput, error) {
	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	out, err := e.llm.Generate(callCtx, input)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, goerr.Wrap(errors.Join(model.ErrServiceUnavailable, err), "language model call timed out", goerr.V("timeout", cfg.Timeout))
		}
		return nil, goerr.Wrap(errors.Join(model.ErrServiceUnavailable, err), "language model call failed")
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return nil, goerr.Wrap(model.ErrServiceUnavailable, "language model returned an empty reply")
	}
	return out, nil
}

// ClearHistory empties the transcript. The vault is not affected.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transcript.clear()
}

// History returns a copy of the transcript, oldest turn first
func (e *Engine) History() []model.ConversationTurn {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.transcript.all()
}

// UpdateConfig merges patch into the configuration used by later turns
func (e *Engine) UpdateConfig(patch ConfigPatch) error {
	if err := patch.Validate(); err != nil {
		return goerr.Wrap(errors.Join(model.ErrInvalidInput, err), "invalid config patch")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = patch.Apply(e.cfg).normalize()
	return nil
}

// Config returns the current configuration
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}
