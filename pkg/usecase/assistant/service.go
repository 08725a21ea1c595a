package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/OsoPanda1/isabella/pkg/adapter"
	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/OsoPanda1/isabella/pkg/repository"
	"github.com/OsoPanda1/isabella/pkg/usecase/dialogue"
	"github.com/OsoPanda1/isabella/pkg/utils/logging"
	"github.com/OsoPanda1/isabella/pkg/utils/metrics"
	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultConversationID is used by ProcessMessage when the input names no
// conversation
const DefaultConversationID model.ConversationID = "default"

const (
	DefaultIdleTTL     = 30 * time.Minute
	DefaultMaxSessions = 1000
)

// Service is the entry point for callers. It owns one dialogue engine per
// (user, conversation) and hands out per-user vaults.
type Service struct {
	repo    repository.Repository
	llm     adapter.LLM
	cache   *ristretto.Cache
	archive adapter.Storage
	metrics *metrics.Metrics

	engineConfig  dialogue.Config
	engineOptions []dialogue.Option
	personalize   bool
	idleTTL       time.Duration
	maxSessions   int
	now           func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*session
}

type Option func(*Service)

// WithEngineConfig sets the configuration every new engine starts from
func WithEngineConfig(cfg dialogue.Config) Option {
	return func(s *Service) {
		s.engineConfig = cfg
	}
}

// WithEngineOptions adds options applied to every new engine, such as a
// classifier
func WithEngineOptions(opts ...dialogue.Option) Option {
	return func(s *Service) {
		s.engineOptions = append(s.engineOptions, opts...)
	}
}

// WithCache shares a record cache between all vaults
func WithCache(cache *ristretto.Cache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithArchive stores transcripts of ended sessions
func WithArchive(storage adapter.Storage) Option {
	return func(s *Service) {
		s.archive = storage
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPersonalization feeds remembered preferences and top memories into
// the system prompt of every engine
func WithPersonalization(enabled bool) Option {
	return func(s *Service) {
		s.personalize = enabled
	}
}

// WithIdleTTL sets how long an untouched session survives the janitor
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.idleTTL = ttl
	}
}

// WithMaxSessions caps live sessions. The least recently used session is
// evicted when the cap is reached.
func WithMaxSessions(n int) Option {
	return func(s *Service) {
		s.maxSessions = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a new Service
func New(repo repository.Repository, llm adapter.LLM, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, goerr.New("repository is required")
	}
	if llm == nil {
		return nil, goerr.New("language model is required")
	}

	s := &Service{
		repo:         repo,
		llm:          llm,
		engineConfig: dialogue.DefaultConfig(),
		idleTTL:      DefaultIdleTTL,
		maxSessions:  DefaultMaxSessions,
		now:          time.Now,
		sessions:     make(map[sessionKey]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.idleTTL <= 0 {
		s.idleTTL = DefaultIdleTTL
	}
	if s.maxSessions <= 0 {
		s.maxSessions = DefaultMaxSessions
	}
	return s, nil
}

// ProcessMessage runs one turn in the (userID, input.ConversationID)
// session, creating the session on first use. Only invalid input is
// reported as an error; language model failures yield the apology reply.
func (s *Service) ProcessMessage(ctx context.Context, userID model.UserID, input *model.DialogueInput) (*model.DialogueResult, error) {
	if userID == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "user ID is required")
	}
	if input == nil || strings.TrimSpace(input.Message) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "message is required", goerr.V("user_id", userID))
	}

	conversationID := input.ConversationID
	if conversationID == "" {
		conversationID = DefaultConversationID
	}

	sess := s.acquire(ctx, userID, conversationID)
	ctx = logging.With(ctx, logging.From(ctx).With("conversation_id", conversationID))

	turn := *input
	turn.ConversationID = conversationID
	return sess.engine.ProcessMessage(ctx, userID, &turn), nil
}

// History returns a copy of the session transcript
func (s *Service) History(userID model.UserID, conversationID model.ConversationID) ([]model.ConversationTurn, error) {
	sess, err := s.lookup(userID, conversationID)
	if err != nil {
		return nil, err
	}
	return sess.engine.History(), nil
}

// ClearHistory empties the session transcript
func (s *Service) ClearHistory(userID model.UserID, conversationID model.ConversationID) error {
	sess, err := s.lookup(userID, conversationID)
	if err != nil {
		return err
	}
	sess.engine.ClearHistory()
	return nil
}

// UpdateConfig changes the configuration of one session's engine
func (s *Service) UpdateConfig(userID model.UserID, conversationID model.ConversationID, patch dialogue.ConfigPatch) (dialogue.Config, error) {
	sess, err := s.lookup(userID, conversationID)
	if err != nil {
		return dialogue.Config{}, err
	}
	if err := sess.engine.UpdateConfig(patch); err != nil {
		return dialogue.Config{}, err
	}
	return sess.engine.Config(), nil
}

// Close ends every live session, archiving transcripts when configured
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	ended := make([]*session, 0, len(s.sessions))
	for key, sess := range s.sessions {
		ended = append(ended, sess)
		delete(s.sessions, key)
	}
	s.metrics.SetActiveSessions(0)
	s.mu.Unlock()

	var errs []error
	for _, sess := range ended {
		if err := s.archiveSession(ctx, sess); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return goerr.Wrap(errors.Join(errs...), "failed to archive sessions", goerr.V("count", len(errs)))
	}
	return nil
}

func (s *Service) newEngine(key sessionKey) *dialogue.Engine {
	opts := make([]dialogue.Option, 0, len(s.engineOptions)+4)
	opts = append(opts,
		dialogue.WithConfig(s.engineConfig),
		dialogue.WithConversationID(key.conversationID),
		dialogue.WithTurnHook(func(ctx context.Context, o dialogue.TurnOutcome) {
			s.metrics.ObserveTurn(o.Duration, o.Err != nil)
		}),
	)
	if s.personalize {
		opts = append(opts, dialogue.WithContextProvider(&memoryContext{service: s}))
	}
	opts = append(opts, s.engineOptions...)
	return dialogue.New(s.llm, opts...)
}
