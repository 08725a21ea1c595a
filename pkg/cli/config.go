package cli

import (
	"context"
	"io"
	"time"

	"github.com/OsoPanda1/isabella/pkg/adapter"
	"github.com/OsoPanda1/isabella/pkg/repository"
	"github.com/OsoPanda1/isabella/pkg/usecase/assistant"
	"github.com/OsoPanda1/isabella/pkg/usecase/dialogue"
	"github.com/OsoPanda1/isabella/pkg/usecase/vault"
	"github.com/OsoPanda1/isabella/pkg/utils/logging"
	"github.com/OsoPanda1/isabella/pkg/utils/metrics"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const defaultAssistantName = "Isabella"

const (
	providerClaude = "claude"
	providerGemini = "gemini"
	providerOpenAI = "openai"
)

// config holds configuration values
type config struct {
	logLevel  string
	logFormat string

	// Repository
	store             string
	firestoreProject  string
	firestoreDatabase string
	archiveBucket     string

	// Adapters
	llmProvider     string
	model           string
	temperature     float64
	maxTokens       int64
	timeout         time.Duration
	anthropicAPIKey string
	openaiAPIKey    string
	geminiProject   string
	geminiLocation  string

	// Dialogue
	personaPath      string
	classifierPolicy string
	personalize      bool

	// Sessions, set by serve
	idleTTL     time.Duration
	maxSessions int

	// assistantName is the persona name shown by chat
	assistantName string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("ISABELLA_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("ISABELLA_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "store",
			Aliases:     []string{"s"},
			Usage:       "Memory store DSN (postgres://, sqlite://<path>, firestore://<project>/<db>); in-process when empty",
			Sources:     cli.EnvVars("ISABELLA_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "Google Cloud project ID for the Firestore store",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.firestoreProject,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.firestoreDatabase,
		},
		&cli.StringFlag{
			Name:        "archive-bucket",
			Usage:       "Cloud Storage bucket for ended conversation transcripts",
			Sources:     cli.EnvVars("ISABELLA_ARCHIVE_BUCKET"),
			Destination: &cfg.archiveBucket,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-provider",
			Usage:       "Language model backend (claude, gemini, openai)",
			Value:       providerClaude,
			Sources:     cli.EnvVars("ISABELLA_LLM_PROVIDER"),
			Destination: &cfg.llmProvider,
		},
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "Model name; the backend default when empty",
			Sources:     cli.EnvVars("ISABELLA_MODEL"),
			Destination: &cfg.model,
		},
		&cli.FloatFlag{
			Name:        "temperature",
			Usage:       "Sampling temperature (0 to 2)",
			Value:       dialogue.DefaultTemperature,
			Sources:     cli.EnvVars("ISABELLA_TEMPERATURE"),
			Destination: &cfg.temperature,
		},
		&cli.IntFlag{
			Name:        "max-tokens",
			Usage:       "Maximum tokens per reply",
			Value:       dialogue.DefaultMaxTokens,
			Sources:     cli.EnvVars("ISABELLA_MAX_TOKENS"),
			Destination: &cfg.maxTokens,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "Time limit for each language model call",
			Value:       dialogue.DefaultTimeout,
			Sources:     cli.EnvVars("ISABELLA_TIMEOUT"),
			Destination: &cfg.timeout,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "persona",
			Usage:       "YAML file overriding the persona and generation settings",
			Sources:     cli.EnvVars("ISABELLA_PERSONA"),
			Destination: &cfg.personaPath,
		},
		&cli.StringFlag{
			Name:        "classifier-policy",
			Usage:       "Directory of Rego policies for emotion and suggestion classification",
			Sources:     cli.EnvVars("ISABELLA_CLASSIFIER_POLICY"),
			Destination: &cfg.classifierPolicy,
		},
		&cli.BoolFlag{
			Name:        "personalize",
			Usage:       "Add the user's preferences and important memories to the system prompt",
			Sources:     cli.EnvVars("ISABELLA_PERSONALIZE"),
			Destination: &cfg.personalize,
		},
	}
}

// setupLogger installs the default logger and attaches it to ctx
func (cfg *config) setupLogger(ctx context.Context, w io.Writer) (context.Context, error) {
	level, err := logging.ParseLevel(cfg.logLevel)
	if err != nil {
		return ctx, err
	}

	var opts []logging.Option
	switch cfg.logFormat {
	case "", "console":
	case "json":
		opts = append(opts, logging.WithJSON())
	default:
		return ctx, goerr.New("invalid log format", goerr.V("format", cfg.logFormat))
	}

	logger := logging.New(level, w, opts...)
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.store == "" && cfg.firestoreProject != "" {
		repo, err := repository.NewFirestore(ctx, cfg.firestoreProject, cfg.firestoreDatabase)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, nil
	}

	repo, err := repository.Open(ctx, cfg.store)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	if cfg.store == "" {
		logging.From(ctx).Warn("no store configured, memories are kept in process only")
	}
	return repo, nil
}

// newLLM creates the language model adapter selected by --llm-provider
func (cfg *config) newLLM(ctx context.Context) (adapter.LLM, error) {
	switch cfg.llmProvider {
	case providerClaude:
		if cfg.anthropicAPIKey == "" {
			return nil, goerr.New("anthropic-api-key is required")
		}
		return adapter.NewClaude(cfg.anthropicAPIKey)

	case providerOpenAI:
		if cfg.openaiAPIKey == "" {
			return nil, goerr.New("openai-api-key is required")
		}
		return adapter.NewOpenAI(cfg.openaiAPIKey)

	case providerGemini:
		if cfg.geminiProject == "" {
			return nil, goerr.New("gemini-project is required")
		}
		if cfg.geminiLocation == "" {
			return nil, goerr.New("gemini-location is required")
		}
		return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation)

	default:
		return nil, goerr.New("unknown llm-provider", goerr.V("provider", cfg.llmProvider))
	}
}

// newStorage creates the transcript archive, or nil when no bucket is set
func (cfg *config) newStorage(ctx context.Context) (*adapter.CloudStorage, error) {
	if cfg.archiveBucket == "" {
		return nil, nil
	}

	storage, err := adapter.NewStorage(ctx, cfg.archiveBucket, adapter.WithStoragePrefix("isabella"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// engineConfig merges the flags with the persona file. Persona values win.
func (cfg *config) engineConfig() (dialogue.Config, error) {
	engineCfg := dialogue.DefaultConfig()
	engineCfg.Model = cfg.model
	engineCfg.Temperature = cfg.temperature
	engineCfg.MaxTokens = cfg.maxTokens
	engineCfg.Timeout = cfg.timeout

	if cfg.personaPath != "" {
		persona, err := loadPersona(cfg.personaPath)
		if err != nil {
			return engineCfg, err
		}
		engineCfg = persona.apply(engineCfg)
		cfg.assistantName = persona.Name
	}
	if cfg.assistantName == "" {
		cfg.assistantName = defaultAssistantName
	}

	if err := (dialogue.ConfigPatch{
		Temperature: &engineCfg.Temperature,
		MaxTokens:   &engineCfg.MaxTokens,
		Timeout:     &engineCfg.Timeout,
	}).Validate(); err != nil {
		return engineCfg, goerr.Wrap(err, "invalid generation settings")
	}
	return engineCfg, nil
}

// runtime is the set of long-lived collaborators built from config
type runtime struct {
	repo    repository.Repository
	storage *adapter.CloudStorage
	metrics *metrics.Metrics
	service *assistant.Service
}

// newRuntime wires the store, the language model, and the session façade
func (cfg *config) newRuntime(ctx context.Context) (*runtime, error) {
	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return nil, err
	}

	llm, err := cfg.newLLM(ctx)
	if err != nil {
		return nil, err
	}

	var engineOpts []dialogue.Option
	if cfg.classifierPolicy != "" {
		classifier, err := dialogue.NewRegoClassifier(ctx, cfg.classifierPolicy)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to load classifier policy")
		}
		engineOpts = append(engineOpts,
			dialogue.WithEmotionClassifier(classifier),
			dialogue.WithSuggester(classifier),
		)
	}

	cache, err := vault.NewCache(0)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create memory cache")
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		repo:    repo,
		metrics: metrics.New("isabella"),
	}

	rt.storage, err = cfg.newStorage(ctx)
	if err != nil {
		rt.close(ctx)
		return nil, err
	}

	opts := []assistant.Option{
		assistant.WithEngineConfig(engineCfg),
		assistant.WithEngineOptions(engineOpts...),
		assistant.WithCache(cache),
		assistant.WithMetrics(rt.metrics),
		assistant.WithPersonalization(cfg.personalize),
		assistant.WithIdleTTL(cfg.idleTTL),
		assistant.WithMaxSessions(cfg.maxSessions),
	}
	if rt.storage != nil {
		opts = append(opts, assistant.WithArchive(rt.storage))
	}

	rt.service, err = assistant.New(repo, llm, opts...)
	if err != nil {
		rt.close(ctx)
		return nil, goerr.Wrap(err, "failed to create assistant")
	}
	return rt, nil
}

// close archives open sessions and releases backends. Errors are logged.
func (rt *runtime) close(ctx context.Context) {
	logger := logging.From(ctx)
	if rt.service != nil {
		if err := rt.service.Close(ctx); err != nil {
			logger.Warn("failed to archive sessions", "error", err)
		}
	}
	if rt.storage != nil {
		if err := rt.storage.Close(); err != nil {
			logger.Warn("failed to close storage", "error", err)
		}
	}
	if err := rt.repo.Close(); err != nil {
		logger.Warn("failed to close repository", "error", err)
	}
}
