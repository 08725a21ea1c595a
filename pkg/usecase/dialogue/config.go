package dialogue

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// WindowSize is the number of most recent transcript turns sent with every
// request
const WindowSize = 10

const (
	DefaultTemperature        = 0.7
	DefaultMaxTokens          = 1024
	DefaultTimeout            = 30 * time.Second
	DefaultTranscriptCapacity = 100
)

// DefaultSystemPrompt is the persona used when none is configured
const DefaultSystemPrompt = `Eres Isabella, una asistente cálida, empática y curiosa.
Respondes en el idioma del usuario, con frases claras y cercanas.
Ayudas a explorar conciertos, DreamSpaces, la wallet, colaboraciones y el cuidado de mascotas virtuales.
Nunca inventes datos personales del usuario.`

// Config holds generation parameters of an engine
type Config struct {
	Model        string // empty selects the adapter default
	Temperature  float64
	MaxTokens    int64
	SystemPrompt string

	// Timeout bounds each language model call
	Timeout time.Duration

	// TranscriptCapacity is the number of turns kept in memory. Values below
	// WindowSize are raised to WindowSize.
	TranscriptCapacity int
}

// DefaultConfig returns the engine configuration used when nothing is set
func DefaultConfig() Config {
	return Config{
		Temperature:        DefaultTemperature,
		MaxTokens:          DefaultMaxTokens,
		SystemPrompt:       DefaultSystemPrompt,
		Timeout:            DefaultTimeout,
		TranscriptCapacity: DefaultTranscriptCapacity,
	}
}

func (c Config) normalize() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.TranscriptCapacity < WindowSize {
		c.TranscriptCapacity = WindowSize
	}
	return c
}

// ConfigPatch is a partial update to Config. Nil fields are left unchanged.
type ConfigPatch struct {
	Model        *string        `json:"model,omitempty"`
	Temperature  *float64       `json:"temperature,omitempty"`
	MaxTokens    *int64         `json:"max_tokens,omitempty"`
	SystemPrompt *string        `json:"system_prompt,omitempty"`
	Timeout      *time.Duration `json:"timeout,omitempty"`
}

// Validate rejects values no language model accepts
func (p ConfigPatch) Validate() error {
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		return goerr.New("temperature must be between 0 and 2", goerr.V("temperature", *p.Temperature))
	}
	if p.MaxTokens != nil && *p.MaxTokens <= 0 {
		return goerr.New("max tokens must be positive", goerr.V("max_tokens", *p.MaxTokens))
	}
	if p.Timeout != nil && *p.Timeout <= 0 {
		return goerr.New("timeout must be positive", goerr.V("timeout", *p.Timeout))
	}
	return nil
}

// Apply returns c with every non-nil field of p merged in
func (p ConfigPatch) Apply(c Config) Config {
	if p.Model != nil {
		c.Model = *p.Model
	}
	if p.Temperature != nil {
		c.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		c.MaxTokens = *p.MaxTokens
	}
	if p.SystemPrompt != nil {
		c.SystemPrompt = *p.SystemPrompt
	}
	if p.Timeout != nil {
		c.Timeout = *p.Timeout
	}
	return c
}
