package cli

import (
	"os"
	"time"

	"github.com/OsoPanda1/isabella/pkg/usecase/dialogue"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// persona is the YAML file given by --persona. Omitted fields keep the
// values from flags.
//
//	name: Isabella
//	system_prompt: |
//	  Eres Isabella...
//	model: claude-sonnet-4-20250514
//	temperature: 0.5
//	max_tokens: 800
//	timeout: 20s
//	transcript_capacity: 50
type persona struct {
	Name               string   `yaml:"name"`
	SystemPrompt       string   `yaml:"system_prompt"`
	Model              string   `yaml:"model"`
	Temperature        *float64 `yaml:"temperature"`
	MaxTokens          *int64   `yaml:"max_tokens"`
	Timeout            string   `yaml:"timeout"`
	TranscriptCapacity int      `yaml:"transcript_capacity"`

	timeout time.Duration
}

func loadPersona(path string) (*persona, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read persona file", goerr.V("path", path))
	}

	var p persona
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, goerr.Wrap(err, "failed to parse persona file", goerr.V("path", path))
	}

	if p.Timeout != "" {
		p.timeout, err = time.ParseDuration(p.Timeout)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid persona timeout", goerr.V("path", path), goerr.V("timeout", p.Timeout))
		}
	}
	if p.TranscriptCapacity < 0 {
		return nil, goerr.New("transcript_capacity must not be negative", goerr.V("path", path))
	}

	return &p, nil
}

func (p *persona) apply(cfg dialogue.Config) dialogue.Config {
	var patch dialogue.ConfigPatch
	if p.SystemPrompt != "" {
		patch.SystemPrompt = &p.SystemPrompt
	}
	if p.Model != "" {
		patch.Model = &p.Model
	}
	patch.Temperature = p.Temperature
	patch.MaxTokens = p.MaxTokens
	if p.timeout > 0 {
		patch.Timeout = &p.timeout
	}

	cfg = patch.Apply(cfg)
	if p.TranscriptCapacity > 0 {
		cfg.TranscriptCapacity = p.TranscriptCapacity
	}
	return cfg
}
