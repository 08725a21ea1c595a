package dialogue

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/OsoPanda1/isabella/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

const (
	emotionQuery     = "data.isabella.emotion"
	suggestionsQuery = "data.isabella.suggestions"
)

// RegoClassifier classifies replies with Rego policies. The input document
// is {"text": <reply>, "lower": <lowercased reply>}. The policy may define
// data.isabella.emotion as a string and data.isabella.suggestions as an array
// of strings. Undefined or invalid results fall back to the heuristics.
type RegoClassifier struct {
	emotion     *rego.PreparedEvalQuery
	suggestions *rego.PreparedEvalQuery
}

type regoPrintHook struct {
	ctx context.Context
}

func (h *regoPrintHook) Print(_ print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message)
	return nil
}

// NewRegoClassifier loads every .rego file in policyDir
func NewRegoClassifier(ctx context.Context, policyDir string) (*RegoClassifier, error) {
	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", policyDir))
	}
	if len(files) == 0 {
		return nil, goerr.New("no policy files found", goerr.V("dir", policyDir))
	}

	modules := make([]func(*rego.Rego), 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		modules = append(modules, rego.Module(file, string(data)))
	}

	return newRegoClassifier(ctx, modules)
}

// NewRegoClassifierFromSource builds a classifier from in-memory modules
// keyed by file name
func NewRegoClassifierFromSource(ctx context.Context, sources map[string]string) (*RegoClassifier, error) {
	modules := make([]func(*rego.Rego), 0, len(sources))
	for name, src := range sources {
		modules = append(modules, rego.Module(name, src))
	}
	return newRegoClassifier(ctx, modules)
}

func newRegoClassifier(ctx context.Context, modules []func(*rego.Rego)) (*RegoClassifier, error) {
	emotion, err := prepareQuery(ctx, modules, emotionQuery)
	if err != nil {
		return nil, err
	}
	suggestions, err := prepareQuery(ctx, modules, suggestionsQuery)
	if err != nil {
		return nil, err
	}
	return &RegoClassifier{emotion: emotion, suggestions: suggestions}, nil
}

func prepareQuery(ctx context.Context, modules []func(*rego.Rego), query string) (*rego.PreparedEvalQuery, error) {
	options := make([]func(*rego.Rego), 0, len(modules)+1)
	options = append(options, rego.Query(query))
	options = append(options, modules...)

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare query", goerr.V("query", query))
	}
	return &prepared, nil
}

func (c *RegoClassifier) eval(ctx context.Context, query *rego.PreparedEvalQuery, text string) (any, bool) {
	input := map[string]any{
		"text":  text,
		"lower": strings.ToLower(text),
	}
	rs, err := query.Eval(ctx, rego.EvalInput(input), rego.EvalPrintHook(&regoPrintHook{ctx: ctx}))
	if err != nil {
		logging.From(ctx).Warn("failed to evaluate classifier policy", "error", err)
		return nil, false
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, false
	}
	return rs[0].Expressions[0].Value, true
}

func (c *RegoClassifier) Classify(ctx context.Context, text string) model.Emotion {
	value, ok := c.eval(ctx, c.emotion, text)
	if !ok {
		return ClassifyEmotion(text)
	}

	s, ok := value.(string)
	if !ok {
		return ClassifyEmotion(text)
	}
	emotion := model.Emotion(s)
	if err := emotion.Validate(); err != nil {
		logging.From(ctx).Warn("policy returned unknown emotion", "error", err)
		return ClassifyEmotion(text)
	}
	return emotion
}

func (c *RegoClassifier) Suggest(ctx context.Context, text string) []string {
	value, ok := c.eval(ctx, c.suggestions, text)
	if !ok {
		return GenerateSuggestions(text)
	}

	items, ok := value.([]any)
	if !ok {
		return GenerateSuggestions(text)
	}
	suggestions := make([]string, 0, MaxSuggestions)
	for _, item := range items {
		s, ok := item.(string)
		if !ok || s == "" {
			continue
		}
		suggestions = append(suggestions, s)
		if len(suggestions) == MaxSuggestions {
			break
		}
	}
	return suggestions
}
