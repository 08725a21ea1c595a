package dialogue

import (
	"context"
	"strings"

	"github.com/OsoPanda1/isabella/pkg/model"
)

// EmotionClassifier maps reply text to one Emotion
type EmotionClassifier interface {
	Classify(ctx context.Context, text string) model.Emotion
}

type emotionRule struct {
	emotion  model.Emotion
	keywords []string
}

// Rules are tested in order and the first match wins
var emotionRules = []emotionRule{
	{model.EmotionCelebratory, []string{"congratulations", "felicidades", "incredible", "increíble", "🎉"}},
	{model.EmotionEmpathetic, []string{"i understand", "entiendo", "i comprehend", "comprendo", "difficult", "difícil"}},
	{model.EmotionHelpful, []string{"i can help you", "i'll help you", "puedo ayudarte", "te ayudaré"}},
	{model.EmotionCurious, []string{"?", "tell me", "cuéntame", "interesting", "interesante"}},
	{model.EmotionHappy, []string{"!", "great", "genial", "😊"}},
	{model.EmotionEncouraging, []string{"cheer up", "ánimo", "you can", "puedes", "i trust", "confío"}},
}

// ClassifyEmotion is the keyword heuristic used by default. Matching is case
// insensitive.
func ClassifyEmotion(text string) model.Emotion {
	lower := strings.ToLower(text)
	for _, rule := range emotionRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.emotion
			}
		}
	}
	return model.EmotionNeutral
}

// HeuristicClassifier is an EmotionClassifier backed by ClassifyEmotion
type HeuristicClassifier struct{}

func (HeuristicClassifier) Classify(_ context.Context, text string) model.Emotion {
	return ClassifyEmotion(text)
}
