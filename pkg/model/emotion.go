package model

import "github.com/m-mizutani/goerr/v2"

// Emotion is the closed set of moods attached to replies and memories
type Emotion string

const (
	EmotionNeutral     Emotion = "neutral"
	EmotionHappy       Emotion = "happy"
	EmotionHelpful     Emotion = "helpful"
	EmotionCurious     Emotion = "curious"
	EmotionEncouraging Emotion = "encouraging"
	EmotionEmpathetic  Emotion = "empathetic"
	EmotionConcerned   Emotion = "concerned"
	EmotionCelebratory Emotion = "celebratory"
)

// Emotions lists every valid Emotion
var Emotions = []Emotion{
	EmotionNeutral,
	EmotionHappy,
	EmotionHelpful,
	EmotionCurious,
	EmotionEncouraging,
	EmotionEmpathetic,
	EmotionConcerned,
	EmotionCelebratory,
}

// Validate checks if the emotion is one of the known values
func (e Emotion) Validate() error {
	for _, v := range Emotions {
		if e == v {
			return nil
		}
	}
	return goerr.Wrap(ErrInvalidEmotion, "unknown emotion", goerr.V("emotion", e))
}
