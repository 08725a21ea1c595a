package dialogue_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/OsoPanda1/isabella/pkg/usecase/dialogue"
	"github.com/m-mizutani/gt"
)

func TestClassifyEmotion(t *testing.T) {
	testCases := []struct {
		name string
		text string
		want model.Emotion
	}{
		{"celebration glyph beats question mark", "🎉 ¿Lo celebramos?", model.EmotionCelebratory},
		{"spanish congratulations", "¡Felicidades por tu logro!", model.EmotionCelebratory},
		{"empathetic over curious", "Entiendo, ¿quieres hablar de ello?", model.EmotionEmpathetic},
		{"english empathy is case insensitive", "I UNDERSTAND how you feel.", model.EmotionEmpathetic},
		{"helpful", "I can help you with that.", model.EmotionHelpful},
		{"spanish helpful", "Puedo ayudarte con eso.", model.EmotionHelpful},
		{"curious over happy", "Interesting! Tell me more", model.EmotionCurious},
		{"happy", "Great, all set.", model.EmotionHappy},
		{"smile glyph", "Listo 😊", model.EmotionHappy},
		{"encouraging", "Ánimo, tú puedes lograrlo.", model.EmotionEncouraging},
		{"neutral", "El evento empieza a las ocho.", model.EmotionNeutral},
		{"empty", "", model.EmotionNeutral},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gt.Equal(t, dialogue.ClassifyEmotion(tc.text), tc.want)
		})
	}
}

func TestGenerateSuggestions(t *testing.T) {
	testCases := []struct {
		name string
		text string
		want []string
	}{
		{"none", "Hola, ¿cómo estás?", []string{}},
		{"single", "Revisa tu billetera", []string{"Ver mi wallet"}},
		{"group order, not text order", "Tu mascota quiere música", []string{"Ver conciertos", "Cuidar mascota"}},
		{"truncated to three", "Music, space, credits, bridges and pets", []string{"Ver conciertos", "Explorar DreamSpaces", "Ver mi wallet"}},
		{"one label per group", "concierto de música con concert", []string{"Ver conciertos"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gt.Equal(t, dialogue.GenerateSuggestions(tc.text), tc.want)
		})
	}
}

const testPolicy = `package isabella

emotion := "encouraging" if {
	contains(input.lower, "mañana")
}

suggestions := ["Planear mañana"] if {
	contains(input.lower, "mañana")
}
`

func TestRegoClassifier(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "classifier.rego"), []byte(testPolicy), 0o600))

	c, err := dialogue.NewRegoClassifier(ctx, dir)
	gt.NoError(t, err)

	t.Run("policy overrides heuristics", func(t *testing.T) {
		gt.Equal(t, c.Classify(ctx, "¡Nos vemos Mañana!"), model.EmotionEncouraging)
		gt.Equal(t, c.Suggest(ctx, "¡Nos vemos mañana!"), []string{"Planear mañana"})
	})

	t.Run("undefined policy falls back to heuristics", func(t *testing.T) {
		gt.Equal(t, c.Classify(ctx, "🎉 ¡Genial!"), model.EmotionCelebratory)
		gt.Equal(t, c.Suggest(ctx, "Hay un concierto"), []string{"Ver conciertos"})
	})
}

func TestRegoClassifierRejectsUnknownEmotion(t *testing.T) {
	ctx := context.Background()
	c, err := dialogue.NewRegoClassifierFromSource(ctx, map[string]string{
		"bad.rego": "package isabella\n\nemotion := \"furious\"\n",
	})
	gt.NoError(t, err)

	gt.Equal(t, c.Classify(ctx, "Great"), model.EmotionHappy)
}

func TestRegoClassifierRequiresPolicies(t *testing.T) {
	_, err := dialogue.NewRegoClassifier(context.Background(), t.TempDir())
	gt.Error(t, err)
}

func TestEngineUsesRegoClassifier(t *testing.T) {
	ctx := context.Background()
	c, err := dialogue.NewRegoClassifierFromSource(ctx, map[string]string{"classifier.rego": testPolicy})
	gt.NoError(t, err)

	e := dialogue.New(echoLLM(), dialogue.WithEmotionClassifier(c), dialogue.WithSuggester(c))
	result := send(e, "hasta mañana")
	gt.Equal(t, result.Emotion, model.EmotionEncouraging)
	gt.Equal(t, result.Suggestions, []string{"Planear mañana"})
}

func TestExamplePolicy(t *testing.T) {
	ctx := context.Background()
	c, err := dialogue.NewRegoClassifier(ctx, filepath.Join("..", "..", "..", "examples", "policy"))
	gt.NoError(t, err)

	gt.Equal(t, c.Classify(ctx, "¡Feliz cumpleaños!"), model.EmotionCelebratory)
	gt.Equal(t, c.Suggest(ctx, "Organizo una fiesta"), []string{"Crear evento", "Invitar amigos"})
	gt.Equal(t, c.Classify(ctx, "Puedo ayudarte con eso"), model.EmotionHelpful)
}
