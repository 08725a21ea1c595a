package dialogue

import (
	"context"
	"strings"
)

// MaxSuggestions caps the number of suggestions attached to a reply
const MaxSuggestions = 3

// Suggester proposes follow-up actions for a reply
type Suggester interface {
	Suggest(ctx context.Context, text string) []string
}

type suggestionGroup struct {
	label    string
	keywords []string
}

var suggestionGroups = []suggestionGroup{
	{"Ver conciertos", []string{"concierto", "concert", "música", "music"}},
	{"Explorar DreamSpaces", []string{"dreamspace", "espacio", "space"}},
	{"Ver mi wallet", []string{"wallet", "billetera", "créditos", "credits"}},
	{"Crear puentes", []string{"colaborar", "collaborat", "puentes", "bridges"}},
	{"Cuidar mascota", []string{"mascota", "pet"}},
}

// GenerateSuggestions returns one label per matching topic group, in group
// order, truncated to MaxSuggestions
func GenerateSuggestions(text string) []string {
	lower := strings.ToLower(text)
	suggestions := make([]string, 0, MaxSuggestions)
	for _, group := range suggestionGroups {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				suggestions = append(suggestions, group.label)
				break
			}
		}
		if len(suggestions) == MaxSuggestions {
			break
		}
	}
	return suggestions
}

// HeuristicSuggester is a Suggester backed by GenerateSuggestions
type HeuristicSuggester struct{}

func (HeuristicSuggester) Suggest(_ context.Context, text string) []string {
	return GenerateSuggestions(text)
}
