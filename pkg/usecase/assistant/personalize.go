package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/OsoPanda1/isabella/pkg/model"
)

// personalizedMemories is how many top memories are added to the prompt
const personalizedMemories = 5

// memoryContext builds a system prompt section from the user's vault
type memoryContext struct {
	service *Service
}

func (m *memoryContext) PromptContext(ctx context.Context, userID model.UserID) (string, error) {
	var b strings.Builder

	prefs := m.service.Preferences(ctx, userID)
	if len(prefs) > 0 {
		b.WriteString("Preferencias conocidas del usuario:\n")
		keys := make([]string, 0, len(prefs))
		for k := range prefs {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, prefs[k])
		}
	}

	memories := m.service.Recall(ctx, userID, "", personalizedMemories)
	var lines []string
	for _, record := range memories {
		if record.Type == model.MemoryTypePreference {
			continue
		}
		raw, err := json.Marshal(record.Content)
		if err != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s", record.Type, raw))
	}
	if len(lines) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Recuerdos importantes del usuario:\n")
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String()), nil
}
