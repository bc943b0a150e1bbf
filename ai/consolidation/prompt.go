package consolidation

import (
	"fmt"
	"strings"

	"github.com/hrygo/mnemo/ai/llm"
	"github.com/hrygo/mnemo/store"
)

const summarySystemPrompt = `You write a concise user profile from a list of known facts.

Rules:
- summary is 2 to 3 sentences, third person, present tense.
- Cover the most identity-defining facts first: who they are, where they live, what they do.
- key_traits is a short list of standout characteristics, one phrase each.
- Do not invent anything that is not supported by the facts.`

func summarySchema() *llm.JSONSchema {
	return &llm.JSONSchema{
		Type: "object",
		Properties: map[string]*llm.JSONSchema{
			"summary":    {Type: "string"},
			"key_traits": {Type: "array", Items: &llm.JSONSchema{Type: "string"}},
		},
		Required: []string{"summary", "key_traits"},
	}
}

const optimizeSystemPrompt = `You select which of a user's memory facts are identity-defining: facts that should be present in every conversation with them.

Rules:
- Identity-defining facts describe who the user is, their location, occupation, close relationships, and strong lasting preferences.
- Transient details, one-off events, and low-signal observations are not identity-defining.
- essential_indices holds the zero-based indices of the selected facts. Select sparingly.`

func optimizeSchema() *llm.JSONSchema {
	return &llm.JSONSchema{
		Type: "object",
		Properties: map[string]*llm.JSONSchema{
			"essential_indices": {Type: "array", Items: &llm.JSONSchema{Type: "integer"}},
		},
		Required: []string{"essential_indices"},
	}
}

// renderFactList renders facts as a numbered list for prompting.
func renderFactList(facts []*store.Fact) string {
	var sb strings.Builder
	for i, f := range facts {
		fmt.Fprintf(&sb, "%d. [%s] %s (confidence %.2f)\n", i, f.Category, f.Content, f.Confidence)
	}
	return sb.String()
}
