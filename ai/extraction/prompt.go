package extraction

import (
	"fmt"
	"strings"

	"github.com/hrygo/mnemo/ai/llm"
	"github.com/hrygo/mnemo/store"
)

const extractionSystemPrompt = `You extract long-term memory facts about the user from a conversation transcript.

Rules:
- Each fact must be atomic: one statement about one thing. Split compound statements.
- category is one of: biographical, work_context, relationship, user_preference, learning.
- slot_hint names the single-valued position the fact occupies when one exists, for example "employer", "role", "location", "partner". Use null when no single-valued slot applies.
- temporal_state is one of: current, past, future, recurring. Mark facts about the past explicitly, for example "Previously lived in Dallas" with temporal_state "past".
- confidence is 0.7 to 1.0 when the user states the fact explicitly, 0.4 to 0.6 when it is inferred.
- Only extract facts about the user. Ignore facts about the assistant or third parties unless they describe the user's relationships.
- Return an empty facts array when the transcript contains nothing worth remembering.`

func factsSchema() *llm.JSONSchema {
	return &llm.JSONSchema{
		Type: "object",
		Properties: map[string]*llm.JSONSchema{
			"facts": {
				Type: "array",
				Items: &llm.JSONSchema{
					Type: "object",
					Properties: map[string]*llm.JSONSchema{
						"category": {
							Type: "string",
							Enum: []string{
								string(store.CategoryBiographical),
								string(store.CategoryWorkContext),
								string(store.CategoryRelationship),
								string(store.CategoryUserPreference),
								string(store.CategoryLearning),
							},
						},
						"slot_hint":      {Type: "string", Nullable: true},
						"temporal_state": {Type: "string", Enum: []string{"current", "past", "future", "recurring"}},
						"content":        {Type: "string"},
						"confidence":     {Type: "number"},
					},
					// Strict response formats reject schemas whose required
					// list omits a declared key; slot_hint is nullable instead.
					Required: []string{"category", "slot_hint", "temporal_state", "content", "confidence"},
				},
			},
		},
		Required: []string{"facts"},
	}
}

// candidateFact is the shape of one fact in the model's reply.
type candidateFact struct {
	Category      string  `json:"category"`
	SlotHint      string  `json:"slot_hint,omitempty"`
	TemporalState string  `json:"temporal_state"`
	Content       string  `json:"content"`
	Confidence    float64 `json:"confidence"`
}

type extractionResponse struct {
	Facts []candidateFact `json:"facts"`
}

// buildTranscript renders the message window as a plain-text transcript,
// oldest first.
func buildTranscript(messages []*store.ChatLog) string {
	var sb strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}
	return sb.String()
}
