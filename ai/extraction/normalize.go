package extraction

import (
	"strings"
	"unicode"

	"github.com/hrygo/mnemo/store"
)

// Temporal markers exempt a fact from category normalization: content like
// "Previously lived in Dallas" already carries its own framing.
var temporalMarkers = []string{
	"previously",
	"used to",
	"planning to",
	"usually",
	"formerly",
	"no longer",
	"will ",
}

func hasTemporalMarker(content string) bool {
	lower := strings.ToLower(content)
	for _, marker := range temporalMarkers {
		if strings.HasPrefix(lower, marker) {
			return true
		}
	}
	return false
}

var biographicalPrefixes = []string{"lives in", "born in", "from", "age", "lived in"}

var workPrefixes = []string{"works", "is a", "is an", "employed", "worked"}

// normalizeContent rewrites raw model output into the canonical phrasing for
// its category so that slot supersession and dedup compare like with like.
func normalizeContent(category store.FactCategory, content string) string {
	content = strings.TrimSpace(content)
	if content == "" || hasTemporalMarker(content) {
		return content
	}
	lower := strings.ToLower(content)

	switch category {
	case store.CategoryBiographical:
		for _, prefix := range biographicalPrefixes {
			if strings.HasPrefix(lower, prefix) {
				return content
			}
		}
		return "Lives in " + content
	case store.CategoryWorkContext:
		for _, prefix := range workPrefixes {
			if strings.HasPrefix(lower, prefix) {
				return content
			}
		}
		// A leading capital suggests an employer name; otherwise treat the
		// content as a role description.
		if startsUpper(content) {
			return "Works at " + content
		}
		return "Is a " + content
	}
	return content
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

// validCandidate applies the client-side acceptance rules to one extracted
// fact: at least two words, not a question, confidence above the floor, and
// a known category.
func validCandidate(c *candidateFact) bool {
	if len(strings.Fields(c.Content)) < 2 {
		return false
	}
	if strings.HasSuffix(strings.TrimSpace(c.Content), "?") {
		return false
	}
	if c.Confidence < minConfidence {
		return false
	}
	return store.FactCategory(c.Category).IsValid()
}
