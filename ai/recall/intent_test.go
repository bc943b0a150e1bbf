package recall

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/mnemo/store"
)

func TestHintedCategories(t *testing.T) {
	assert.Equal(t, []store.FactCategory{store.CategoryBiographical}, hintedCategories("Where do I live?"))
	assert.Equal(t, []store.FactCategory{store.CategoryWorkContext}, hintedCategories("what is my job"))
	assert.Equal(t, []store.FactCategory{store.CategoryRelationship}, hintedCategories("my partner's name"))
	assert.Empty(t, hintedCategories("xyzzy"))

	// Multiple hints union without duplicates.
	hinted := hintedCategories("where does my partner work")
	assert.ElementsMatch(t, []store.FactCategory{
		store.CategoryBiographical,
		store.CategoryRelationship,
		store.CategoryWorkContext,
	}, hinted)
}

func TestIsGenericQuery(t *testing.T) {
	generic := []string{
		"Tell me about myself.",
		"tell me about me",
		"Who am I?",
		"Summarize my profile",
		"describe me",
		"What do you know about me?",
		"What do you remember about me",
		"everything you know about me",
	}
	for _, q := range generic {
		assert.True(t, isGenericQuery(q), q)
	}

	specific := []string{
		"Where do I live?",
		"What is my job?",
		"tell me about my dog",
		"",
	}
	for _, q := range specific {
		assert.False(t, isGenericQuery(q), q)
	}
}
