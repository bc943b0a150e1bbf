package recall

import (
	"regexp"
	"strings"

	"github.com/hrygo/mnemo/ai/internal/fuzzy"
	"github.com/hrygo/mnemo/store"
)

// categoryKeywords maps query tokens to the categories they hint at. The
// hinted set narrows retrieval for pointed questions like "where do I live".
var categoryKeywords = map[string][]store.FactCategory{
	"where":    {store.CategoryBiographical},
	"live":     {store.CategoryBiographical},
	"lives":    {store.CategoryBiographical},
	"living":   {store.CategoryBiographical},
	"city":     {store.CategoryBiographical},
	"location": {store.CategoryBiographical},
	"born":     {store.CategoryBiographical},
	"from":     {store.CategoryBiographical},
	"age":      {store.CategoryBiographical},
	"hometown": {store.CategoryBiographical},

	"job":        {store.CategoryWorkContext},
	"work":       {store.CategoryWorkContext},
	"works":      {store.CategoryWorkContext},
	"working":    {store.CategoryWorkContext},
	"employer":   {store.CategoryWorkContext},
	"employed":   {store.CategoryWorkContext},
	"company":    {store.CategoryWorkContext},
	"career":     {store.CategoryWorkContext},
	"profession": {store.CategoryWorkContext},
	"office":     {store.CategoryWorkContext},

	"girlfriend": {store.CategoryRelationship},
	"boyfriend":  {store.CategoryRelationship},
	"partner":    {store.CategoryRelationship},
	"wife":       {store.CategoryRelationship},
	"husband":    {store.CategoryRelationship},
	"married":    {store.CategoryRelationship},
	"friend":     {store.CategoryRelationship},
	"friends":    {store.CategoryRelationship},
	"family":     {store.CategoryRelationship},
	"mother":     {store.CategoryRelationship},
	"father":     {store.CategoryRelationship},
	"brother":    {store.CategoryRelationship},
	"sister":     {store.CategoryRelationship},
	"kids":       {store.CategoryRelationship},

	"like":      {store.CategoryUserPreference},
	"likes":     {store.CategoryUserPreference},
	"love":      {store.CategoryUserPreference},
	"prefer":    {store.CategoryUserPreference},
	"prefers":   {store.CategoryUserPreference},
	"favorite":  {store.CategoryUserPreference},
	"favourite": {store.CategoryUserPreference},
	"enjoy":     {store.CategoryUserPreference},
	"enjoys":    {store.CategoryUserPreference},
	"hobby":     {store.CategoryUserPreference},
	"hobbies":   {store.CategoryUserPreference},

	"learn":    {store.CategoryLearning},
	"learning": {store.CategoryLearning},
	"study":    {store.CategoryLearning},
	"studying": {store.CategoryLearning},
	"course":   {store.CategoryLearning},
	"courses":  {store.CategoryLearning},
	"skill":    {store.CategoryLearning},
	"skills":   {store.CategoryLearning},
}

// hintedCategories unions the categories suggested by the query's tokens.
func hintedCategories(query string) []store.FactCategory {
	seen := make(map[store.FactCategory]bool)
	var hinted []store.FactCategory
	for _, token := range fuzzy.Tokenize(query) {
		for _, c := range categoryKeywords[token] {
			if !seen[c] {
				seen[c] = true
				hinted = append(hinted, c)
			}
		}
	}
	return hinted
}

// genericPatterns match self-description prompts that should return a
// balanced profile slate instead of intent-filtered results.
var genericPatterns = []*regexp.Regexp{
	regexp.MustCompile(`tell me about (me|myself)`),
	regexp.MustCompile(`who am i`),
	regexp.MustCompile(`summarize my (profile|information|details|summary)`),
	regexp.MustCompile(`describe me`),
	regexp.MustCompile(`what .* (know|remember) about me`),
	regexp.MustCompile(`everything .* about me`),
}

var nonQueryChars = regexp.MustCompile(`[^a-z0-9\s]`)

// isGenericQuery reports whether the query is a generic self-description
// prompt. Punctuation is stripped before matching.
func isGenericQuery(query string) bool {
	cleaned := nonQueryChars.ReplaceAllString(strings.ToLower(query), "")
	cleaned = strings.TrimSpace(cleaned)
	for _, p := range genericPatterns {
		if p.MatchString(cleaned) {
			return true
		}
	}
	return false
}
