// Package fuzzy provides token-based string similarity scoring on a 0-100
// scale, used for fact deduplication and lexical recall ranking.
package fuzzy

import (
	"sort"
	"strings"
	"unicode"
)

// Tokenize lowercases s and splits it into alphanumeric tokens.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Ratio scores the similarity of two strings on a 0-100 scale using
// Levenshtein distance with substitution cost 2.
func Ratio(a, b string) int {
	lensum := len(a) + len(b)
	if lensum == 0 {
		return 100
	}
	dist := levenshtein(a, b)
	return int(float64(lensum-dist) / float64(lensum) * 100)
}

// TokenSetRatio compares the unique token sets of two strings. It is
// insensitive to word order and to repeated words, and forgiving when one
// string's tokens are a subset of the other's.
func TokenSetRatio(a, b string) int {
	setA := tokenSet(Tokenize(a))
	setB := tokenSet(Tokenize(b))
	if len(setA) == 0 && len(setB) == 0 {
		return 100
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := []string{}
	diffA := []string{}
	for tok := range setA {
		if setB[tok] {
			intersection = append(intersection, tok)
		} else {
			diffA = append(diffA, tok)
		}
	}
	diffB := []string{}
	for tok := range setB {
		if !setA[tok] {
			diffB = append(diffB, tok)
		}
	}
	sort.Strings(intersection)
	sort.Strings(diffA)
	sort.Strings(diffB)

	base := strings.Join(intersection, " ")
	combinedA := joinNonEmpty(base, strings.Join(diffA, " "))
	combinedB := joinNonEmpty(base, strings.Join(diffB, " "))

	best := Ratio(base, combinedA)
	if r := Ratio(base, combinedB); r > best {
		best = r
	}
	if r := Ratio(combinedA, combinedB); r > best {
		best = r
	}
	return best
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		set[tok] = true
	}
	return set
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + " " + b
}

// levenshtein computes edit distance with substitution cost 2, so that
// Ratio matches the conventional (lensum - dist) / lensum formulation.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 2
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
