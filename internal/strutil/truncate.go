// Package strutil provides small string helpers shared by the ai and
// server packages.
package strutil

// Truncate shortens s to at most maxLen runes, appending "..." when it cuts.
// Rune-level slicing keeps multi-byte characters intact.
// Returns empty string if maxLen <= 0 to prevent slice bounds panic.
func Truncate(s string, maxLen int) string {
	if s == "" || maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
