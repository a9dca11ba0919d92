package extract

import (
	"strings"
	"unicode/utf8"
)

// Limits bounds what a single address may contribute to a Record.
type Limits struct {
	MaxPosts         int
	MaxComments      int
	MaxCommentLength int
	MaxTextLength    int
}

// DefaultLimits mirrors the configuration defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxPosts:         50,
		MaxComments:      100,
		MaxCommentLength: 2000,
		MaxTextLength:    20000,
	}
}

// Truncate cuts s to at most n runes. n <= 0 disables truncation.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i, count := 0, 0
	for i = range s {
		if count == n {
			break
		}
		count++
	}
	return s[:i]
}

// Clean collapses runs of whitespace and trims the result.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
