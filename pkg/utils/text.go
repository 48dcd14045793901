// Package utils provides shared helpers for logging and display text.
package utils

import (
	"strings"
	"unicode/utf8"
)

// Truncate returns s cut to at most maxLen runes, with "..." appended if it was cut.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	i, n := 0, 0
	for i = range s {
		if n == maxLen {
			break
		}
		n++
	}
	return s[:i] + "..."
}

// OneLine collapses all whitespace runs, newlines included, to single spaces.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
