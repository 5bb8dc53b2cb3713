package types

import (
	"strings"
	"unicode"
)

// NormalizeUsername trims, lowercases and strips all whitespace.
func NormalizeUsername(value string) string {
	return strings.ToLower(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, value))
}

// NormalizeEmail trims and lowercases.
func NormalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// NormalizeCategory trims, lowercases and replaces each inner whitespace
// character with a hyphen: " Tech News " becomes "tech-news".
func NormalizeCategory(value string) string {
	return strings.ToLower(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '-'
		}
		return r
	}, strings.TrimSpace(value)))
}
