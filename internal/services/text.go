package services

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// normalizeSpace trims whitespace and collapses internal runs to one space.
func normalizeSpace(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// clipRunes truncates s to at most n runes (n <= 0 means no limit).
func clipRunes(s string, n int) string {
	if n > 0 && utf8.RuneCountInString(s) > n {
		return string([]rune(s)[:n])
	}
	return s
}

// sanitizeMessage normalizes line endings, collapses runs of blank lines to
// one paragraph break, and trims surrounding whitespace.
func sanitizeMessage(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// nlCollapseRE matches runs of 3+ newlines.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)
