package sanitize

import (
	"strings"
	"unicode"
)

// MessageText cleans chat message content. Line breaks and tabs survive,
// CRLF becomes LF and every other control character is dropped.
func MessageText(input string) string {
	input = strings.ReplaceAll(input, "\r\n", "\n")

	var result strings.Builder
	result.Grow(len(input))
	for _, r := range input {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// SingleLine cleans short free-text fields such as flag and block reasons
func SingleLine(input string) string {
	return strings.TrimSpace(StripControlCharacters(input))
}

// StripControlCharacters removes control characters from string
func StripControlCharacters(input string) string {
	var result strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
