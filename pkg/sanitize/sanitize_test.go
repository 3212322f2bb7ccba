package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "See you at the pier", "See you at the pier"},
		{"keeps newlines and tabs", "Check-in:\n\t3pm", "Check-in:\n\t3pm"},
		{"normalizes crlf", "line one\r\nline two", "line one\nline two"},
		{"drops control characters", "bell\a and null\x00", "bell and null"},
		{"trims", "  \n hi \n ", "hi"},
		{"only whitespace", " \t\r\n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MessageText(tt.input))
		})
	}
}

func TestSingleLine(t *testing.T) {
	assert.Equal(t, "spam links", SingleLine("  spam\n links\x1b "))
	assert.Equal(t, "", SingleLine("\n\t"))
}
