package utils

import (
	"strings"
	"unicode/utf8"
)

// Truncate cuts text to at most maxBytes, never splitting a UTF-8 sequence.
// A trailing ellipsis marks truncated output.
func Truncate(text string, maxBytes int) string {
	if maxBytes <= 0 || len(text) <= maxBytes {
		return text
	}

	truncated := text[:maxBytes]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}

	return truncated + "..."
}

// SanitizeUTF8 drops invalid UTF-8 bytes and collapses the message onto one line
func SanitizeUTF8(text string) string {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	return strings.Join(strings.Fields(text), " ")
}

// ProcessMessage sanitizes then truncates an error message for storage
func ProcessMessage(text string, maxBytes int) string {
	return Truncate(SanitizeUTF8(text), maxBytes)
}
