package util

import (
	"net/http"
	"strings"
	"unicode"

	"go-creator-hub/pkg/apierror"
)

// CleanText strips control and invisible characters from user text, keeping
// newlines and tabs, and truncates to maxRunes. Empty results are rejected.
func CleanText(text string, maxRunes int) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", apierror.New(apierror.CodeBadRequest, "text cannot be empty", "", http.StatusBadRequest)
	}

	cleaned := stripInvisible(trimmed, true)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "", apierror.New(apierror.CodeBadRequest, "text is empty after sanitization", "", http.StatusBadRequest)
	}

	return truncateRunes(cleaned, maxRunes), nil
}

// CleanLine is CleanText for single line fields such as names; line breaks
// are removed and empty input is allowed.
func CleanLine(text string, maxRunes int) string {
	cleaned := strings.TrimSpace(stripInvisible(strings.TrimSpace(text), false))
	return truncateRunes(cleaned, maxRunes)
}

func stripInvisible(text string, keepNewlines bool) string {
	builder := strings.Builder{}
	builder.Grow(len(text))

	for _, char := range text {
		if keepNewlines && (char == '\n' || char == '\t') {
			builder.WriteRune(char)
			continue
		}
		if unicode.IsControl(char) || isInvisibleUnicode(char) {
			continue
		}
		builder.WriteRune(char)
	}

	return builder.String()
}

// truncateRunes cuts by runes so multi-byte characters are never split.
func truncateRunes(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) > maxRunes {
		runes = runes[:maxRunes]
	}
	return string(runes)
}

// isInvisibleUnicode returns true for zero-width, formatting, and other
// invisible Unicode characters.
func isInvisibleUnicode(r rune) bool {
	switch r {
	case
		'\u200B', // Zero-Width Space
		'\u2060', // Word Joiner
		'\uFEFF', // Zero-Width No-Break Space / BOM
		'\uFFF9', // Interlinear Annotation Anchor
		'\uFFFA', // Interlinear Annotation Separator
		'\uFFFB': // Interlinear Annotation Terminator
		return true
	}

	// ZWJ (U+200D) is Cf but joins emoji sequences
	if r == '\u200D' {
		return false
	}

	return unicode.Is(unicode.Cf, r)
}
