package sanitize

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

const maxNameLen = 32

var strict = bluemonday.StrictPolicy()

// Name cleans a display name: no markup, no control characters, bounded length.
func Name(name string) string {
	cleaned := Text(name)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if r := []rune(cleaned); len(r) > maxNameLen {
		cleaned = string(r[:maxNameLen])
	}
	return cleaned
}

// Text strips markup from message text before it reaches the terminal. The
// strict policy leaves entities escaped, so they are decoded afterwards.
func Text(text string) string {
	if text == "" {
		return ""
	}
	decoded := html.UnescapeString(text)
	sanitized := html.UnescapeString(strict.Sanitize(decoded))
	return strings.TrimSpace(stripControl(sanitized))
}

// stripControl drops terminal control sequences but keeps newlines and tabs.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
