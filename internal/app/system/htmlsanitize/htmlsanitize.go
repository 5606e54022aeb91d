// Package htmlsanitize strips markup from user-entered text fields.
// Titles and descriptions are rendered on the wallpaper and in clients
// that may not escape them, so they are stored as plain text.
package htmlsanitize

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// strict keeps no elements at all. Policies are safe for concurrent use
// once built.
var strict = bluemonday.StrictPolicy()

// PlainText removes every HTML element from s, decodes entities and trims
// surrounding whitespace.
func PlainText(s string) string {
	if !hasMarkup(s) {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// Line cleans a single-line value such as a title or name: markup and
// control characters go, runs of whitespace (newlines included) become one
// space, and the result is cut to max runes (max <= 0 means no limit).
func Line(s string, max int) string {
	s = strings.Join(strings.FieldsFunc(dropControl(PlainText(s), false), unicode.IsSpace), " ")
	return truncate(s, max)
}

// Text cleans a multi-line value such as a description. Newlines and tabs
// survive; other control characters do not.
func Text(s string, max int) string {
	return truncate(strings.TrimSpace(dropControl(PlainText(s), true)), max)
}

// IsPlainText reports whether content contains no HTML tags.
func IsPlainText(content string) bool { return !hasMarkup(content) }

func hasMarkup(s string) bool {
	i := strings.IndexByte(s, '<')
	return i >= 0 && strings.IndexByte(s[i:], '>') > 0
}

func dropControl(s string, keepLayout bool) string {
	return strings.Map(func(r rune) rune {
		if keepLayout && (r == '\n' || r == '\t') {
			return r
		}
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:max]))
}
