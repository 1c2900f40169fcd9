// Package normalize provides consistent normalization for form input
// before it is written to the remote store.
package normalize

import (
	"html"
	"strings"
	"unicode"

	"github.com/dalemusser/waffle/pantry/text"
	"github.com/microcosm-cc/bluemonday"
)

// strict strips every tag; form fields are plain text.
var strict = bluemonday.StrictPolicy()

// Email lowercases and trims an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims a display name, strips markup and collapses inner whitespace.
// Case is preserved.
func Name(s string) string {
	return strings.Join(strings.Fields(Text(s)), " ")
}

// Text strips markup from free text and trims surrounding whitespace.
// Entities the sanitizer escapes are turned back into plain characters.
func Text(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// Phone keeps digits and a leading plus sign.
func Phone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		if unicode.IsDigit(r) || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// JoinCode upper-cases a class join code and drops spaces and dashes,
// so "abc-123" and "ABC 123" both resolve to "ABC123".
func JoinCode(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if r == ' ' || r == '-' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RUT normalizes a Chilean national id: no dots or spaces, upper-case verifier.
func RUT(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, ".", "")
	return strings.ReplaceAll(s, " ", "")
}

// Fold returns the case/diacritic-insensitive form used for sorting.
func Fold(s string) string {
	return text.Fold(s)
}
