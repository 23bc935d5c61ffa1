package plagiarism

import (
	"html"
	"strings"
	"unicode"
)

const (
	markOpen  = "<mark>"
	markClose = "</mark>"
)

// Highlight HTML-escapes text and wraps every word whose lower-cased form is in words with <mark> tags.
// Whitespace is kept as is.
func Highlight(text string, words []string) string {
	if len(words) == 0 {
		return html.EscapeString(text)
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}

	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for len(text) > 0 {
		// whitespace run
		n := spanFunc(text, unicode.IsSpace)
		b.WriteString(text[:n])
		text = text[n:]

		// word
		n = spanFunc(text, func(r rune) bool { return !unicode.IsSpace(r) })
		if n == 0 {
			continue
		}
		word := text[:n]
		text = text[n:]
		if _, ok := set[strings.ToLower(word)]; ok {
			b.WriteString(markOpen)
			b.WriteString(html.EscapeString(word))
			b.WriteString(markClose)
		} else {
			b.WriteString(html.EscapeString(word))
		}
	}
	return b.String()
}

// spanFunc returns the byte length of the longest prefix of s whose runes all satisfy f.
func spanFunc(s string, f func(rune) bool) int {
	for i, r := range s {
		if !f(r) {
			return i
		}
	}
	return len(s)
}
