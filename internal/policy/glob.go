package policy

import "strings"

// globMatch implements the small wildcard dialect used by policy patterns:
// '*' matches any run of characters (including none). There is no
// escaping and no other metacharacter — patterns are meant to be typed
// by a human editing a policy rule, not a full glob/regex engine.
//
// A pattern with no '*' must equal text exactly. Otherwise the first
// segment anchors the start, the last segment anchors the end, and any
// segments between them must occur in order somewhere in between.
func globMatch(text, pattern string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return text == pattern
	}

	pos := 0

	first := parts[0]
	if first != "" {
		if !strings.HasPrefix(text, first) {
			return false
		}
		pos = len(first)
	}

	last := parts[len(parts)-1]
	if len(text) < pos+len(last) || !strings.HasSuffix(text, last) {
		return false
	}
	end := len(text) - len(last)

	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(text[pos:end], part)
		if idx < 0 {
			return false
		}
		pos += idx + len(part)
	}

	return true
}
