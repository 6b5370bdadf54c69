// Package jsonfence strips markdown code-fence wrappers from model output
// that should be raw JSON but often arrives fenced.
package jsonfence

import "strings"

// Strip removes a leading ```json (or bare ```) fence and a trailing ```
// fence, if present, and trims surrounding whitespace. Input without fences
// is returned trimmed and otherwise unchanged.
func Strip(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// Drop the language tag on the opening fence line.
		if idx := strings.IndexByte(s, '\n'); idx >= 0 && isFenceTag(s[:idx]) {
			s = s[idx+1:]
		} else if strings.HasPrefix(strings.ToLower(s), "json") {
			s = s[len("json"):]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// isFenceTag reports whether the text between the opening fence and the
// first newline is a language tag rather than content.
func isFenceTag(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
