package llm

import (
	"fmt"
)

// ExtractJSONObject returns the first balanced {...} block in s.
func ExtractJSONObject(s string) (string, error) {
	return extractBalanced(s, '{', '}')
}

// ExtractJSONArray returns the first balanced [...] block in s.
func ExtractJSONArray(s string) (string, error) {
	return extractBalanced(s, '[', ']')
}

// extractBalanced scans for the first opening byte and returns text up to its
// matching close, skipping brackets inside JSON strings. Markdown fences and
// prose around the block are ignored.
func extractBalanced(s string, opening, closing byte) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if start < 0 {
			if ch == opening {
				start = i
				depth = 1
			}
			continue
		}
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case opening:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: no balanced %c%c block", ErrMalformedResponse, opening, closing)
}
