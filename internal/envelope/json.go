package envelope

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abdulachik/recast/internal/content"
)

// DecodeJSON extracts a JSON value from a free-text answer and unmarshals it
// into v. It is used for stage answers that are not units, such as section
// lists or filter assignments.
func DecodeJSON(answer string, v any) error {
	raw, err := ExtractJSON(answer)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v", content.ErrStructuralParse, err)
	}
	return nil
}

// ExtractJSON finds the JSON payload of an answer. It tries the envelope
// delimiters, then a fenced code block, then the first balanced object or
// array in the text.
func ExtractJSON(answer string) (string, error) {
	if interior, ok := Extract(answer); ok {
		return interior, nil
	}
	if fenced, ok := extractFence(answer); ok {
		return fenced, nil
	}
	if balanced, ok := extractBalanced(answer); ok {
		return balanced, nil
	}
	return "", fmt.Errorf("%w: no JSON found in answer", content.ErrStructuralParse)
}

func extractFence(answer string) (string, bool) {
	start := strings.Index(answer, "```")
	if start == -1 {
		return "", false
	}
	rest := answer[start+3:]
	// Skip the language tag line, e.g. ```json
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return "", false
	}
	body := strings.TrimSpace(rest[:end])
	if body == "" {
		return "", false
	}
	return body, true
}

// extractBalanced returns the first top-level {...} or [...] span, honoring
// string literals so braces inside text do not confuse the matcher.
func extractBalanced(answer string) (string, bool) {
	start := strings.IndexAny(answer, "{[")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(answer); i++ {
		c := answer[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return answer[start : i+1], true
			}
		}
	}
	return "", false
}
