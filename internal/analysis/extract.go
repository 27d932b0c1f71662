package analysis

import (
	"encoding/json"
	"strings"

	"stocksense/pkg/errors"
)

// ExtractJSON finds the first complete JSON object in an LLM response and
// unmarshals it into target. Models often wrap JSON in markdown fences or
// prose, so fences are stripped first and braces are scanned for a
// balanced block.
func ExtractJSON(response string, target interface{}) error {
	cleaned := stripFences(response)

	start := -1
	braceCount := 0

	for i, ch := range cleaned {
		if ch == '{' {
			if start == -1 {
				start = i
			}
			braceCount++
		} else if ch == '}' {
			braceCount--
			if braceCount == 0 && start != -1 {
				jsonStr := cleaned[start : i+1]
				if err := json.Unmarshal([]byte(jsonStr), target); err == nil {
					return nil
				}
				// Keep scanning; a later block may parse
				start = -1
			}
		}
	}

	return errors.Wrap(errors.ErrInvalidInput, "no structured output found in response")
}

// ExtractJSONArray finds the first complete JSON array in an LLM response
// and unmarshals it into target.
func ExtractJSONArray(response string, target interface{}) error {
	cleaned := stripFences(response)

	start := -1
	depth := 0

	for i, ch := range cleaned {
		if ch == '[' {
			if start == -1 {
				start = i
			}
			depth++
		} else if ch == ']' {
			depth--
			if depth == 0 && start != -1 {
				jsonStr := cleaned[start : i+1]
				if err := json.Unmarshal([]byte(jsonStr), target); err == nil {
					return nil
				}
				start = -1
			}
		}
	}

	return errors.Wrap(errors.ErrInvalidInput, "no JSON array found in response")
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```json"); idx != -1 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}
	return strings.TrimSpace(s)
}
