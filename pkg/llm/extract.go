package llm

import (
	"fmt"
	"strings"
)

// ExtractJSON pulls the JSON object out of a model response. It accepts raw
// JSON, JSON inside a markdown code fence, and JSON surrounded by prose, in
// that order of preference.
func ExtractJSON(content string) ([]byte, error) {
	s := strings.TrimSpace(content)
	if s == "" {
		return nil, fmt.Errorf("empty response")
	}

	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return []byte(s), nil
	}

	if fenced, ok := extractFenced(s); ok {
		return []byte(fenced), nil
	}

	// Last resort: outermost brace span.
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	return []byte(s[start : end+1]), nil
}

// extractFenced returns the body of the first ``` code fence, tolerating an
// optional language tag.
func extractFenced(s string) (string, bool) {
	open := strings.Index(s, "```")
	if open < 0 {
		return "", false
	}
	rest := s[open+3:]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		// Drop a language tag such as "json" on the fence line.
		firstLine := strings.TrimSpace(rest[:nl])
		if !strings.HasPrefix(firstLine, "{") {
			rest = rest[nl+1:]
		}
	}
	closeIdx := strings.Index(rest, "```")
	if closeIdx < 0 {
		return "", false
	}
	body := strings.TrimSpace(rest[:closeIdx])
	if body == "" {
		return "", false
	}
	return body, true
}
