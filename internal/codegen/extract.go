package codegen

import (
	"encoding/json"
	"strings"
)

// extractProgram pulls the diagram program out of a model response whose
// format is not contractually guaranteed. Strategies are tried in order:
//
//  1. a JSON object with a "code" field (the format the system prompt asks for)
//  2. a ```python-tagged fence
//  3. any fence
//  4. the raw response, unmodified
//
// No validation happens here — a syntactically broken program is the
// compiler's problem, and the compiler reports it in a structured way.
func extractProgram(response string) string {
	if code, ok := extractJSON(response); ok {
		return code
	}
	if code, ok := extractTaggedFence(response); ok {
		return code
	}
	if code, ok := extractAnyFence(response); ok {
		return code
	}
	return response
}

// extractJSON handles a response that is a JSON object carrying the code
// under a "code" key. Only attempted when the trimmed body starts with '{' —
// a fence containing JSON-looking code must fall through to fence handling.
func extractJSON(response string) (string, bool) {
	trimmed := strings.TrimSpace(response)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return "", false
	}
	raw, ok := payload["code"]
	if !ok {
		return "", false
	}
	var code string
	if err := json.Unmarshal(raw, &code); err != nil {
		return "", false
	}
	return code, true
}

// extractTaggedFence returns the text between the first ```python fence and
// the last fence marker in the response.
func extractTaggedFence(response string) (string, bool) {
	const tag = "```python"
	start := strings.Index(response, tag)
	if start == -1 {
		return "", false
	}
	start += len(tag)
	end := strings.LastIndex(response, "```")
	if end <= start {
		return "", false
	}
	return strings.TrimSpace(response[start:end]), true
}

// extractAnyFence returns the text between the first and last fence markers,
// whatever the tag.
func extractAnyFence(response string) (string, bool) {
	const fence = "```"
	start := strings.Index(response, fence)
	if start == -1 {
		return "", false
	}
	start += len(fence)
	end := strings.LastIndex(response, fence)
	if end <= start {
		return "", false
	}
	return strings.TrimSpace(response[start:end]), true
}
