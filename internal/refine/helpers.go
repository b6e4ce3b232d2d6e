package refine

import (
	"encoding/json"
	"errors"
	"strings"
)

func parseModelPayload[T any](raw string) (T, error) {
	var decoded T
	fragment := extractJSONFragment(raw)
	if fragment == "" {
		return decoded, errors.New("empty payload")
	}
	err := json.Unmarshal([]byte(fragment), &decoded)
	return decoded, err
}

// extractJSONFragment pulls a JSON object or array out of a model reply,
// dropping code fences and any prose the model wrapped around it.
func extractJSONFragment(raw string) string {
	text := stripFences(strings.TrimSpace(raw))
	if start := strings.IndexAny(text, "{["); start >= 0 {
		if end := strings.LastIndexAny(text, "}]"); end > start {
			return strings.TrimSpace(text[start : end+1])
		}
	}
	return text
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	body := text[3:]
	// Language tags like "json" sit on the opening fence line.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	if close := strings.LastIndex(body, "```"); close >= 0 {
		body = body[:close]
	}
	return strings.TrimSpace(body)
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
