package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON extracts a JSON object from a model response and decodes
// it into v. Markdown code fences and surrounding prose are stripped
// first; decode failure yields a FORMAT-classified error so callers
// may retry.
func ParseJSON(text string, v interface{}) error {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		end := len(lines) - 1
		if end >= 0 && strings.TrimSpace(lines[end]) == "```" {
			text = strings.Join(lines[1:end], "\n")
		} else {
			text = strings.Join(lines[1:], "\n")
		}
		text = strings.TrimSpace(text)
	}

	if !strings.HasPrefix(text, "{") {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start != -1 && end > start {
			text = text[start : end+1]
		}
	}

	if err := json.Unmarshal([]byte(text), v); err != nil {
		preview := text
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return &Error{
			Category: CategoryFormat,
			Provider: "unknown",
			Model:    "unknown",
			Message:  fmt.Sprintf("JSON 解析失败: %v. 原文前200字: %s", err, preview),
		}
	}
	return nil
}
