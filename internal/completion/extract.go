package completion

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// contentPaths are tried in order against a JSON response body.
var contentPaths = []string{
	"choices.0.message.content",
	"message.content",
	"choices.0.text",
	"response",
	"output_text",
	"content",
	"text",
}

// textPartPaths collect text parts from array-shaped content fields.
var textPartPaths = []string{
	"content.#.text",
	"choices.0.message.content.#.text",
	"output.#.content.#.text",
}

// Extract locates the model text in a raw response body. It accepts the
// canonical chat schemas, a JSON string body, a plain text body, and JSON
// bodies that carry the text under a differently named field.
func Extract(raw []byte) (string, error) {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 {
		return "", ErrEmptyCompletion
	}
	if !gjson.ValidBytes(body) {
		return nonEmpty(string(body))
	}

	doc := gjson.ParseBytes(body)
	if doc.Type == gjson.String {
		return nonEmpty(doc.String())
	}
	for _, path := range contentPaths {
		if value := doc.Get(path); value.Type == gjson.String && strings.TrimSpace(value.String()) != "" {
			return value.String(), nil
		}
	}
	for _, path := range textPartPaths {
		if text := joinTextParts(doc.Get(path)); strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	return "", ErrEmptyCompletion
}

func joinTextParts(value gjson.Result) string {
	if !value.IsArray() {
		return ""
	}
	var parts []string
	value.ForEach(func(_, part gjson.Result) bool {
		if part.IsArray() {
			parts = append(parts, joinTextParts(part))
		} else if part.Type == gjson.String {
			parts = append(parts, part.String())
		}
		return true
	})
	return strings.Join(parts, "")
}

func nonEmpty(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

var reasoningPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?is)<thoughts>.*?</thoughts>`),
	regexp.MustCompile(`(?is)<reasoning>.*?</reasoning>`),
	regexp.MustCompile(`(?is)\[THINKING\].*?\[/THINKING\]`),
}

// StripReasoning removes paired reasoning blocks, bodies included, and trims
// the remainder.
func StripReasoning(text string) string {
	for _, pattern := range reasoningPatterns {
		text = pattern.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}
