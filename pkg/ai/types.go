package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
)

// PassageInput describes the reading passage to generate.
type PassageInput struct {
	Topic string
	Type  string
	Level string
	Words int
}

// QuestionInput contains the passage and shape of the question set to generate.
type QuestionInput struct {
	Passage string
	Type    string
	Level   string
	Count   int
}

// Generator produces raw exercise content. Question payloads are returned
// untouched; they are not guaranteed to be well-formed JSON.
type Generator interface {
	GeneratePassage(ctx context.Context, input PassageInput) (string, error)
	GenerateQuestions(ctx context.Context, input QuestionInput) (string, error)
}

// envelopeKeys are object fields models commonly wrap a question list in.
var envelopeKeys = []string{"questions", "items", "data", "quiz"}

// ExtractJSONArray pulls the question array out of model output. It strips
// markdown code fences and unwraps single-object envelopes such as
// {"questions": [...]}. When nothing array-like is found the trimmed content
// is returned unchanged so the normalizer can reject it.
func ExtractJSONArray(content string) []byte {
	trimmed := strings.TrimSpace(stripFence(content))
	if strings.HasPrefix(trimmed, "[") {
		return []byte(trimmed)
	}

	if strings.HasPrefix(trimmed, "{") {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &envelope); err == nil {
			for _, key := range envelopeKeys {
				for field, raw := range envelope {
					if strings.EqualFold(field, key) {
						if value := bytes.TrimSpace(raw); len(value) > 0 && value[0] == '[' {
							return value
						}
					}
				}
			}
		}
	}

	if start, end := strings.Index(trimmed, "["), strings.LastIndex(trimmed, "]"); start >= 0 && end > start {
		return []byte(trimmed[start : end+1])
	}

	return []byte(trimmed)
}

func stripFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.Index(trimmed, "\n"); newline >= 0 {
		trimmed = trimmed[newline+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
}
