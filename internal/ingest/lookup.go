package ingest

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Record is one loosely-typed question object as decoded from JSON.
type Record map[string]any

// Candidate key lists, tried in order. Matching ignores case because
// AI responses and hand-authored JSON disagree on casing.
var (
	textKeys        = []string{"questionText", "question", "text", "prompt", "title"}
	optionKeys      = []string{"options", "choices", "answers", "answerChoices"}
	correctKeys     = []string{"correctAnswer", "correct_answer", "answer", "correctOption", "correct_option"}
	explanationKeys = []string{"explanation", "reason", "rationale"}
)

// lookup returns the value of the first candidate key present in the record.
// An exact-case hit is preferred over a case-folded one for the same candidate.
func (r Record) lookup(candidates ...string) (string, any, bool) {
	for _, candidate := range candidates {
		if value, ok := r[candidate]; ok {
			return candidate, value, true
		}
		for key, value := range r {
			if strings.EqualFold(key, candidate) {
				return key, value, true
			}
		}
	}
	return "", nil, false
}

// lookupEach yields every present candidate value in candidate order.
func (r Record) lookupEach(candidates []string, fn func(value any) bool) {
	for _, candidate := range candidates {
		if _, value, ok := r.lookup(candidate); ok {
			if fn(value) {
				return
			}
		}
	}
}

func (r Record) firstString(candidates []string) (string, bool) {
	var (
		result string
		found  bool
	)
	r.lookupEach(candidates, func(value any) bool {
		str, ok := value.(string)
		if !ok || strings.TrimSpace(str) == "" {
			return false
		}
		result, found = str, true
		return true
	})
	return result, found
}

// stringify renders a non-string option element.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

// asInt accepts JSON numbers and numeric strings.
func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), true
		}
		if f, err := v.Float64(); err == nil && f == float64(int(f)) {
			return int(f), true
		}
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	case int:
		return v, true
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i, true
		}
	}
	return 0, false
}

// leadingInt parses the digits at the start of a string such as "3) Paris".
func leadingInt(value any) (int, bool) {
	str, ok := value.(string)
	if !ok {
		return 0, false
	}
	str = strings.TrimSpace(str)
	end := 0
	for end < len(str) && str[end] >= '0' && str[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	parsed, err := strconv.Atoi(str[:end])
	if err != nil {
		return 0, false
	}
	return parsed, true
}
