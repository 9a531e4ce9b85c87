package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PlaceholderOptions is used when a record carries no usable options.
var PlaceholderOptions = []string{"Option A", "Option B", "Option C", "Option D"}

// Question is the canonical question shape produced by the normalizer.
type Question struct {
	Position           int
	Text               string
	Options            []string
	CorrectAnswerIndex int
	Explanation        *string
}

// Resolution is the outcome of coercing a raw correct-answer value. Defaulted
// is set when the value could not be interpreted and Value fell back to 0.
type Resolution struct {
	Value     int
	Defaulted bool
	Reason    string
}

// Issue describes one field-level fallback applied while normalizing.
// Position is the kept question's number; Item is the 1-based index in the
// raw payload and is only set for records that were dropped.
type Issue struct {
	Position int
	Item     int
	Field    string
	Reason   string
}

func (i Issue) String() string {
	if i.Position == 0 {
		return fmt.Sprintf("item %d: %s: %s", i.Item, i.Field, i.Reason)
	}
	return fmt.Sprintf("question %d: %s: %s", i.Position, i.Field, i.Reason)
}

// Normalized holds the canonical questions and the fallbacks that produced
// them. Skipped lists payload items that did not become questions.
type Normalized struct {
	Questions []Question
	Issues    []Issue
	Skipped   []Issue
}

// IssuesFor returns the issues recorded against one question position.
func (n Normalized) IssuesFor(position int) []Issue {
	var out []Issue
	for _, issue := range n.Issues {
		if issue.Position == position {
			out = append(out, issue)
		}
	}
	return out
}

// NormalizePayload decodes a JSON array of question records. Anything that is
// not a JSON array yields an empty result rather than an error.
func NormalizePayload(payload []byte) Normalized {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return Normalized{}
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var items []any
	if err := decoder.Decode(&items); err != nil {
		return Normalized{}
	}

	records := make([]Record, 0, len(items))
	var skipped []Issue
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			skipped = append(skipped, Issue{Item: i + 1, Field: "record", Reason: "not an object, skipped"})
			continue
		}
		records = append(records, Record(obj))
	}

	result := NormalizeRecords(records)
	result.Skipped = skipped
	return result
}

// NormalizeRecords converts already-decoded records into canonical questions.
func NormalizeRecords(records []Record) Normalized {
	result := Normalized{Questions: make([]Question, 0, len(records))}
	for i, record := range records {
		position := i + 1
		question, issues := normalizeRecord(record, position)
		result.Questions = append(result.Questions, question)
		result.Issues = append(result.Issues, issues...)
	}
	return result
}

func normalizeRecord(record Record, position int) (Question, []Issue) {
	var issues []Issue

	text, ok := record.firstString(textKeys)
	if !ok {
		text = fmt.Sprintf("Question %d", position)
		issues = append(issues, Issue{Position: position, Field: "text", Reason: "missing, placeholder used"})
	}

	options := extractOptions(record)
	if len(options) == 0 {
		options = append([]string(nil), PlaceholderOptions...)
		issues = append(issues, Issue{Position: position, Field: "options", Reason: "missing, placeholder used"})
	}

	correct := resolveCorrectAnswer(record, len(options))
	if correct.Defaulted {
		issues = append(issues, Issue{Position: position, Field: "correctAnswer", Reason: correct.Reason})
	}

	question := Question{
		Position:           position,
		Text:               text,
		Options:            options,
		CorrectAnswerIndex: correct.Value,
	}
	if explanation, ok := record.firstString(explanationKeys); ok {
		question.Explanation = &explanation
	}

	return question, issues
}

func extractOptions(record Record) []string {
	var options []string
	record.lookupEach(optionKeys, func(value any) bool {
		items, ok := value.([]any)
		if !ok {
			return false
		}
		collected := make([]string, 0, len(items))
		for _, item := range items {
			str := stringify(item)
			if strings.TrimSpace(str) == "" {
				continue
			}
			collected = append(collected, str)
		}
		if len(collected) == 0 {
			return false
		}
		options = collected
		return true
	})
	return options
}

func resolveCorrectAnswer(record Record, optionCount int) Resolution {
	var result Resolution
	found := false

	record.lookupEach(correctKeys, func(value any) bool {
		if raw, ok := asInt(value); ok {
			result, found = normalizeIndex(raw, optionCount), true
		}
		return found
	})
	if found {
		return result
	}

	record.lookupEach(correctKeys, func(value any) bool {
		if res, ok := resolveLetter(value, optionCount); ok {
			result, found = res, true
		}
		return found
	})
	if found {
		return result
	}

	record.lookupEach(correctKeys, func(value any) bool {
		if raw, ok := leadingInt(value); ok {
			result, found = normalizeIndex(raw, optionCount), true
		}
		return found
	})
	if found {
		return result
	}

	return Resolution{Value: 0, Defaulted: true, Reason: "no usable correct answer, defaulted to 0"}
}

// ResolveAnswer interprets a single answer reference, either an index (0- or
// 1-based, number or numeric string) or an A–D letter, using the same rules
// as question normalization.
func ResolveAnswer(value any, optionCount int) Resolution {
	if raw, ok := asInt(value); ok {
		return normalizeIndex(raw, optionCount)
	}
	if res, ok := resolveLetter(value, optionCount); ok {
		return res
	}
	if raw, ok := leadingInt(value); ok {
		return normalizeIndex(raw, optionCount)
	}
	return Resolution{Value: 0, Defaulted: true, Reason: fmt.Sprintf("unrecognised answer %q, defaulted to 0", stringify(value))}
}

func resolveLetter(value any, optionCount int) (Resolution, bool) {
	str, ok := value.(string)
	if !ok {
		return Resolution{}, false
	}
	cleaned := strings.Trim(strings.TrimSpace(str), "()[].:) ")
	if len(cleaned) != 1 {
		return Resolution{}, false
	}
	index := LetterToIndex(cleaned)
	if index < 0 {
		return Resolution{}, false
	}
	if optionCount > 0 && index >= optionCount {
		return Resolution{Value: 0, Defaulted: true, Reason: fmt.Sprintf("letter %s beyond %d options, defaulted to 0", strings.ToUpper(cleaned), optionCount)}, true
	}
	return Resolution{Value: index}, true
}

// NormalizeIndex coerces a raw correct-answer index into [0, optionCount).
// In-range values are taken as 0-based, values in [1, optionCount] as
// 1-based, and anything else falls back to 0.
func NormalizeIndex(raw, optionCount int) int {
	return normalizeIndex(raw, optionCount).Value
}

func normalizeIndex(raw, optionCount int) Resolution {
	switch {
	case optionCount <= 0:
		if raw < 0 {
			return Resolution{Value: 0, Defaulted: true, Reason: fmt.Sprintf("negative index %d, defaulted to 0", raw)}
		}
		return Resolution{Value: raw}
	case raw >= 0 && raw < optionCount:
		return Resolution{Value: raw}
	case raw >= 1 && raw <= optionCount:
		return Resolution{Value: raw - 1}
	default:
		return Resolution{Value: 0, Defaulted: true, Reason: fmt.Sprintf("index %d out of range for %d options, defaulted to 0", raw, optionCount)}
	}
}
