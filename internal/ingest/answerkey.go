package ingest

import (
	"regexp"
	"strings"
)

// TailWindow is how many trailing non-empty lines are inspected when no
// explicit answer-key marker is present.
const TailWindow = 30

// SplitMethod records how an answer key was located.
type SplitMethod string

const (
	SplitNone     SplitMethod = "none"
	SplitMarker   SplitMethod = "marker"
	SplitTrailing SplitMethod = "trailing"
)

// SplitResult separates passage prose from an embedded answer key.
// Answers is nil when no key was found.
type SplitResult struct {
	Passage string
	Answers []string
	Method  SplitMethod
}

var (
	// Leftmost match wins; at equal offsets the earlier alternative is used.
	markerPattern = regexp.MustCompile(`(?i)=== answers ===|answer key|answers:|answer:`)

	tokenLetterPattern = regexp.MustCompile(`(?i)\b([a-d])\b`)
	anyLetterPattern   = regexp.MustCompile(`(?i)[a-d]`)

	tailLinePattern = regexp.MustCompile(`(?i)^\s*\d+\W\s*([a-d])\W*$`)
)

// SplitAnswerKey extracts a trailing or marker-delimited answer key from
// document text.
func SplitAnswerKey(text string) SplitResult {
	if strings.TrimSpace(text) == "" {
		return SplitResult{Method: SplitNone}
	}

	if loc := markerPattern.FindStringIndex(text); loc != nil {
		return SplitResult{
			Passage: strings.TrimSpace(text[:loc[0]]),
			Answers: lettersFromLines(text[loc[1]:]),
			Method:  SplitMarker,
		}
	}

	if passage, answers, ok := splitTrailing(text); ok {
		return SplitResult{Passage: passage, Answers: answers, Method: SplitTrailing}
	}

	return SplitResult{Passage: strings.TrimSpace(text), Method: SplitNone}
}

func lettersFromLines(block string) []string {
	answers := make([]string, 0)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if letter := firstLetter(line); letter != "" {
			answers = append(answers, letter)
		}
	}
	return answers
}

// firstLetter prefers a standalone A–D token ("1. b") and otherwise takes the
// first A–D character on the line.
func firstLetter(line string) string {
	if m := tokenLetterPattern.FindStringSubmatch(line); m != nil {
		return strings.ToUpper(m[1])
	}
	if m := anyLetterPattern.FindString(line); m != "" {
		return strings.ToUpper(m)
	}
	return ""
}

type indexedLine struct {
	offset int
	text   string
}

// splitTrailing looks for a contiguous block of "12. B" style lines at the
// very end of the text, within the last TailWindow non-empty lines.
func splitTrailing(text string) (string, []string, bool) {
	var lines []indexedLine
	offset := 0
	for _, raw := range strings.SplitAfter(text, "\n") {
		if strings.TrimSpace(raw) != "" {
			lines = append(lines, indexedLine{offset: offset, text: strings.TrimSpace(raw)})
		}
		offset += len(raw)
	}

	start := len(lines)
	floor := len(lines) - TailWindow
	if floor < 0 {
		floor = 0
	}
	for i := len(lines) - 1; i >= floor; i-- {
		if !tailLinePattern.MatchString(lines[i].text) {
			break
		}
		start = i
	}
	if start == len(lines) {
		return "", nil, false
	}

	answers := make([]string, 0, len(lines)-start)
	for _, line := range lines[start:] {
		m := tailLinePattern.FindStringSubmatch(line.text)
		answers = append(answers, strings.ToUpper(m[1]))
	}

	return strings.TrimSpace(text[:lines[start].offset]), answers, true
}

// LetterToIndex maps A–D (any case) to 0–3 and everything else to -1.
func LetterToIndex(letter string) int {
	switch strings.ToUpper(strings.TrimSpace(letter)) {
	case "A":
		return 0
	case "B":
		return 1
	case "C":
		return 2
	case "D":
		return 3
	default:
		return -1
	}
}

// AnswerIndexes converts answer letters to indexes, keeping -1 for invalid
// entries so positions stay aligned with question numbers.
func AnswerIndexes(letters []string) []int {
	if letters == nil {
		return nil
	}
	indexes := make([]int, len(letters))
	for i, letter := range letters {
		indexes[i] = LetterToIndex(letter)
	}
	return indexes
}
