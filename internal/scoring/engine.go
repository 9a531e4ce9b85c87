// Package scoring grades multiple-choice submissions and recomputes them
// against reviewer-issued answer corrections.
package scoring

import (
	"errors"
	"math"
)

// Unanswered marks a question the learner skipped.
const Unanswered = -1

// ErrExerciseHasNoQuestions is returned when grading is attempted against an
// exercise without questions. It signals an ingestion failure upstream and is
// never reported as a zero score.
var ErrExerciseHasNoQuestions = errors.New("exercise has no questions")

// QuestionKey is the grading-relevant view of one question.
type QuestionKey struct {
	CorrectAnswerIndex int
	OptionCount        int
}

// Result is the outcome of grading one submission.
type Result struct {
	CorrectCount  int
	QuestionCount int
	Score         int
	Correct       []bool
}

// Score compares answers with the key position by position. Answers beyond
// the question count are ignored and missing trailing answers count as wrong.
func Score(keys []QuestionKey, answers []int) (Result, error) {
	if len(keys) == 0 {
		return Result{}, ErrExerciseHasNoQuestions
	}

	correct := make([]bool, len(keys))
	count := 0
	for i := 0; i < len(keys) && i < len(answers); i++ {
		if answers[i] != Unanswered && answers[i] == keys[i].CorrectAnswerIndex {
			correct[i] = true
			count++
		}
	}

	return Result{
		CorrectCount:  count,
		QuestionCount: len(keys),
		Score:         Percentage(count, len(keys)),
		Correct:       correct,
	}, nil
}

// Percentage returns round(correct/total*100), or 0 when total is 0.
func Percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

// NextAttempt returns the attempt number following the highest recorded one.
func NextAttempt(maxPrevious int) int {
	if maxPrevious < 0 {
		maxPrevious = 0
	}
	return maxPrevious + 1
}

// PadAnswers returns answers sized to the question count, filling skipped
// positions with Unanswered and dropping extras.
func PadAnswers(answers []int, questionCount int) []int {
	padded := make([]int, questionCount)
	for i := range padded {
		if i < len(answers) {
			padded[i] = answers[i]
		} else {
			padded[i] = Unanswered
		}
	}
	return padded
}
