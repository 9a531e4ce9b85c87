package scoring

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrQuestionOutOfRange indicates an override names a question the exercise does not have.
	ErrQuestionOutOfRange = errors.New("question number out of range")
	// ErrAnswerOutOfRange indicates an override answer is not one of the question's options.
	ErrAnswerOutOfRange = errors.New("corrected answer out of range")
)

// Override replaces the correct answer of one question (1-based) for a single submission.
type Override struct {
	QuestionNumber     int
	CorrectAnswerIndex int
}

// QuestionOutcome is the graded state of one question after reconciliation.
type QuestionOutcome struct {
	Number               int     `json:"number"`
	Selected             int     `json:"selected"`
	AICorrectAnswer      int     `json:"ai_correct_answer"`
	TeacherCorrectAnswer *int    `json:"teacher_correct_answer,omitempty"`
	Correct              bool    `json:"correct"`
	Points               float64 `json:"points"`
}

// EffectiveAnswer is the key the outcome was graded against.
func (o QuestionOutcome) EffectiveAnswer() int {
	if o.TeacherCorrectAnswer != nil {
		return *o.TeacherCorrectAnswer
	}
	return o.AICorrectAnswer
}

// Regrade is the full recomputation of a submission.
type Regrade struct {
	Questions         []QuestionOutcome `json:"questions"`
	CorrectCount      int               `json:"correct_count"`
	QuestionCount     int               `json:"question_count"`
	TotalScore        int               `json:"total_score"`
	PointsPerQuestion float64           `json:"points_per_question"`
}

// Reconcile grades the original answers against the exercise key with the
// overrides applied. It depends only on its inputs, so replaying a stored
// ledger always reproduces the same totals. When several overrides target the
// same question the last one wins.
func Reconcile(keys []QuestionKey, answers []int, overrides []Override) (Regrade, error) {
	if len(keys) == 0 {
		return Regrade{}, ErrExerciseHasNoQuestions
	}

	effective, err := EffectiveOverrides(keys, overrides)
	if err != nil {
		return Regrade{}, err
	}

	perQuestion := 100 / float64(len(keys))
	selected := PadAnswers(answers, len(keys))
	outcomes := make([]QuestionOutcome, len(keys))
	correctCount := 0

	for i, key := range keys {
		number := i + 1
		outcome := QuestionOutcome{
			Number:          number,
			Selected:        selected[i],
			AICorrectAnswer: key.CorrectAnswerIndex,
		}
		if teacher, ok := effective[number]; ok {
			value := teacher
			outcome.TeacherCorrectAnswer = &value
		}

		outcome.Correct = outcome.Selected != Unanswered && outcome.Selected == outcome.EffectiveAnswer()
		if outcome.Correct {
			outcome.Points = roundPoints(perQuestion)
			correctCount++
		}
		outcomes[i] = outcome
	}

	return Regrade{
		Questions:         outcomes,
		CorrectCount:      correctCount,
		QuestionCount:     len(keys),
		TotalScore:        Percentage(correctCount, len(keys)),
		PointsPerQuestion: roundPoints(perQuestion),
	}, nil
}

// EffectiveOverrides validates overrides and collapses them to the latest
// corrected answer per question number.
func EffectiveOverrides(keys []QuestionKey, overrides []Override) (map[int]int, error) {
	effective := make(map[int]int, len(overrides))
	for _, override := range overrides {
		if override.QuestionNumber < 1 || override.QuestionNumber > len(keys) {
			return nil, fmt.Errorf("%w: %d of %d", ErrQuestionOutOfRange, override.QuestionNumber, len(keys))
		}
		options := keys[override.QuestionNumber-1].OptionCount
		if override.CorrectAnswerIndex < 0 || (options > 0 && override.CorrectAnswerIndex >= options) {
			return nil, fmt.Errorf("%w: question %d answer %d", ErrAnswerOutOfRange, override.QuestionNumber, override.CorrectAnswerIndex)
		}
		effective[override.QuestionNumber] = override.CorrectAnswerIndex
	}
	return effective, nil
}

// PointsFor returns the points a single question is worth after the given
// answer is graded against key, on the 0–100 scale.
func PointsFor(questionCount int, correct bool) float64 {
	if !correct || questionCount <= 0 {
		return 0
	}
	return roundPoints(100 / float64(questionCount))
}

func roundPoints(value float64) float64 {
	return math.Round(value*100) / 100
}
