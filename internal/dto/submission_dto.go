package dto

import (
	"time"

	"github.com/noah-isme/gema-reading-api/internal/models"
)

// SubmissionCreateRequest carries a learner's answers. Each answer is a
// 0-based option index, or -1 for a skipped question. Missing trailing
// answers count as skipped.
type SubmissionCreateRequest struct {
	ExerciseID uint  `json:"exercise_id" validate:"required,gt=0"`
	Answers    []int `json:"answers" validate:"required,dive,gte=-1"`
}

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	ExerciseID *uint `query:"exercise_id"`
	UserID     *uint `query:"user_id"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID                   uint       `json:"id"`
	UserID               uint       `json:"user_id"`
	ExerciseID           uint       `json:"exercise_id"`
	Answers              []int      `json:"answers"`
	AttemptNumber        int        `json:"attempt_number"`
	Score                int        `json:"score"`
	CorrectCount         int        `json:"correct_count"`
	QuestionCount        int        `json:"question_count"`
	OriginalScore        int        `json:"original_score"`
	OriginalCorrectCount int        `json:"original_correct_count"`
	Regraded             bool       `json:"regraded"`
	RegradedAt           *time.Time `json:"regraded_at"`
	Correct              []bool     `json:"correct,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	answers := append([]int(nil), model.Answers...)
	if answers == nil {
		answers = []int{}
	}

	return SubmissionResponse{
		ID:                   model.ID,
		UserID:               model.UserID,
		ExerciseID:           model.ExerciseID,
		Answers:              answers,
		AttemptNumber:        model.AttemptNumber,
		Score:                model.Score,
		CorrectCount:         model.CorrectCount,
		QuestionCount:        model.QuestionCount,
		OriginalScore:        model.OriginalScore,
		OriginalCorrectCount: model.OriginalCorrectCount,
		Regraded:             model.IsRegraded(),
		RegradedAt:           model.RegradedAt,
		CreatedAt:            model.CreatedAt,
		UpdatedAt:            model.UpdatedAt,
	}
}

// NewSubmissionResponseSlice converts a slice of submissions.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}
