package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/noah-isme/gema-reading-api/internal/models"
	"github.com/noah-isme/gema-reading-api/internal/scoring"
)

var errAnswerValueType = errors.New("answer must be a number or a string")

// AnswerValue is a reviewer-supplied answer: an option index, a numeric
// string or an option letter.
type AnswerValue struct {
	raw any
}

// NewAnswerValue wraps a raw value.
func NewAnswerValue(raw any) AnswerValue {
	return AnswerValue{raw: raw}
}

// Raw returns the decoded JSON value, nil when absent.
func (a AnswerValue) Raw() any {
	return a.raw
}

// IsZero reports whether no answer was supplied.
func (a AnswerValue) IsZero() bool {
	return a.raw == nil
}

func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		a.raw = nil
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return err
	}

	switch value.(type) {
	case json.Number, string:
		a.raw = value
		return nil
	default:
		return errAnswerValueType
	}
}

func (a AnswerValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.raw)
}

// AdjustmentRequest overrides the correct answer of one question.
type AdjustmentRequest struct {
	QuestionNumber int         `json:"question_number" validate:"required,gte=1"`
	CorrectAnswer  AnswerValue `json:"correct_answer"`
	Explanation    string      `json:"explanation" validate:"omitempty,max=2000"`
}

// RegradeRequest carries a batch of answer overrides for one submission.
type RegradeRequest struct {
	Adjustments []AdjustmentRequest `json:"adjustments" validate:"required,min=1,dive"`
	Notes       string              `json:"notes" validate:"omitempty,max=4000"`
	Status      string              `json:"status" validate:"omitempty,oneof=reviewing approved rejected needs_revision needs_regrade"`
}

// ReviewTransitionRequest moves a review to another status.
type ReviewTransitionRequest struct {
	Status string  `json:"status" validate:"required,oneof=pending reviewing approved rejected needs_revision needs_regrade"`
	Notes  *string `json:"notes" validate:"omitempty,max=4000"`
}

// AdjustmentResponse serializes one ledger entry.
type AdjustmentResponse struct {
	Sequence         int       `json:"sequence"`
	QuestionNumber   int       `json:"question_number"`
	NewCorrectAnswer int       `json:"new_correct_answer"`
	Explanation      string    `json:"explanation"`
	NewPoints        float64   `json:"new_points"`
	CreatedBy        uint      `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
}

// ReviewResponse is the reviewer's view of a submission: review state, the
// adjustment ledger and the per-question breakdown it produces.
type ReviewResponse struct {
	ID                uint                      `json:"id"`
	SubmissionID      uint                      `json:"submission_id"`
	Status            string                    `json:"status"`
	Notes             string                    `json:"notes"`
	ReviewerID        *uint                     `json:"reviewer_id"`
	Score             int                       `json:"score"`
	OriginalScore     int                       `json:"original_score"`
	CorrectCount      int                       `json:"correct_count"`
	QuestionCount     int                       `json:"question_count"`
	PointsPerQuestion float64                   `json:"points_per_question"`
	Questions         []scoring.QuestionOutcome `json:"questions"`
	Adjustments       []AdjustmentResponse      `json:"adjustments"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
}

// VerifyResponse reports whether replaying the ledger reproduces the stored score.
type VerifyResponse struct {
	SubmissionID         uint `json:"submission_id"`
	LedgerEntries        int  `json:"ledger_entries"`
	StoredScore          int  `json:"stored_score"`
	ReplayedScore        int  `json:"replayed_score"`
	StoredCorrectCount   int  `json:"stored_correct_count"`
	ReplayedCorrectCount int  `json:"replayed_correct_count"`
	Consistent           bool `json:"consistent"`
}

// NewAdjustmentResponse converts a ledger entry.
func NewAdjustmentResponse(model models.Adjustment) AdjustmentResponse {
	return AdjustmentResponse{
		Sequence:         model.Sequence,
		QuestionNumber:   model.QuestionNumber,
		NewCorrectAnswer: model.NewCorrectAnswer,
		Explanation:      model.TeacherExplanation,
		NewPoints:        model.NewPoints,
		CreatedBy:        model.CreatedBy,
		CreatedAt:        model.CreatedAt,
	}
}

// NewReviewResponse combines a review, its submission and the reconciled breakdown.
func NewReviewResponse(review models.ReviewRecord, submission models.Submission, regrade scoring.Regrade) ReviewResponse {
	adjustments := make([]AdjustmentResponse, 0, len(review.Adjustments))
	for _, adjustment := range review.Adjustments {
		adjustments = append(adjustments, NewAdjustmentResponse(adjustment))
	}

	questions := regrade.Questions
	if questions == nil {
		questions = []scoring.QuestionOutcome{}
	}

	return ReviewResponse{
		ID:                review.ID,
		SubmissionID:      review.SubmissionID,
		Status:            string(review.Status),
		Notes:             review.Notes,
		ReviewerID:        review.ReviewerID,
		Score:             submission.Score,
		OriginalScore:     submission.OriginalScore,
		CorrectCount:      submission.CorrectCount,
		QuestionCount:     submission.QuestionCount,
		PointsPerQuestion: regrade.PointsPerQuestion,
		Questions:         questions,
		Adjustments:       adjustments,
		CreatedAt:         review.CreatedAt,
		UpdatedAt:         review.UpdatedAt,
	}
}
