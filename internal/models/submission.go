package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission is one scored attempt by a learner at an exercise. Score and
// CorrectCount reflect the current key (after any regrade); the Original*
// fields keep the result against the exercise key.
type Submission struct {
	ID                   uint                     `gorm:"primaryKey" json:"id"`
	UserID               uint                     `gorm:"not null;index:idx_submission_attempt" json:"user_id"`
	ExerciseID           uint                     `gorm:"not null;index:idx_submission_attempt" json:"exercise_id"`
	Answers              datatypes.JSONSlice[int] `json:"answers"`
	AttemptNumber        int                      `gorm:"not null;index:idx_submission_attempt" json:"attempt_number"`
	Score                int                      `gorm:"not null" json:"score"`
	CorrectCount         int                      `gorm:"not null" json:"correct_count"`
	QuestionCount        int                      `gorm:"not null" json:"question_count"`
	OriginalScore        int                      `gorm:"not null" json:"original_score"`
	OriginalCorrectCount int                      `gorm:"not null" json:"original_correct_count"`
	RegradedAt           *time.Time               `json:"regraded_at"`
	CreatedAt            time.Time                `json:"created_at"`
	UpdatedAt            time.Time                `json:"updated_at"`
	Exercise             Exercise                 `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// IsRegraded reports whether a reviewer correction changed the grading key.
func (s Submission) IsRegraded() bool {
	return s.RegradedAt != nil
}
