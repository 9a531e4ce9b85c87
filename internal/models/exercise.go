package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-reading-api/internal/scoring"
)

// Exercise source types.
const (
	ExerciseSourceUploaded = "uploaded"
	ExerciseSourceAI       = "ai"
	ExerciseSourceManual   = "manual"
)

// ExerciseStatusActive marks an exercise open for submissions.
const ExerciseStatusActive = "active"

// QuestionOnlyPassage is stored for formats that carry no reading passage.
const QuestionOnlyPassage = "(question-only exercise)"

// Exercise is a reading passage plus its ordered multiple-choice questions.
type Exercise struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"size:255" json:"title"`
	PassageText string     `gorm:"type:text;not null" json:"passage_text"`
	Level       string     `gorm:"size:32;index" json:"level"`
	Type        string     `gorm:"size:64;index" json:"type"`
	SourceType  string     `gorm:"size:16;not null;index" json:"source_type"`
	Status      string     `gorm:"size:16;not null" json:"status"`
	SourceURL   string     `gorm:"size:512" json:"source_url"`
	CreatedBy   uint       `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Questions   []Question `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"questions"`
}

// IsActive reports whether learners may submit against the exercise.
func (e Exercise) IsActive() bool {
	return e.Status == ExerciseStatusActive
}

// AnswerKey returns the grading view of the questions in position order.
func (e Exercise) AnswerKey() []scoring.QuestionKey {
	keys := make([]scoring.QuestionKey, len(e.Questions))
	for i, question := range e.Questions {
		keys[i] = scoring.QuestionKey{
			CorrectAnswerIndex: question.CorrectAnswerIndex,
			OptionCount:        len(question.Options),
		}
	}
	return keys
}

// Question is a canonical multiple-choice question. Position is the 1-based
// question number within the exercise.
type Question struct {
	ID                 uint                        `gorm:"primaryKey" json:"id"`
	ExerciseID         uint                        `gorm:"not null;index" json:"exercise_id"`
	Position           int                         `gorm:"not null" json:"position"`
	Text               string                      `gorm:"type:text;not null" json:"text"`
	Options            datatypes.JSONSlice[string] `json:"options"`
	CorrectAnswerIndex int                         `gorm:"not null" json:"correct_answer_index"`
	Explanation        *string                     `gorm:"type:text" json:"explanation,omitempty"`
	Flagged            bool                        `gorm:"not null;default:false" json:"flagged"`
	FlagReason         string                      `gorm:"type:text" json:"flag_reason,omitempty"`
	CreatedAt          time.Time                   `json:"created_at"`
	UpdatedAt          time.Time                   `json:"updated_at"`
}
