package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-reading-api/internal/models"
)

// ExerciseUploadRequest carries the multipart metadata sent with a document upload.
type ExerciseUploadRequest struct {
	Title         string `form:"title" validate:"omitempty,max=255"`
	Level         string `form:"level" validate:"omitempty,max=32"`
	Type          string `form:"type" validate:"omitempty,max=64"`
	Questions     string `form:"questions"`
	QuestionCount int    `form:"question_count" validate:"omitempty,gte=1,lte=20"`
}

// ExerciseGenerateRequest asks the AI generator for a passage and questions.
// When Passage is set only the questions are generated.
type ExerciseGenerateRequest struct {
	Title         string `json:"title" validate:"omitempty,max=255"`
	Topic         string `json:"topic" validate:"omitempty,min=3,max=255"`
	Passage       string `json:"passage" validate:"omitempty,min=20"`
	Level         string `json:"level" validate:"required,max=32"`
	Type          string `json:"type" validate:"omitempty,max=64"`
	QuestionCount int    `json:"question_count" validate:"omitempty,gte=1,lte=20"`
	Words         int    `json:"words" validate:"omitempty,gte=50,lte=2000"`
}

// ExerciseCreateRequest describes a hand-authored exercise. Questions use the
// same loose record shapes accepted from documents and AI output.
type ExerciseCreateRequest struct {
	Title       string          `json:"title" validate:"required,min=3,max=255"`
	PassageText string          `json:"passage_text"`
	Level       string          `json:"level" validate:"omitempty,max=32"`
	Type        string          `json:"type" validate:"omitempty,max=64"`
	Questions   json.RawMessage `json:"questions" validate:"required"`
}

// ExerciseFilter describes query string filters for listing exercises.
type ExerciseFilter struct {
	Level    string `query:"level" validate:"omitempty,max=32"`
	Type     string `query:"type" validate:"omitempty,max=64"`
	Source   string `query:"source" validate:"omitempty,oneof=uploaded ai manual"`
	Page     int    `query:"page" validate:"omitempty,gte=1"`
	PageSize int    `query:"page_size" validate:"omitempty,gte=1,lte=100"`
}

// QuestionResponse serializes a question. The key and flags are omitted for learners.
type QuestionResponse struct {
	Number             int      `json:"number"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectAnswerIndex *int     `json:"correct_answer_index,omitempty"`
	Explanation        *string  `json:"explanation,omitempty"`
	Flagged            bool     `json:"flagged,omitempty"`
	FlagReason         string   `json:"flag_reason,omitempty"`
}

// ExerciseResponse is the serialized representation of an exercise.
type ExerciseResponse struct {
	ID            uint               `json:"id"`
	Title         string             `json:"title"`
	PassageText   string             `json:"passage_text"`
	Level         string             `json:"level"`
	Type          string             `json:"type"`
	SourceType    string             `json:"source_type"`
	Status        string             `json:"status"`
	SourceURL     string             `json:"source_url,omitempty"`
	QuestionCount int                `json:"question_count"`
	Questions     []QuestionResponse `json:"questions"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// IngestionResponse reports a newly ingested exercise together with how its
// answer key was found and every normalization fallback that was applied.
type IngestionResponse struct {
	Exercise        ExerciseResponse `json:"exercise"`
	AnswerKeyMethod string           `json:"answer_key_method"`
	AnswerKeySize   int              `json:"answer_key_size"`
	Issues          []string         `json:"issues"`
}

// ExerciseListResponse wraps a page of exercises.
type ExerciseListResponse struct {
	Items    []ExerciseResponse `json:"items"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// NewExerciseResponse converts an exercise model. includeKey controls whether
// correct answers, explanations and flags are exposed.
func NewExerciseResponse(model models.Exercise, includeKey bool) ExerciseResponse {
	questions := make([]QuestionResponse, 0, len(model.Questions))
	for _, question := range model.Questions {
		item := QuestionResponse{
			Number:  question.Position,
			Text:    question.Text,
			Options: append([]string(nil), question.Options...),
		}
		if includeKey {
			index := question.CorrectAnswerIndex
			item.CorrectAnswerIndex = &index
			item.Explanation = question.Explanation
			item.Flagged = question.Flagged
			item.FlagReason = question.FlagReason
		}
		questions = append(questions, item)
	}

	return ExerciseResponse{
		ID:            model.ID,
		Title:         model.Title,
		PassageText:   model.PassageText,
		Level:         model.Level,
		Type:          model.Type,
		SourceType:    model.SourceType,
		Status:        model.Status,
		SourceURL:     model.SourceURL,
		QuestionCount: len(model.Questions),
		Questions:     questions,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}

// NewExerciseResponseSlice converts a slice of exercises.
func NewExerciseResponseSlice(exercises []models.Exercise, includeKey bool) []ExerciseResponse {
	responses := make([]ExerciseResponse, 0, len(exercises))
	for _, exercise := range exercises {
		responses = append(responses, NewExerciseResponse(exercise, includeKey))
	}

	return responses
}
