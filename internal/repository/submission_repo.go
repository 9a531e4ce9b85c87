package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-reading-api/internal/models"
	"github.com/noah-isme/gema-reading-api/internal/scoring"
)

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	UserID     *uint
	ExerciseID *uint
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	CreateWithNextAttempt(ctx context.Context, submission *models.Submission, review *models.ReviewRecord) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.db.WithContext(ctx).Model(&models.Submission{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	if filter.ExerciseID != nil {
		query = query.Where("exercise_id = ?", *filter.ExerciseID)
	}

	var submissions []models.Submission
	if err := query.Order("created_at DESC").Order("attempt_number DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Preload("Exercise").
		Preload("Exercise.Questions", orderedQuestions).
		First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func maxAttempt(db *gorm.DB, userID, exerciseID uint) (int, error) {
	var max int
	err := db.Model(&models.Submission{}).
		Where("user_id = ? AND exercise_id = ?", userID, exerciseID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&max).Error
	return max, err
}

// CreateWithNextAttempt reads the current highest attempt for the learner and
// exercise inside the insert transaction, numbers the submission after it and
// stores the submission together with its pending review. Concurrent writers
// may still race to the same number; that is tolerated.
func (r *submissionRepository) CreateWithNextAttempt(ctx context.Context, submission *models.Submission, review *models.ReviewRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		max, err := maxAttempt(tx, submission.UserID, submission.ExerciseID)
		if err != nil {
			return err
		}
		submission.AttemptNumber = scoring.NextAttempt(max)

		if err := tx.Omit("Exercise").Create(submission).Error; err != nil {
			return err
		}

		if review == nil {
			return nil
		}
		review.SubmissionID = submission.ID
		return tx.Create(review).Error
	})
}
