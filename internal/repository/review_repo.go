package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-reading-api/internal/models"
)

// RegradeFunc receives the locked submission (with its exercise) and review
// and returns the ledger entries to append. It may modify submission and review;
// both are saved after the entries are written.
type RegradeFunc func(submission *models.Submission, review *models.ReviewRecord) ([]models.Adjustment, error)

// ReviewRepository defines data operations for reviews and their adjustment ledgers.
type ReviewRepository interface {
	GetBySubmission(ctx context.Context, submissionID uint) (models.ReviewRecord, error)
	Update(ctx context.Context, review *models.ReviewRecord) error
	Regrade(ctx context.Context, submissionID uint, apply RegradeFunc) (models.Submission, models.ReviewRecord, error)
}

type reviewRepository struct {
	db *gorm.DB
}

// NewReviewRepository instantiates the repository.
func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

func orderedLedger(db *gorm.DB) *gorm.DB {
	return db.Order("sequence ASC")
}

func (r *reviewRepository) GetBySubmission(ctx context.Context, submissionID uint) (models.ReviewRecord, error) {
	var review models.ReviewRecord
	if err := r.db.WithContext(ctx).
		Preload("Adjustments", orderedLedger).
		Where("submission_id = ?", submissionID).
		First(&review).Error; err != nil {
		return models.ReviewRecord{}, err
	}

	return review, nil
}

func (r *reviewRepository) Update(ctx context.Context, review *models.ReviewRecord) error {
	return r.db.WithContext(ctx).Omit("Adjustments").Save(review).Error
}

// Regrade runs apply inside a transaction holding the submission row, so
// concurrent regrades of one submission are serialized and the ledger is only
// ever appended to.
func (r *reviewRepository) Regrade(ctx context.Context, submissionID uint, apply RegradeFunc) (models.Submission, models.ReviewRecord, error) {
	var (
		submission models.Submission
		review     models.ReviewRecord
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked := tx
		if tx.Dialector.Name() != "sqlite" {
			locked = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := locked.First(&submission, submissionID).Error; err != nil {
			return err
		}
		if err := tx.Preload("Questions", orderedQuestions).First(&submission.Exercise, submission.ExerciseID).Error; err != nil {
			return err
		}
		if err := tx.Preload("Adjustments", orderedLedger).
			Where("submission_id = ?", submissionID).
			First(&review).Error; err != nil {
			return err
		}

		entries, err := apply(&submission, &review)
		if err != nil {
			return err
		}

		next := len(review.Adjustments) + 1
		for i := range entries {
			entries[i].ID = 0
			entries[i].ReviewID = review.ID
			entries[i].SubmissionID = submission.ID
			entries[i].Sequence = next + i
		}
		if len(entries) > 0 {
			if err := tx.Create(&entries).Error; err != nil {
				return err
			}
		}

		if err := tx.Omit("Exercise").Save(&submission).Error; err != nil {
			return err
		}
		if err := tx.Omit("Adjustments").Save(&review).Error; err != nil {
			return err
		}

		review.Adjustments = append(review.Adjustments, entries...)
		return nil
	})
	if err != nil {
		return models.Submission{}, models.ReviewRecord{}, err
	}

	return submission, review, nil
}
