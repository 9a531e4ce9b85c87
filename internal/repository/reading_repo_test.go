package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-reading-api/internal/models"
)

func setupReadingTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Exercise{},
		&models.Question{},
		&models.Submission{},
		&models.ReviewRecord{},
		&models.Adjustment{},
	))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedExercise(t *testing.T, db *gorm.DB, level string) models.Exercise {
	t.Helper()
	exercise := models.Exercise{
		Title:       "Tides",
		PassageText: "The moon pulls the sea.",
		Level:       level,
		Type:        "reading",
		SourceType:  models.ExerciseSourceManual,
		Status:      models.ExerciseStatusActive,
		Questions: []models.Question{
			{Position: 2, Text: "Second?", Options: []string{"a", "b"}, CorrectAnswerIndex: 1},
			{Position: 1, Text: "First?", Options: []string{"a", "b", "c"}, CorrectAnswerIndex: 0},
		},
	}
	require.NoError(t, NewExerciseRepository(db).Create(context.Background(), &exercise))
	return exercise
}

func TestExerciseRepositoryOrdersQuestionsByPosition(t *testing.T) {
	db := setupReadingTestDB(t)
	repo := NewExerciseRepository(db)
	seeded := seedExercise(t, db, "beginner")

	loaded, err := repo.GetByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Questions, 2)
	require.Equal(t, "First?", loaded.Questions[0].Text)
	require.Equal(t, []string{"a", "b", "c"}, []string(loaded.Questions[0].Options))

	_, err = repo.GetByID(context.Background(), seeded.ID+100)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestExerciseRepositoryListFilters(t *testing.T) {
	db := setupReadingTestDB(t)
	repo := NewExerciseRepository(db)
	seedExercise(t, db, "beginner")
	seedExercise(t, db, "advanced")
	seedExercise(t, db, "advanced")

	level := "advanced"
	items, total, err := repo.List(context.Background(), ExerciseFilter{Level: &level})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, items, 2)

	paged, total, err := repo.List(context.Background(), ExerciseFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, paged, 1)
}

func TestSubmissionRepositoryNumbersAttempts(t *testing.T) {
	db := setupReadingTestDB(t)
	exercise := seedExercise(t, db, "beginner")
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		submission := models.Submission{UserID: 7, ExerciseID: exercise.ID, Answers: []int{0, 1}, QuestionCount: 2}
		review := models.ReviewRecord{Status: models.ReviewStatusPending}
		require.NoError(t, repo.CreateWithNextAttempt(ctx, &submission, &review))
		require.Equal(t, i+1, submission.AttemptNumber)
		require.Equal(t, submission.ID, review.SubmissionID)
	}

	other := models.Submission{UserID: 8, ExerciseID: exercise.ID, Answers: []int{0}}
	require.NoError(t, repo.CreateWithNextAttempt(ctx, &other, nil))
	require.Equal(t, 1, other.AttemptNumber)

	userID := uint(7)
	items, err := repo.List(ctx, SubmissionFilter{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, items, 3)
	for _, item := range items {
		require.LessOrEqual(t, item.AttemptNumber, 3)
	}

	loaded, err := repo.GetByID(ctx, other.ID)
	require.NoError(t, err)
	require.Equal(t, exercise.ID, loaded.Exercise.ID)
	require.Len(t, loaded.Exercise.Questions, 2)
	require.Equal(t, 1, loaded.Exercise.Questions[0].Position)
}

func TestReviewRepositoryRegradeAppendsLedger(t *testing.T) {
	db := setupReadingTestDB(t)
	exercise := seedExercise(t, db, "beginner")
	submissions := NewSubmissionRepository(db)
	reviews := NewReviewRepository(db)
	ctx := context.Background()

	submission := models.Submission{UserID: 1, ExerciseID: exercise.ID, Answers: []int{0, 0}, Score: 50, CorrectCount: 1, QuestionCount: 2}
	require.NoError(t, submissions.CreateWithNextAttempt(ctx, &submission, &models.ReviewRecord{Status: models.ReviewStatusPending}))

	for round := 0; round < 2; round++ {
		updated, review, err := reviews.Regrade(ctx, submission.ID, func(s *models.Submission, r *models.ReviewRecord) ([]models.Adjustment, error) {
			require.Len(t, s.Exercise.Questions, 2)
			s.Score = 100
			s.CorrectCount = 2
			r.Status = models.ReviewStatusNeedsRegrade
			return []models.Adjustment{{QuestionNumber: 2, NewCorrectAnswer: 0, NewPoints: 50}}, nil
		})
		require.NoError(t, err)
		require.Equal(t, 100, updated.Score)
		require.Len(t, review.Adjustments, round+1)
		require.Equal(t, round+1, review.Adjustments[round].Sequence)
	}

	stored, err := reviews.GetBySubmission(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.ReviewStatusNeedsRegrade, stored.Status)
	require.Len(t, stored.Adjustments, 2)
	require.Equal(t, 1, stored.Adjustments[0].Sequence)
	require.Equal(t, 2, stored.Adjustments[1].Sequence)
}

func TestReviewRepositoryRegradeRollsBackOnError(t *testing.T) {
	db := setupReadingTestDB(t)
	exercise := seedExercise(t, db, "beginner")
	submissions := NewSubmissionRepository(db)
	reviews := NewReviewRepository(db)
	ctx := context.Background()

	submission := models.Submission{UserID: 1, ExerciseID: exercise.ID, Answers: []int{0, 0}, Score: 50}
	require.NoError(t, submissions.CreateWithNextAttempt(ctx, &submission, &models.ReviewRecord{Status: models.ReviewStatusPending}))

	boom := errors.New("boom")
	_, _, err := reviews.Regrade(ctx, submission.ID, func(s *models.Submission, _ *models.ReviewRecord) ([]models.Adjustment, error) {
		s.Score = 0
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := submissions.GetByID(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, 50, stored.Score)

	_, _, err = reviews.Regrade(ctx, submission.ID+50, func(*models.Submission, *models.ReviewRecord) ([]models.Adjustment, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
