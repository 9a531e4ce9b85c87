package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-reading-api/internal/dto"
	"github.com/noah-isme/gema-reading-api/internal/models"
	"github.com/noah-isme/gema-reading-api/internal/repository"
	"github.com/noah-isme/gema-reading-api/internal/scoring"
)

func TestSubmissionServiceSubmitScoresAndNumbersAttempts(t *testing.T) {
	db := setupServiceTestDB(t)
	exercise := seedScoredExercise(t, db)
	events := &eventRecorder{}
	svc := NewSubmissionService(repository.NewSubmissionRepository(db), repository.NewExerciseRepository(db), events, testValidator(), testLogger())
	learner := Actor{ID: 11, Role: RoleStudent}
	ctx := context.Background()

	first, err := svc.Submit(ctx, learner, dto.SubmissionCreateRequest{ExerciseID: exercise.ID, Answers: []int{0, 1, 2}})
	require.NoError(t, err)
	require.Equal(t, 67, first.Score)
	require.Equal(t, 2, first.CorrectCount)
	require.Equal(t, 3, first.QuestionCount)
	require.Equal(t, 67, first.OriginalScore)
	require.Equal(t, 1, first.AttemptNumber)
	require.Equal(t, []bool{true, true, false}, first.Correct)

	second, err := svc.Submit(ctx, learner, dto.SubmissionCreateRequest{ExerciseID: exercise.ID, Answers: []int{0, 1, 3, 2, 1}})
	require.NoError(t, err)
	require.Equal(t, 100, second.Score)
	require.Equal(t, 2, second.AttemptNumber)
	require.Equal(t, []int{0, 1, 3}, second.Answers)

	third, err := svc.Submit(ctx, learner, dto.SubmissionCreateRequest{ExerciseID: exercise.ID, Answers: []int{0}})
	require.NoError(t, err)
	require.Equal(t, 33, third.Score)
	require.Equal(t, []int{0, -1, -1}, third.Answers)
	require.Equal(t, 3, third.AttemptNumber)

	var review models.ReviewRecord
	require.NoError(t, db.Where("submission_id = ?", first.ID).First(&review).Error)
	require.Equal(t, models.ReviewStatusPending, review.Status)

	require.Equal(t, []string{EventSubmissionScored, EventSubmissionScored, EventSubmissionScored}, events.names())

	attempts, err := svc.Attempts(ctx, learner.ID, exercise.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
}

func TestSubmissionServiceSubmitRejectsUnknownAndInvalid(t *testing.T) {
	db := setupServiceTestDB(t)
	exercise := seedScoredExercise(t, db)
	svc := NewSubmissionService(repository.NewSubmissionRepository(db), repository.NewExerciseRepository(db), nil, testValidator(), testLogger())
	learner := Actor{ID: 1, Role: RoleStudent}
	ctx := context.Background()

	_, err := svc.Submit(ctx, learner, dto.SubmissionCreateRequest{ExerciseID: exercise.ID + 10, Answers: []int{0}})
	require.ErrorIs(t, err, ErrExerciseNotFound)

	_, err = svc.Submit(ctx, learner, dto.SubmissionCreateRequest{ExerciseID: exercise.ID, Answers: []int{-2}})
	require.Error(t, err)

	empty := models.Exercise{Title: "Empty", PassageText: "x", SourceType: models.ExerciseSourceManual, Status: models.ExerciseStatusActive}
	require.NoError(t, db.Create(&empty).Error)
	_, err = svc.Submit(ctx, learner, dto.SubmissionCreateRequest{ExerciseID: empty.ID, Answers: []int{0}})
	require.ErrorIs(t, err, scoring.ErrExerciseHasNoQuestions)

	draft := models.Exercise{Title: "Draft", PassageText: "x", SourceType: models.ExerciseSourceManual, Status: "draft"}
	require.NoError(t, db.Create(&draft).Error)
	_, err = svc.Submit(ctx, learner, dto.SubmissionCreateRequest{ExerciseID: draft.ID, Answers: []int{0}})
	require.ErrorIs(t, err, ErrExerciseInactive)

	var count int64
	require.NoError(t, db.Model(&models.Submission{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestSubmissionServiceScopesLearnerAccess(t *testing.T) {
	db := setupServiceTestDB(t)
	exercise := seedScoredExercise(t, db)
	svc := NewSubmissionService(repository.NewSubmissionRepository(db), repository.NewExerciseRepository(db), nil, testValidator(), testLogger())
	ctx := context.Background()

	owner := Actor{ID: 1, Role: RoleStudent}
	other := Actor{ID: 2, Role: RoleStudent}
	teacher := Actor{ID: 3, Role: RoleTeacher}

	created, err := svc.Submit(ctx, owner, dto.SubmissionCreateRequest{ExerciseID: exercise.ID, Answers: []int{0, 1, 2}})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, other, dto.SubmissionCreateRequest{ExerciseID: exercise.ID, Answers: []int{1, 1, 1}})
	require.NoError(t, err)

	fetched, err := svc.Get(ctx, owner, created.ID)
	require.NoError(t, err)
	require.Equal(t, []bool{true, true, false}, fetched.Correct)

	_, err = svc.Get(ctx, other, created.ID)
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	_, err = svc.Get(ctx, teacher, created.ID)
	require.NoError(t, err)

	own, err := svc.List(ctx, other, dto.SubmissionFilter{UserID: &owner.ID})
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Equal(t, other.ID, own[0].UserID)

	all, err := svc.List(ctx, teacher, dto.SubmissionFilter{ExerciseID: &exercise.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
}
