package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-reading-api/internal/dto"
	"github.com/noah-isme/gema-reading-api/internal/models"
	"github.com/noah-isme/gema-reading-api/internal/observability"
	"github.com/noah-isme/gema-reading-api/internal/repository"
	"github.com/noah-isme/gema-reading-api/internal/scoring"
)

// SubmissionService scores learner answers and exposes their attempts.
type SubmissionService interface {
	Submit(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error)
	Get(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error)
	List(ctx context.Context, actor Actor, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error)
	Attempts(ctx context.Context, userID, exerciseID uint) ([]dto.SubmissionResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	exercises   repository.ExerciseRepository
	events      EventPublisher
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(subRepo repository.SubmissionRepository, exerciseRepo repository.ExerciseRepository, events EventPublisher, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	if events == nil {
		events = NewEventPublisher(nil, "", logger)
	}
	return &submissionService{
		submissions: subRepo,
		exercises:   exerciseRepo,
		events:      events,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-reading-api/internal/service/submission"),
	}
}

func (s *submissionService) Submit(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.score")
	defer span.End()
	span.SetAttributes(
		attribute.Int("submission.exercise_id", int(payload.ExerciseID)),
		attribute.Int("submission.user_id", int(actor.ID)),
	)

	if err := s.validator.Struct(payload); err != nil {
		observability.SubmissionsScored().WithLabelValues("invalid").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.SubmissionResponse{}, err
	}

	exercise, err := s.exercises.GetByID(ctx, payload.ExerciseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = ErrExerciseNotFound
		}
		observability.SubmissionsScored().WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "exercise lookup failed")
		return dto.SubmissionResponse{}, err
	}
	if !exercise.IsActive() {
		observability.SubmissionsScored().WithLabelValues("inactive").Inc()
		return dto.SubmissionResponse{}, ErrExerciseInactive
	}

	keys := exercise.AnswerKey()
	answers := scoring.PadAnswers(payload.Answers, len(keys))
	result, err := scoring.Score(keys, answers)
	if err != nil {
		observability.SubmissionsScored().WithLabelValues("empty_exercise").Inc()
		s.logger.Error().Err(err).Uint("exercise_id", exercise.ID).Msg("exercise without questions cannot be scored")
		span.RecordError(err)
		span.SetStatus(codes.Error, "exercise has no questions")
		return dto.SubmissionResponse{}, err
	}

	submission := models.Submission{
		UserID:               actor.ID,
		ExerciseID:           exercise.ID,
		Answers:              answers,
		Score:                result.Score,
		CorrectCount:         result.CorrectCount,
		QuestionCount:        result.QuestionCount,
		OriginalScore:        result.Score,
		OriginalCorrectCount: result.CorrectCount,
	}
	review := models.ReviewRecord{Status: models.ReviewStatusPending}

	if err := s.submissions.CreateWithNextAttempt(ctx, &submission, &review); err != nil {
		observability.SubmissionsScored().WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.SubmissionResponse{}, err
	}

	observability.SubmissionsScored().WithLabelValues("scored").Inc()
	observability.SubmissionScores().Observe(float64(submission.Score))
	span.SetAttributes(
		attribute.Int("submission.id", int(submission.ID)),
		attribute.Int("submission.attempt", submission.AttemptNumber),
		attribute.Int("submission.score", submission.Score),
	)
	span.SetStatus(codes.Ok, "scored")

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("exercise_id", exercise.ID).
		Uint("user_id", actor.ID).
		Int("attempt", submission.AttemptNumber).
		Int("score", submission.Score).
		Msg("submission scored")

	s.events.Publish(ctx, EventSubmissionScored, map[string]interface{}{
		"submission_id":  submission.ID,
		"exercise_id":    submission.ExerciseID,
		"user_id":        submission.UserID,
		"attempt_number": submission.AttemptNumber,
		"score":          submission.Score,
		"correct_count":  submission.CorrectCount,
		"question_count": submission.QuestionCount,
	})

	response := dto.NewSubmissionResponse(submission)
	response.Correct = result.Correct
	return response, nil
}

func (s *submissionService) Get(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}
	if !actor.IsReviewer() && submission.UserID != actor.ID {
		return dto.SubmissionResponse{}, ErrSubmissionNotFound
	}

	response := dto.NewSubmissionResponse(submission)
	// Regraded submissions expose their breakdown through the review.
	if !submission.IsRegraded() {
		if result, err := scoring.Score(submission.Exercise.AnswerKey(), submission.Answers); err == nil {
			response.Correct = result.Correct
		}
	}

	return response, nil
}

func (s *submissionService) List(ctx context.Context, actor Actor, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	repoFilter := repository.SubmissionFilter{
		ExerciseID: filter.ExerciseID,
		UserID:     filter.UserID,
	}
	if !actor.IsReviewer() {
		own := actor.ID
		repoFilter.UserID = &own
	}

	submissions, err := s.submissions.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) Attempts(ctx context.Context, userID, exerciseID uint) ([]dto.SubmissionResponse, error) {
	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{UserID: &userID, ExerciseID: &exerciseID})
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}
