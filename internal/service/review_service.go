package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-reading-api/internal/dto"
	"github.com/noah-isme/gema-reading-api/internal/ingest"
	"github.com/noah-isme/gema-reading-api/internal/models"
	"github.com/noah-isme/gema-reading-api/internal/observability"
	"github.com/noah-isme/gema-reading-api/internal/repository"
	"github.com/noah-isme/gema-reading-api/internal/scoring"
)

// ReviewService manages submission reviews and reviewer answer corrections.
type ReviewService interface {
	Get(ctx context.Context, submissionID uint) (dto.ReviewResponse, error)
	Transition(ctx context.Context, submissionID uint, payload dto.ReviewTransitionRequest, actor Actor) (dto.ReviewResponse, error)
	Regrade(ctx context.Context, submissionID uint, payload dto.RegradeRequest, actor Actor) (dto.ReviewResponse, error)
	Verify(ctx context.Context, submissionID uint) (dto.VerifyResponse, error)
}

type reviewService struct {
	reviews     repository.ReviewRepository
	submissions repository.SubmissionRepository
	events      EventPublisher
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewReviewService constructs the review service.
func NewReviewService(reviewRepo repository.ReviewRepository, submissionRepo repository.SubmissionRepository, events EventPublisher, validate *validator.Validate, logger zerolog.Logger) ReviewService {
	if events == nil {
		events = NewEventPublisher(nil, "", logger)
	}
	return &reviewService{
		reviews:     reviewRepo,
		submissions: submissionRepo,
		events:      events,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "review_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-reading-api/internal/service/review"),
		now:         time.Now,
	}
}

func (s *reviewService) Get(ctx context.Context, submissionID uint) (dto.ReviewResponse, error) {
	submission, review, err := s.load(ctx, submissionID)
	if err != nil {
		return dto.ReviewResponse{}, err
	}

	regrade, err := scoring.Reconcile(submission.Exercise.AnswerKey(), submission.Answers, ledgerOverrides(review.Adjustments))
	if err != nil {
		return dto.ReviewResponse{}, err
	}

	return dto.NewReviewResponse(review, submission, regrade), nil
}

func (s *reviewService) Transition(ctx context.Context, submissionID uint, payload dto.ReviewTransitionRequest, actor Actor) (dto.ReviewResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ReviewResponse{}, err
	}

	next, ok := models.ParseReviewStatus(payload.Status)
	if !ok {
		return dto.ReviewResponse{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, payload.Status)
	}

	_, review, err := s.load(ctx, submissionID)
	if err != nil {
		return dto.ReviewResponse{}, err
	}

	previous := review.Status
	if !previous.CanTransitionTo(next) {
		observability.ReviewTransitions().WithLabelValues(string(next), "rejected").Inc()
		return dto.ReviewResponse{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, previous, next)
	}

	changed := previous != next
	if payload.Notes != nil {
		review.Notes = s.plainText(*payload.Notes)
		changed = true
	}

	if changed {
		review.Status = next
		reviewer := actor.ID
		review.ReviewerID = &reviewer
		if err := s.reviews.Update(ctx, &review); err != nil {
			return dto.ReviewResponse{}, err
		}
	}

	if previous != next {
		observability.ReviewTransitions().WithLabelValues(string(next), "applied").Inc()
		s.logger.Info().
			Uint("submission_id", submissionID).
			Str("from", string(previous)).
			Str("to", string(next)).
			Uint("reviewer_id", actor.ID).
			Msg("review status changed")
		s.events.Publish(ctx, EventReviewStatusChanged, map[string]interface{}{
			"submission_id": submissionID,
			"from":          previous,
			"to":            next,
			"reviewer_id":   actor.ID,
		})
	}

	return s.Get(ctx, submissionID)
}

func (s *reviewService) Regrade(ctx context.Context, submissionID uint, payload dto.RegradeRequest, actor Actor) (dto.ReviewResponse, error) {
	ctx, span := s.tracer.Start(ctx, "review.regrade")
	defer span.End()
	span.SetAttributes(
		attribute.Int("regrade.submission_id", int(submissionID)),
		attribute.Int("regrade.adjustments", len(payload.Adjustments)),
	)

	if err := s.validator.Struct(payload); err != nil {
		return dto.ReviewResponse{}, s.regradeFailed(span, "invalid", err)
	}

	var requested *models.ReviewStatus
	if strings.TrimSpace(payload.Status) != "" {
		status, ok := models.ParseReviewStatus(payload.Status)
		if !ok {
			return dto.ReviewResponse{}, s.regradeFailed(span, "invalid", fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, payload.Status))
		}
		requested = &status
	}

	var (
		result        scoring.Regrade
		previousScore int
		previousState models.ReviewStatus
	)

	submission, review, err := s.reviews.Regrade(ctx, submissionID, func(submission *models.Submission, review *models.ReviewRecord) ([]models.Adjustment, error) {
		keys := submission.Exercise.AnswerKey()
		if len(keys) == 0 {
			return nil, scoring.ErrExerciseHasNoQuestions
		}

		selected := scoring.PadAnswers(submission.Answers, len(keys))
		entries := make([]models.Adjustment, 0, len(payload.Adjustments))
		for _, adjustment := range payload.Adjustments {
			entry, err := s.buildAdjustment(adjustment, keys, selected, actor)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}

		overrides := append(ledgerOverrides(review.Adjustments), entryOverrides(entries)...)
		regrade, err := scoring.Reconcile(keys, submission.Answers, overrides)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAdjustment, err)
		}

		next, err := nextReviewStatus(review.Status, requested)
		if err != nil {
			return nil, err
		}

		previousScore = submission.Score
		previousState = review.Status
		result = regrade

		now := s.now().UTC()
		submission.Score = regrade.TotalScore
		submission.CorrectCount = regrade.CorrectCount
		submission.RegradedAt = &now

		reviewer := actor.ID
		review.ReviewerID = &reviewer
		review.Status = next
		if notes := s.plainText(payload.Notes); notes != "" {
			review.Notes = notes
		}

		return entries, nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = ErrSubmissionNotFound
		}
		return dto.ReviewResponse{}, s.regradeFailed(span, "rejected", err)
	}

	observability.Regrades().WithLabelValues("applied").Inc()
	span.SetAttributes(
		attribute.Int("regrade.previous_score", previousScore),
		attribute.Int("regrade.score", submission.Score),
		attribute.Int("regrade.ledger_size", len(review.Adjustments)),
	)
	span.SetStatus(codes.Ok, "regraded")

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("reviewer_id", actor.ID).
		Int("previous_score", previousScore).
		Int("score", submission.Score).
		Int("ledger_size", len(review.Adjustments)).
		Msg("submission regraded")

	s.events.Publish(ctx, EventSubmissionRegraded, map[string]interface{}{
		"submission_id":  submission.ID,
		"exercise_id":    submission.ExerciseID,
		"user_id":        submission.UserID,
		"previous_score": previousScore,
		"score":          submission.Score,
		"correct_count":  submission.CorrectCount,
		"adjustments":    len(payload.Adjustments),
	})
	if previousState != review.Status {
		observability.ReviewTransitions().WithLabelValues(string(review.Status), "applied").Inc()
		s.events.Publish(ctx, EventReviewStatusChanged, map[string]interface{}{
			"submission_id": submission.ID,
			"from":          previousState,
			"to":            review.Status,
			"reviewer_id":   actor.ID,
		})
	}

	return dto.NewReviewResponse(review, submission, result), nil
}

func (s *reviewService) Verify(ctx context.Context, submissionID uint) (dto.VerifyResponse, error) {
	submission, review, err := s.load(ctx, submissionID)
	if err != nil {
		return dto.VerifyResponse{}, err
	}

	replayed, err := scoring.Reconcile(submission.Exercise.AnswerKey(), submission.Answers, ledgerOverrides(review.Adjustments))
	if err != nil {
		return dto.VerifyResponse{}, err
	}

	response := dto.VerifyResponse{
		SubmissionID:         submission.ID,
		LedgerEntries:        len(review.Adjustments),
		StoredScore:          submission.Score,
		ReplayedScore:        replayed.TotalScore,
		StoredCorrectCount:   submission.CorrectCount,
		ReplayedCorrectCount: replayed.CorrectCount,
	}
	response.Consistent = response.StoredScore == response.ReplayedScore && response.StoredCorrectCount == response.ReplayedCorrectCount
	if !response.Consistent {
		s.logger.Error().
			Uint("submission_id", submission.ID).
			Int("stored_score", response.StoredScore).
			Int("replayed_score", response.ReplayedScore).
			Msg("adjustment ledger does not reproduce stored score")
	}

	return response, nil
}

func (s *reviewService) load(ctx context.Context, submissionID uint) (models.Submission, models.ReviewRecord, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, models.ReviewRecord{}, ErrSubmissionNotFound
		}
		return models.Submission{}, models.ReviewRecord{}, err
	}

	review, err := s.reviews.GetBySubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, models.ReviewRecord{}, ErrReviewNotFound
		}
		return models.Submission{}, models.ReviewRecord{}, err
	}

	return submission, review, nil
}

// buildAdjustment resolves a reviewer answer the same way ingested answers
// are resolved. Anything that would fall back to a default is rejected.
func (s *reviewService) buildAdjustment(adjustment dto.AdjustmentRequest, keys []scoring.QuestionKey, selected []int, actor Actor) (models.Adjustment, error) {
	number := adjustment.QuestionNumber
	if number < 1 || number > len(keys) {
		return models.Adjustment{}, fmt.Errorf("%w: question %d does not exist (exercise has %d)", ErrInvalidAdjustment, number, len(keys))
	}
	if adjustment.CorrectAnswer.IsZero() {
		return models.Adjustment{}, fmt.Errorf("%w: question %d: correct answer is required", ErrInvalidAdjustment, number)
	}

	resolution := ingest.ResolveAnswer(adjustment.CorrectAnswer.Raw(), keys[number-1].OptionCount)
	if resolution.Defaulted {
		return models.Adjustment{}, fmt.Errorf("%w: question %d: %s", ErrInvalidAdjustment, number, resolution.Reason)
	}

	return models.Adjustment{
		QuestionNumber:     number,
		NewCorrectAnswer:   resolution.Value,
		TeacherExplanation: s.plainText(adjustment.Explanation),
		NewPoints:          scoring.PointsFor(len(keys), selected[number-1] != scoring.Unanswered && selected[number-1] == resolution.Value),
		CreatedBy:          actor.ID,
	}, nil
}

func (s *reviewService) regradeFailed(span trace.Span, outcome string, err error) error {
	observability.Regrades().WithLabelValues(outcome).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	s.logger.Warn().Err(err).Str("outcome", outcome).Msg("regrade failed")
	return err
}

func (s *reviewService) plainText(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(value)))
}

// nextReviewStatus decides the review status after a regrade. An explicit
// request must be a legal transition; otherwise closed reviews reopen as
// needs_regrade and pending reviews move to reviewing.
func nextReviewStatus(current models.ReviewStatus, requested *models.ReviewStatus) (models.ReviewStatus, error) {
	if requested != nil {
		if !current.CanTransitionTo(*requested) {
			return current, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, *requested)
		}
		return *requested, nil
	}

	switch {
	case current.IsTerminal():
		return models.ReviewStatusNeedsRegrade, nil
	case current == models.ReviewStatusPending:
		return models.ReviewStatusReviewing, nil
	default:
		return current, nil
	}
}

// ledgerOverrides replays stored entries in sequence order.
func ledgerOverrides(ledger []models.Adjustment) []scoring.Override {
	ordered := append([]models.Adjustment(nil), ledger...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Sequence < ordered[j].Sequence
	})
	return entryOverrides(ordered)
}

func entryOverrides(entries []models.Adjustment) []scoring.Override {
	overrides := make([]scoring.Override, 0, len(entries))
	for _, entry := range entries {
		overrides = append(overrides, scoring.Override{
			QuestionNumber:     entry.QuestionNumber,
			CorrectAnswerIndex: entry.NewCorrectAnswer,
		})
	}
	return overrides
}
