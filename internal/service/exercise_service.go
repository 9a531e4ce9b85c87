package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
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
	"github.com/noah-isme/gema-reading-api/pkg/ai"
	"github.com/noah-isme/gema-reading-api/pkg/extract"
)

// FileStorage abstracts the archive that keeps uploaded source documents.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// DocumentExtractor turns an uploaded file into text.
type DocumentExtractor interface {
	Extract(data []byte, hint string) (extract.Document, error)
}

// ExerciseService ingests exercises from documents, AI output and
// hand-authored payloads, and serves them back.
type ExerciseService interface {
	IngestUpload(ctx context.Context, req dto.ExerciseUploadRequest, file *multipart.FileHeader, actorID uint) (dto.IngestionResponse, error)
	Generate(ctx context.Context, req dto.ExerciseGenerateRequest, actorID uint) (dto.IngestionResponse, error)
	CreateManual(ctx context.Context, req dto.ExerciseCreateRequest, actorID uint) (dto.IngestionResponse, error)
	Get(ctx context.Context, id uint, includeKey bool) (dto.ExerciseResponse, error)
	List(ctx context.Context, filter dto.ExerciseFilter, includeKey bool) (dto.ExerciseListResponse, error)
}

// ExerciseServiceConfig tunes ingestion limits and caching.
type ExerciseServiceConfig struct {
	MaxUploadMB          int
	CacheTTL             time.Duration
	DefaultQuestionCount int
}

type exerciseService struct {
	repo          repository.ExerciseRepository
	extractor     DocumentExtractor
	generator     ai.Generator
	storage       FileStorage
	cache         *redis.Client
	events        EventPublisher
	validator     *validator.Validate
	sanitizer     *bluemonday.Policy
	logger        zerolog.Logger
	tracer        trace.Tracer
	maxSize       int64
	ttl           time.Duration
	questionCount int
}

// NewExerciseService constructs the exercise service. generator, storage and
// cache are optional.
func NewExerciseService(
	repo repository.ExerciseRepository,
	extractor DocumentExtractor,
	generator ai.Generator,
	storage FileStorage,
	cache *redis.Client,
	events EventPublisher,
	validate *validator.Validate,
	cfg ExerciseServiceConfig,
	logger zerolog.Logger,
) ExerciseService {
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 10
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.DefaultQuestionCount <= 0 {
		cfg.DefaultQuestionCount = 5
	}
	if events == nil {
		events = NewEventPublisher(nil, "", logger)
	}

	return &exerciseService{
		repo:          repo,
		extractor:     extractor,
		generator:     generator,
		storage:       storage,
		cache:         cache,
		events:        events,
		validator:     validate,
		sanitizer:     bluemonday.StrictPolicy(),
		logger:        logger.With().Str("component", "exercise_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/gema-reading-api/internal/service/exercise"),
		maxSize:       int64(cfg.MaxUploadMB) * 1024 * 1024,
		ttl:           cfg.CacheTTL,
		questionCount: cfg.DefaultQuestionCount,
	}
}

// draft is an exercise assembled by one of the ingestion paths before it is persisted.
type draft struct {
	title      string
	passage    string
	level      string
	kind       string
	source     string
	sourceURL  string
	normalized ingest.Normalized
	split      ingest.SplitResult
}

func (s *exerciseService) IngestUpload(ctx context.Context, req dto.ExerciseUploadRequest, file *multipart.FileHeader, actorID uint) (dto.IngestionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "exercise.ingest_upload")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return dto.IngestionResponse{}, s.fail(span, models.ExerciseSourceUploaded, "validation", err)
	}

	data, err := readUpload(file, s.maxSize)
	if err != nil {
		return dto.IngestionResponse{}, s.fail(span, models.ExerciseSourceUploaded, "rejected", err)
	}
	span.SetAttributes(
		attribute.String("upload.name", file.Filename),
		attribute.Int("upload.size_bytes", len(data)),
	)

	if err := scanArchive(data, s.maxSize); err != nil {
		return dto.IngestionResponse{}, s.fail(span, models.ExerciseSourceUploaded, "rejected", err)
	}

	doc, err := s.extractor.Extract(data, file.Filename)
	if err != nil {
		return dto.IngestionResponse{}, s.fail(span, models.ExerciseSourceUploaded, "unreadable", err)
	}
	span.SetAttributes(attribute.String("upload.format", string(doc.Format)))

	d := draft{
		title:  s.plainText(req.Title),
		level:  strings.TrimSpace(req.Level),
		kind:   strings.TrimSpace(req.Type),
		source: models.ExerciseSourceUploaded,
	}
	if d.title == "" {
		d.title = titleFromFileName(file.Filename)
	}

	if doc.Format == extract.FormatJSON {
		d.passage = models.QuestionOnlyPassage
		d.normalized = ingest.NormalizePayload(ai.ExtractJSONArray(doc.Text))
	} else {
		d.split = ingest.SplitAnswerKey(doc.Text)
		d.passage = d.split.Passage
		if strings.TrimSpace(d.passage) == "" {
			return dto.IngestionResponse{}, s.fail(span, models.ExerciseSourceUploaded, "unreadable", extract.ErrNoExtractableText)
		}

		if strings.TrimSpace(req.Questions) != "" {
			d.normalized = ingest.NormalizePayload(ai.ExtractJSONArray(req.Questions))
		} else {
			count := req.QuestionCount
			if count <= 0 {
				count = len(d.split.Answers)
			}
			normalized, err := s.generateQuestions(ctx, d.passage, d.kind, d.level, count)
			if err != nil {
				return dto.IngestionResponse{}, s.fail(span, models.ExerciseSourceUploaded, "generator", err)
			}
			d.normalized = normalized
		}
		applyAnswerKey(&d.normalized, ingest.AnswerIndexes(d.split.Answers))
	}

	if len(d.normalized.Questions) == 0 {
		return dto.IngestionResponse{}, s.fail(span, models.ExerciseSourceUploaded, "empty", scoring.ErrExerciseHasNoQuestions)
	}

	if s.storage != nil {
		url, err := s.storage.Upload(ctx, sanitizeFileName(file.Filename), bytes.NewReader(data))
		if err != nil {
			s.logger.Warn().Err(err).Str("file", file.Filename).Msg("failed to archive source document")
		} else {
			d.sourceURL = url
		}
	}

	return s.persist(ctx, span, d, actorID)
}

func (s *exerciseService) Generate(ctx context.Context, req dto.ExerciseGenerateRequest, actorID uint) (dto.IngestionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "exercise.generate")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return dto.IngestionResponse{}, s.fail(span, models.ExerciseSourceAI, "validation", err)
	}
	topic := strings.TrimSpace(req.Topic)
	passage := s.plainText(req.Passage)
	if topic == "" && passage == "" {
		return dto.IngestionResponse{}, s.fail(span, models.ExerciseSourceAI, "validation", fmt.Errorf("%w: topic or passage is required", ErrInvalidInput))
	}
	if s.generator == nil {
		return dto.IngestionResponse{}, s.fail(span, models.ExerciseSourceAI, "generator", ErrGeneratorUnavailable)
	}

	d := draft{
		title:  s.plainText(req.Title),
		level:  strings.TrimSpace(req.Level),
		kind:   strings.TrimSpace(req.Type),
		source: models.ExerciseSourceAI,
	}
	if d.title == "" {
		d.title = topic
	}

	if passage == "" {
		generated, err := s.generator.GeneratePassage(ctx, ai.PassageInput{Topic: topic, Type: d.kind, Level: d.level, Words: req.Words})
		if err != nil {
			return dto.IngestionResponse{}, s.fail(span, models.ExerciseSourceAI, "generator", fmt.Errorf("%w: %v", ErrGenerationFailed, err))
		}
		passage = strings.TrimSpace(generated)
		if passage == "" {
			return dto.IngestionResponse{}, s.fail(span, models.ExerciseSourceAI, "generator", fmt.Errorf("%w: empty passage", ErrGenerationFailed))
		}
	}
	d.passage = passage
	if d.title == "" {
		d.title = firstLine(passage)
	}

	normalized, err := s.generateQuestions(ctx, passage, d.kind, d.level, req.QuestionCount)
	if err != nil {
		return dto.IngestionResponse{}, s.fail(span, models.ExerciseSourceAI, "generator", err)
	}
	d.normalized = normalized
	if len(d.normalized.Questions) == 0 {
		return dto.IngestionResponse{}, s.fail(span, models.ExerciseSourceAI, "empty", scoring.ErrExerciseHasNoQuestions)
	}

	return s.persist(ctx, span, d, actorID)
}

func (s *exerciseService) CreateManual(ctx context.Context, req dto.ExerciseCreateRequest, actorID uint) (dto.IngestionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "exercise.create_manual")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return dto.IngestionResponse{}, s.fail(span, models.ExerciseSourceManual, "validation", err)
	}

	d := draft{
		title:      s.plainText(req.Title),
		passage:    s.plainText(req.PassageText),
		level:      strings.TrimSpace(req.Level),
		kind:       strings.TrimSpace(req.Type),
		source:     models.ExerciseSourceManual,
		normalized: ingest.NormalizePayload(req.Questions),
	}
	if d.passage == "" {
		d.passage = models.QuestionOnlyPassage
	}
	if len(d.normalized.Questions) == 0 {
		return dto.IngestionResponse{}, s.fail(span, models.ExerciseSourceManual, "empty", scoring.ErrExerciseHasNoQuestions)
	}

	return s.persist(ctx, span, d, actorID)
}

func (s *exerciseService) Get(ctx context.Context, id uint, includeKey bool) (dto.ExerciseResponse, error) {
	if cached, ok := s.fetchCache(ctx, id); ok {
		observability.ExerciseCache().WithLabelValues("hit").Inc()
		return redactKey(cached, includeKey), nil
	}
	observability.ExerciseCache().WithLabelValues("miss").Inc()

	exercise, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ExerciseResponse{}, ErrExerciseNotFound
		}
		return dto.ExerciseResponse{}, err
	}

	response := dto.NewExerciseResponse(exercise, true)
	s.writeCache(ctx, response)

	return redactKey(response, includeKey), nil
}

func (s *exerciseService) List(ctx context.Context, filter dto.ExerciseFilter, includeKey bool) (dto.ExerciseListResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return dto.ExerciseListResponse{}, err
	}

	repoFilter := repository.ExerciseFilter{
		Level:      optionalString(filter.Level),
		Type:       optionalString(filter.Type),
		SourceType: optionalString(filter.Source),
		Page:       filter.Page,
		PageSize:   filter.PageSize,
	}
	if !includeKey {
		active := models.ExerciseStatusActive
		repoFilter.Status = &active
	}

	exercises, total, err := s.repo.List(ctx, repoFilter)
	if err != nil {
		return dto.ExerciseListResponse{}, err
	}

	page, size := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	return dto.ExerciseListResponse{
		Items:    dto.NewExerciseResponseSlice(exercises, includeKey),
		Total:    total,
		Page:     page,
		PageSize: size,
	}, nil
}

func (s *exerciseService) generateQuestions(ctx context.Context, passage, kind, level string, count int) (ingest.Normalized, error) {
	if s.generator == nil {
		return ingest.Normalized{}, ErrGeneratorUnavailable
	}
	if count <= 0 {
		count = s.questionCount
	}

	raw, err := s.generator.GenerateQuestions(ctx, ai.QuestionInput{Passage: passage, Type: kind, Level: level, Count: count})
	if err != nil {
		return ingest.Normalized{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	return ingest.NormalizePayload(ai.ExtractJSONArray(raw)), nil
}

func (s *exerciseService) persist(ctx context.Context, span trace.Span, d draft, actorID uint) (dto.IngestionResponse, error) {
	exercise := models.Exercise{
		Title:       d.title,
		PassageText: d.passage,
		Level:       d.level,
		Type:        d.kind,
		SourceType:  d.source,
		Status:      models.ExerciseStatusActive,
		SourceURL:   d.sourceURL,
		CreatedBy:   actorID,
		Questions:   make([]models.Question, 0, len(d.normalized.Questions)),
	}

	for _, question := range d.normalized.Questions {
		model := models.Question{
			Position:           question.Position,
			Text:               s.plainText(question.Text),
			Options:            question.Options,
			CorrectAnswerIndex: question.CorrectAnswerIndex,
			Explanation:        question.Explanation,
		}
		if issues := d.normalized.IssuesFor(question.Position); len(issues) > 0 {
			reasons := make([]string, 0, len(issues))
			for _, issue := range issues {
				reasons = append(reasons, issue.Field+": "+issue.Reason)
			}
			model.Flagged = true
			model.FlagReason = strings.Join(reasons, "; ")
		}
		if model.Text == "" {
			model.Text = question.Text
		}
		exercise.Questions = append(exercise.Questions, model)
	}

	if err := s.repo.Create(ctx, &exercise); err != nil {
		return dto.IngestionResponse{}, s.fail(span, d.source, "error", err)
	}

	issues := make([]string, 0, len(d.normalized.Issues)+len(d.normalized.Skipped))
	for _, issue := range d.normalized.Issues {
		observability.NormalizationFallbacks().WithLabelValues(issue.Field).Inc()
		s.logger.Warn().
			Uint("exercise_id", exercise.ID).
			Int("question", issue.Position).
			Str("field", issue.Field).
			Str("reason", issue.Reason).
			Msg("normalization fallback applied")
		issues = append(issues, issue.String())
	}
	for _, skipped := range d.normalized.Skipped {
		observability.NormalizationFallbacks().WithLabelValues(skipped.Field).Inc()
		s.logger.Warn().
			Uint("exercise_id", exercise.ID).
			Int("item", skipped.Item).
			Str("reason", skipped.Reason).
			Msg("question record skipped")
		issues = append(issues, skipped.String())
	}

	observability.Ingestions().WithLabelValues(d.source, "created").Inc()
	span.SetAttributes(
		attribute.Int("exercise.id", int(exercise.ID)),
		attribute.Int("exercise.questions", len(exercise.Questions)),
		attribute.Int("exercise.fallbacks", len(issues)),
	)
	span.SetStatus(codes.Ok, "ingested")

	s.logger.Info().
		Uint("exercise_id", exercise.ID).
		Str("source", d.source).
		Int("questions", len(exercise.Questions)).
		Str("answer_key", string(d.split.Method)).
		Msg("exercise ingested")

	response := dto.NewExerciseResponse(exercise, true)
	s.writeCache(ctx, response)
	s.events.Publish(ctx, EventExerciseIngested, map[string]interface{}{
		"exercise_id":    exercise.ID,
		"source_type":    exercise.SourceType,
		"question_count": len(exercise.Questions),
		"fallbacks":      len(issues),
	})

	method := d.split.Method
	if method == "" {
		method = ingest.SplitNone
	}

	return dto.IngestionResponse{
		Exercise:        response,
		AnswerKeyMethod: string(method),
		AnswerKeySize:   len(d.split.Answers),
		Issues:          issues,
	}, nil
}

func (s *exerciseService) fail(span trace.Span, source, outcome string, err error) error {
	observability.Ingestions().WithLabelValues(source, outcome).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	s.logger.Warn().Err(err).Str("source", source).Str("outcome", outcome).Msg("exercise ingestion failed")
	return err
}

func (s *exerciseService) plainText(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(value)))
}

func (s *exerciseService) fetchCache(ctx context.Context, id uint) (dto.ExerciseResponse, bool) {
	if s.cache == nil {
		return dto.ExerciseResponse{}, false
	}
	payload, err := s.cache.Get(ctx, exerciseCacheKey(id)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read exercise cache")
		}
		return dto.ExerciseResponse{}, false
	}

	var response dto.ExerciseResponse
	if err := json.Unmarshal([]byte(payload), &response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to decode exercise cache")
		return dto.ExerciseResponse{}, false
	}
	return response, true
}

func (s *exerciseService) writeCache(ctx context.Context, response dto.ExerciseResponse) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(response)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode exercise cache")
		return
	}
	if err := s.cache.Set(ctx, exerciseCacheKey(response.ID), payload, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store exercise cache")
	}
}

func exerciseCacheKey(id uint) string {
	return "exercise:v1:" + strconv.FormatUint(uint64(id), 10)
}

// applyAnswerKey overrides correct answers by position with the document's
// answer key. Entries that do not map to an option of their question are
// ignored; a correct-answer fallback recorded for an overridden question is
// dropped.
func applyAnswerKey(normalized *ingest.Normalized, key []int) {
	overridden := make(map[int]struct{}, len(key))
	for i, index := range key {
		if i >= len(normalized.Questions) {
			break
		}
		question := &normalized.Questions[i]
		if index < 0 || index >= len(question.Options) {
			continue
		}
		question.CorrectAnswerIndex = index
		overridden[question.Position] = struct{}{}
	}
	if len(overridden) == 0 {
		return
	}

	kept := normalized.Issues[:0]
	for _, issue := range normalized.Issues {
		if _, ok := overridden[issue.Position]; ok && issue.Field == "correctAnswer" {
			continue
		}
		kept = append(kept, issue)
	}
	normalized.Issues = kept
}

func redactKey(response dto.ExerciseResponse, includeKey bool) dto.ExerciseResponse {
	if includeKey {
		return response
	}
	questions := make([]dto.QuestionResponse, len(response.Questions))
	for i, question := range response.Questions {
		questions[i] = dto.QuestionResponse{
			Number:  question.Number,
			Text:    question.Text,
			Options: question.Options,
		}
	}
	response.Questions = questions
	return response
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func firstLine(text string) string {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(text), "\n", 2)[0])
	if len([]rune(line)) > 80 {
		line = string([]rune(line)[:80])
	}
	return line
}
