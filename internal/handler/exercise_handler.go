package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-reading-api/internal/dto"
	"github.com/noah-isme/gema-reading-api/internal/middleware"
	"github.com/noah-isme/gema-reading-api/internal/service"
	"github.com/noah-isme/gema-reading-api/internal/utils"
)

// ExerciseHandler exposes exercise ingestion and retrieval endpoints.
type ExerciseHandler struct {
	exercises   service.ExerciseService
	submissions service.SubmissionService
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewExerciseHandler builds an exercise handler instance.
func NewExerciseHandler(exercises service.ExerciseService, submissions service.SubmissionService, validator *validator.Validate, logger zerolog.Logger) *ExerciseHandler {
	return &ExerciseHandler{
		exercises:   exercises,
		submissions: submissions,
		validator:   validator,
		logger:      logger.With().Str("component", "exercise_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group. Authoring
// routes are limited to reviewers.
func (h *ExerciseHandler) Register(router fiber.Router) {
	authoring := middleware.RequireRole(middleware.ReviewerRoles...)

	router.Get("", h.list)
	router.Post("", authoring, h.create)
	router.Post("/upload", authoring, h.upload)
	router.Post("/generate", authoring, h.generate)
	router.Get("/:id", h.get)
	router.Get("/:id/attempts", h.attempts)
}

func (h *ExerciseHandler) upload(c *fiber.Ctx) error {
	var req dto.ExerciseUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid form data")
	}

	// A missing file part is reported by the service.
	file, _ := c.FormFile("file")

	actor := actorFromContext(c)
	resp, err := h.exercises.IngestUpload(c.UserContext(), req, file, actor.ID)
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().
		Uint("exercise_id", resp.Exercise.ID).
		Str("answer_key_method", resp.AnswerKeyMethod).
		Int("issues", len(resp.Issues)).
		Msg("exercise uploaded")

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "exercise ingested", resp)
}

func (h *ExerciseHandler) generate(c *fiber.Ctx) error {
	var req dto.ExerciseGenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.exercises.Generate(c.UserContext(), req, actorFromContext(c).ID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "exercise generated", resp)
}

func (h *ExerciseHandler) create(c *fiber.Ctx) error {
	var req dto.ExerciseCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.exercises.CreateManual(c.UserContext(), req, actorFromContext(c).ID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "exercise created", resp)
}

func (h *ExerciseHandler) list(c *fiber.Ctx) error {
	var filter dto.ExerciseFilter
	if err := c.QueryParser(&filter); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	result, err := h.exercises.List(c.UserContext(), filter, actorFromContext(c).IsReviewer())
	if err != nil {
		return h.handleError(c, err)
	}

	meta := fiber.Map{"total": result.Total, "page": result.Page, "page_size": result.PageSize}
	return utils.OK(c, result.Items, "exercises retrieved", meta)
}

func (h *ExerciseHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	exercise, err := h.exercises.Get(c.UserContext(), id, actorFromContext(c).IsReviewer())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "exercise retrieved", exercise)
}

func (h *ExerciseHandler) attempts(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	actor := actorFromContext(c)
	userID := actor.ID
	if actor.IsReviewer() {
		requested, err := parseQueryUint(c, "user_id")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		if requested != nil {
			userID = *requested
		}
	}

	attempts, err := h.submissions.Attempts(c.UserContext(), userID, id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempts retrieved", attempts)
}

func (h *ExerciseHandler) handleError(c *fiber.Ctx, err error) error {
	return sendServiceError(c, h.logger, err)
}
