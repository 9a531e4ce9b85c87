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

// ReviewHandler exposes the reviewer workflow: inspecting, transitioning,
// regrading and verifying a submission's review record.
type ReviewHandler struct {
	service   service.ReviewService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewReviewHandler builds a review handler instance.
func NewReviewHandler(service service.ReviewService, validator *validator.Validate, logger zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "review_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *ReviewHandler) Register(router fiber.Router) {
	router.Use(middleware.RequireRole(middleware.ReviewerRoles...))

	router.Get("/:submissionId", h.get)
	router.Patch("/:submissionId/status", h.transition)
	router.Post("/:submissionId/regrade", h.regrade)
	router.Get("/:submissionId/verify", h.verify)
}

func (h *ReviewHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "submissionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	review, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "review retrieved", review)
}

func (h *ReviewHandler) transition(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "submissionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ReviewTransitionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	review, err := h.service.Transition(c.UserContext(), id, payload, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "review status updated", review)
}

func (h *ReviewHandler) regrade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "submissionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.RegradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	review, err := h.service.Regrade(c.UserContext(), id, payload, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().
		Uint("submission_id", id).
		Int("adjustments", len(payload.Adjustments)).
		Int("score", review.Score).
		Int("original_score", review.OriginalScore).
		Msg("submission regraded")

	return utils.SendSuccess(c, "submission regraded", review)
}

func (h *ReviewHandler) verify(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "submissionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Verify(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "ledger verified", result)
}

func (h *ReviewHandler) handleError(c *fiber.Ctx, err error) error {
	return sendServiceError(c, h.logger, err)
}
