package utils_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-reading-api/internal/utils"
)

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
	Meta    map[string]interface{} `json:"meta"`
	Details map[string]string      `json:"details"`
}

func respond(t *testing.T, handler fiber.Handler) (int, envelope) {
	t.Helper()
	app := fiber.New()
	app.Get("/", handler)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func TestSendSuccessWithStatusDefaults(t *testing.T) {
	status, payload := respond(t, func(c *fiber.Ctx) error {
		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "", map[string]int{"score": 67})
	})
	require.Equal(t, fiber.StatusCreated, status)
	require.True(t, payload.Success)
	require.Equal(t, "success", payload.Message)
	require.Equal(t, float64(67), payload.Data["score"])

	status, _ = respond(t, func(c *fiber.Ctx) error {
		return utils.SendSuccessWithStatus(c, 0, "ok", nil)
	})
	require.Equal(t, fiber.StatusOK, status)
}

func TestOKIncludesPaginationMeta(t *testing.T) {
	status, payload := respond(t, func(c *fiber.Ctx) error {
		return utils.OK(c, map[string]string{"title": "Harbour"}, "exercises retrieved", fiber.Map{"total": 12, "page": 2})
	})
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "exercises retrieved", payload.Message)
	require.Equal(t, "Harbour", payload.Data["title"])
	require.Equal(t, float64(12), payload.Meta["total"])
	require.Equal(t, float64(2), payload.Meta["page"])
}

func TestFailIncludesValidationDetails(t *testing.T) {
	status, payload := respond(t, func(c *fiber.Ctx) error {
		return utils.Fail(c, fiber.StatusUnprocessableEntity, "validation failed", map[string]string{"SubmissionCreateRequest.Answers": "min=1"})
	})
	require.Equal(t, fiber.StatusUnprocessableEntity, status)
	require.False(t, payload.Success)
	require.Equal(t, "min=1", payload.Details["SubmissionCreateRequest.Answers"])
	require.Nil(t, payload.Data)
}

func TestSendErrorOmitsDetails(t *testing.T) {
	status, payload := respond(t, func(c *fiber.Ctx) error {
		return utils.SendError(c, fiber.StatusNotFound, "")
	})
	require.Equal(t, fiber.StatusNotFound, status)
	require.Equal(t, "error", payload.Message)
	require.Nil(t, payload.Details)
}
