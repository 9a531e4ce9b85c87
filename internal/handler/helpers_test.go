package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-reading-api/internal/config"
	"github.com/noah-isme/gema-reading-api/internal/handler"
	"github.com/noah-isme/gema-reading-api/internal/middleware"
	"github.com/noah-isme/gema-reading-api/internal/models"
	"github.com/noah-isme/gema-reading-api/internal/repository"
	"github.com/noah-isme/gema-reading-api/internal/router"
	"github.com/noah-isme/gema-reading-api/internal/service"
	"github.com/noah-isme/gema-reading-api/pkg/extract"
)

type testCaller struct {
	id   uint
	role string
}

var (
	learner      = testCaller{id: 21, role: "student"}
	otherLearner = testCaller{id: 22, role: "student"}
	teacher      = testCaller{id: 5, role: "teacher"}
	anonymous    = testCaller{}
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

func setupHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Exercise{}, &models.Question{}, &models.Submission{}, &models.ReviewRecord{}, &models.Adjustment{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// stubJWT trusts test headers in place of a signed token.
func stubJWT(c *fiber.Ctx) error {
	if raw := c.Get("X-Test-User"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err == nil {
			c.Locals("user_id", uint(id))
		}
	}
	if role := c.Get("X-Test-Role"); role != "" {
		c.Locals("user_role", role)
	}
	return c.Next()
}

func setupReadingApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := setupHandlerTestDB(t)
	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	exerciseRepo := repository.NewExerciseRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	reviewRepo := repository.NewReviewRepository(db)

	exercises := service.NewExerciseService(exerciseRepo, extract.New(), nil, nil, nil, nil, validate, service.ExerciseServiceConfig{MaxUploadMB: 1}, logger)
	submissions := service.NewSubmissionService(submissionRepo, exerciseRepo, nil, validate, logger)
	reviews := service.NewReviewService(reviewRepo, submissionRepo, nil, validate, logger)

	cfg := config.Config{AppName: "reading-test", AppEnv: "test"}
	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ExerciseHandler:   handler.NewExerciseHandler(exercises, submissions, validate, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissions, validate, logger),
		ReviewHandler:     handler.NewReviewHandler(reviews, validate, logger),
		JWTMiddleware:     stubJWT,
	})
	return app, db
}

func doRequest(t *testing.T, app *fiber.App, caller testCaller, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return send(t, app, caller, req)
}

func doUpload(t *testing.T, app *fiber.App, caller testCaller, filename string, content []byte, fields map[string]string) (int, envelope) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/exercises/upload", body)
	req.Header.Set(fiber.HeaderContentType, writer.FormDataContentType())
	return send(t, app, caller, req)
}

func send(t *testing.T, app *fiber.App, caller testCaller, req *http.Request) (int, envelope) {
	t.Helper()
	if caller.id != 0 {
		req.Header.Set("X-Test-User", strconv.FormatUint(uint64(caller.id), 10))
	}
	if caller.role != "" {
		req.Header.Set("X-Test-Role", caller.role)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded envelope
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp.StatusCode, decoded
}

func decodeData(t *testing.T, env envelope, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, target))
}

const readingQuestions = `[
	{"question": "Where do boats rest?", "options": ["sea", "harbour", "sky", "road"], "answer": "B"},
	{"question": "When do they rest?", "options": ["dawn", "noon", "dusk", "night"], "answer": "D"},
	{"question": "Who watches them?", "options": ["keeper", "gulls", "crew", "fish"], "answer": "A"}
]`

// createExercise authors a three-question exercise keyed B, D, A as the teacher.
func createExercise(t *testing.T, app *fiber.App) uint {
	t.Helper()
	status, env := doRequest(t, app, teacher, http.MethodPost, "/api/v1/exercises", map[string]interface{}{
		"title":        "Harbour at night",
		"passage_text": "Boats rest in the harbour at night while the keeper watches.",
		"level":        "beginner",
		"questions":    json.RawMessage(readingQuestions),
	})
	require.Equal(t, fiber.StatusCreated, status, env.Message)

	var created struct {
		Exercise struct {
			ID uint `json:"id"`
		} `json:"exercise"`
	}
	decodeData(t, env, &created)
	require.NotZero(t, created.Exercise.ID)
	return created.Exercise.ID
}
