package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-reading-api/internal/models"
	"github.com/noah-isme/gema-reading-api/pkg/ai"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupServiceTestDB(t *testing.T) *gorm.DB {
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

type recordedEvent struct {
	name string
	data interface{}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) Publish(_ context.Context, event string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{name: event, data: data})
}

func (r *eventRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.events))
	for _, event := range r.events {
		names = append(names, event.name)
	}
	return names
}

type generatorStub struct {
	passage       string
	questions     string
	err           error
	passageCalls  int
	questionCalls int
	lastQuestion  ai.QuestionInput
}

func (g *generatorStub) GeneratePassage(_ context.Context, _ ai.PassageInput) (string, error) {
	g.passageCalls++
	if g.err != nil {
		return "", g.err
	}
	return g.passage, nil
}

func (g *generatorStub) GenerateQuestions(_ context.Context, input ai.QuestionInput) (string, error) {
	g.questionCalls++
	g.lastQuestion = input
	if g.err != nil {
		return "", g.err
	}
	return g.questions, nil
}

type storageStub struct {
	uploaded bytes.Buffer
	name     string
	err      error
}

func (s *storageStub) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.uploaded.Reset()
	if _, err := s.uploaded.ReadFrom(reader); err != nil {
		return "", err
	}
	s.name = name
	return "https://cdn.example.com/" + name, nil
}

func buildFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {"form-data; name=\"file\"; filename=\"" + filename + "\""},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content) + 1024))
	require.NoError(t, err)
	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}

// seedScoredExercise stores a three-question exercise keyed A, B, D.
func seedScoredExercise(t *testing.T, db *gorm.DB) models.Exercise {
	t.Helper()
	options := []string{"alpha", "bravo", "charlie", "delta"}
	exercise := models.Exercise{
		Title:       "Harbour",
		PassageText: "Boats rest in the harbour at night.",
		SourceType:  models.ExerciseSourceManual,
		Status:      models.ExerciseStatusActive,
		Questions: []models.Question{
			{Position: 1, Text: "Q1", Options: options, CorrectAnswerIndex: 0},
			{Position: 2, Text: "Q2", Options: options, CorrectAnswerIndex: 1},
			{Position: 3, Text: "Q3", Options: options, CorrectAnswerIndex: 3},
		},
	}
	require.NoError(t, db.Create(&exercise).Error)
	return exercise
}
