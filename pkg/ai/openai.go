package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "generation_duration_seconds",
		Help:      "Duration of AI content generation requests",
	}, []string{"model", "operation"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "generation_failures_total",
		Help:      "Number of AI content generation failures",
	}, []string{"model", "operation"})
)

// OpenAIConfig defines configuration options for the OpenAI generator.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIGenerator implements Generator against the OpenAI chat completion API.
type OpenAIGenerator struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGenerator builds a new generator using the provided configuration.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}

	if cfg.Temperature == 0 {
		cfg.Temperature = 0.4
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-reading-api/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_generator").Logger(),
	}, nil
}

// GeneratePassage asks the model for a reading passage and returns its text.
func (g *OpenAIGenerator) GeneratePassage(parent context.Context, input PassageInput) (string, error) {
	content, err := g.complete(parent, "passage", passageSystemPrompt(), buildPassagePrompt(input), false)
	if err != nil {
		return "", err
	}
	if content == "" {
		return "", g.fail("passage", fmt.Errorf("empty passage returned from openai"))
	}
	return content, nil
}

// GenerateQuestions asks the model for a JSON question list and returns the
// raw content.
func (g *OpenAIGenerator) GenerateQuestions(parent context.Context, input QuestionInput) (string, error) {
	return g.complete(parent, "questions", questionSystemPrompt(), buildQuestionPrompt(input), true)
}

func (g *OpenAIGenerator) complete(parent context.Context, operation, system, user string, jsonMode bool) (string, error) {
	ctx, span := g.tracer.Start(parent, "openai."+operation, trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
	))
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if jsonMode {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(g.cfg.Model, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", g.fail(operation, fmt.Errorf("openai %s: %w", operation, err))
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", g.fail(operation, err)
	}

	span.SetAttributes(attribute.Int("usage.total_tokens", resp.Usage.TotalTokens))
	g.logger.Debug().Str("operation", operation).Int("total_tokens", resp.Usage.TotalTokens).Msg("openai completion received")

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (g *OpenAIGenerator) fail(operation string, err error) error {
	aiFailures.WithLabelValues(g.cfg.Model, operation).Inc()
	g.logger.Warn().Err(err).Str("operation", operation).Msg("openai generation failed")
	return err
}

func passageSystemPrompt() string {
	return "You write reading-comprehension passages for language learners. Reply with the passage text only, " +
		"without a title, headings or questions."
}

func questionSystemPrompt() string {
	return "You write multiple-choice reading-comprehension questions. Respond with a JSON object " +
		`{"questions": [{"question": string, "options": [4 strings], "correctAnswer": 0-based index, "explanation": string}]}. ` +
		"Every question must be answerable from the passage alone."
}

func buildPassagePrompt(input PassageInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Topic\n")
	builder.WriteString(fallback(input.Topic, "any everyday topic"))
	builder.WriteString("\n\n## Exercise Type\n")
	builder.WriteString(fallback(input.Type, "general comprehension"))
	builder.WriteString("\n\n## Level\n")
	builder.WriteString(fallback(input.Level, "intermediate"))
	if input.Words > 0 {
		builder.WriteString(fmt.Sprintf("\n\n## Length\nAbout %d words.", input.Words))
	}
	return builder.String()
}

func buildQuestionPrompt(input QuestionInput) string {
	count := input.Count
	if count <= 0 {
		count = 5
	}

	builder := strings.Builder{}
	builder.WriteString("# Passage\n")
	builder.WriteString(input.Passage)
	builder.WriteString("\n\n## Exercise Type\n")
	builder.WriteString(fallback(input.Type, "general comprehension"))
	builder.WriteString("\n\n## Level\n")
	builder.WriteString(fallback(input.Level, "intermediate"))
	builder.WriteString(fmt.Sprintf("\n\n## Questions\nWrite exactly %d questions.", count))
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
