package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *OpenAIGenerator {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	generator, err := NewOpenAIGenerator(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: server.URL + "/v1",
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	return generator
}

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
	}
}

func TestOpenAIGeneratorGenerateQuestions(t *testing.T) {
	var captured map[string]any
	generator := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse(`{"questions": [{"question": "Q1", "options": ["a","b","c","d"], "correctAnswer": 1}]}`))
	})

	raw, err := generator.GenerateQuestions(context.Background(), QuestionInput{Passage: "Rivers flow.", Level: "B1", Count: 1})
	require.NoError(t, err)
	require.Contains(t, raw, `"questions"`)

	format, ok := captured["response_format"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "json_object", format["type"])

	messages := captured["messages"].([]any)
	user := messages[1].(map[string]any)
	require.Contains(t, user["content"], "Rivers flow.")
	require.Contains(t, user["content"], "exactly 1 questions")
}

func TestOpenAIGeneratorGeneratePassage(t *testing.T) {
	generator := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse("  The river ran to the sea.  "))
	})

	passage, err := generator.GeneratePassage(context.Background(), PassageInput{Topic: "rivers"})
	require.NoError(t, err)
	require.Equal(t, "The river ran to the sea.", passage)
}

func TestOpenAIGeneratorSurfacesAPIErrors(t *testing.T) {
	generator := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
	})

	_, err := generator.GenerateQuestions(context.Background(), QuestionInput{Passage: "x"})
	require.Error(t, err)
}

func TestNewOpenAIGeneratorRequiresKey(t *testing.T) {
	_, err := NewOpenAIGenerator(OpenAIConfig{})
	require.Error(t, err)
}

func TestExtractJSONArray(t *testing.T) {
	require.Equal(t, `[{"a":1}]`, string(ExtractJSONArray("```json\n[{\"a\":1}]\n```")))
	require.Equal(t, `[{"q":"x"}]`, string(ExtractJSONArray(`{"Questions": [{"q":"x"}]}`)))
	require.Equal(t, `[1, 2]`, string(ExtractJSONArray("Here you go: [1, 2] enjoy")))
	require.Equal(t, `no json here`, string(ExtractJSONArray("  no json here ")))
}
