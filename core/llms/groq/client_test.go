package groq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/koscakluka/ema-interview/core/llms"
)

func completionHandler(t *testing.T, content string, inspect func(requestBody)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth header, got %q", got)
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read request body: %v", err)
		}
		var request requestBody
		if err := json.Unmarshal(body, &request); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if inspect != nil {
			inspect(request)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{"role": "assistant", "content": content},
			}},
		})
	}
}

func TestPromptSendsInstructionsHistoryAndPrompt(t *testing.T) {
	var captured requestBody
	server := httptest.NewServer(completionHandler(t, "Tell me about Go.", func(r requestBody) {
		captured = r
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL), WithModel("test-model"))
	response, err := client.Prompt(context.Background(), "I like Go",
		llms.WithSystemPrompt("be an interviewer"),
		llms.WithHistory(
			llms.Message{Role: llms.MessageRoleAssistant, Content: "Hello"},
			llms.Message{Role: llms.MessageRoleUser, Content: ""},
		),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response != "Tell me about Go." {
		t.Fatalf("expected response content, got %q", response)
	}

	if captured.Model != "test-model" {
		t.Fatalf("expected model test-model, got %q", captured.Model)
	}
	if len(captured.Messages) != 3 {
		t.Fatalf("expected system, history and prompt messages, got %+v", captured.Messages)
	}
	if captured.Messages[0].Role != messageRoleSystem || captured.Messages[1].Role != "assistant" || captured.Messages[2].Content != "I like Go" {
		t.Fatalf("unexpected messages %+v", captured.Messages)
	}
}

func TestPromptWithStructureDecodesJSON(t *testing.T) {
	type verdict struct {
		Reply string `json:"reply"`
		Score int    `json:"score"`
	}

	var captured requestBody
	server := httptest.NewServer(completionHandler(t, "```json\n{\"reply\":\"ok\",\"score\":4}\n```", func(r requestBody) {
		captured = r
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	out := verdict{}
	if err := client.PromptWithStructure(context.Background(), "answer", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Reply != "ok" || out.Score != 4 {
		t.Fatalf("expected decoded verdict, got %+v", out)
	}
	if captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_schema" {
		t.Fatalf("expected json_schema response format, got %+v", captured.ResponseFormat)
	}
	if captured.ResponseFormat.JSONSchema.Name != "verdict" {
		t.Fatalf("expected schema name verdict, got %q", captured.ResponseFormat.JSONSchema.Name)
	}
}

func TestPromptWithStructureRejectsNonPointer(t *testing.T) {
	client := NewClient("test-key")
	if err := client.PromptWithStructure(context.Background(), "answer", struct{}{}); err == nil {
		t.Fatalf("expected error for non-pointer output schema")
	}
}

func TestPromptReturnsServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	_, err := client.Prompt(context.Background(), "hello")

	var serviceErr *llms.ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if serviceErr.StatusCode != http.StatusServiceUnavailable || !serviceErr.Retryable() {
		t.Fatalf("expected retryable 503, got %+v", serviceErr)
	}
}

func TestPromptTimeoutIsClassified(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient("test-key", WithBaseURL(server.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.Prompt(ctx, "hello"); !errors.Is(err, llms.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
