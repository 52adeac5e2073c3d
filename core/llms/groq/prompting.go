package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/koscakluka/ema-interview/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Prompt sends a single, non-streamed chat completion request and returns the
// content of the first choice.
func (c *Client) Prompt(ctx context.Context, prompt string, opts ...llms.PromptOption) (string, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()

	options := llms.ApplyPromptOptions(opts...)
	reqBody := requestBody{
		Model:       c.model,
		Messages:    toMessages(options.Instructions, options.History, prompt),
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
	}

	response, err := c.complete(ctx, span, reqBody)
	if err != nil {
		return "", err
	}
	return response.content(), nil
}

func (c *Client) complete(ctx context.Context, span trace.Span, reqBody any) (*responseBody, error) {
	span.SetAttributes(attribute.String("request.model", c.model))

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, recordError(span, fmt.Errorf("error marshalling JSON: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(), bytes.NewReader(requestBodyBytes))
	if err != nil {
		return nil, recordError(span, fmt.Errorf("error creating HTTP request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	span.SetAttributes(attribute.String("request.url", req.URL.String()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, recordError(span, llms.ClassifyError(fmt.Errorf("error sending request: %w", err)))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, recordError(span, llms.ClassifyError(fmt.Errorf("error reading response body: %w", err)))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, recordError(span, &llms.ServiceError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(respBodyBytes),
		})
	}

	var response responseBody
	if err := json.Unmarshal(respBodyBytes, &response); err != nil {
		return nil, recordError(span, fmt.Errorf("error unmarshalling response: %w", err))
	}
	if len(response.Choices) == 0 {
		return nil, recordError(span, fmt.Errorf("response contained no choices"))
	}

	if response.Usage != nil {
		span.SetAttributes(
			attribute.Int("response.prompt_tokens", response.Usage.PromptTokens),
			attribute.Int("response.completion_tokens", response.Usage.CompletionTokens),
		)
	}
	return &response, nil
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

type requestBody struct {
	Model          string              `json:"model"`
	Messages       []message           `json:"messages"`
	Temperature    *float64            `json:"temperature,omitempty"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type responseBody struct {
	Choices []struct {
		Message struct {
			Role         string  `json:"role,omitempty"`
			Content      string  `json:"content,omitempty"`
			FinishReason *string `json:"finish_reason,omitempty"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		QueueTime        float64 `json:"queue_time"`
		PromptTokens     int     `json:"prompt_tokens"`
		PromptTime       float64 `json:"prompt_time"`
		CompletionTokens int     `json:"completion_tokens"`
		CompletionTime   float64 `json:"completion_time"`
		TotalTokens      int     `json:"total_tokens"`
		TotalTime        float64 `json:"total_time"`
	} `json:"usage"`
}

func (r *responseBody) content() string {
	return r.Choices[0].Message.Content
}
