package groq

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-interview/core/llms"
	"go.opentelemetry.io/otel/attribute"
)

// PromptWithStructure asks the model to answer with JSON matching the schema
// reflected from outputSchema, and decodes the answer into it. outputSchema
// must be a pointer.
func (c *Client) PromptWithStructure(ctx context.Context, prompt string, outputSchema any, opts ...llms.PromptOption) error {
	ctx, span := tracer.Start(ctx, "prompt llm structured")
	defer span.End()

	outputType := reflect.TypeOf(outputSchema)
	if outputType == nil || outputType.Kind() != reflect.Ptr {
		return recordError(span, fmt.Errorf("output schema must be a pointer, got %T", outputSchema))
	}

	// TODO: Implement a custom reflector that only emits the subset of
	// jsonschema supported by groq
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.ReflectFromType(outputType.Elem())
	if schemaString, err := schema.MarshalJSON(); err == nil {
		span.SetAttributes(attribute.String("request.schema", string(schemaString)))
	}

	options := llms.ApplyPromptOptions(opts...)
	reqBody := requestBody{
		Model:       c.model,
		Messages:    toMessages(options.Instructions, options.History, prompt),
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
		ResponseFormat: &chatResponseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchema{
				Name:   outputType.Elem().Name(),
				Schema: *schema,
				Strict: true,
			},
		},
	}

	response, err := c.complete(ctx, span, reqBody)
	if err != nil {
		return err
	}

	content := response.content()
	if split := strings.Split(content, "```"); len(split) > 1 {
		content = strings.TrimPrefix(split[1], "json")
	}
	if err := json.Unmarshal([]byte(content), outputSchema); err != nil {
		return recordError(span, fmt.Errorf("error unmarshalling structured response: %w", err))
	}
	return nil
}

type chatResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	// Name identifies the schema in the response.
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Schema      jsonschema.Schema `json:"schema"`

	// Strict determines whether to enforce the schema upon the generated
	// content.
	Strict bool `json:"strict"`
}
