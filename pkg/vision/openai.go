package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIMaxPayloadBytes bounds the total base64-inflated image payload
// OpenAI's vision endpoint will accept in one request.
const OpenAIMaxPayloadBytes = 20 * 1024 * 1024

// OpenAIProvider analyzes lab reports via OpenAI's vision-capable chat
// models. It only accepts rasterized PNG pages; PDF bytes must be
// rasterized by the caller (pkg/ingest stage 2) before use.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	retry  RetryPolicy
}

// NewOpenAIProvider builds a provider bound to apiKey and model.
func NewOpenAIProvider(apiKey, model string, retry RetryPolicy) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey), model: model, retry: retry}
}

func (p *OpenAIProvider) Name() string { return "openai:" + p.model }

func (p *OpenAIProvider) Analyze(ctx context.Context, in Input, systemPrompt, userPrompt string, schema json.RawMessage, progress ProgressFunc) (json.RawMessage, error) {
	if len(in.PDFBytes) > 0 {
		return nil, ErrUnsupportedInput
	}
	if len(in.Images) == 0 {
		return nil, ErrUnsupportedInput
	}

	var size int
	for _, img := range in.Images {
		size += len(img)
	}
	if size > OpenAIMaxPayloadBytes {
		return nil, &ErrPayloadTooLarge{Provider: p.Name(), Limit: OpenAIMaxPayloadBytes, Actual: size}
	}

	var schemaObj map[string]any
	_ = json.Unmarshal(schema, &schemaObj)

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: userPrompt}}
	for _, img := range in.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
			},
		})
	}

	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "lab_report",
				Schema: schemaObj,
				Strict: true,
			},
		},
	}

	if progress != nil {
		progress(10, "sending pages to openai")
	}

	result, err := withRetry(ctx, p.retry, func(error) string {
		// go-openai's APIError does not surface the raw Retry-After header,
		// so OpenAI calls always fall back to the computed backoff delay.
		return ""
	}, func() (any, error) {
		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, p.classify(err)
		}
		if len(resp.Choices) == 0 {
			return nil, &ProviderError{Provider: p.Name(), Retryable: false, Err: fmt.Errorf("no choices in response")}
		}
		return json.RawMessage(resp.Choices[0].Message.Content), nil
	})
	if err != nil {
		return nil, err
	}

	if progress != nil {
		progress(90, "openai response received")
	}
	return result.(json.RawMessage), nil
}

func (p *OpenAIProvider) classify(err error) *ProviderError {
	var apiErr *openai.APIError
	status := 0
	retryable := false
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
		retryable = status == http.StatusTooManyRequests || status >= 500
	}
	return &ProviderError{Provider: p.Name(), StatusCode: status, Retryable: retryable, Err: err}
}
