package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicMaxPayloadBytes bounds the total request body Anthropic will
// accept for a single message with document/image content.
const AnthropicMaxPayloadBytes = 32 * 1024 * 1024

// AnthropicProvider analyzes lab reports using Anthropic's native PDF
// document blocks, avoiding a separate rasterization step when the
// provider can read the PDF directly.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
	retry  RetryPolicy
}

// NewAnthropicProvider builds a provider bound to apiKey and model.
func NewAnthropicProvider(apiKey, model string, retry RetryPolicy) *AnthropicProvider {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{client: &c, model: model, retry: retry}
}

func (p *AnthropicProvider) Name() string { return "anthropic:" + p.model }

func (p *AnthropicProvider) Analyze(ctx context.Context, in Input, systemPrompt, userPrompt string, schema json.RawMessage, progress ProgressFunc) (json.RawMessage, error) {
	var size int
	for _, img := range in.Images {
		size += len(img)
	}
	size += len(in.PDFBytes)
	if size > AnthropicMaxPayloadBytes {
		return nil, &ErrPayloadTooLarge{Provider: p.Name(), Limit: AnthropicMaxPayloadBytes, Actual: size}
	}

	blocks, err := p.contentBlocks(in, userPrompt)
	if err != nil {
		return nil, err
	}

	var properties any
	var parsed map[string]any
	if err := json.Unmarshal(schema, &parsed); err == nil {
		if props, ok := parsed["properties"]; ok {
			properties = props
		} else {
			properties = parsed
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 8192,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		Tools: []anthropic.ToolUnionParam{
			anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{Properties: properties}, "emit_report"),
		},
		ToolChoice: anthropic.ToolChoiceParamOfTool("emit_report"),
	}

	if progress != nil {
		progress(10, "sending document to anthropic")
	}

	result, err := withRetry(ctx, p.retry, func(err error) string {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return apiErr.Response.Header.Get("Retry-After")
		}
		return ""
	}, func() (any, error) {
		msg, err := p.client.Messages.New(ctx, params)
		if err != nil {
			return nil, p.classify(err)
		}
		for _, block := range msg.Content {
			if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
				return json.RawMessage(tu.Input), nil
			}
		}
		return nil, &ProviderError{Provider: p.Name(), Retryable: false, Err: fmt.Errorf("no tool_use block in response")}
	})
	if err != nil {
		return nil, err
	}

	if progress != nil {
		progress(90, "anthropic response received")
	}
	return result.(json.RawMessage), nil
}

func (p *AnthropicProvider) contentBlocks(in Input, userPrompt string) ([]anthropic.ContentBlockParamUnion, error) {
	var blocks []anthropic.ContentBlockParamUnion
	switch {
	case len(in.PDFBytes) > 0:
		blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
			Data: base64.StdEncoding.EncodeToString(in.PDFBytes),
		}))
	case len(in.Images) > 0:
		for _, img := range in.Images {
			blocks = append(blocks, anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(img)))
		}
	default:
		return nil, ErrUnsupportedInput
	}
	blocks = append(blocks, anthropic.NewTextBlock(userPrompt))
	return blocks, nil
}

func (p *AnthropicProvider) classify(err error) *ProviderError {
	var apiErr *anthropic.Error
	status := 0
	retryable := false
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
		retryable = status == http.StatusTooManyRequests || status >= 500
	}
	return &ProviderError{Provider: p.Name(), StatusCode: status, Retryable: retryable, Err: err}
}
