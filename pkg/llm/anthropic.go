package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements ChatClient and StructuredClient on top of
// github.com/anthropics/anthropic-sdk-go. The streaming event handling
// below follows the same event type-switch shape real callers of this SDK
// use: message_start/content_block_start/content_block_delta/
// content_block_stop/message_delta/message_stop, accumulating tool_use
// input as it streams in as partial JSON.
type AnthropicClient struct {
	client      anthropic.Client
	retry       RetryPolicy
	defaultMax  int64
	logger      *slog.Logger
}

// NewAnthropicClient builds a client against the Anthropic API.
func NewAnthropicClient(apiKey string, retry RetryPolicy) *AnthropicClient {
	return &AnthropicClient{
		client:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		retry:      retry,
		defaultMax: 4096,
		logger:     slog.Default().With("component", "llm.anthropic"),
	}
}

func (c *AnthropicClient) StreamChat(req ChatRequest) (<-chan ChatChunk, error) {
	out := make(chan ChatChunk, 16)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokensOrDefault(req.MaxTokens, c.defaultMax),
		Messages:  convertMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	go func() {
		defer close(out)
		ctx := context.Background()

		var currentToolID, currentToolName string
		var currentToolInput strings.Builder
		var inToolUse bool

		err := c.withRetry(ctx, func() error {
			stream := c.client.Messages.NewStreaming(ctx, params)
			for stream.Next() {
				event := stream.Current()
				switch variant := event.AsAny().(type) {
				case anthropic.ContentBlockStartEvent:
					if block, ok := variant.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
						inToolUse = true
						currentToolID = block.ID
						currentToolName = block.Name
						currentToolInput.Reset()
					}
				case anthropic.ContentBlockDeltaEvent:
					switch delta := variant.Delta.AsAny().(type) {
					case anthropic.TextDelta:
						out <- ChatChunk{Text: delta.Text}
					case anthropic.InputJSONDelta:
						if inToolUse {
							currentToolInput.WriteString(delta.PartialJSON)
						}
					}
				case anthropic.ContentBlockStopEvent:
					if inToolUse {
						out <- ChatChunk{ToolCall: &ToolCall{
							ID:    currentToolID,
							Name:  currentToolName,
							Input: json.RawMessage(currentToolInput.String()),
						}}
						inToolUse = false
					}
				case anthropic.MessageDeltaEvent:
					out <- ChatChunk{OutputTokens: int(variant.Usage.OutputTokens)}
				}
			}
			return stream.Err()
		})
		if err != nil {
			out <- ChatChunk{Error: wrapAnthropicError(err)}
			return
		}
		out <- ChatChunk{Done: true}
	}()

	return out, nil
}

func (c *AnthropicClient) Structured(req StructuredRequest) (json.RawMessage, error) {
	ctx := context.Background()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokensOrDefault(req.MaxTokens, c.defaultMax),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Tools: []anthropic.ToolUnionParam{
			anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
				Properties: schemaProperties(req.Schema),
			}, "emit_result"),
		},
		ToolChoice: anthropic.ToolChoiceParamOfTool("emit_result"),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	var result json.RawMessage
	err := c.withRetry(ctx, func() error {
		msg, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return err
		}
		for _, block := range msg.Content {
			if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
				result = json.RawMessage(tu.Input)
				return nil
			}
		}
		return fmt.Errorf("anthropic response contained no tool_use block")
	})
	if err != nil {
		return nil, wrapAnthropicError(err)
	}
	return result, nil
}

func (c *AnthropicClient) withRetry(ctx context.Context, fn func() error) error {
	return backoffRetry(ctx, c.retry, fn, isRetryableAnthropicError)
}

func maxTokensOrDefault(n int, def int64) int64 {
	if n <= 0 {
		return def
	}
	return int64(n)
}

func convertMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			if len(m.ToolResults) > 0 {
				blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolResults))
				for _, tr := range m.ToolResults {
					blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
				}
				out = append(out, anthropic.NewUserMessage(blocks...))
				continue
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				_ = json.Unmarshal(tc.Input, &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return out
}

func convertTools(tools []Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		tool := anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: schemaProperties(t.Schema),
		}, t.Name)
		tool.OfTool.Description = anthropic.String(t.Description)
		out = append(out, tool)
	}
	return out
}

func schemaProperties(schema json.RawMessage) any {
	if len(schema) == 0 {
		return map[string]any{}
	}
	var parsed map[string]any
	if err := json.Unmarshal(schema, &parsed); err != nil {
		return map[string]any{}
	}
	if props, ok := parsed["properties"]; ok {
		return props
	}
	return parsed
}

func wrapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("anthropic api error (status %d): %s", apiErr.StatusCode, apiErr.Error())
	}
	return fmt.Errorf("anthropic call failed: %w", err)
}

func isRetryableAnthropicError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "eof")
}
