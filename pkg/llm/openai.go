package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements ChatClient and StructuredClient on top of
// sashabaranov/go-openai. cmd/labtrace selects it or AnthropicClient once
// at startup; there is no runtime fallback between the two, and vision
// calls go through pkg/vision's own adapters.
type OpenAIClient struct {
	client *openai.Client
	retry  RetryPolicy
}

// NewOpenAIClient builds a client against the OpenAI API.
func NewOpenAIClient(apiKey string, retry RetryPolicy) *OpenAIClient {
	return &OpenAIClient{client: openai.NewClient(apiKey), retry: retry}
}

func (c *OpenAIClient) StreamChat(req ChatRequest) (<-chan ChatChunk, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: convertOpenAIMessages(req.System, req.Messages),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	out := make(chan ChatChunk, 16)
	ctx := context.Background()

	var stream *openai.ChatCompletionStream
	err := c.withRetry(ctx, func() error {
		s, err := c.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, wrapOpenAIError(err)
	}

	go func() {
		defer close(out)
		defer stream.Close()

		toolCalls := map[int]*ToolCall{}
		for {
			resp, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					for _, tc := range toolCalls {
						if tc.ID != "" && tc.Name != "" {
							out <- ChatChunk{ToolCall: tc}
						}
					}
					out <- ChatChunk{Done: true}
					return
				}
				out <- ChatChunk{Error: wrapOpenAIError(err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				out <- ChatChunk{Text: delta.Content}
			}
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				if toolCalls[idx] == nil {
					toolCalls[idx] = &ToolCall{}
				}
				if tc.ID != "" {
					toolCalls[idx].ID = tc.ID
				}
				if tc.Function.Name != "" {
					toolCalls[idx].Name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					toolCalls[idx].Input = json.RawMessage(string(toolCalls[idx].Input) + tc.Function.Arguments)
				}
			}
		}
	}()

	return out, nil
}

func (c *OpenAIClient) Structured(req StructuredRequest) (json.RawMessage, error) {
	ctx := context.Background()

	var schema map[string]any
	_ = json.Unmarshal(req.Schema, &schema)

	chatReq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "result",
				Schema: schema,
				Strict: true,
			},
		},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	var result json.RawMessage
	err := c.withRetry(ctx, func() error {
		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("openai response contained no choices")
		}
		result = json.RawMessage(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	return result, nil
}

func (c *OpenAIClient) withRetry(ctx context.Context, fn func() error) error {
	return backoffRetry(ctx, c.retry, fn, isRetryableOpenAIError)
}

func convertOpenAIMessages(system string, msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			for _, tr := range m.ToolResults {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
			if m.Content != "" {
				out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
			}
		case RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			out = append(out, msg)
		}
	}
	return out
}

func convertOpenAITools(tools []Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params map[string]any
		_ = json.Unmarshal(t.Schema, &params)
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai api error (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	return fmt.Errorf("openai call failed: %w", err)
}

func isRetryableOpenAIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "eof")
}
