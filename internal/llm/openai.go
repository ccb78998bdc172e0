package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	apperrors "quantb/internal/errors"
	"quantb/internal/models"
)

const openAIProvider = "openai"

// OpenAIClient implements ChatModel and Completer using the OpenAI API or
// any compatible endpoint.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIClient creates a new OpenAI client. An empty baseURL uses the
// public API.
func NewOpenAIClient(apiKey, baseURL, model string, temperature float64) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: float32(temperature),
	}
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return openAIProvider
}

// Model returns the model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// GenerateCompletion sends a single-prompt completion.
func (c *OpenAIClient) GenerateCompletion(ctx context.Context, prompt string, format Format) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if format == FormatJSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError("completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewProviderError(openAIProvider, "completion", 0, fmt.Errorf("no response from openai"))
	}
	return resp.Choices[0].Message.Content, nil
}

// CreateChat sends a chat request with tools and returns the full reply.
func (c *OpenAIClient) CreateChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.toOpenAIRequest(req))
	if err != nil {
		return nil, classifyOpenAIError("chat", err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.NewProviderError(openAIProvider, "chat", 0, fmt.Errorf("no response from openai"))
	}

	choice := resp.Choices[0]
	out := &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// StreamChat opens a streaming chat completion.
func (c *OpenAIClient) StreamChat(ctx context.Context, req ChatRequest) (ChatStream, error) {
	oreq := c.toOpenAIRequest(req)
	oreq.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, oreq)
	if err != nil {
		return nil, classifyOpenAIError("stream", err)
	}
	return &openAIStream{stream: stream}, nil
}

func (c *OpenAIClient) toOpenAIRequest(req ChatRequest) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
	}

	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out.Messages = append(out.Messages, msg)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if len(out.Tools) > 0 && req.ToolChoice != "" {
		out.ToolChoice = req.ToolChoice
	}
	return out
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (ChatDelta, error) {
	for {
		chunk, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ChatDelta{}, io.EOF
			}
			return ChatDelta{}, classifyOpenAIError("stream", err)
		}
		// Usage-only chunks carry no choices
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		delta := ChatDelta{
			Content:      choice.Delta.Content,
			FinishReason: string(choice.FinishReason),
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			delta.ToolCalls = append(delta.ToolCalls, ToolCallDelta{
				Index:     idx,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		return delta, nil
	}
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}

// classifyOpenAIError maps SDK errors onto provider error kinds.
func classifyOpenAIError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewProviderError(openAIProvider, op, apiErr.HTTPStatusCode, errors.New(apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return apperrors.NewProviderError(openAIProvider, op, reqErr.HTTPStatusCode, reqErr.Err)
	}
	return apperrors.NewProviderError(openAIProvider, op, 0, err)
}
