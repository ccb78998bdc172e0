// Package llm abstracts the completion backends used by the assistant:
// OpenAI-compatible chat completions with tool calling and streaming, and
// Google Gemini generative content for prompt-in, text/JSON-out calls.
package llm

import (
	"context"
	"encoding/json"

	"quantb/internal/models"
)

// Format selects the shape of a generic completion.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "text"
}

// Completer produces a single completion for a prompt.
type Completer interface {
	Name() string
	GenerateCompletion(ctx context.Context, prompt string, format Format) (string, error)
}

// ToolSpec declares a callable function to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ChatMessage is one entry of the conversation sent to a ChatModel.
type ChatMessage struct {
	Role       models.Role
	Content    string
	ToolCalls  []models.ToolCall // assistant messages requesting tools
	ToolCallID string            // tool messages answering a call
}

// RoleTool marks a message carrying a tool result.
const RoleTool models.Role = "tool"

// ChatRequest is a single chat completion request.
type ChatRequest struct {
	Messages []ChatMessage
	Tools    []ToolSpec
	// ToolChoice is "auto", "none" or empty.
	ToolChoice string
}

// ChatResponse is a complete (non-streamed) model reply.
type ChatResponse struct {
	Content      string
	ToolCalls    []models.ToolCall
	FinishReason string
}

// ToolCallDelta is a fragment of a tool call received while streaming.
// A non-empty ID starts a new call; otherwise Arguments continue the open one.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// ChatDelta is one streamed chunk.
type ChatDelta struct {
	Content      string
	ToolCalls    []ToolCallDelta
	FinishReason string
}

// ChatStream yields deltas until io.EOF.
type ChatStream interface {
	Recv() (ChatDelta, error)
	Close() error
}

// ChatModel is a chat backend that supports tool calling.
type ChatModel interface {
	CreateChat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	StreamChat(ctx context.Context, req ChatRequest) (ChatStream, error)
}
