package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"google.golang.org/genai"

	apperrors "quantb/internal/errors"
	"quantb/internal/models"
)

// chunk builds one chat.completion.chunk record.
func chunk(delta string, finish string) string {
	fr := "null"
	if finish != "" {
		fr = fmt.Sprintf("%q", finish)
	}
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":%s,"finish_reason":%s}]}`, delta, fr)
}

func toolDelta(index int, id, name, args string) string {
	call := map[string]any{
		"index":    index,
		"function": map[string]string{"arguments": args},
	}
	if id != "" {
		call["id"] = id
		call["type"] = "function"
		call["function"] = map[string]string{"name": name, "arguments": args}
	}
	b, _ := json.Marshal(map[string]any{"tool_calls": []any{call}})
	return string(b)
}

// chatServer serves /v1/chat/completions. Streaming requests get records
// as an event stream; the last request body is kept for inspection.
func chatServer(t *testing.T, status int, body string, records ...string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var last map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization %q", got)
		}
		last = nil
		_ = json.NewDecoder(r.Body).Decode(&last)

		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, body)
			return
		}
		if len(records) == 0 {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, body)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, rec := range records {
			fmt.Fprintf(w, "data: %s\n\n", rec)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func TestOpenAIStreamSplitsParallelToolCalls(t *testing.T) {
	srv, last := chatServer(t, http.StatusOK, "",
		chunk(`{"role":"assistant","content":"Checking "}`, ""),
		chunk(toolDelta(0, "call_a", "get_stock_quote", ""), ""),
		chunk(toolDelta(0, "", "", `{"symbol":`), ""),
		chunk(toolDelta(1, "call_b", "get_stock_news", ""), ""),
		chunk(toolDelta(0, "", "", `"AAPL"}`), ""),
		chunk(toolDelta(1, "", "", `{"symbol":"MSFT"}`), ""),
		chunk(`{}`, "tool_calls"),
		`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`,
	)

	client := NewOpenAIClient("sk-test", srv.URL+"/v1", "gpt-4o-mini", 0.2)
	st, err := client.StreamChat(context.Background(), ChatRequest{
		Messages:   []ChatMessage{{Role: models.RoleUser, Content: "AAPL and MSFT?"}},
		Tools:      []ToolSpec{{Name: "get_stock_quote", Parameters: json.RawMessage(`{"type":"object"}`)}},
		ToolChoice: "auto",
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	defer st.Close()

	var got []ChatDelta
	for {
		d, err := st.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		got = append(got, d)
	}

	want := []ChatDelta{
		{Content: "Checking "},
		{ToolCalls: []ToolCallDelta{{Index: 0, ID: "call_a", Name: "get_stock_quote"}}},
		{ToolCalls: []ToolCallDelta{{Index: 0, Arguments: `{"symbol":`}}},
		{ToolCalls: []ToolCallDelta{{Index: 1, ID: "call_b", Name: "get_stock_news"}}},
		{ToolCalls: []ToolCallDelta{{Index: 0, Arguments: `"AAPL"}`}}},
		{ToolCalls: []ToolCallDelta{{Index: 1, Arguments: `{"symbol":"MSFT"}`}}},
		{FinishReason: "tool_calls"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("deltas:\n got %+v\nwant %+v", got, want)
	}

	req := *last
	if req["stream"] != true || req["model"] != "gpt-4o-mini" || req["tool_choice"] != "auto" {
		t.Errorf("unexpected request %v", req)
	}
	if tools, _ := req["tools"].([]any); len(tools) != 1 {
		t.Errorf("expected one tool declaration, got %v", req["tools"])
	}
}

func TestOpenAIErrorsAreClassified(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, apperrors.ErrRateLimited},
		{"bad key", http.StatusUnauthorized, apperrors.ErrInvalidCredentials},
		{"server error", http.StatusInternalServerError, apperrors.ErrUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := fmt.Sprintf(`{"error":{"message":"%s","type":"error","code":"x"}}`, tt.name)
			srv, _ := chatServer(t, tt.status, body)
			client := NewOpenAIClient("sk-test", srv.URL+"/v1", "gpt-4o-mini", 0)
			req := ChatRequest{Messages: []ChatMessage{{Role: models.RoleUser, Content: "hi"}}}

			_, err := client.StreamChat(context.Background(), req)
			if !errors.Is(err, tt.want) {
				t.Errorf("StreamChat: expected %v, got %v", tt.want, err)
			}
			_, err = client.CreateChat(context.Background(), req)
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateChat: expected %v, got %v", tt.want, err)
			}
			var pe *apperrors.ProviderError
			if !errors.As(err, &pe) || pe.Provider != "openai" || pe.Status != tt.status {
				t.Errorf("expected openai provider error with status %d, got %#v", tt.status, err)
			}
		})
	}
}

func TestOpenAICreateChatReturnsToolCalls(t *testing.T) {
	srv, _ := chatServer(t, http.StatusOK, `{
		"id":"chatcmpl-2","object":"chat.completion","created":1,"model":"gpt-4o-mini",
		"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"",
			"tool_calls":[{"id":"call_a","type":"function","function":{"name":"get_stock_quote","arguments":"{\"symbol\":\"AAPL\"}"}}]}}]
	}`)

	client := NewOpenAIClient("sk-test", srv.URL+"/v1", "gpt-4o-mini", 0)
	resp, err := client.CreateChat(context.Background(), ChatRequest{
		Messages: []ChatMessage{{Role: models.RoleUser, Content: "AAPL?"}},
	})
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	want := []models.ToolCall{{ID: "call_a", Name: "get_stock_quote", Arguments: `{"symbol":"AAPL"}`}}
	if !reflect.DeepEqual(resp.ToolCalls, want) || resp.FinishReason != "tool_calls" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestOpenAICompletionRequestsJSON(t *testing.T) {
	srv, last := chatServer(t, http.StatusOK, `{"id":"c","object":"chat.completion","created":1,"model":"m",
		"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"ok\":true}"}}]}`)

	client := NewOpenAIClient("sk-test", srv.URL+"/v1", "m", 0)
	out, err := client.GenerateCompletion(context.Background(), "criteria please", FormatJSON)
	if err != nil {
		t.Fatalf("GenerateCompletion: %v", err)
	}
	if out != `{"ok":true}` {
		t.Errorf("unexpected completion %q", out)
	}
	rf, _ := (*last)["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("expected json_object response format, got %v", (*last)["response_format"])
	}
}

func TestClassifyGeminiError(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{genai.APIError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"}, apperrors.ErrRateLimited},
		{genai.APIError{Code: 403, Message: "key", Status: "PERMISSION_DENIED"}, apperrors.ErrInvalidCredentials},
		{fmt.Errorf("wrapped: %w", genai.APIError{Code: 500, Message: "boom"}), apperrors.ErrUpstream},
		{errors.New("dial tcp: refused"), apperrors.ErrUpstream},
	}
	for _, tt := range tests {
		if got := classifyGeminiError(tt.err); !errors.Is(got, tt.want) {
			t.Errorf("%v: expected %v, got %v", tt.err, tt.want, got)
		}
	}

	if got := classifyGeminiError(context.Canceled); got != context.Canceled {
		t.Errorf("cancellation must pass through, got %v", got)
	}
	if !strings.Contains(classifyGeminiError(genai.APIError{Code: 429, Message: "quota"}).Error(), "gemini") {
		t.Error("expected the provider name in the error text")
	}
}
