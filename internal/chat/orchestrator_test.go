package chat

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "quantb/internal/errors"
	"quantb/internal/llm"
	"quantb/internal/models"
	"quantb/internal/parser"
	"quantb/internal/stream"
)

func newTestOrchestrator(model llm.ChatModel, tools ToolExecutor, cfg Config) *Orchestrator {
	return NewOrchestrator(model, tools, parser.New(zerolog.Nop()), cfg, zerolog.Nop())
}

func userHistory(text string) []models.Message {
	return []models.Message{{ID: "m1", Role: models.RoleUser, Content: text, Timestamp: time.Now()}}
}

func TestRespondExecutesToolsAndParses(t *testing.T) {
	model := &fakeModel{responses: []*llm.ChatResponse{
		{ToolCalls: []models.ToolCall{{ID: "call_1", Name: "get_stock_quote", Arguments: `{"symbol":"AAPL"}`}}},
		{Content: "AAPL is trading at $190.20."},
	}}
	tools := &fakeTools{}
	o := newTestOrchestrator(model, tools, Config{})

	reply, err := o.Respond(context.Background(), userHistory("What is the price of AAPL?"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	if reply.Text != "AAPL is trading at $190.20." {
		t.Errorf("text = %q", reply.Text)
	}
	if len(reply.Components) != 1 || reply.Components[0].Type != models.ComponentStockQuote {
		t.Fatalf("components = %+v", reply.Components)
	}
	if reply.Metadata.ToolsUsed[0] != "get_stock_quote" || reply.Metadata.Symbols[0] != "AAPL" {
		t.Errorf("metadata = %+v", reply.Metadata)
	}
	if reply.Metadata.Intent != models.IntentLearning {
		t.Errorf("intent = %s", reply.Metadata.Intent)
	}

	if len(model.requests) != 2 {
		t.Fatalf("expected 2 model requests, got %d", len(model.requests))
	}
	first, second := model.requests[0], model.requests[1]
	if first.ToolChoice != "auto" || len(first.Tools) == 0 {
		t.Errorf("first request must offer tools: %+v", first)
	}
	if len(second.Tools) != 0 {
		t.Error("final request must not offer tools")
	}
	n := len(second.Messages)
	if second.Messages[n-2].Role != models.RoleAssistant || len(second.Messages[n-2].ToolCalls) != 1 {
		t.Errorf("missing assistant tool-call message: %+v", second.Messages[n-2])
	}
	toolMsg := second.Messages[n-1]
	if toolMsg.Role != llm.RoleTool || toolMsg.ToolCallID != "call_1" || !strings.Contains(toolMsg.Content, "190.2") {
		t.Errorf("unexpected tool message %+v", toolMsg)
	}
}

func TestRespondWithoutTools(t *testing.T) {
	model := &fakeModel{responses: []*llm.ChatResponse{{Content: "Hello there."}}}
	o := newTestOrchestrator(model, &fakeTools{}, Config{})

	reply, err := o.Respond(context.Background(), userHistory("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != "Hello there." || len(reply.Components) != 0 {
		t.Errorf("unexpected reply %+v", reply)
	}
	if len(model.requests) != 1 {
		t.Errorf("expected a single request, got %d", len(model.requests))
	}
}

func TestRespondUnknownToolIsFatal(t *testing.T) {
	model := &fakeModel{responses: []*llm.ChatResponse{
		{ToolCalls: []models.ToolCall{{ID: "c", Name: "place_order", Arguments: `{}`}}},
	}}
	o := newTestOrchestrator(model, &fakeTools{}, Config{})

	_, err := o.Respond(context.Background(), userHistory("buy 10 AAPL"))
	if !errors.Is(err, apperrors.ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestRespondRunsToolsConcurrently(t *testing.T) {
	model := &fakeModel{responses: []*llm.ChatResponse{
		{ToolCalls: []models.ToolCall{
			{ID: "a", Name: "get_stock_quote", Arguments: `{"symbol":"AAPL"}`},
			{ID: "b", Name: "get_stock_news", Arguments: `{"symbol":"AAPL"}`},
		}},
		{Content: "Done."},
	}}

	var (
		mu      sync.Mutex
		started int
		both    = make(chan struct{})
		serial  bool
	)
	tools := &fakeTools{hook: func(string) {
		mu.Lock()
		started++
		if started == 2 {
			close(both)
		}
		mu.Unlock()
		select {
		case <-both:
		case <-time.After(2 * time.Second):
			mu.Lock()
			serial = true
			mu.Unlock()
		}
	}}

	o := newTestOrchestrator(model, tools, Config{})
	reply, err := o.Respond(context.Background(), userHistory("AAPL quote and news"))
	if err != nil {
		t.Fatal(err)
	}
	if serial {
		t.Fatal("tools did not run concurrently")
	}
	if len(reply.Components) != 2 || reply.Layout != models.LayoutGrid {
		t.Errorf("expected two components in a grid, got %d %s", len(reply.Components), reply.Layout)
	}
}

func TestBuildMessagesAppliesHistoryLimit(t *testing.T) {
	o := newTestOrchestrator(&fakeModel{}, &fakeTools{}, Config{HistoryLimit: 2, SystemPrompt: "sys"})
	history := []models.Message{
		{Role: models.RoleUser, Content: "one"},
		{Role: models.RoleAssistant, Content: "two"},
		{Role: models.RoleAssistant, Content: "failed", Metadata: &models.MessageMetadata{Error: true}},
		{Role: models.RoleSystem, Content: "ignored"},
		{Role: models.RoleUser, Content: "three"},
	}

	msgs := o.buildMessages(history)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Role != models.RoleSystem || msgs[0].Content != "sys" {
		t.Errorf("system prompt missing: %+v", msgs[0])
	}
	if msgs[1].Content != "two" || msgs[2].Content != "three" {
		t.Errorf("unexpected tail %+v", msgs[1:])
	}
}

func TestStreamEventOrder(t *testing.T) {
	model := &fakeModel{streams: [][]llm.ChatDelta{
		{
			{Content: "Let me check "},
			{Content: "that."},
			{ToolCalls: []llm.ToolCallDelta{{Index: 0, ID: "call_1", Name: "get_stock_quote"}}},
			{ToolCalls: []llm.ToolCallDelta{{Index: 0, Arguments: `{"symbol":`}}},
			{ToolCalls: []llm.ToolCallDelta{{Index: 0, Arguments: `"AAPL"}`}}},
			{FinishReason: "tool_calls"},
		},
		{
			{Content: "AAPL is at $190.20."},
			{FinishReason: "stop"},
		},
	}}
	sink := &recordingSink{}
	o := newTestOrchestrator(model, &fakeTools{}, Config{})

	reply, err := o.Stream(context.Background(), userHistory("AAPL price?"), sink)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var kinds []string
	for _, ev := range sink.events {
		switch {
		case ev.Content != "":
			kinds = append(kinds, "content")
		case ev.Status != "":
			kinds = append(kinds, "status")
		case ev.Layout != "":
			kinds = append(kinds, "components")
		case ev.Metadata != nil:
			kinds = append(kinds, "metadata")
		}
	}
	want := "content,content,status,components,content,metadata"
	if got := strings.Join(kinds, ","); got != want {
		t.Fatalf("event order %s, want %s", got, want)
	}
	if !sink.done {
		t.Fatal("done marker not written")
	}

	status := sink.events[2]
	if len(status.ToolCalls) != 1 || status.ToolCalls[0] != "get_stock_quote" {
		t.Errorf("unexpected tool calls %+v", status.ToolCalls)
	}
	comps := sink.events[3].Components
	if len(comps) != 1 || comps[0].Type != models.ComponentStockQuote {
		t.Errorf("unexpected components %+v", comps)
	}
	if reply.Text != "Let me check that.AAPL is at $190.20." {
		t.Errorf("reply text = %q", reply.Text)
	}
	if len(reply.Components) != 1 || reply.Components[0].ID != comps[0].ID {
		t.Error("reply components must match the streamed ones")
	}
}

func TestMetadataSymbolsComeFromQuestion(t *testing.T) {
	tests := []struct {
		question string
		answer   string
		want     string
	}{
		{"How is $NVDA doing?", "Unlike AAPL, it rallied.", "NVDA"},
		{"which chip stock is cheapest?", "Look at $INTC.", "INTC"},
	}
	for _, tt := range tests {
		model := &fakeModel{responses: []*llm.ChatResponse{{Content: tt.answer}}}
		o := newTestOrchestrator(model, &fakeTools{}, Config{})

		reply, err := o.Respond(context.Background(), userHistory(tt.question))
		if err != nil {
			t.Fatalf("Respond: %v", err)
		}
		if got := strings.Join(reply.Metadata.Symbols, ","); got != tt.want {
			t.Errorf("%q: symbols = %s, want %s", tt.question, got, tt.want)
		}
	}
}

func TestStreamStatusRecordNamesTools(t *testing.T) {
	model := &fakeModel{streams: [][]llm.ChatDelta{
		{
			{ToolCalls: []llm.ToolCallDelta{{Index: 0, ID: "call_1", Name: "get_stock_quote"}}},
			{ToolCalls: []llm.ToolCallDelta{{Index: 0, Arguments: `{"symbol":`}}},
			{ToolCalls: []llm.ToolCallDelta{{Index: 0, Arguments: `"AAPL"}`}}},
		},
		{{Content: "Done."}},
	}}
	var buf bytes.Buffer
	o := newTestOrchestrator(model, &fakeTools{}, Config{})

	if _, err := o.Stream(context.Background(), userHistory("AAPL price?"), stream.NewEncoder(&buf)); err != nil {
		t.Fatalf("Stream: %v", err)
	}

	want := `data: {"status":"Fetching market data...","toolCalls":["get_stock_quote"]}` + "\n\n"
	if !strings.Contains(buf.String(), want) {
		t.Errorf("status record missing, wire was:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "call_1") {
		t.Error("tool call ids and arguments must not reach the wire")
	}
}

func TestStreamEmitsInlineMarkerComponents(t *testing.T) {
	model := &fakeModel{streams: [][]llm.ChatDelta{{
		{Content: `Mood: [COMPONENT:sentiment-gauge:{"symbol":"TSLA","score":0.4}]`},
	}}}
	sink := &recordingSink{}
	o := newTestOrchestrator(model, &fakeTools{}, Config{})

	reply, err := o.Stream(context.Background(), userHistory("TSLA sentiment"), sink)
	if err != nil {
		t.Fatal(err)
	}
	if len(reply.Components) != 1 || reply.Components[0].Type != models.ComponentSentimentGauge {
		t.Fatalf("components = %+v", reply.Components)
	}

	var streamed int
	for _, ev := range sink.events {
		streamed += len(ev.Components)
	}
	if streamed != 1 {
		t.Errorf("expected the inline component to be streamed once, got %d", streamed)
	}
}

func TestStreamErrorSkipsDone(t *testing.T) {
	model := &fakeModel{
		streams:   [][]llm.ChatDelta{{{Content: "partial"}}},
		streamErr: apperrors.NewProviderError("openai", "stream", 429, errors.New("slow down")),
	}
	sink := &recordingSink{}
	o := newTestOrchestrator(model, &fakeTools{}, Config{})

	_, err := o.Stream(context.Background(), userHistory("hi"), sink)
	if !errors.Is(err, apperrors.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if sink.done {
		t.Fatal("done marker must not follow an error")
	}
}

func TestStreamRespectsTurnTimeout(t *testing.T) {
	o := newTestOrchestrator(&blockingModel{}, &fakeTools{}, Config{TurnTimeout: 20 * time.Millisecond})
	_, err := o.Stream(context.Background(), userHistory("hi"), &recordingSink{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

// blockingModel streams nothing until its context ends.
type blockingModel struct{}

func (blockingModel) CreateChat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingModel) StreamChat(ctx context.Context, req llm.ChatRequest) (llm.ChatStream, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
