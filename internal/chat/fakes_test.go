package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	apperrors "quantb/internal/errors"
	"quantb/internal/llm"
	"quantb/internal/models"
	"quantb/internal/stream"
)

// fakeModel replays scripted replies and records requests.
type fakeModel struct {
	mu        sync.Mutex
	responses []*llm.ChatResponse
	streams   [][]llm.ChatDelta
	streamErr error
	requests  []llm.ChatRequest
}

func (m *fakeModel) CreateChat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *fakeModel) StreamChat(ctx context.Context, req llm.ChatRequest) (llm.ChatStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.streams) == 0 {
		return nil, errors.New("no scripted stream")
	}
	deltas := m.streams[0]
	m.streams = m.streams[1:]
	return &fakeStream{deltas: deltas, err: m.streamErr}, nil
}

type fakeStream struct {
	deltas []llm.ChatDelta
	err    error
}

func (s *fakeStream) Recv() (llm.ChatDelta, error) {
	if len(s.deltas) == 0 {
		if s.err != nil {
			return llm.ChatDelta{}, s.err
		}
		return llm.ChatDelta{}, io.EOF
	}
	d := s.deltas[0]
	s.deltas = s.deltas[1:]
	return d, nil
}

func (s *fakeStream) Close() error { return nil }

// fakeTools serves canned payloads by tool name.
type fakeTools struct {
	mu    sync.Mutex
	calls []string
	hook  func(name string)
}

var cannedResults = map[string]*models.ToolResult{
	"get_stock_quote": {
		Kind: models.ComponentStockQuote,
		Data: json.RawMessage(`{"symbol":"AAPL","currentPrice":190.2}`),
	},
	"get_stock_news": {
		Kind: models.ComponentNewsSummary,
		Data: json.RawMessage(`{"symbol":"AAPL","articles":[]}`),
	},
	"analyze_technical_indicators": {
		Kind: models.ComponentTechnicalAnalysis,
		Data: json.RawMessage(`{"symbol":"AAPL","indicators":{"rsi":{"value":48}}}`),
	},
}

func (f *fakeTools) Specs() []llm.ToolSpec {
	return []llm.ToolSpec{{Name: "get_stock_quote", Parameters: json.RawMessage(`{"type":"object"}`)}}
}

func (f *fakeTools) Execute(ctx context.Context, name string, args json.RawMessage) (*models.ToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if f.hook != nil {
		f.hook(name)
	}

	canned, ok := cannedResults[name]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrUnknownTool, "%q", name)
	}
	res := *canned
	res.Tool = name
	return &res, nil
}

// recordingSink captures events in order.
type recordingSink struct {
	events []stream.Event
	done   bool
}

func (s *recordingSink) Send(ev stream.Event) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Done() error {
	s.done = true
	return nil
}
