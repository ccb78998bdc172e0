package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"quantb/internal/chat"
	apperrors "quantb/internal/errors"
	"quantb/internal/models"
	"quantb/internal/screener"
	"quantb/internal/store"
	"quantb/internal/stream"
)

type fakeChatter struct {
	reply   *chat.Reply
	err     error
	history []models.Message
}

func (f *fakeChatter) Respond(_ context.Context, history []models.Message) (*chat.Reply, error) {
	f.history = history
	return f.reply, f.err
}

func (f *fakeChatter) Stream(_ context.Context, history []models.Message, sink stream.Sink) (*chat.Reply, error) {
	f.history = history
	if err := sink.Send(stream.Event{Content: "Apple is "}); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	if err := sink.Send(stream.Event{Content: "up today."}); err != nil {
		return nil, err
	}
	if err := sink.Send(stream.Event{Components: f.reply.Components, Layout: f.reply.Layout}); err != nil {
		return nil, err
	}
	if err := sink.Send(stream.Event{Metadata: &f.reply.Metadata}); err != nil {
		return nil, err
	}
	return f.reply, sink.Done()
}

type fakeScreener struct {
	result *screener.Result
	err    error
	prompt string
}

func (f *fakeScreener) Screen(_ context.Context, prompt string) (*screener.Result, error) {
	f.prompt = prompt
	return f.result, f.err
}

func sampleReply() *chat.Reply {
	return &chat.Reply{
		Text: "Apple is up today.",
		Components: []models.SmartComponent{{
			ID:          "c1",
			Type:        models.ComponentStockQuote,
			Data:        json.RawMessage(`{"symbol":"AAPL","currentPrice":190}`),
			Priority:    9,
			Interactive: true,
		}},
		Layout:   models.LayoutInline,
		Metadata: models.MessageMetadata{Symbols: []string{"AAPL"}, Intent: "research", ToolsUsed: []string{"get_stock_quote"}},
	}
}

func newTestServer(t *testing.T, c Chatter, scr Screener) (*Server, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })
	return New(c, scr, st, zerolog.Nop()), st
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apperrors.APIError {
	t.Helper()
	var body struct {
		Error apperrors.APIError `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", w.Body.String(), err)
	}
	return body.Error
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &fakeChatter{}, nil)
	w := do(t, srv.Handler(), http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestChatRespondPersistsConversation(t *testing.T) {
	fc := &fakeChatter{reply: sampleReply()}
	srv, st := newTestServer(t, fc, nil)

	w := do(t, srv.Handler(), http.MethodPost, "/api/chat", `{"message":"How is AAPL doing?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ConversationID == "" {
		t.Fatal("expected a conversation id")
	}
	if resp.Message.Role != models.RoleAssistant || resp.Message.Content != "Apple is up today." {
		t.Errorf("unexpected message %+v", resp.Message)
	}
	if len(fc.history) != 1 || fc.history[0].Content != "How is AAPL doing?" {
		t.Errorf("expected the user message as history, got %+v", fc.history)
	}

	conv, err := st.Load(context.Background(), resp.ConversationID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("expected user and assistant messages, got %d", len(conv.Messages))
	}
	if conv.Title != "How is AAPL doing?" {
		t.Errorf("unexpected title %q", conv.Title)
	}

	// A follow-up on the same conversation carries the full history.
	body := fmt.Sprintf(`{"conversationId":%q,"message":"And MSFT?"}`, resp.ConversationID)
	if w := do(t, srv.Handler(), http.MethodPost, "/api/chat", body); w.Code != http.StatusOK {
		t.Fatalf("follow-up: %d %s", w.Code, w.Body.String())
	}
	if len(fc.history) != 3 {
		t.Errorf("expected 3 history messages, got %d", len(fc.history))
	}
}

func TestChatValidation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeChatter{reply: sampleReply()}, nil)

	for name, body := range map[string]string{
		"empty message": `{"message":"   "}`,
		"bad json":      `{"message":`,
	} {
		t.Run(name, func(t *testing.T) {
			w := do(t, srv.Handler(), http.MethodPost, "/api/chat", body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if e := decodeError(t, w); e.Code != apperrors.CodeInvalidRequest {
				t.Errorf("expected invalid_request, got %q", e.Code)
			}
		})
	}
}

func TestChatUpstreamErrorMapsToCode(t *testing.T) {
	fc := &fakeChatter{err: fmt.Errorf("chat completion: %w",
		apperrors.NewProviderError("openai", "chat", 429, apperrors.ErrRateLimited))}
	srv, st := newTestServer(t, fc, nil)

	w := do(t, srv.Handler(), http.MethodPost, "/api/chat", `{"conversationId":"c-1","message":"hi"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if e := decodeError(t, w); e.Code != apperrors.CodeRateLimited {
		t.Errorf("expected rate_limited, got %q", e.Code)
	}

	// The user message survives a failed turn.
	conv, err := st.Load(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Role != models.RoleUser {
		t.Errorf("expected only the user message, got %+v", conv.Messages)
	}
}

func TestChatStreamEndToEnd(t *testing.T) {
	fc := &fakeChatter{reply: sampleReply()}
	srv, st := newTestServer(t, fc, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/chat", "application/json",
		bytes.NewBufferString(`{"message":"How is AAPL doing?","stream":true}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected event stream, got %q", ct)
	}
	convID := resp.Header.Get("X-Conversation-ID")
	if convID == "" {
		t.Fatal("expected conversation id header")
	}

	var updates int
	consumer := stream.NewConsumer(func(models.Message) { updates++ }, zerolog.Nop())
	msg, err := consumer.Consume(context.Background(), resp.Body)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	if msg.Content != "Apple is up today." {
		t.Errorf("unexpected content %q", msg.Content)
	}
	if len(msg.Components) != 1 || msg.Components[0].Type != models.ComponentStockQuote {
		t.Errorf("unexpected components %+v", msg.Components)
	}
	if msg.Metadata == nil || msg.Metadata.Intent != "research" {
		t.Errorf("unexpected metadata %+v", msg.Metadata)
	}
	if updates != 4 {
		t.Errorf("expected 4 updates, got %d", updates)
	}

	// Close waits for the handler, which saves after the done marker.
	resp.Body.Close()
	ts.Close()

	conv, err := st.Load(context.Background(), convID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Errorf("expected persisted turn, got %d messages", len(conv.Messages))
	}
}

func TestChatStreamFailureYieldsApology(t *testing.T) {
	fc := &fakeChatter{reply: sampleReply(), err: apperrors.ErrUpstream}
	srv, _ := newTestServer(t, fc, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/chat", "application/json",
		strings.NewReader(`{"message":"hi","stream":true}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	msg, err := stream.NewConsumer(nil, zerolog.Nop()).Consume(context.Background(), resp.Body)
	if !errors.Is(err, stream.ErrUnterminated) {
		t.Fatalf("expected unterminated stream, got %v", err)
	}
	if msg.Content != stream.Apology {
		t.Errorf("expected apology, got %q", msg.Content)
	}
	if msg.Metadata == nil || !msg.Metadata.Error {
		t.Error("expected metadata.error to be set")
	}
}

func TestConversationEndpoints(t *testing.T) {
	srv, st := newTestServer(t, &fakeChatter{}, nil)
	h := srv.Handler()
	ctx := context.Background()

	conv := models.NewConversation("abc", sampleTime)
	conv.Append(models.Message{ID: "m1", Role: models.RoleUser, Content: "Compare AAPL and MSFT", Timestamp: sampleTime})
	if err := st.Save(ctx, conv); err != nil {
		t.Fatalf("Save: %v", err)
	}

	w := do(t, h, http.MethodGet, "/api/conversations", "")
	var list conversationsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Conversations) != 1 || list.Conversations[0].MessageCount != 1 {
		t.Errorf("unexpected list %+v", list)
	}

	if w := do(t, h, http.MethodGet, "/api/conversations?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", w.Code)
	}

	w = do(t, h, http.MethodGet, "/api/conversations/abc", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Compare AAPL and MSFT") {
		t.Errorf("unexpected get: %d %s", w.Code, w.Body.String())
	}

	if w := do(t, h, http.MethodDelete, "/api/conversations/abc", ""); w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}

	w = do(t, h, http.MethodGet, "/api/conversations/abc", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if e := decodeError(t, w); e.Code != apperrors.CodeNotFound {
		t.Errorf("expected not_found, got %q", e.Code)
	}

	if w := do(t, h, http.MethodDelete, "/api/conversations/abc", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 deleting twice, got %d", w.Code)
	}
}

func TestScreenEndpoint(t *testing.T) {
	fs := &fakeScreener{result: &screener.Result{
		Scanned:       10,
		Matched:       2,
		Opportunities: []models.Opportunity{{Symbol: "INTC", Confidence: 72}},
	}}
	srv, _ := newTestServer(t, &fakeChatter{}, fs)

	w := do(t, srv.Handler(), http.MethodPost, "/api/screen", `{"prompt":"tech under $50"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if fs.prompt != "tech under $50" {
		t.Errorf("unexpected prompt %q", fs.prompt)
	}
	var res screener.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Scanned != 10 || len(res.Opportunities) != 1 {
		t.Errorf("unexpected result %+v", res)
	}

	if w := do(t, srv.Handler(), http.MethodPost, "/api/screen", `{"prompt":""}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty prompt, got %d", w.Code)
	}

	fs.err = apperrors.NewProviderError("finnhub", "quote", 401, apperrors.ErrInvalidCredentials)
	w = do(t, srv.Handler(), http.MethodPost, "/api/screen", `{"prompt":"tech"}`)
	if e := decodeError(t, w); e.Code != apperrors.CodeUpstreamAuth {
		t.Errorf("expected upstream_auth, got %q", e.Code)
	}
}

func TestScreenDisabled(t *testing.T) {
	srv, _ := newTestServer(t, &fakeChatter{}, nil)
	w := do(t, srv.Handler(), http.MethodPost, "/api/screen", `{"prompt":"tech"}`)
	if w.Code == http.StatusOK {
		t.Fatal("expected an error without a screener")
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, &fakeChatter{}, nil)
	w := do(t, srv.Handler(), http.MethodOptions, "/api/chat", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

var sampleTime = time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)
