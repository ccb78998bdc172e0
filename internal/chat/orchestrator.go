// Package chat runs assistant turns: it submits the conversation with tool
// declarations, executes requested tools concurrently, resubmits the
// results and parses the final answer into smart components.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"quantb/internal/llm"
	"quantb/internal/logging"
	"quantb/internal/models"
	"quantb/internal/parser"
	"quantb/internal/stream"
)

// ToolStatus is the status text sent while tools run.
const ToolStatus = "Fetching market data..."

// ToolExecutor declares and runs tools.
type ToolExecutor interface {
	Specs() []llm.ToolSpec
	Execute(ctx context.Context, name string, args json.RawMessage) (*models.ToolResult, error)
}

// Config holds orchestration settings.
type Config struct {
	TurnTimeout   time.Duration
	MaxToolRounds int
	SystemPrompt  string
	HistoryLimit  int
}

// Orchestrator runs chat turns against a ChatModel.
type Orchestrator struct {
	model  llm.ChatModel
	tools  ToolExecutor
	parser *parser.Parser
	cfg    Config
	logger zerolog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(model llm.ChatModel, tools ToolExecutor, p *parser.Parser, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.MaxToolRounds < 1 {
		cfg.MaxToolRounds = 1
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &Orchestrator{
		model:  model,
		tools:  tools,
		parser: p,
		cfg:    cfg,
		logger: logger.With().Str("component", "chat").Logger(),
	}
}

// Reply is the parsed outcome of one assistant turn.
type Reply struct {
	Text         string                  `json:"text"`
	Components   []models.SmartComponent `json:"components"`
	Context      models.MessageContext   `json:"context"`
	Layout       models.Layout           `json:"layout"`
	QuickActions []models.QuickAction    `json:"quickActions,omitempty"`
	Metadata     models.MessageMetadata  `json:"metadata"`
}

// Message converts the reply into an assistant message.
func (r *Reply) Message() models.Message {
	meta := r.Metadata
	return models.Message{
		ID:           uuid.NewString(),
		Role:         models.RoleAssistant,
		Content:      r.Text,
		Metadata:     &meta,
		Components:   r.Components,
		QuickActions: r.QuickActions,
		Timestamp:    time.Now(),
	}
}

// Respond runs one non-streaming turn.
func (o *Orchestrator) Respond(ctx context.Context, history []models.Message) (*Reply, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	logger := logging.WithOperation(o.loggerFor(ctx), "respond")

	msgs := o.buildMessages(history)
	var results []models.ToolResult
	var text string

	for round := 0; ; round++ {
		resp, err := o.model.CreateChat(ctx, o.request(msgs, round))
		if err != nil {
			return nil, fmt.Errorf("chat completion: %w", err)
		}

		calls, dropped := validCalls(resp.ToolCalls)
		logDropped(logger, dropped)
		if len(calls) == 0 || round >= o.cfg.MaxToolRounds {
			text = resp.Content
			break
		}

		batch, err := o.runTools(ctx, calls)
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
		msgs = appendToolRound(msgs, resp.Content, calls, batch)
	}

	parsed := o.parser.Parse(text, results)
	return o.reply(history, parsed, results), nil
}

// Stream runs one streaming turn, sending content deltas, a tool status
// event, a components event, further content and finally the metadata
// event to sink. The done marker is written only when the turn succeeds.
func (o *Orchestrator) Stream(ctx context.Context, history []models.Message, sink stream.Sink) (*Reply, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	logger := logging.WithOperation(o.loggerFor(ctx), "stream")

	msgs := o.buildMessages(history)
	var (
		results   []models.ToolResult
		toolComps []models.SmartComponent
		text      strings.Builder
	)

	for round := 0; ; round++ {
		content, acc, err := o.streamRound(ctx, o.request(msgs, round), sink)
		if err != nil {
			return nil, err
		}
		text.WriteString(content)

		calls, dropped := acc.Dispatch()
		logDropped(logger, dropped)
		if len(calls) == 0 || round >= o.cfg.MaxToolRounds {
			break
		}

		if err := sink.Send(stream.Event{Status: ToolStatus, ToolCalls: toolNames(calls)}); err != nil {
			return nil, err
		}
		batch, err := o.runTools(ctx, calls)
		if err != nil {
			return nil, err
		}

		comps, layout := o.parser.ParseResults(batch)
		if err := sink.Send(stream.Event{Components: comps, Layout: layout}); err != nil {
			return nil, err
		}
		toolComps = append(toolComps, comps...)
		results = append(results, batch...)
		msgs = appendToolRound(msgs, content, calls, batch)
	}

	parsed := o.parser.ParseWith(text.String(), toolComps)
	if extra := newComponents(parsed.Components, toolComps); len(extra) > 0 {
		if err := sink.Send(stream.Event{Components: extra, Layout: parsed.Layout}); err != nil {
			return nil, err
		}
	}

	reply := o.reply(history, parsed, results)
	if err := sink.Send(stream.Event{Metadata: &reply.Metadata}); err != nil {
		return nil, err
	}
	if err := sink.Done(); err != nil {
		return nil, err
	}
	return reply, nil
}

// streamRound forwards content deltas to sink and accumulates tool calls
// until the model stream ends.
func (o *Orchestrator) streamRound(ctx context.Context, req llm.ChatRequest, sink stream.Sink) (string, *Accumulator, error) {
	st, err := o.model.StreamChat(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("chat stream: %w", err)
	}
	defer st.Close()

	acc := NewAccumulator()
	var content strings.Builder
	for {
		d, err := st.Recv()
		if errors.Is(err, io.EOF) {
			return content.String(), acc, nil
		}
		if err != nil {
			return "", nil, fmt.Errorf("chat stream: %w", err)
		}

		if d.Content != "" {
			content.WriteString(d.Content)
			if err := sink.Send(stream.Event{Content: d.Content}); err != nil {
				return "", nil, err
			}
		}
		for _, tc := range d.ToolCalls {
			if !acc.Apply(tc) {
				o.logger.Warn().Int("index", tc.Index).Msg("Tool call fragment without an open call")
			}
		}
	}
}

func toolNames(calls []models.ToolCall) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return names
}

// toolOutcome holds the result of a single tool call.
type toolOutcome struct {
	result *models.ToolResult
	err    error
}

// runTools executes calls concurrently and returns results in call order.
// A fatal error from any call fails the whole batch.
func (o *Orchestrator) runTools(ctx context.Context, calls []models.ToolCall) ([]models.ToolResult, error) {
	logger := o.loggerFor(ctx)
	outcomes := make([]toolOutcome, len(calls))

	var wg conc.WaitGroup
	for i, call := range calls {
		wg.Go(func() {
			start := time.Now()
			res, err := o.tools.Execute(ctx, call.Name, json.RawMessage(call.Arguments))
			logging.LogToolCall(logger, call.ID, call.Name, time.Since(start), err != nil || (res != nil && res.Err != nil))
			outcomes[i] = toolOutcome{result: res, err: err}
		})
	}
	wg.Wait()

	results := make([]models.ToolResult, 0, len(calls))
	var errs []error
	for i, out := range outcomes {
		if out.err != nil {
			errs = append(errs, fmt.Errorf("tool %s: %w", calls[i].Name, out.err))
			continue
		}
		res := *out.result
		res.CallID = calls[i].ID
		results = append(results, res)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return results, nil
}

func (o *Orchestrator) request(msgs []llm.ChatMessage, round int) llm.ChatRequest {
	req := llm.ChatRequest{Messages: msgs}
	if round < o.cfg.MaxToolRounds {
		req.Tools = o.tools.Specs()
		req.ToolChoice = "auto"
	}
	return req
}

// buildMessages prepends the system prompt and keeps the most recent
// HistoryLimit user and assistant messages. Failed assistant messages are
// not replayed.
func (o *Orchestrator) buildMessages(history []models.Message) []llm.ChatMessage {
	var kept []models.Message
	for _, m := range history {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		if m.Metadata != nil && m.Metadata.Error {
			continue
		}
		kept = append(kept, m)
	}
	if o.cfg.HistoryLimit > 0 && len(kept) > o.cfg.HistoryLimit {
		kept = kept[len(kept)-o.cfg.HistoryLimit:]
	}

	msgs := make([]llm.ChatMessage, 0, len(kept)+1)
	msgs = append(msgs, llm.ChatMessage{Role: models.RoleSystem, Content: o.cfg.SystemPrompt})
	for _, m := range kept {
		msgs = append(msgs, llm.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return msgs
}

func appendToolRound(msgs []llm.ChatMessage, content string, calls []models.ToolCall, results []models.ToolResult) []llm.ChatMessage {
	msgs = append(msgs, llm.ChatMessage{Role: models.RoleAssistant, Content: content, ToolCalls: calls})
	for _, r := range results {
		msgs = append(msgs, llm.ChatMessage{
			Role:       llm.RoleTool,
			Content:    string(r.Payload()),
			ToolCallID: r.CallID,
		})
	}
	return msgs
}

func (o *Orchestrator) reply(history []models.Message, parsed parser.Parsed, results []models.ToolResult) *Reply {
	// The question decides intent and symbols; the answer's symbols are
	// used only when the question names none.
	intent := parsed.Context.Intent
	symbols := parsed.Context.Symbols
	if q := lastUserContent(history); q != "" {
		intent = parser.ClassifyIntent(q)
		if s := parser.ExtractSymbols(q); len(s) > 0 {
			symbols = s
		}
	}

	var used []string
	seen := map[string]bool{}
	for _, r := range results {
		if !seen[r.Tool] {
			seen[r.Tool] = true
			used = append(used, r.Tool)
		}
	}

	return &Reply{
		Text:         parsed.Text,
		Components:   parsed.Components,
		Context:      parsed.Context,
		Layout:       parsed.Layout,
		QuickActions: parsed.QuickActions,
		Metadata: models.MessageMetadata{
			Symbols:   symbols,
			Intent:    intent,
			ToolsUsed: used,
			Layout:    parsed.Layout,
		},
	}
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.TurnTimeout > 0 {
		return context.WithTimeout(ctx, o.cfg.TurnTimeout)
	}
	return context.WithCancel(ctx)
}

// loggerFor prefers a request-scoped logger carried by ctx.
func (o *Orchestrator) loggerFor(ctx context.Context) zerolog.Logger {
	if l := logging.FromContext(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return o.logger
}

func lastUserContent(history []models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

// newComponents returns the components of all that are not in prior.
func newComponents(all, prior []models.SmartComponent) []models.SmartComponent {
	ids := make(map[string]bool, len(prior))
	for _, c := range prior {
		ids[c.ID] = true
	}
	var out []models.SmartComponent
	for _, c := range all {
		if !ids[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func logDropped(logger zerolog.Logger, dropped []models.ToolCall) {
	for _, c := range dropped {
		logger.Warn().
			Str("call_id", c.ID).
			Str("tool", c.Name).
			Int("args_len", len(c.Arguments)).
			Msg("Dropping tool call with incomplete arguments")
	}
}
