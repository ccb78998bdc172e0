package chat

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"quantb/internal/llm"
	"quantb/internal/models"
)

// CallState is the lifecycle of one streamed tool call.
type CallState int

const (
	CallIdle CallState = iota
	CallAccumulating
	CallDispatched
)

func (s CallState) String() string {
	switch s {
	case CallAccumulating:
		return "accumulating"
	case CallDispatched:
		return "dispatched"
	default:
		return "idle"
	}
}

type pendingCall struct {
	call  models.ToolCall
	args  strings.Builder
	state CallState
}

// Accumulator reduces streamed tool-call deltas into complete calls. A
// delta carrying an id opens a new call and pushes the open one; a delta
// without an id appends argument text to the open call.
type Accumulator struct {
	calls []*pendingCall
	open  *pendingCall
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Apply folds one delta into the accumulator. It reports false for a
// continuation that arrives while no call is open.
func (a *Accumulator) Apply(d llm.ToolCallDelta) bool {
	if d.ID != "" {
		a.push()
		a.open = &pendingCall{
			call:  models.ToolCall{ID: d.ID, Name: d.Name},
			state: CallAccumulating,
		}
		a.open.args.WriteString(d.Arguments)
		return true
	}

	if a.open == nil {
		return false
	}
	if a.open.call.Name == "" && d.Name != "" {
		a.open.call.Name = d.Name
	}
	a.open.args.WriteString(d.Arguments)
	return true
}

func (a *Accumulator) push() {
	if a.open != nil {
		a.calls = append(a.calls, a.open)
		a.open = nil
	}
}

// State returns the state of the call with the given id, or CallIdle when
// the id is unknown.
func (a *Accumulator) State(id string) CallState {
	if a.open != nil && a.open.call.ID == id {
		return a.open.state
	}
	for _, p := range a.calls {
		if p.call.ID == id {
			return p.state
		}
	}
	return CallIdle
}

// Pending reports whether any call is still accumulating.
func (a *Accumulator) Pending() bool {
	if a.open != nil {
		return true
	}
	for _, p := range a.calls {
		if p.state == CallAccumulating {
			return true
		}
	}
	return false
}

// Dispatch closes the open call and returns every accumulating call in
// arrival order. Calls whose arguments are not complete JSON, or that have
// no name, are returned separately as dropped. Dispatched calls are never
// returned twice.
func (a *Accumulator) Dispatch() (calls, dropped []models.ToolCall) {
	a.push()
	for _, p := range a.calls {
		if p.state != CallAccumulating {
			continue
		}
		p.state = CallDispatched

		call := p.call
		call.Arguments = normalizeArguments(p.args.String())
		if call.Name == "" || !json.Valid([]byte(call.Arguments)) {
			call.Arguments = p.args.String()
			dropped = append(dropped, call)
			continue
		}
		calls = append(calls, call)
	}
	return calls, dropped
}

func normalizeArguments(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "{}"
	}
	return s
}

// validCalls applies the dispatch rule to calls from a non-streamed reply.
func validCalls(in []models.ToolCall) (calls, dropped []models.ToolCall) {
	acc := NewAccumulator()
	for _, c := range in {
		id := c.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		acc.Apply(llm.ToolCallDelta{ID: id, Name: c.Name, Arguments: c.Arguments})
	}
	return acc.Dispatch()
}
