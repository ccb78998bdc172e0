// Package stream implements the server-sent-events wire protocol used for
// chat replies: one JSON record per "data:" line, terminated by a literal
// done marker, plus a client-side consumer that folds the records into an
// assistant message.
package stream

import (
	"quantb/internal/models"
)

// DoneMarker terminates a successful stream.
const DoneMarker = "[DONE]"

// Apology replaces the message content when a stream fails.
const Apology = "I apologize, but I encountered an error processing your request. Please try again."

// Event is one record of the chat stream. Exactly the fields relevant to
// the event kind are set. A status event names the tools being run in
// ToolCalls; arguments never go over the wire.
type Event struct {
	Content    string                  `json:"content,omitempty"`
	Status     string                  `json:"status,omitempty"`
	ToolCalls  []string                `json:"toolCalls,omitempty"`
	Components []models.SmartComponent `json:"components,omitempty"`
	Layout     models.Layout           `json:"layout,omitempty"`
	Metadata   *models.MessageMetadata `json:"metadata,omitempty"`
}

// Sink receives stream events from a producer. Done is called only after
// a successful turn.
type Sink interface {
	Send(ev Event) error
	Done() error
}
