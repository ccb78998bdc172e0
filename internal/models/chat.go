package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ComponentType is the discriminator of a SmartComponent.
type ComponentType string

const (
	ComponentMarketAnalysis     ComponentType = "market-analysis"
	ComponentStockComparison    ComponentType = "stock-comparison"
	ComponentTechnicalAnalysis  ComponentType = "technical-analysis"
	ComponentNewsSummary        ComponentType = "news-summary"
	ComponentStockQuote         ComponentType = "stock-quote"
	ComponentPositionCalculator ComponentType = "position-calculator"
	ComponentPortfolioSummary   ComponentType = "portfolio-summary"
	ComponentSentimentGauge     ComponentType = "sentiment-gauge"
	ComponentPriceChart         ComponentType = "price-chart"
)

// Layout controls how the rendering layer arranges components.
type Layout string

const (
	LayoutInline Layout = "inline"
	LayoutGrid   Layout = "grid"
)

// Intent is the classified purpose of a user message.
type Intent string

const (
	IntentTrading    Intent = "trading"
	IntentLearning   Intent = "learning"
	IntentMonitoring Intent = "monitoring"
	IntentAnalysis   Intent = "analysis"
	IntentResearch   Intent = "research"
)

// Conversation is an ordered sequence of messages.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is a single turn in a conversation.
type Message struct {
	ID           string           `json:"id"`
	Role         Role             `json:"role"`
	Content      string           `json:"content"`
	Metadata     *MessageMetadata `json:"metadata,omitempty"`
	Components   []SmartComponent `json:"components,omitempty"`
	QuickActions []QuickAction    `json:"quickActions,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// MessageMetadata carries auxiliary data attached to a message.
type MessageMetadata struct {
	Symbols   []string `json:"symbols,omitempty"`
	Intent    Intent   `json:"intent,omitempty"`
	ToolsUsed []string `json:"toolsUsed,omitempty"`
	Layout    Layout   `json:"layout,omitempty"`
	Error     bool     `json:"error,omitempty"`
}

// SmartComponent is a typed payload the rendering layer maps to a widget.
// A nil Data means the widget loads its own data.
type SmartComponent struct {
	ID          string          `json:"id"`
	Type        ComponentType   `json:"type"`
	Data        json.RawMessage `json:"data"`
	Priority    int             `json:"priority"`
	Interactive bool            `json:"interactive"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// QuickAction is a suggested follow-up prompt.
type QuickAction struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
}

// MessageContext is derived per message and never persisted.
type MessageContext struct {
	Intent    Intent   `json:"intent"`
	Symbols   []string `json:"symbols"`
	Topics    []string `json:"topics"`
	Timeframe string   `json:"timeframe,omitempty"`
	RiskLevel string   `json:"riskLevel,omitempty"`
}

// ToolCall is a function call requested by the model during one turn.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult is the outcome of executing one ToolCall. Kind tags the
// component the payload renders as; it is empty for error results.
type ToolResult struct {
	CallID string          `json:"callId,omitempty"`
	Tool   string          `json:"tool"`
	Kind   ComponentType   `json:"kind,omitempty"`
	Data   json.RawMessage `json:"data"`
	Err    *ToolFailure    `json:"error,omitempty"`
}

// ToolFailure is the structured payload returned instead of data when a
// tool's upstream call fails.
type ToolFailure struct {
	Error  string `json:"error"`
	Symbol string `json:"symbol,omitempty"`
}

// Payload returns the JSON fed back to the model for this result.
func (r *ToolResult) Payload() []byte {
	if r.Err != nil {
		b, _ := json.Marshal(r.Err)
		return b
	}
	if len(r.Data) == 0 {
		return []byte("null")
	}
	return r.Data
}

const titleRunes = 50

// NewConversation starts an empty conversation.
func NewConversation(id string, now time.Time) *Conversation {
	return &Conversation{ID: id, CreatedAt: now, UpdatedAt: now}
}

// Append adds msg and bumps UpdatedAt. The first user message also sets
// the title when none is set.
func (c *Conversation) Append(msg Message) {
	if c.Title == "" && msg.Role == RoleUser {
		c.Title = Title(msg.Content)
	}
	c.Messages = append(c.Messages, msg)
	if msg.Timestamp.After(c.UpdatedAt) {
		c.UpdatedAt = msg.Timestamp
	}
}

// Title returns the first 50 runes of text with surrounding space removed.
func Title(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) > titleRunes {
		return strings.TrimSpace(string(runes[:titleRunes]))
	}
	return text
}
