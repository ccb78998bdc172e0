// Package parser turns assistant text and tool results into typed smart
// components, message context and a layout decision.
package parser

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quantb/internal/models"
)

// Parsed is the outcome of parsing one assistant message.
type Parsed struct {
	Text         string                  `json:"text"`
	Components   []models.SmartComponent `json:"components"`
	Context      models.MessageContext   `json:"context"`
	Layout       models.Layout           `json:"layout"`
	QuickActions []models.QuickAction    `json:"quickActions,omitempty"`
}

// Parser is stateless apart from its logger and id source; it is safe
// for concurrent use.
type Parser struct {
	logger zerolog.Logger
	newID  func() string
}

// New creates a Parser.
func New(logger zerolog.Logger) *Parser {
	return &Parser{
		logger: logger.With().Str("component", "parser").Logger(),
		newID:  uuid.NewString,
	}
}

// Parse classifies tool results, extracts inline markers, detects
// deferred components and decides the layout for one message.
func (p *Parser) Parse(text string, results []models.ToolResult) Parsed {
	var components []models.SmartComponent
	for _, r := range results {
		if c, ok := p.FromToolResult(r); ok {
			components = append(components, c)
		}
	}
	return p.ParseWith(text, components)
}

// ParseWith parses text on top of components already built from tool
// results. The given components keep their ids unless they collide.
func (p *Parser) ParseWith(text string, prior []models.SmartComponent) Parsed {
	components := make([]models.SmartComponent, len(prior), len(prior)+2)
	copy(components, prior)

	cleaned, inline := p.extractMarkers(text)
	components = append(components, inline...)

	cleaned, gridHint := stripLayoutHint(cleaned)

	if c, ok := p.autoDetect(cleaned, components); ok {
		components = append(components, c)
	}

	components = p.dedupe(components)
	sortByPriority(components)

	ctx := ExtractContext(cleaned)
	return Parsed{
		Text:         strings.TrimSpace(cleaned),
		Components:   components,
		Context:      ctx,
		Layout:       DecideLayout(components, gridHint),
		QuickActions: p.quickActions(ctx),
	}
}

// ParseResults classifies tool results only, as needed mid-stream before
// the final text exists.
func (p *Parser) ParseResults(results []models.ToolResult) ([]models.SmartComponent, models.Layout) {
	var components []models.SmartComponent
	for _, r := range results {
		if c, ok := p.FromToolResult(r); ok {
			components = append(components, c)
		}
	}
	components = p.dedupe(components)
	sortByPriority(components)
	return components, DecideLayout(components, false)
}

// FromToolResult builds a component from a tool result. Error results and
// unclassifiable payloads produce nothing.
func (p *Parser) FromToolResult(r models.ToolResult) (models.SmartComponent, bool) {
	if r.Err != nil || len(r.Data) == 0 || string(r.Data) == "null" {
		return models.SmartComponent{}, false
	}

	typ := r.Kind
	if _, known := priorities[typ]; !known {
		var ok bool
		typ, ok = Classify(r.Data)
		if !ok {
			p.logger.Debug().Str("tool", r.Tool).Msg("Unclassifiable tool result")
			return models.SmartComponent{}, false
		}
	}

	meta := map[string]any{"source": "tool"}
	if r.Tool != "" {
		meta["tool"] = r.Tool
	}
	return p.newComponent(typ, r.Data, meta), true
}

func (p *Parser) newComponent(typ models.ComponentType, data json.RawMessage, meta map[string]any) models.SmartComponent {
	return models.SmartComponent{
		ID:          p.newID(),
		Type:        typ,
		Data:        data,
		Priority:    Priority(typ),
		Interactive: interactive[typ],
		Metadata:    meta,
	}
}

// autoDetect synthesizes a market-analysis placeholder with null data when
// the text talks about the market as a whole. The renderer loads it later.
func (p *Parser) autoDetect(text string, existing []models.SmartComponent) (models.SmartComponent, bool) {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "market") {
		return models.SmartComponent{}, false
	}
	if !strings.Contains(lower, "overview") && !strings.Contains(lower, "sentiment") && !strings.Contains(lower, "summary") {
		return models.SmartComponent{}, false
	}
	for _, c := range existing {
		if c.Type == models.ComponentMarketAnalysis {
			return models.SmartComponent{}, false
		}
	}
	return p.newComponent(models.ComponentMarketAnalysis, nil, map[string]any{"source": "auto", "deferred": true}), true
}

// dedupe reassigns ids that collide with an earlier component.
func (p *Parser) dedupe(components []models.SmartComponent) []models.SmartComponent {
	seen := make(map[string]bool, len(components))
	for i := range components {
		for components[i].ID == "" || seen[components[i].ID] {
			components[i].ID = p.newID()
		}
		seen[components[i].ID] = true
	}
	return components
}

func sortByPriority(components []models.SmartComponent) {
	sort.SliceStable(components, func(i, j int) bool {
		return components[i].Priority > components[j].Priority
	})
}

// DecideLayout returns grid for an explicit hint, for more than one
// component of more than one type, or when analysis and comparison
// components appear together.
func DecideLayout(components []models.SmartComponent, hint bool) models.Layout {
	if hint {
		return models.LayoutGrid
	}

	types := map[models.ComponentType]bool{}
	for _, c := range components {
		types[c.Type] = true
	}
	if len(components) > 1 && len(types) > 1 {
		return models.LayoutGrid
	}

	analysis := types[models.ComponentMarketAnalysis] || types[models.ComponentTechnicalAnalysis]
	if analysis && types[models.ComponentStockComparison] {
		return models.LayoutGrid
	}
	return models.LayoutInline
}

// LayoutHint is the token a model may emit to request a grid layout.
const LayoutHint = "[LAYOUT:grid]"

func stripLayoutHint(text string) (string, bool) {
	if !strings.Contains(text, LayoutHint) {
		return text, false
	}
	return strings.ReplaceAll(text, LayoutHint, ""), true
}
