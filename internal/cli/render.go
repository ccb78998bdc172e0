package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"quantb/internal/models"
	"quantb/pkg/utils"
)

// streamRenderer prints a streamed assistant message incrementally.
type streamRenderer struct {
	out     *Output
	printed string
}

func newStreamRenderer(out *Output) *streamRenderer {
	return &streamRenderer{out: out}
}

// update prints the content not yet shown. A message whose content no
// longer extends what was printed (the apology) starts a fresh line.
func (r *streamRenderer) update(msg models.Message) {
	if r.out.IsJSON() {
		return
	}
	if strings.HasPrefix(msg.Content, r.printed) {
		r.out.Print(msg.Content[len(r.printed):])
	} else {
		r.out.Print("\n" + msg.Content)
	}
	r.printed = msg.Content
}

func (r *streamRenderer) status(status string, names []string) {
	if r.out.IsJSON() || status == "" {
		return
	}
	if r.printed != "" && !strings.HasSuffix(r.printed, "\n") {
		r.out.Println()
	}
	r.out.Printf("%s\n", r.out.DimText(fmt.Sprintf("%s (%s)", status, strings.Join(names, ", "))))
}

// finish ends the streamed text and prints the message's components.
func (r *streamRenderer) finish(msg models.Message, actions []models.QuickAction) {
	if r.out.IsJSON() {
		_ = r.out.JSON(msg)
		return
	}
	r.out.Println()
	renderComponents(r.out, msg.Components)
	renderQuickActions(r.out, actions)
}

func renderComponents(out *Output, comps []models.SmartComponent) {
	for _, c := range comps {
		line := summarizeComponent(c)
		if line == "" {
			continue
		}
		out.Printf("  %s %s\n", out.Cyan("["+string(c.Type)+"]"), line)
	}
}

func renderQuickActions(out *Output, actions []models.QuickAction) {
	if len(actions) == 0 {
		return
	}
	labels := make([]string, 0, len(actions))
	for _, a := range actions {
		labels = append(labels, a.Label)
	}
	out.Dim("Try: %s", strings.Join(labels, " | "))
}

// summarizeComponent renders a one-line summary of a component's data.
// Components without data, such as deferred placeholders, yield "".
func summarizeComponent(c models.SmartComponent) string {
	if len(c.Data) == 0 || string(c.Data) == "null" {
		return ""
	}
	var d map[string]any
	if err := json.Unmarshal(c.Data, &d); err != nil {
		return ""
	}

	switch c.Type {
	case models.ComponentStockQuote:
		return fmt.Sprintf("%s %s %s", str(d, "symbol"), utils.FormatUSD(num(d, "currentPrice")), utils.FormatPercent(num(d, "changePercent")))
	case models.ComponentStockComparison:
		var syms []string
		for _, s := range list(d, "stocks") {
			if m, ok := s.(map[string]any); ok {
				syms = append(syms, str(m, "symbol"))
			}
		}
		return strings.Join(syms, " vs ")
	case models.ComponentTechnicalAnalysis:
		ind, _ := d["indicators"].(map[string]any)
		return fmt.Sprintf("%s RSI %.1f, %s trend", str(d, "symbol"), num(ind, "rsi"), str(d, "trend"))
	case models.ComponentNewsSummary:
		return fmt.Sprintf("%d articles", len(list(d, "articles")))
	case models.ComponentMarketAnalysis:
		return fmt.Sprintf("%d indices", len(list(d, "indices")))
	case models.ComponentPositionCalculator:
		return fmt.Sprintf("%s %.0f shares, cost %s", str(d, "symbol"), num(d, "recommendedShares"), utils.FormatUSD(num(d, "totalCost")))
	case models.ComponentPortfolioSummary:
		return fmt.Sprintf("%d positions, value %s", len(list(d, "positions")), utils.FormatUSD(num(d, "totalValue")))
	default:
		if s := str(d, "symbol"); s != "" {
			return s
		}
		return ""
	}
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func num(m map[string]any, key string) float64 {
	f, _ := m[key].(float64)
	return f
}

func list(m map[string]any, key string) []any {
	l, _ := m[key].([]any)
	return l
}
