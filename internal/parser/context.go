package parser

import (
	"fmt"
	"regexp"
	"strings"

	"quantb/internal/models"
)

var (
	reDollar = regexp.MustCompile(`\$([A-Z]{1,5})\b`)
	reTagged = regexp.MustCompile(`\b([A-Z]{1,5}):|\(([A-Z]{1,5})\)|\[([A-Z]{1,5})\]|"([A-Z]{1,5})"`)
	reBare   = regexp.MustCompile(`\b([A-Z]{2,5})\b`)

	reTimeframe = regexp.MustCompile(`(?i)\b(intraday|today|tomorrow|this week|next week|this month|next month|this quarter|this year|short[- ]term|medium[- ]term|long[- ]term|\d+\s*(?:day|week|month|year)s?)\b`)
)

// stopWords are uppercase tokens that look like tickers but are not.
var stopWords = map[string]bool{
	"A": true, "I": true, "AI": true, "AM": true, "AN": true, "AND": true,
	"ANY": true, "API": true, "ARE": true, "AS": true, "AT": true, "ATH": true,
	"ATR": true, "BE": true, "BUY": true, "BY": true, "CEO": true, "CFO": true,
	"CPI": true, "DCF": true, "DO": true, "EBIT": true, "EMA": true, "EPS": true,
	"EST": true, "ET": true, "ETF": true, "EV": true, "FAQ": true, "FED": true,
	"FOMC": true, "FOR": true, "FYI": true, "GDP": true, "HIGH": true, "HOLD": true,
	"HOW": true, "HTTP": true, "IF": true, "IMO": true, "IN": true, "IPO": true,
	"IS": true, "IT": true, "JSON": true, "LONG": true, "LOW": true, "MACD": true,
	"ME": true, "MTD": true, "MY": true, "NAV": true, "NO": true, "NOT": true,
	"NOTE": true, "NYSE": true, "OF": true, "OK": true, "ON": true, "OR": true,
	"PE": true, "PM": true, "PT": true, "QOQ": true, "RISK": true, "ROE": true,
	"ROI": true, "RSI": true, "SEC": true, "SELL": true, "SHORT": true, "SMA": true,
	"SO": true, "THE": true, "THIS": true, "TL": true, "DR": true, "TO": true,
	"TTM": true, "UP": true, "URL": true, "US": true, "USA": true, "USD": true,
	"VWAP": true, "WE": true, "WHAT": true, "WITH": true, "YOY": true, "YTD": true,
}

// ExtractSymbols returns the ticker symbols mentioned in text, in order of
// first appearance. $-prefixed tickers are trusted as written; every other
// form is filtered against common uppercase words.
func ExtractSymbols(text string) []string {
	type hit struct {
		pos int
		sym string
	}
	var hits []hit

	for _, m := range reDollar.FindAllStringSubmatchIndex(text, -1) {
		hits = append(hits, hit{m[0], text[m[2]:m[3]]})
	}
	for _, m := range reTagged.FindAllStringSubmatchIndex(text, -1) {
		for g := 1; g <= 4; g++ {
			if m[2*g] >= 0 {
				if sym := text[m[2*g]:m[2*g+1]]; !stopWords[sym] {
					hits = append(hits, hit{m[0], sym})
				}
			}
		}
	}
	for _, m := range reBare.FindAllStringSubmatchIndex(text, -1) {
		if sym := text[m[2]:m[3]]; !stopWords[sym] {
			hits = append(hits, hit{m[0], sym})
		}
	}

	// Insertion sort keeps equal positions in discovery order.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	seen := map[string]bool{}
	symbols := []string{}
	for _, h := range hits {
		if !seen[h.sym] {
			seen[h.sym] = true
			symbols = append(symbols, h.sym)
		}
	}
	return symbols
}

type keywordSet struct {
	intent   models.Intent
	keywords []string
}

// intentRules are checked in precedence order.
var intentRules = []keywordSet{
	{models.IntentTrading, []string{"buy", "sell", "trade", "entry", "stop loss", "stop-loss", "position size", "take profit", "go long", "go short", "swing"}},
	{models.IntentLearning, []string{"explain", "what is", "what are", "what does", "how does", "how do", "teach", "learn", "meaning of", "define"}},
	{models.IntentMonitoring, []string{"watch", "alert", "monitor", "track", "notify", "keep an eye"}},
	{models.IntentAnalysis, []string{"analy", "technical", "indicator", "rsi", "macd", "compare", "comparison", "valuation", "chart", "trend", "outlook"}},
}

var topicRules = []struct {
	topic    string
	keywords []string
}{
	{"earnings", []string{"earnings", "eps", "revenue", "quarterly", "guidance"}},
	{"technical", []string{"rsi", "macd", "technical", "indicator", "support", "resistance", "moving average", "bollinger", "chart"}},
	{"news", []string{"news", "headline", "announce", "press release"}},
	{"valuation", []string{"valuation", "p/e", "pe ratio", "overvalued", "undervalued", "price target", "dcf", "market cap"}},
	{"dividend", []string{"dividend", "yield", "payout"}},
	{"options", []string{"options", "call option", "put option", "strike", "expiry", "expiration"}},
	{"crypto", []string{"crypto", "bitcoin", "btc", "ethereum", "ether "}},
}

// ClassifyIntent returns the highest-precedence intent whose keywords
// appear in text. Unmatched text is research.
func ClassifyIntent(text string) models.Intent {
	lower := strings.ToLower(text)
	for _, rule := range intentRules {
		if containsAny(lower, rule.keywords) {
			return rule.intent
		}
	}
	return models.IntentResearch
}

// ExtractContext derives the per-message context from text.
func ExtractContext(text string) models.MessageContext {
	lower := strings.ToLower(text)

	topics := []string{}
	for _, rule := range topicRules {
		if containsAny(lower, rule.keywords) {
			topics = append(topics, rule.topic)
		}
	}

	ctx := models.MessageContext{
		Intent:    ClassifyIntent(text),
		Symbols:   ExtractSymbols(text),
		Topics:    topics,
		RiskLevel: riskLevel(lower),
	}
	if m := reTimeframe.FindString(text); m != "" {
		ctx.Timeframe = strings.ToLower(m)
	}
	return ctx
}

func riskLevel(lower string) string {
	switch {
	case containsAny(lower, []string{"aggressive", "high risk", "high-risk", "risky", "speculative"}):
		return "high"
	case containsAny(lower, []string{"conservative", "low risk", "low-risk", "safe"}):
		return "low"
	case containsAny(lower, []string{"moderate", "medium risk", "balanced"}):
		return "medium"
	}
	return ""
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// quickActions suggests follow-up prompts for the message context.
func (p *Parser) quickActions(ctx models.MessageContext) []models.QuickAction {
	action := func(label, prompt string) models.QuickAction {
		return models.QuickAction{ID: p.newID(), Label: label, Prompt: prompt}
	}

	if len(ctx.Symbols) == 0 {
		return []models.QuickAction{
			action("Market overview", "Give me a market overview"),
			action("Find trades", "Find swing trade opportunities in large cap tech stocks"),
		}
	}

	sym := ctx.Symbols[0]
	actions := []models.QuickAction{
		action("Technicals", fmt.Sprintf("Show the technical analysis for %s", sym)),
		action("News", fmt.Sprintf("What is the latest news on %s?", sym)),
	}
	switch {
	case ctx.Intent == models.IntentTrading:
		actions = append(actions, action("Position size", fmt.Sprintf("Calculate a position size for %s risking 1%% of my account", sym)))
	case len(ctx.Symbols) > 1:
		actions = append(actions, action("Compare", fmt.Sprintf("Compare %s", strings.Join(ctx.Symbols, ", "))))
	default:
		actions = append(actions, action("Quote", fmt.Sprintf("Get a quote for %s", sym)))
	}
	return actions
}
