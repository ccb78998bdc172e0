package tools

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"quantb/internal/models"
)

type symbolArgs struct {
	Symbol string `json:"symbol"`
	Limit  int    `json:"limit"`
	Days   int    `json:"days"`
}

var errSymbolRequired = errors.New("symbol is required")

// quotePayload is a quote enriched with descriptive profile fields.
type quotePayload struct {
	models.Quote
	Name      string  `json:"name,omitempty"`
	Exchange  string  `json:"exchange,omitempty"`
	Industry  string  `json:"industry,omitempty"`
	MarketCap float64 `json:"marketCap,omitempty"`
	YearHigh  float64 `json:"yearHigh,omitempty"`
	YearLow   float64 `json:"yearLow,omitempty"`

	Recommendation *models.RecommendationTrend `json:"recommendation,omitempty"`
}

func (r *Registry) stockQuote(ctx context.Context, args json.RawMessage) *models.ToolResult {
	var a symbolArgs
	if f := decodeArgs(args, &a); f != nil {
		return failed(f)
	}
	sym := normalizeSymbol(a.Symbol)
	if sym == "" {
		return failure("", errSymbolRequired)
	}

	q, err := r.market.Quote(ctx, sym)
	if err != nil {
		return failure(sym, err)
	}

	payload := quotePayload{Quote: *q}
	// Profile is decoration; the quote stands on its own
	if p, err := r.market.Profile(ctx, sym); err == nil {
		payload.Name = p.Name
		payload.Exchange = p.Exchange
		payload.Industry = p.Industry
		payload.MarketCap = p.MarketCap
		payload.YearHigh = p.YearHigh
		payload.YearLow = p.YearLow
	} else {
		r.logger.Debug().Err(err).Str("symbol", sym).Msg("Profile unavailable for quote")
	}
	if trends, err := r.market.Recommendations(ctx, sym); err == nil && len(trends) > 0 {
		payload.Recommendation = &trends[0]
	}
	return success(models.ComponentStockQuote, payload)
}

type compareArgs struct {
	Symbols []string `json:"symbols"`
}

// comparisonRow is one stock in a comparison.
type comparisonRow struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name,omitempty"`
	CurrentPrice  float64 `json:"currentPrice"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	MarketCap     float64 `json:"marketCap,omitempty"`
	PERatio       float64 `json:"peRatio,omitempty"`
	Beta          float64 `json:"beta,omitempty"`
	DividendYield float64 `json:"dividendYield,omitempty"`
	YearHigh      float64 `json:"yearHigh,omitempty"`
	YearLow       float64 `json:"yearLow,omitempty"`
	Industry      string  `json:"industry,omitempty"`
}

type comparisonPayload struct {
	Stocks []comparisonRow      `json:"stocks"`
	Failed []models.ToolFailure `json:"failed,omitempty"`
}

func (r *Registry) compareStocks(ctx context.Context, args json.RawMessage) *models.ToolResult {
	var a compareArgs
	if f := decodeArgs(args, &a); f != nil {
		return failed(f)
	}

	seen := map[string]bool{}
	var symbols []string
	for _, s := range a.Symbols {
		sym := normalizeSymbol(s)
		if sym != "" && !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) < 2 {
		return failure(strings.Join(symbols, ","), errors.New("at least two symbols are required"))
	}
	if len(symbols) > 5 {
		symbols = symbols[:5]
	}

	rows := make([]*comparisonRow, len(symbols))
	errs := make([]error, len(symbols))
	var wg conc.WaitGroup
	for i, sym := range symbols {
		wg.Go(func() {
			q, err := r.market.Quote(ctx, sym)
			if err != nil {
				errs[i] = err
				return
			}
			row := &comparisonRow{
				Symbol:        sym,
				CurrentPrice:  q.CurrentPrice,
				Change:        q.Change,
				ChangePercent: q.ChangePercent,
			}
			if p, err := r.market.Profile(ctx, sym); err == nil {
				row.Name = p.Name
				row.MarketCap = p.MarketCap
				row.PERatio = p.PERatio
				row.Beta = p.Beta
				row.DividendYield = p.DividendYield
				row.YearHigh = p.YearHigh
				row.YearLow = p.YearLow
				row.Industry = p.Industry
			}
			rows[i] = row
		})
	}
	wg.Wait()

	payload := comparisonPayload{Stocks: []comparisonRow{}}
	for i, row := range rows {
		if row != nil {
			payload.Stocks = append(payload.Stocks, *row)
			continue
		}
		payload.Failed = append(payload.Failed, models.ToolFailure{Error: errs[i].Error(), Symbol: symbols[i]})
	}
	if len(payload.Stocks) == 0 {
		return failure(strings.Join(symbols, ","), errs[0])
	}
	return success(models.ComponentStockComparison, payload)
}

type newsPayload struct {
	Symbol   string               `json:"symbol"`
	Articles []models.NewsArticle `json:"articles"`
}

func (r *Registry) stockNews(ctx context.Context, args json.RawMessage) *models.ToolResult {
	var a symbolArgs
	if f := decodeArgs(args, &a); f != nil {
		return failed(f)
	}
	sym := normalizeSymbol(a.Symbol)
	if sym == "" {
		return failure("", errSymbolRequired)
	}
	limit := a.Limit
	if limit <= 0 || limit > 20 {
		limit = r.cfg.NewsLimit
	}

	articles, err := r.market.CompanyNews(ctx, sym, limit)
	if err != nil {
		return failure(sym, err)
	}
	if articles == nil {
		articles = []models.NewsArticle{}
	}
	return success(models.ComponentNewsSummary, newsPayload{Symbol: sym, Articles: articles})
}

// Index ETFs used as proxies for the major US indices.
var marketIndices = []struct {
	Symbol string
	Name   string
}{
	{"SPY", "S&P 500"},
	{"QQQ", "Nasdaq 100"},
	{"DIA", "Dow Jones"},
	{"IWM", "Russell 2000"},
}

type indexRow struct {
	Name          string  `json:"name"`
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}

type sentiment struct {
	Label string  `json:"label"` // bullish, bearish or neutral
	Score float64 `json:"score"` // average index change percent
}

type marketPayload struct {
	Indices      []indexRow           `json:"indices"`
	Sentiment    sentiment            `json:"sentiment"`
	MarketStatus *models.MarketStatus `json:"marketStatus,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
}

func (r *Registry) marketOverview(ctx context.Context, _ json.RawMessage) *models.ToolResult {
	rows := make([]*indexRow, len(marketIndices))
	var firstErr error
	var mu sync.Mutex
	var wg conc.WaitGroup
	for i, idx := range marketIndices {
		wg.Go(func() {
			q, err := r.market.Quote(ctx, idx.Symbol)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			rows[i] = &indexRow{
				Name:          idx.Name,
				Symbol:        idx.Symbol,
				Price:         q.CurrentPrice,
				Change:        q.Change,
				ChangePercent: q.ChangePercent,
			}
		})
	}
	wg.Wait()

	payload := marketPayload{Indices: []indexRow{}, Timestamp: time.Now()}
	var total float64
	for _, row := range rows {
		if row != nil {
			payload.Indices = append(payload.Indices, *row)
			total += row.ChangePercent
		}
	}
	if len(payload.Indices) == 0 {
		return failure("SPY", firstErr)
	}

	avg := total / float64(len(payload.Indices))
	payload.Sentiment = sentiment{Label: sentimentLabel(avg), Score: math.Round(avg*100) / 100}

	if status, err := r.market.MarketStatus(ctx, "US"); err == nil {
		payload.MarketStatus = status
	}
	return success(models.ComponentMarketAnalysis, payload)
}

func sentimentLabel(avgChange float64) string {
	switch {
	case avgChange > 0.5:
		return "bullish"
	case avgChange < -0.5:
		return "bearish"
	default:
		return "neutral"
	}
}
