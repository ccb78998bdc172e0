// Package tools implements the functions the assistant model may call and
// dispatches tool calls to them.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"quantb/internal/analysis/indicators"
	apperrors "quantb/internal/errors"
	"quantb/internal/logging"
	"quantb/internal/models"
)

// MarketData is the market-data surface the tools depend on.
type MarketData interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
	Profile(ctx context.Context, symbol string) (*models.CompanyProfile, error)
	CompanyNews(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error)
	Recommendations(ctx context.Context, symbol string) ([]models.RecommendationTrend, error)
	MarketStatus(ctx context.Context, exchange string) (*models.MarketStatus, error)
	Candles(ctx context.Context, symbol string, days int) ([]models.Candle, error)
}

// Holdings lists the user's saved positions.
type Holdings interface {
	ListHoldings(ctx context.Context) ([]models.Holding, error)
}

// Config holds tool defaults.
type Config struct {
	DefaultAccountSize float64
	DefaultRiskPercent float64
	NewsLimit          int
	CandleDays         int
}

// Registry executes tool calls against market data.
type Registry struct {
	market   MarketData
	holdings Holdings
	engine   *indicators.Engine
	cfg      Config
	logger   zerolog.Logger
}

// NewRegistry creates a tool registry. holdings may be nil.
func NewRegistry(market MarketData, holdings Holdings, cfg Config, logger zerolog.Logger) *Registry {
	if cfg.DefaultAccountSize <= 0 {
		cfg.DefaultAccountSize = 10000
	}
	if cfg.DefaultRiskPercent <= 0 {
		cfg.DefaultRiskPercent = 1
	}
	if cfg.NewsLimit <= 0 {
		cfg.NewsLimit = 5
	}
	if cfg.CandleDays <= 0 {
		cfg.CandleDays = 120
	}
	return &Registry{
		market:   market,
		holdings: holdings,
		engine:   indicators.NewDefaultEngine(),
		cfg:      cfg,
		logger:   logger.With().Str("component", "tools").Logger(),
	}
}

type handler func(r *Registry, ctx context.Context, args json.RawMessage) *models.ToolResult

var handlers = map[string]handler{
	ToolStockQuote:         (*Registry).stockQuote,
	ToolCompareStocks:      (*Registry).compareStocks,
	ToolStockNews:          (*Registry).stockNews,
	ToolTechnicalAnalysis:  (*Registry).technicalAnalysis,
	ToolPortfolioSummary:   (*Registry).portfolioSummary,
	ToolPositionCalculator: (*Registry).positionSize,
	ToolMarketOverview:     (*Registry).marketOverview,
}

// Execute runs the named tool. An unknown name or undecodable arguments
// are fatal; upstream failures come back as a result with Err set.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (*models.ToolResult, error) {
	h, ok := handlers[name]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrUnknownTool, "%q", name)
	}

	args = bytes.TrimSpace(args)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(args, &probe); err != nil {
		return nil, apperrors.NewToolError(name, "", apperrors.NewValidationError("arguments", string(args), err.Error()))
	}

	res := h(r, ctx, args)
	res.Tool = name
	return res, nil
}

// decodeArgs decodes into v; a type mismatch is reported as a tool failure
// so the model can correct itself.
func decodeArgs(args json.RawMessage, v any) *models.ToolFailure {
	if err := json.Unmarshal(args, v); err != nil {
		return &models.ToolFailure{Error: "invalid arguments: " + err.Error()}
	}
	return nil
}

func success(kind models.ComponentType, payload any) *models.ToolResult {
	data, err := json.Marshal(payload)
	if err != nil {
		return &models.ToolResult{Err: &models.ToolFailure{Error: "encoding result: " + err.Error()}}
	}
	return &models.ToolResult{Kind: kind, Data: data}
}

func failure(symbol string, err error) *models.ToolResult {
	return &models.ToolResult{Err: &models.ToolFailure{
		Error:  logging.Redact(err.Error()),
		Symbol: symbol,
	}}
}

func failed(f *models.ToolFailure) *models.ToolResult {
	return &models.ToolResult{Err: f}
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$")))
}
