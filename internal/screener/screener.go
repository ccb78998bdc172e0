// Package screener finds swing-trading opportunities from a free-text
// request: it parses criteria, scans a sector universe against market data
// and asks the completion provider to analyze the survivors.
package screener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	apperrors "quantb/internal/errors"
	"quantb/internal/logging"
	"quantb/internal/models"
	"quantb/pkg/utils"
)

// MarketData is the subset of the market-data client the screener needs.
type MarketData interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
	Profile(ctx context.Context, symbol string) (*models.CompanyProfile, error)
}

// Analyzer parses criteria and ranks opportunities.
type Analyzer interface {
	ParsePrompt(ctx context.Context, text string) models.SearchCriteria
	AnalyzeStocks(ctx context.Context, stocks []models.StockSnapshot, criteria models.SearchCriteria) ([]models.Opportunity, error)
}

// Config holds screener settings.
type Config struct {
	// PacingDelay separates sequential upstream calls.
	PacingDelay time.Duration
	// MaxCandidates caps the symbols scanned per request. Zero scans all.
	MaxCandidates int
}

// Screener runs screening requests.
type Screener struct {
	market   MarketData
	analyzer Analyzer
	cfg      Config
	logger   zerolog.Logger
}

// New creates a Screener.
func New(market MarketData, analyzer Analyzer, cfg Config, logger zerolog.Logger) *Screener {
	return &Screener{
		market:   market,
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger.With().Str("component", "screener").Logger(),
	}
}

// Skipped records a candidate that was not analyzed.
type Skipped struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// Result is the outcome of one screening request.
type Result struct {
	Criteria      models.SearchCriteria `json:"criteria"`
	Scanned       int                   `json:"scanned"`
	Matched       int                   `json:"matched"`
	Opportunities []models.Opportunity  `json:"opportunities"`
	Skipped       []Skipped             `json:"skipped,omitempty"`
	DurationMs    int64                 `json:"durationMs"`
}

// Screen parses prompt into criteria, scans candidates sequentially with
// the configured pacing, filters them and analyzes the matches.
func (s *Screener) Screen(ctx context.Context, prompt string) (*Result, error) {
	start := time.Now()
	logger := logging.WithOperation(s.logger, "screen")

	criteria := s.analyzer.ParsePrompt(ctx, prompt)
	symbols := Candidates(criteria.Sectors)
	if s.cfg.MaxCandidates > 0 && len(symbols) > s.cfg.MaxCandidates {
		symbols = symbols[:s.cfg.MaxCandidates]
	}

	logger.Info().
		Strs("sectors", criteria.Sectors).
		Float64("min_price", criteria.PriceRange.Min).
		Float64("max_price", criteria.PriceRange.Max).
		Int("candidates", len(symbols)).
		Msg("Screening")

	result := &Result{Criteria: criteria, Opportunities: []models.Opportunity{}}
	var matched []models.StockSnapshot

	for i, sym := range symbols {
		if i > 0 {
			if err := utils.Pace(ctx, s.cfg.PacingDelay); err != nil {
				return nil, err
			}
		}

		snap, err := s.snapshot(ctx, sym)
		result.Scanned++
		if err != nil {
			if fatal(ctx, err) {
				return nil, fmt.Errorf("screening %s: %w", sym, err)
			}
			symLogger := logging.WithSymbol(logger, sym)
			symLogger.Debug().Err(err).Msg("Skipping candidate")
			result.Skipped = append(result.Skipped, Skipped{Symbol: sym, Reason: logging.Redact(err.Error())})
			continue
		}

		if rej := Match(*snap, criteria); rej != nil {
			result.Skipped = append(result.Skipped, Skipped{Symbol: sym, Reason: rej.Error()})
			continue
		}
		matched = append(matched, *snap)
	}
	result.Matched = len(matched)

	if len(matched) > 0 {
		opps, err := s.analyzer.AnalyzeStocks(ctx, matched, criteria)
		if err != nil {
			return nil, fmt.Errorf("analyzing %d stocks: %w", len(matched), err)
		}
		if opps != nil {
			result.Opportunities = opps
		}
	}

	elapsed := time.Since(start)
	result.DurationMs = elapsed.Milliseconds()
	logger.Info().
		Int("scanned", result.Scanned).
		Int("matched", result.Matched).
		Int("opportunities", len(result.Opportunities)).
		Dur("duration", elapsed).
		Msg("Screening complete")
	return result, nil
}

func (s *Screener) snapshot(ctx context.Context, sym string) (*models.StockSnapshot, error) {
	q, err := s.market.Quote(ctx, sym)
	if err != nil {
		return nil, err
	}
	if err := utils.Pace(ctx, s.cfg.PacingDelay); err != nil {
		return nil, err
	}
	p, err := s.market.Profile(ctx, sym)
	if err != nil {
		return nil, err
	}
	return &models.StockSnapshot{Quote: *q, Profile: *p}, nil
}

// fatal reports errors that would fail every remaining candidate too.
func fatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, apperrors.ErrInvalidCredentials) ||
		errors.Is(err, apperrors.ErrNotConfigured) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
