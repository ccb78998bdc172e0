package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "quantb/internal/errors"
	"quantb/internal/models"
)

// Opportunity validation thresholds.
const (
	MaxEntryDeviation = 0.03  // entry within 3% of the current price
	MinRiskReward     = 2.0   // at least 2:1
	MinConfidence     = 60.0  // percent
	MaxStopLoss       = -0.10 // stop no worse than -10% from entry
)

// Provider turns free text into criteria and stock snapshots into
// validated opportunities. A nil Completer limits it to the heuristic
// criteria parser.
type Provider struct {
	completer Completer
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewProvider creates a Provider.
func NewProvider(completer Completer, timeout time.Duration, logger zerolog.Logger) *Provider {
	return &Provider{
		completer: completer,
		timeout:   timeout,
		logger:    logger.With().Str("component", "llm").Logger(),
	}
}

// Completer returns the underlying completion backend, which may be nil.
func (p *Provider) Completer() Completer {
	return p.completer
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}

const parsePromptTemplate = `Convert the following stock screening request into JSON.

Request: %q

Respond with a single JSON object using exactly these keys:
{
  "priceRange": {"min": number, "max": number},
  "marketCapRange": {"min": number, "max": number} or null (millions of USD),
  "sectors": [string] or null,
  "minVolume": number or null (millions of shares per day),
  "riskTolerance": "low" | "medium" | "high",
  "holdingPeriod": "short" | "medium" | "long"
}
Use null for anything the request does not mention.`

// llmCriteria mirrors SearchCriteria with optional fields so absent keys
// can be told apart from zero values.
type llmCriteria struct {
	PriceRange     *models.Range `json:"priceRange"`
	MarketCapRange *models.Range `json:"marketCapRange"`
	Sectors        []string      `json:"sectors"`
	MinVolume      *float64      `json:"minVolume"`
	RiskTolerance  *string       `json:"riskTolerance"`
	HoldingPeriod  *string       `json:"holdingPeriod"`
}

// ParsePrompt converts free text into SearchCriteria. It never fails:
// model errors and malformed output fall back to the heuristic parse,
// which itself falls back to the default criteria.
func (p *Provider) ParsePrompt(ctx context.Context, text string) models.SearchCriteria {
	criteria := ParseCriteriaHeuristic(text)
	if p.completer == nil || strings.TrimSpace(text) == "" {
		return criteria
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	raw, err := p.completer.GenerateCompletion(ctx, fmt.Sprintf(parsePromptTemplate, text), FormatJSON)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Criteria parsing failed, using heuristic")
		return criteria
	}

	var parsed llmCriteria
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		p.logger.Warn().Err(apperrors.NewParseError("criteria", raw, err)).Msg("Malformed criteria JSON, using heuristic")
		return criteria
	}

	if parsed.PriceRange != nil {
		criteria.PriceRange = *parsed.PriceRange
	}
	if parsed.MarketCapRange != nil {
		criteria.MarketCapRange = parsed.MarketCapRange
	}
	if len(parsed.Sectors) > 0 {
		criteria.Sectors = parsed.Sectors
	}
	if parsed.MinVolume != nil {
		criteria.MinVolume = *parsed.MinVolume
	}
	if parsed.RiskTolerance != nil {
		criteria.RiskTolerance = models.RiskTolerance(strings.ToLower(*parsed.RiskTolerance))
	}
	if parsed.HoldingPeriod != nil {
		criteria.HoldingPeriod = models.HoldingPeriod(strings.ToLower(*parsed.HoldingPeriod))
	}
	criteria.Normalize()
	return criteria
}

const analyzeTemplate = `You are a swing trading analyst. Evaluate these stocks against the criteria
and propose long entries only where a setup exists.

Criteria: %s

Stocks: %s

Rules:
- entryPrice within 3%% of currentPrice
- riskRewardRatio of at least 2
- stopLoss no more than 10%% below entryPrice
- confidence from 0 to 100; omit setups below 60

Respond with JSON: {"opportunities": [{"symbol", "name", "currentPrice", "entryPrice",
"targetPrice", "stopLoss", "riskRewardRatio", "confidence", "holdingPeriod", "reasoning", "risks": [string]}]}`

// AnalyzeStocks asks the model for trade setups and returns only those
// that pass ValidateOpportunity, highest confidence first.
func (p *Provider) AnalyzeStocks(ctx context.Context, stocks []models.StockSnapshot, criteria models.SearchCriteria) ([]models.Opportunity, error) {
	if len(stocks) == 0 {
		return []models.Opportunity{}, nil
	}
	if p.completer == nil {
		return nil, apperrors.Wrap(apperrors.ErrNotConfigured, "analyze stocks")
	}

	critJSON, _ := json.Marshal(criteria)
	stocksJSON, _ := json.Marshal(stocks)

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	raw, err := p.completer.GenerateCompletion(ctx, fmt.Sprintf(analyzeTemplate, critJSON, stocksJSON), FormatJSON)
	if err != nil {
		return nil, apperrors.Wrap(err, "analyze stocks")
	}

	candidates, err := decodeOpportunities(raw)
	if err != nil {
		return nil, apperrors.NewParseError("opportunities", raw, err)
	}

	return FilterOpportunities(candidates, stocks, criteria, p.logger), nil
}

func decodeOpportunities(raw string) ([]models.Opportunity, error) {
	body := stripCodeFence(raw)

	var wrapped struct {
		Opportunities []models.Opportunity `json:"opportunities"`
	}
	if err := json.Unmarshal([]byte(body), &wrapped); err == nil {
		return wrapped.Opportunities, nil
	}

	var list []models.Opportunity
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// FilterOpportunities validates candidates against the live prices in
// stocks, drops the rest silently and sorts by confidence. Candidates for
// symbols that were not analyzed are dropped, so every check runs against
// a fetched price.
func FilterOpportunities(candidates []models.Opportunity, stocks []models.StockSnapshot, criteria models.SearchCriteria, logger zerolog.Logger) []models.Opportunity {
	prices := make(map[string]models.StockSnapshot, len(stocks))
	for _, s := range stocks {
		prices[strings.ToUpper(s.Quote.Symbol)] = s
	}

	out := make([]models.Opportunity, 0, len(candidates))
	for _, o := range candidates {
		o.Symbol = strings.ToUpper(strings.TrimSpace(o.Symbol))
		snap, ok := prices[o.Symbol]
		if !ok {
			logger.Debug().Str("symbol", o.Symbol).Msg("Dropping opportunity for a symbol that was not analyzed")
			continue
		}
		o.CurrentPrice = snap.Quote.CurrentPrice
		if o.Name == "" {
			o.Name = snap.Profile.Name
		}
		if o.HoldingPeriod == "" {
			o.HoldingPeriod = criteria.HoldingPeriod
		}
		if err := ValidateOpportunity(&o); err != nil {
			logger.Debug().Str("symbol", o.Symbol).Err(err).Msg("Dropping opportunity")
			continue
		}
		out = append(out, o)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// ValidateOpportunity enforces the trade-setup rules and recomputes the
// risk/reward ratio from prices.
func ValidateOpportunity(o *models.Opportunity) error {
	if o.Symbol == "" {
		return apperrors.NewValidationError("symbol", o.Symbol, "missing")
	}
	for name, v := range map[string]float64{
		"currentPrice": o.CurrentPrice,
		"entryPrice":   o.EntryPrice,
		"targetPrice":  o.TargetPrice,
		"stopLoss":     o.StopLoss,
		"confidence":   o.Confidence,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return apperrors.NewValidationError(name, v, "not a finite number")
		}
	}
	if o.CurrentPrice <= 0 || o.EntryPrice <= 0 {
		return apperrors.NewValidationError("price", o.EntryPrice, "must be positive")
	}
	if math.Abs(o.EntryPrice-o.CurrentPrice)/o.CurrentPrice > MaxEntryDeviation {
		return apperrors.NewValidationError("entryPrice", o.EntryPrice, "more than 3% from current price")
	}
	if o.StopLoss <= 0 || o.StopLoss >= o.EntryPrice || o.TargetPrice <= o.EntryPrice {
		return apperrors.NewValidationError("levels", o.StopLoss, "stop must sit below entry and target above it")
	}
	if (o.StopLoss-o.EntryPrice)/o.EntryPrice < MaxStopLoss {
		return apperrors.NewValidationError("stopLoss", o.StopLoss, "more than 10% below entry")
	}

	rr := (o.TargetPrice - o.EntryPrice) / (o.EntryPrice - o.StopLoss)
	if rr < MinRiskReward {
		return apperrors.NewValidationError("riskRewardRatio", rr, "below 2:1")
	}
	if o.Confidence < MinConfidence || o.Confidence > 100 {
		return apperrors.NewValidationError("confidence", o.Confidence, "below 60 or above 100")
	}
	o.RiskReward = math.Floor(rr*100) / 100
	return nil
}

// stripCodeFence removes a surrounding ``` block some models add to JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
