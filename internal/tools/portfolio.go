package tools

import (
	"context"
	"encoding/json"
	"errors"
	"math"

	"github.com/sourcegraph/conc"

	"quantb/internal/models"
)

type portfolioArgs struct {
	Positions []models.Holding `json:"positions"`
}

type positionRow struct {
	Symbol          string  `json:"symbol"`
	Shares          float64 `json:"shares"`
	AverageCost     float64 `json:"averageCost"`
	CurrentPrice    float64 `json:"currentPrice"`
	MarketValue     float64 `json:"marketValue"`
	CostBasis       float64 `json:"costBasis"`
	GainLoss        float64 `json:"gainLoss"`
	GainLossPercent float64 `json:"gainLossPercent"`
	DayChange       float64 `json:"dayChange"`
	Weight          float64 `json:"weight"`
	Error           string  `json:"error,omitempty"`
}

type portfolioPayload struct {
	Positions            []positionRow `json:"positions"`
	TotalValue           float64       `json:"totalValue"`
	TotalCost            float64       `json:"totalCost"`
	TotalGainLoss        float64       `json:"totalGainLoss"`
	TotalGainLossPercent float64       `json:"totalGainLossPercent"`
	DayChange            float64       `json:"dayChange"`
	Source               string        `json:"source"` // arguments or holdings
}

func (r *Registry) portfolioSummary(ctx context.Context, args json.RawMessage) *models.ToolResult {
	var a portfolioArgs
	if f := decodeArgs(args, &a); f != nil {
		return failed(f)
	}

	positions := a.Positions
	source := "arguments"
	if len(positions) == 0 {
		source = "holdings"
		if r.holdings != nil {
			saved, err := r.holdings.ListHoldings(ctx)
			if err != nil {
				return failure("", err)
			}
			positions = saved
		}
	}

	rows := make([]positionRow, len(positions))
	var wg conc.WaitGroup
	for i, p := range positions {
		wg.Go(func() {
			row := positionRow{
				Symbol:      normalizeSymbol(p.Symbol),
				Shares:      p.Shares,
				AverageCost: p.AverageCost,
				CostBasis:   round2(p.Shares * p.AverageCost),
			}
			q, err := r.market.Quote(ctx, row.Symbol)
			if err != nil {
				row.Error = err.Error()
				rows[i] = row
				return
			}
			row.CurrentPrice = q.CurrentPrice
			row.MarketValue = round2(p.Shares * q.CurrentPrice)
			row.DayChange = round2(p.Shares * q.Change)
			if p.AverageCost > 0 {
				row.GainLoss = round2(row.MarketValue - row.CostBasis)
				row.GainLossPercent = round2((q.CurrentPrice - p.AverageCost) / p.AverageCost * 100)
			}
			rows[i] = row
		})
	}
	wg.Wait()

	payload := portfolioPayload{Positions: rows, Source: source}
	for _, row := range rows {
		if row.Error != "" {
			continue
		}
		payload.TotalValue += row.MarketValue
		payload.DayChange += row.DayChange
		if row.AverageCost > 0 {
			payload.TotalCost += row.CostBasis
			payload.TotalGainLoss += row.GainLoss
		}
	}
	for i := range payload.Positions {
		if payload.TotalValue > 0 && payload.Positions[i].Error == "" {
			payload.Positions[i].Weight = round2(payload.Positions[i].MarketValue / payload.TotalValue * 100)
		}
	}
	payload.TotalValue = round2(payload.TotalValue)
	payload.TotalCost = round2(payload.TotalCost)
	payload.TotalGainLoss = round2(payload.TotalGainLoss)
	payload.DayChange = round2(payload.DayChange)
	if payload.TotalCost > 0 {
		payload.TotalGainLossPercent = round2(payload.TotalGainLoss / payload.TotalCost * 100)
	}
	return success(models.ComponentPortfolioSummary, payload)
}

type positionArgs struct {
	Symbol      string  `json:"symbol"`
	EntryPrice  float64 `json:"entryPrice"`
	StopLoss    float64 `json:"stopLoss"`
	TargetPrice float64 `json:"targetPrice"`
	AccountSize float64 `json:"accountSize"`
	RiskPercent float64 `json:"riskPercent"`
}

// PositionSize is the result of the position size calculation.
type PositionSize struct {
	Symbol            string  `json:"symbol,omitempty"`
	EntryPrice        float64 `json:"entryPrice"`
	StopLoss          float64 `json:"stopLoss"`
	TargetPrice       float64 `json:"targetPrice,omitempty"`
	AccountSize       float64 `json:"accountSize"`
	RiskPercent       float64 `json:"riskPercent"`
	RiskAmount        float64 `json:"riskAmount"`
	RiskPerShare      float64 `json:"riskPerShare"`
	RecommendedShares int64   `json:"recommendedShares"`
	TotalCost         float64 `json:"totalCost"`
	PotentialLoss     float64 `json:"potentialLoss"`
	PotentialProfit   float64 `json:"potentialProfit,omitempty"`
	RiskRewardRatio   float64 `json:"riskRewardRatio,omitempty"`
	CappedByAccount   bool    `json:"cappedByAccount"`
}

var errInvalidLevels = errors.New("entryPrice and stopLoss must be positive and different")

// CalculatePositionSize sizes a trade so that a stop-out loses at most
// riskPercent of accountSize, never spending more than the account.
func CalculatePositionSize(entry, stop, target, accountSize, riskPercent float64) (*PositionSize, error) {
	if entry <= 0 || stop <= 0 || entry == stop {
		return nil, errInvalidLevels
	}
	if accountSize <= 0 {
		return nil, errors.New("accountSize must be positive")
	}
	if riskPercent <= 0 || riskPercent > 100 {
		return nil, errors.New("riskPercent must be between 0 and 100")
	}

	riskAmount := accountSize * riskPercent / 100
	riskPerShare := math.Abs(entry - stop)
	shares := int64(math.Floor(riskAmount / riskPerShare))

	ps := &PositionSize{
		EntryPrice:   entry,
		StopLoss:     stop,
		AccountSize:  accountSize,
		RiskPercent:  riskPercent,
		RiskAmount:   round2(riskAmount),
		RiskPerShare: round2(riskPerShare),
	}

	if maxShares := int64(math.Floor(accountSize / entry)); shares > maxShares {
		shares = maxShares
		ps.CappedByAccount = true
	}
	ps.RecommendedShares = shares
	ps.TotalCost = round2(float64(shares) * entry)
	ps.PotentialLoss = round2(float64(shares) * riskPerShare)

	if target > 0 && target != entry {
		ps.TargetPrice = target
		ps.PotentialProfit = round2(float64(shares) * math.Abs(target-entry))
		ps.RiskRewardRatio = round2(math.Abs(target-entry) / riskPerShare)
	}
	return ps, nil
}

func (r *Registry) positionSize(_ context.Context, args json.RawMessage) *models.ToolResult {
	var a positionArgs
	if f := decodeArgs(args, &a); f != nil {
		return failed(f)
	}
	sym := normalizeSymbol(a.Symbol)
	if a.AccountSize <= 0 {
		a.AccountSize = r.cfg.DefaultAccountSize
	}
	if a.RiskPercent <= 0 {
		a.RiskPercent = r.cfg.DefaultRiskPercent
	}

	ps, err := CalculatePositionSize(a.EntryPrice, a.StopLoss, a.TargetPrice, a.AccountSize, a.RiskPercent)
	if err != nil {
		return failure(sym, err)
	}
	ps.Symbol = sym
	return success(models.ComponentPositionCalculator, ps)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
