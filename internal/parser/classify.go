package parser

import (
	"encoding/json"

	"quantb/internal/models"
)

var priorities = map[models.ComponentType]int{
	models.ComponentMarketAnalysis:     10,
	models.ComponentStockQuote:         9,
	models.ComponentStockComparison:    8,
	models.ComponentTechnicalAnalysis:  7,
	models.ComponentPriceChart:         7,
	models.ComponentNewsSummary:        6,
	models.ComponentSentimentGauge:     6,
	models.ComponentPositionCalculator: 5,
	models.ComponentPortfolioSummary:   4,
}

var interactive = map[models.ComponentType]bool{
	models.ComponentStockQuote:         true,
	models.ComponentStockComparison:    true,
	models.ComponentTechnicalAnalysis:  true,
	models.ComponentPriceChart:         true,
	models.ComponentPositionCalculator: true,
	models.ComponentPortfolioSummary:   true,
}

// Priority returns the sort priority of a component type; unknown types
// sort last.
func Priority(t models.ComponentType) int {
	return priorities[t]
}

// IsKnownType reports whether t is a renderable component type.
func IsKnownType(t models.ComponentType) bool {
	_, ok := priorities[t]
	return ok
}

// Classify infers a component type from the shape of an untagged payload.
// The checks run in a fixed order and the first match wins.
func Classify(data json.RawMessage) (models.ComponentType, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return "", false
	}

	switch {
	case present(obj, "indices") && present(obj, "sentiment"):
		return models.ComponentMarketAnalysis, true
	case isArray(obj["stocks"]):
		return models.ComponentStockComparison, true
	case hasIndicator(obj["indicators"]):
		return models.ComponentTechnicalAnalysis, true
	case isArray(obj["articles"]):
		return models.ComponentNewsSummary, true
	case present(obj, "symbol") && present(obj, "currentPrice"):
		return models.ComponentStockQuote, true
	case present(obj, "recommendedShares") && present(obj, "totalCost"):
		return models.ComponentPositionCalculator, true
	case present(obj, "positions") || present(obj, "totalValue"):
		return models.ComponentPortfolioSummary, true
	}
	return "", false
}

func present(obj map[string]json.RawMessage, key string) bool {
	v, ok := obj[key]
	return ok && string(v) != "null"
}

func isArray(v json.RawMessage) bool {
	var arr []json.RawMessage
	return len(v) > 0 && json.Unmarshal(v, &arr) == nil && arr != nil
}

func hasIndicator(v json.RawMessage) bool {
	if len(v) == 0 {
		return false
	}
	var ind map[string]json.RawMessage
	if err := json.Unmarshal(v, &ind); err != nil {
		return false
	}
	return present(ind, "rsi") || present(ind, "macd")
}
