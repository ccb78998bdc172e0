package llm

import (
	"testing"

	"quantb/internal/models"
)

func TestParseCriteriaHeuristic(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		price   models.Range
		risk    models.RiskTolerance
		holding models.HoldingPeriod
		sectors []string
		capMin  float64
	}{
		{
			name:    "aggressive large cap range",
			text:    "aggressive large cap energy plays between $20 and $80",
			price:   models.Range{Min: 20, Max: 80},
			risk:    models.RiskHigh,
			holding: models.HoldingMedium,
			sectors: []string{"Energy"},
			capMin:  10000,
		},
		{
			name:    "cheap short term",
			text:    "short-term healthcare and biotech trades under 5",
			price:   models.Range{Min: 1, Max: 5},
			risk:    models.RiskMedium,
			holding: models.HoldingShort,
			sectors: []string{"Healthcare"},
		},
		{
			name:    "floor only",
			text:    "safe long term semiconductors above $600",
			price:   models.Range{Min: 600, Max: 3000},
			risk:    models.RiskLow,
			holding: models.HoldingLong,
			sectors: []string{"Technology"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ParseCriteriaHeuristic(tt.text)
			if c.PriceRange != tt.price {
				t.Errorf("price = %+v, want %+v", c.PriceRange, tt.price)
			}
			if c.RiskTolerance != tt.risk {
				t.Errorf("risk = %s, want %s", c.RiskTolerance, tt.risk)
			}
			if c.HoldingPeriod != tt.holding {
				t.Errorf("holding = %s, want %s", c.HoldingPeriod, tt.holding)
			}
			if len(c.Sectors) != len(tt.sectors) {
				t.Fatalf("sectors = %v, want %v", c.Sectors, tt.sectors)
			}
			for i := range tt.sectors {
				if c.Sectors[i] != tt.sectors[i] {
					t.Errorf("sectors = %v, want %v", c.Sectors, tt.sectors)
				}
			}
			if tt.capMin > 0 && (c.MarketCapRange == nil || c.MarketCapRange.Min != tt.capMin) {
				t.Errorf("market cap = %+v, want min %v", c.MarketCapRange, tt.capMin)
			}
		})
	}
}
