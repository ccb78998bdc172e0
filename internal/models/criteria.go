package models

// RiskTolerance is the user's appetite for risk.
type RiskTolerance string

const (
	RiskLow    RiskTolerance = "low"
	RiskMedium RiskTolerance = "medium"
	RiskHigh   RiskTolerance = "high"
)

// HoldingPeriod is the intended trade duration.
type HoldingPeriod string

const (
	HoldingShort  HoldingPeriod = "short"  // 1-3 days
	HoldingMedium HoldingPeriod = "medium" // 3-7 days
	HoldingLong   HoldingPeriod = "long"   // 1-2 weeks
)

// Range is an inclusive numeric interval. A non-positive Max is unbounded.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && (r.Max <= 0 || v <= r.Max)
}

// SearchCriteria is a structured trading filter parsed from free text.
type SearchCriteria struct {
	PriceRange     Range         `json:"priceRange"`
	MarketCapRange *Range        `json:"marketCapRange,omitempty"` // millions
	Sectors        []string      `json:"sectors,omitempty"`
	MinVolume      float64       `json:"minVolume,omitempty"` // millions of shares, 10 day average
	RiskTolerance  RiskTolerance `json:"riskTolerance"`
	HoldingPeriod  HoldingPeriod `json:"holdingPeriod"`
}

// DefaultSearchCriteria returns the criteria used when parsing fails or
// leaves fields unset.
func DefaultSearchCriteria() SearchCriteria {
	return SearchCriteria{
		PriceRange:    Range{Min: 10, Max: 500},
		RiskTolerance: RiskMedium,
		HoldingPeriod: HoldingMedium,
	}
}

// Normalize fills missing fields with defaults.
func (c *SearchCriteria) Normalize() {
	def := DefaultSearchCriteria()
	if c.PriceRange.Max <= 0 {
		c.PriceRange.Max = def.PriceRange.Max
	}
	if c.PriceRange.Min <= 0 || c.PriceRange.Min > c.PriceRange.Max {
		c.PriceRange.Min = def.PriceRange.Min
		if c.PriceRange.Min >= c.PriceRange.Max {
			c.PriceRange.Min = 1
		}
		if c.PriceRange.Min > c.PriceRange.Max {
			c.PriceRange.Min = 0
		}
	}
	switch c.RiskTolerance {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		c.RiskTolerance = def.RiskTolerance
	}
	switch c.HoldingPeriod {
	case HoldingShort, HoldingMedium, HoldingLong:
	default:
		c.HoldingPeriod = def.HoldingPeriod
	}
	if c.MarketCapRange != nil && c.MarketCapRange.Max <= 0 && c.MarketCapRange.Min <= 0 {
		c.MarketCapRange = nil
	}
	if c.MinVolume < 0 {
		c.MinVolume = 0
	}
}

// StockSnapshot is the per-symbol input to opportunity analysis.
type StockSnapshot struct {
	Quote   Quote          `json:"quote"`
	Profile CompanyProfile `json:"profile"`
}

// Opportunity is a validated swing-trading setup.
type Opportunity struct {
	Symbol        string        `json:"symbol"`
	Name          string        `json:"name"`
	CurrentPrice  float64       `json:"currentPrice"`
	EntryPrice    float64       `json:"entryPrice"`
	TargetPrice   float64       `json:"targetPrice"`
	StopLoss      float64       `json:"stopLoss"`
	RiskReward    float64       `json:"riskRewardRatio"`
	Confidence    float64       `json:"confidence"`
	HoldingPeriod HoldingPeriod `json:"holdingPeriod"`
	Reasoning     string        `json:"reasoning"`
	Risks         []string      `json:"risks,omitempty"`
}
