package screener

import (
	"fmt"
	"strings"

	"quantb/internal/models"
)

// FilterType names a screening condition.
type FilterType string

const (
	FilterPrice     FilterType = "price"
	FilterMarketCap FilterType = "market_cap"
	FilterVolume    FilterType = "volume"
	FilterSector    FilterType = "sector"
)

// Rejection explains why a snapshot failed a filter.
type Rejection struct {
	Filter FilterType `json:"filter"`
	Reason string     `json:"reason"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Filter, r.Reason)
}

// Match applies every criteria filter to snap with AND logic and returns
// the first failing one, or nil.
func Match(snap models.StockSnapshot, c models.SearchCriteria) *Rejection {
	price := snap.Quote.CurrentPrice
	if !c.PriceRange.Contains(price) {
		return &Rejection{FilterPrice, fmt.Sprintf("price %.2f outside %.2f-%.2f", price, c.PriceRange.Min, c.PriceRange.Max)}
	}

	if c.MarketCapRange != nil {
		mc := snap.Profile.MarketCap
		if mc <= 0 {
			return &Rejection{FilterMarketCap, "market cap unknown"}
		}
		if !c.MarketCapRange.Contains(mc) {
			return &Rejection{FilterMarketCap, fmt.Sprintf("market cap %.0fM outside range", mc)}
		}
	}

	if c.MinVolume > 0 {
		vol := snap.Profile.AvgVolume
		if vol <= 0 {
			return &Rejection{FilterVolume, "average volume unknown"}
		}
		if vol < c.MinVolume {
			return &Rejection{FilterVolume, fmt.Sprintf("average volume %.2fM below %.2fM", vol, c.MinVolume)}
		}
	}

	if len(c.Sectors) > 0 && !inSectors(snap, c.Sectors) {
		return &Rejection{FilterSector, "not in " + strings.Join(c.Sectors, ", ")}
	}
	return nil
}

func inSectors(snap models.StockSnapshot, sectors []string) bool {
	home := SectorOf(snap.Quote.Symbol)
	industry := strings.ToLower(snap.Profile.Industry)
	for _, s := range sectors {
		if strings.EqualFold(s, home) {
			return true
		}
		if industry != "" && strings.Contains(industry, strings.ToLower(s)) {
			return true
		}
	}
	return false
}
