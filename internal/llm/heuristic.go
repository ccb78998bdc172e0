package llm

import (
	"regexp"
	"strconv"
	"strings"

	"quantb/internal/models"
)

// sectorKeywords maps phrases to canonical sector names. Order matters
// where one keyword is a prefix of another.
var sectorKeywords = []struct {
	keyword string
	sector  string
}{
	{"technology", "Technology"},
	{"tech", "Technology"},
	{"semiconductor", "Technology"},
	{"software", "Technology"},
	{"healthcare", "Healthcare"},
	{"health care", "Healthcare"},
	{"biotech", "Healthcare"},
	{"pharma", "Healthcare"},
	{"financial", "Financial Services"},
	{"finance", "Financial Services"},
	{"bank", "Financial Services"},
	{"energy", "Energy"},
	{"oil", "Energy"},
	{"consumer", "Consumer"},
	{"retail", "Consumer"},
	{"industrial", "Industrials"},
	{"utilities", "Utilities"},
	{"utility", "Utilities"},
	{"real estate", "Real Estate"},
	{"reit", "Real Estate"},
	{"communication", "Communication Services"},
	{"telecom", "Communication Services"},
	{"media", "Communication Services"},
	{"materials", "Materials"},
}

// KnownSectors returns the canonical sector names the heuristic recognizes.
func KnownSectors() []string {
	seen := map[string]bool{}
	var out []string
	for _, kw := range sectorKeywords {
		if !seen[kw.sector] {
			seen[kw.sector] = true
			out = append(out, kw.sector)
		}
	}
	return out
}

var (
	reUnder   = regexp.MustCompile(`(?i)(?:under|below|less than|cheaper than|<)\s*\$?\s*(\d+(?:\.\d+)?)`)
	reOver    = regexp.MustCompile(`(?i)(?:over|above|more than|at least)\s*\$\s*(\d+(?:\.\d+)?)`)
	reBetween = regexp.MustCompile(`(?i)between\s*\$?\s*(\d+(?:\.\d+)?)\s*(?:and|-|to)\s*\$?\s*(\d+(?:\.\d+)?)`)
	reWord    = regexp.MustCompile(`[a-z]+`)
)

// ParseCriteriaHeuristic extracts criteria from free text without a model.
// Fields it cannot find keep their defaults.
func ParseCriteriaHeuristic(text string) models.SearchCriteria {
	c := models.DefaultSearchCriteria()
	lower := strings.ToLower(text)
	words := map[string]bool{}
	for _, w := range reWord.FindAllString(lower, -1) {
		words[w] = true
	}

	switch {
	case words["conservative"] || words["safe"] || strings.Contains(lower, "low risk") || strings.Contains(lower, "low-risk"):
		c.RiskTolerance = models.RiskLow
	case words["aggressive"] || words["risky"] || words["speculative"] || strings.Contains(lower, "high risk") || strings.Contains(lower, "high-risk"):
		c.RiskTolerance = models.RiskHigh
	}

	switch {
	case strings.Contains(lower, "day trade") || strings.Contains(lower, "short-term") || strings.Contains(lower, "short term") || words["quick"]:
		c.HoldingPeriod = models.HoldingShort
	case strings.Contains(lower, "long-term") || strings.Contains(lower, "long term") || words["weeks"]:
		c.HoldingPeriod = models.HoldingLong
	}

	priceSet := false
	if m := reBetween.FindStringSubmatch(text); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		if lo > hi {
			lo, hi = hi, lo
		}
		c.PriceRange = models.Range{Min: lo, Max: hi}
		priceSet = true
	}
	if !priceSet {
		if m := reUnder.FindStringSubmatch(text); m != nil {
			c.PriceRange.Max, _ = strconv.ParseFloat(m[1], 64)
			if c.PriceRange.Min >= c.PriceRange.Max {
				c.PriceRange.Min = 1
			}
		}
		if m := reOver.FindStringSubmatch(text); m != nil {
			c.PriceRange.Min, _ = strconv.ParseFloat(m[1], 64)
			if c.PriceRange.Min >= c.PriceRange.Max {
				c.PriceRange.Max = c.PriceRange.Min * 5
			}
		}
	}

	switch {
	case strings.Contains(lower, "large cap") || strings.Contains(lower, "large-cap") || strings.Contains(lower, "blue chip"):
		c.MarketCapRange = &models.Range{Min: 10000, Max: 0}
	case strings.Contains(lower, "mid cap") || strings.Contains(lower, "mid-cap"):
		c.MarketCapRange = &models.Range{Min: 2000, Max: 10000}
	case strings.Contains(lower, "small cap") || strings.Contains(lower, "small-cap"):
		c.MarketCapRange = &models.Range{Min: 300, Max: 2000}
	}

	if strings.Contains(lower, "high volume") || words["liquid"] {
		c.MinVolume = 1
	}

	seen := map[string]bool{}
	for _, kw := range sectorKeywords {
		if containsKeyword(lower, words, kw.keyword) && !seen[kw.sector] {
			seen[kw.sector] = true
			c.Sectors = append(c.Sectors, kw.sector)
		}
	}

	c.Normalize()
	return c
}

// containsKeyword matches single words on word boundaries (plural allowed)
// and phrases by substring.
func containsKeyword(lower string, words map[string]bool, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(lower, kw)
	}
	if words[kw] || words[kw+"s"] {
		return true
	}
	// Prefix forms like "semiconductors" or "pharmaceutical"
	for w := range words {
		if len(kw) >= 5 && strings.HasPrefix(w, kw) {
			return true
		}
	}
	return false
}
