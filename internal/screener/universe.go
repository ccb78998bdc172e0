package screener

import "sort"

// universe lists liquid US large caps per canonical sector.
var universe = map[string][]string{
	"Technology":             {"AAPL", "MSFT", "NVDA", "AMD", "INTC", "CRM", "ORCL", "ADBE", "CSCO", "QCOM"},
	"Healthcare":             {"JNJ", "UNH", "PFE", "MRK", "ABBV", "LLY", "TMO", "ABT", "BMY", "GILD"},
	"Financial Services":     {"JPM", "BAC", "WFC", "GS", "MS", "C", "SCHW", "AXP", "BLK", "USB"},
	"Energy":                 {"XOM", "CVX", "COP", "SLB", "EOG", "OXY", "PSX", "MPC", "VLO", "HAL"},
	"Consumer":               {"AMZN", "WMT", "HD", "NKE", "MCD", "SBUX", "TGT", "COST", "LOW", "KO"},
	"Industrials":            {"CAT", "DE", "HON", "GE", "UPS", "BA", "LMT", "RTX", "MMM", "UNP"},
	"Utilities":              {"NEE", "DUK", "SO", "D", "AEP", "EXC", "SRE", "XEL", "PEG", "ED"},
	"Real Estate":            {"PLD", "AMT", "CCI", "EQIX", "SPG", "O", "PSA", "WELL", "DLR", "AVB"},
	"Communication Services": {"GOOGL", "META", "NFLX", "DIS", "T", "VZ", "TMUS", "CMCSA", "EA", "SNAP"},
	"Materials":              {"LIN", "APD", "SHW", "FCX", "NEM", "ECL", "DOW", "NUE", "DD", "ALB"},
}

// perSectorDefault bounds the candidates drawn from each sector when the
// criteria name no sector.
const perSectorDefault = 3

// Sectors returns the sector names the universe covers, sorted.
func Sectors() []string {
	out := make([]string, 0, len(universe))
	for s := range universe {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Candidates returns the symbols to scan for the given sectors. Unknown
// sector names are ignored; no known sector yields a cross-sector sample.
func Candidates(sectors []string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(syms []string) {
		for _, s := range syms {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}

	for _, sector := range sectors {
		add(universe[sector])
	}
	if len(out) > 0 {
		return out
	}

	for _, sector := range Sectors() {
		syms := universe[sector]
		add(syms[:min(perSectorDefault, len(syms))])
	}
	return out
}

// SectorOf returns the universe sector of symbol, or "".
func SectorOf(symbol string) string {
	for sector, syms := range universe {
		for _, s := range syms {
			if s == symbol {
				return sector
			}
		}
	}
	return ""
}
