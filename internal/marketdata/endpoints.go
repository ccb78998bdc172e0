package marketdata

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "quantb/internal/errors"
	"quantb/internal/models"
)

// finnhubQuote is the raw /quote response.
type finnhubQuote struct {
	C  float64 `json:"c"`  // Current price
	D  float64 `json:"d"`  // Change
	DP float64 `json:"dp"` // Percent change
	H  float64 `json:"h"`  // High price of the day
	L  float64 `json:"l"`  // Low price of the day
	O  float64 `json:"o"`  // Open price of the day
	PC float64 `json:"pc"` // Previous close price
	T  int64   `json:"t"`  // Timestamp
}

type finnhubProfile struct {
	Country              string  `json:"country"`
	Currency             string  `json:"currency"`
	Exchange             string  `json:"exchange"`
	FinnhubIndustry      string  `json:"finnhubIndustry"`
	Logo                 string  `json:"logo"`
	MarketCapitalization float64 `json:"marketCapitalization"`
	Name                 string  `json:"name"`
	Ticker               string  `json:"ticker"`
	Weburl               string  `json:"weburl"`
}

type finnhubMetrics struct {
	Metric map[string]any `json:"metric"`
}

type finnhubSearch struct {
	Count  int `json:"count"`
	Result []struct {
		Description   string `json:"description"`
		DisplaySymbol string `json:"displaySymbol"`
		Symbol        string `json:"symbol"`
		Type          string `json:"type"`
	} `json:"result"`
}

type finnhubNewsItem struct {
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Image    string `json:"image"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

type finnhubMarketStatus struct {
	Exchange string  `json:"exchange"`
	Holiday  *string `json:"holiday"`
	IsOpen   bool    `json:"isOpen"`
	Session  *string `json:"session"`
	Timezone string  `json:"timezone"`
}

type finnhubCandles struct {
	C []float64 `json:"c"`
	H []float64 `json:"h"`
	L []float64 `json:"l"`
	O []float64 `json:"o"`
	T []int64   `json:"t"`
	V []float64 `json:"v"`
	S string    `json:"s"`
}

func normalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", apperrors.NewValidationError("symbol", symbol, "symbol is required")
	}
	return s, nil
}

func notFound(op string) error {
	return &apperrors.ProviderError{Provider: providerName, Op: op, Kind: apperrors.ErrSymbolNotFound}
}

// Quote fetches a real-time quote.
func (c *Client) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	return cached(c, "quote:"+sym, c.quoteTTL, func() (*models.Quote, error) {
		var raw finnhubQuote
		if err := c.get(ctx, "quote", "/quote", url.Values{"symbol": {sym}}, &raw); err != nil {
			return nil, err
		}
		// Finnhub answers unknown symbols with an all-zero quote
		if raw.C == 0 {
			return nil, notFound("quote")
		}
		ts := time.Now()
		if raw.T > 0 {
			ts = time.Unix(raw.T, 0)
		}
		return &models.Quote{
			Symbol:        sym,
			CurrentPrice:  raw.C,
			Change:        raw.D,
			ChangePercent: raw.DP,
			DayHigh:       raw.H,
			DayLow:        raw.L,
			Open:          raw.O,
			PreviousClose: raw.PC,
			Timestamp:     ts,
		}, nil
	})
}

// Profile fetches the company profile merged with its basic financial
// metrics. A metrics failure degrades to a profile without fundamentals.
func (c *Client) Profile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	return cached(c, "profile:"+sym, c.profileTTL, func() (*models.CompanyProfile, error) {
		var raw finnhubProfile
		if err := c.get(ctx, "profile", "/stock/profile2", url.Values{"symbol": {sym}}, &raw); err != nil {
			return nil, err
		}
		if raw.Name == "" {
			return nil, notFound("profile")
		}

		profile := &models.CompanyProfile{
			Symbol:    sym,
			Name:      raw.Name,
			Exchange:  raw.Exchange,
			Industry:  raw.FinnhubIndustry,
			Country:   raw.Country,
			Currency:  raw.Currency,
			Logo:      raw.Logo,
			WebURL:    raw.Weburl,
			MarketCap: raw.MarketCapitalization,
		}

		var metrics finnhubMetrics
		params := url.Values{"symbol": {sym}, "metric": {"all"}}
		if err := c.get(ctx, "metrics", "/stock/metric", params, &metrics); err != nil {
			c.logger.Warn().Err(err).Str("symbol", sym).Msg("Metrics unavailable, returning bare profile")
			return profile, nil
		}
		profile.YearHigh = metricValue(metrics.Metric, "52WeekHigh")
		profile.YearLow = metricValue(metrics.Metric, "52WeekLow")
		profile.Beta = metricValue(metrics.Metric, "beta")
		profile.PERatio = metricValue(metrics.Metric, "peTTM", "peBasicExclExtraTTM")
		profile.DividendYield = metricValue(metrics.Metric, "dividendYieldIndicatedAnnual", "currentDividendYieldTTM")
		profile.AvgVolume = metricValue(metrics.Metric, "10DayAverageTradingVolume")
		return profile, nil
	})
}

// metricValue returns the first numeric value among keys.
func metricValue(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := m[k].(float64); ok {
			return v
		}
	}
	return 0
}

// Search looks up symbols matching a free-text query.
func (c *Client) Search(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, apperrors.NewValidationError("query", query, "query is required")
	}

	var raw finnhubSearch
	if err := c.get(ctx, "search", "/search", url.Values{"q": {q}}, &raw); err != nil {
		return nil, err
	}

	matches := make([]models.SymbolMatch, 0, len(raw.Result))
	for _, r := range raw.Result {
		matches = append(matches, models.SymbolMatch{
			Symbol:        r.Symbol,
			DisplaySymbol: r.DisplaySymbol,
			Description:   r.Description,
			Type:          r.Type,
		})
	}
	return matches, nil
}

// CompanyNews fetches recent articles for symbol, newest first, at most limit.
func (c *Client) CompanyNews(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	params := url.Values{
		"symbol": {sym},
		"from":   {now.AddDate(0, 0, -c.newsDays).Format("2006-01-02")},
		"to":     {now.Format("2006-01-02")},
	}

	var raw []finnhubNewsItem
	if err := c.get(ctx, "company-news", "/company-news", params, &raw); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > len(raw) {
		limit = len(raw)
	}
	articles := make([]models.NewsArticle, 0, limit)
	for _, item := range raw[:limit] {
		articles = append(articles, models.NewsArticle{
			Headline: item.Headline,
			Summary:  item.Summary,
			Source:   item.Source,
			URL:      item.URL,
			Image:    item.Image,
			Datetime: time.Unix(item.Datetime, 0),
		})
	}
	return articles, nil
}

// Recommendations fetches analyst recommendation trends, latest period first.
func (c *Client) Recommendations(ctx context.Context, symbol string) ([]models.RecommendationTrend, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	var trends []models.RecommendationTrend
	if err := c.get(ctx, "recommendation", "/stock/recommendation", url.Values{"symbol": {sym}}, &trends); err != nil {
		return nil, err
	}
	return trends, nil
}

// MarketStatus reports whether the exchange is currently trading.
func (c *Client) MarketStatus(ctx context.Context, exchange string) (*models.MarketStatus, error) {
	if exchange == "" {
		exchange = "US"
	}

	var raw finnhubMarketStatus
	if err := c.get(ctx, "market-status", "/stock/market-status", url.Values{"exchange": {exchange}}, &raw); err != nil {
		return nil, err
	}

	status := &models.MarketStatus{
		Exchange: raw.Exchange,
		IsOpen:   raw.IsOpen,
		Session:  models.SessionClosed,
		Timezone: raw.Timezone,
	}
	if raw.Session != nil {
		switch *raw.Session {
		case "regular":
			status.Session = models.SessionRegular
		case "pre-market":
			status.Session = models.SessionPreMarket
		case "post-market":
			status.Session = models.SessionPostMarket
		}
	}
	if raw.Holiday != nil {
		status.Holiday = *raw.Holiday
	}
	return status, nil
}

// Candles fetches daily OHLCV bars for the last days calendar days.
func (c *Client) Candles(ctx context.Context, symbol string, days int) ([]models.Candle, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 120
	}

	to := time.Now()
	from := to.AddDate(0, 0, -days)
	params := url.Values{
		"symbol":     {sym},
		"resolution": {"D"},
		"from":       {strconv.FormatInt(from.Unix(), 10)},
		"to":         {strconv.FormatInt(to.Unix(), 10)},
	}

	var raw finnhubCandles
	if err := c.get(ctx, "candles", "/stock/candle", params, &raw); err != nil {
		return nil, err
	}
	if raw.S != "ok" {
		return nil, notFound("candles")
	}

	n := len(raw.C)
	for _, l := range []int{len(raw.O), len(raw.H), len(raw.L), len(raw.T), len(raw.V)} {
		if l < n {
			n = l
		}
	}
	candles := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		candles = append(candles, models.Candle{
			Timestamp: time.Unix(raw.T[i], 0),
			Open:      raw.O[i],
			High:      raw.H[i],
			Low:       raw.L[i],
			Close:     raw.C[i],
			Volume:    int64(raw.V[i]),
		})
	}
	return candles, nil
}
