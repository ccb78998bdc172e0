// Package models provides domain models for the assistant.
package models

import (
	"time"
)

// MarketSession represents the current trading session of an exchange.
type MarketSession string

const (
	SessionRegular    MarketSession = "regular"
	SessionPreMarket  MarketSession = "pre-market"
	SessionPostMarket MarketSession = "post-market"
	SessionClosed     MarketSession = "closed"
)

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Quote represents a real-time market quote.
type Quote struct {
	Symbol        string    `json:"symbol"`
	CurrentPrice  float64   `json:"currentPrice"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	DayHigh       float64   `json:"dayHigh"`
	DayLow        float64   `json:"dayLow"`
	Open          float64   `json:"open"`
	PreviousClose float64   `json:"previousClose"`
	Timestamp     time.Time `json:"timestamp"`
}

// CompanyProfile holds descriptive and fundamental company data.
type CompanyProfile struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Exchange      string  `json:"exchange"`
	Industry      string  `json:"industry"`
	Country       string  `json:"country,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	Logo          string  `json:"logo,omitempty"`
	WebURL        string  `json:"weburl,omitempty"`
	MarketCap     float64 `json:"marketCap"` // millions
	YearHigh      float64 `json:"yearHigh,omitempty"`
	YearLow       float64 `json:"yearLow,omitempty"`
	Beta          float64 `json:"beta,omitempty"`
	PERatio       float64 `json:"peRatio,omitempty"`
	DividendYield float64 `json:"dividendYield,omitempty"`
	AvgVolume     float64 `json:"avgVolume,omitempty"` // millions of shares, 10 day average
}

// SymbolMatch is a single symbol search hit.
type SymbolMatch struct {
	Symbol        string `json:"symbol"`
	DisplaySymbol string `json:"displaySymbol"`
	Description   string `json:"description"`
	Type          string `json:"type"`
}

// NewsArticle represents a company news article.
type NewsArticle struct {
	Headline string    `json:"headline"`
	Summary  string    `json:"summary"`
	Source   string    `json:"source"`
	URL      string    `json:"url"`
	Image    string    `json:"image,omitempty"`
	Datetime time.Time `json:"datetime"`
}

// RecommendationTrend is one period of aggregated analyst ratings.
type RecommendationTrend struct {
	Period     string `json:"period"`
	StrongBuy  int    `json:"strongBuy"`
	Buy        int    `json:"buy"`
	Hold       int    `json:"hold"`
	Sell       int    `json:"sell"`
	StrongSell int    `json:"strongSell"`
}

// MarketStatus describes whether an exchange is currently trading.
type MarketStatus struct {
	Exchange string        `json:"exchange"`
	IsOpen   bool          `json:"isOpen"`
	Session  MarketSession `json:"session"`
	Holiday  string        `json:"holiday,omitempty"`
	Timezone string        `json:"timezone,omitempty"`
}

// Holding is a position the user owns.
type Holding struct {
	Symbol      string    `json:"symbol"`
	Shares      float64   `json:"shares"`
	AverageCost float64   `json:"averageCost"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}
