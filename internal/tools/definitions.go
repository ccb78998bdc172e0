package tools

import (
	"encoding/json"

	"quantb/internal/llm"
)

// Tool names exposed to the model.
const (
	ToolStockQuote         = "get_stock_quote"
	ToolCompareStocks      = "compare_stocks"
	ToolStockNews          = "get_stock_news"
	ToolTechnicalAnalysis  = "analyze_technical_indicators"
	ToolPortfolioSummary   = "get_portfolio_summary"
	ToolPositionCalculator = "calculate_position_size"
	ToolMarketOverview     = "get_market_overview"
)

// Definition describes a callable tool and its JSON-schema parameters.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

var definitions = []Definition{
	{
		Name:        ToolStockQuote,
		Description: "Get the real-time quote for a stock: current price, change, day range and previous close.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"symbol": {
					"type": "string",
					"description": "Ticker symbol (e.g., AAPL, MSFT, TSLA)"
				}
			},
			"required": ["symbol"]
		}`),
	},
	{
		Name:        ToolCompareStocks,
		Description: "Compare two to five stocks side by side on price, performance and valuation metrics.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"symbols": {
					"type": "array",
					"items": {"type": "string"},
					"minItems": 2,
					"maxItems": 5,
					"description": "Ticker symbols to compare"
				}
			},
			"required": ["symbols"]
		}`),
	},
	{
		Name:        ToolStockNews,
		Description: "Get recent news articles about a company.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"symbol": {
					"type": "string",
					"description": "Ticker symbol"
				},
				"limit": {
					"type": "integer",
					"description": "Maximum number of articles (default 5)",
					"default": 5
				}
			},
			"required": ["symbol"]
		}`),
	},
	{
		Name:        ToolTechnicalAnalysis,
		Description: "Calculate technical indicators from daily candles: RSI(14), MACD(12,26,9), Bollinger Bands(20,2), SMA 20/50 and ATR. RSI > 70 indicates overbought, RSI < 30 indicates oversold.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"symbol": {
					"type": "string",
					"description": "Ticker symbol"
				},
				"days": {
					"type": "integer",
					"description": "Calendar days of history to analyze (default 120)",
					"default": 120
				}
			},
			"required": ["symbol"]
		}`),
	},
	{
		Name:        ToolPortfolioSummary,
		Description: "Summarize a portfolio's value and gain/loss at current prices. Uses the saved holdings when no positions are given.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"positions": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"symbol": {"type": "string"},
							"shares": {"type": "number"},
							"averageCost": {"type": "number"}
						},
						"required": ["symbol", "shares"]
					}
				}
			}
		}`),
	},
	{
		Name:        ToolPositionCalculator,
		Description: "Calculate how many shares to buy so that hitting the stop loss risks only a fixed percent of the account.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"symbol": {"type": "string", "description": "Ticker symbol (optional)"},
				"entryPrice": {"type": "number", "description": "Planned entry price"},
				"stopLoss": {"type": "number", "description": "Stop loss price"},
				"targetPrice": {"type": "number", "description": "Profit target (optional)"},
				"accountSize": {"type": "number", "description": "Account size in dollars"},
				"riskPercent": {"type": "number", "description": "Percent of account to risk (default 1)"}
			},
			"required": ["entryPrice", "stopLoss"]
		}`),
	},
	{
		Name:        ToolMarketOverview,
		Description: "Get a broad market overview: major index ETFs, overall sentiment and whether the market is open.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
	},
}

// Definitions returns the declared tools.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Specs returns the tool declarations in the form a ChatModel consumes.
func (r *Registry) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(definitions))
	for _, d := range definitions {
		specs = append(specs, llm.ToolSpec{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return specs
}
