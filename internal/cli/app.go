package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"quantb/internal/chat"
	"quantb/internal/config"
	apperrors "quantb/internal/errors"
	"quantb/internal/llm"
	"quantb/internal/logging"
	"quantb/internal/marketdata"
	"quantb/internal/parser"
	"quantb/internal/screener"
	"quantb/internal/store"
	"quantb/internal/tools"
)

// App holds the application dependencies. Components whose credentials
// are missing stay nil and the commands that need them report
// ErrNotConfigured.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger
	Store     store.Store
	Market    *marketdata.Client
	Provider  *llm.Provider
	ChatModel llm.ChatModel
	Tools     *tools.Registry
	Chat      *chat.Orchestrator
	Screener  *screener.Screener
}

// Load reads configuration from configDir and builds every component the
// configured credentials allow.
func (a *App) Load(ctx context.Context, configDir string) error {
	if configDir == "" {
		configDir = config.DefaultConfigDir()
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	a.Config = cfg
	a.ConfigDir = configDir
	a.Logger = logging.NewLoggerWithConfig(cfg.Logging)

	a.Store, err = store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	a.Logger.Debug().Str("backend", cfg.Store.Backend).Msg("Store initialized")

	if cfg.HasMarketData() {
		a.Market, err = marketdata.NewClient(marketdata.Config{
			BaseURL:      cfg.MarketData.BaseURL,
			APIKey:       cfg.Credentials.Finnhub.APIKey,
			Timeout:      cfg.MarketData.Timeout,
			QuoteTTL:     cfg.MarketData.QuoteTTL,
			ProfileTTL:   cfg.MarketData.ProfileTTL,
			MaxRetries:   cfg.MarketData.MaxRetries,
			NewsDaysBack: cfg.MarketData.NewsDaysBack,
		}, a.Logger)
		if err != nil {
			return err
		}
		a.Logger.Debug().Msg("Finnhub client initialized")
	}

	completer, err := a.completer(ctx)
	if err != nil {
		return err
	}
	a.Provider = llm.NewProvider(completer, cfg.LLM.Timeout, a.Logger)

	if key := cfg.Credentials.OpenAI.APIKey; key != "" {
		a.ChatModel = llm.NewOpenAIClient(key, cfg.LLM.BaseURL, cfg.LLM.ChatModel, cfg.LLM.Temperature)
		a.Logger.Debug().Str("model", cfg.LLM.ChatModel).Msg("Chat model initialized")
	}

	if a.Market != nil {
		a.Tools = tools.NewRegistry(a.Market, a.Store, tools.Config{
			DefaultAccountSize: cfg.Chat.DefaultAccount,
			DefaultRiskPercent: cfg.Chat.DefaultRiskPct,
		}, a.Logger)
		a.Screener = screener.New(a.Market, a.Provider, screener.Config{
			PacingDelay: cfg.MarketData.PacingDelay,
		}, a.Logger)
	}

	if a.ChatModel != nil && a.Tools != nil {
		a.Chat = chat.NewOrchestrator(a.ChatModel, a.Tools, parser.New(a.Logger), chat.Config{
			TurnTimeout:   cfg.Chat.TurnTimeout,
			MaxToolRounds: cfg.Chat.MaxToolRounds,
			SystemPrompt:  cfg.Chat.SystemPrompt,
			HistoryLimit:  cfg.Chat.HistoryLimit,
		}, a.Logger)
	}
	return nil
}

// completer picks the completion backend for criteria parsing and
// analysis. Nil is valid: the provider falls back to the heuristic parser.
func (a *App) completer(ctx context.Context) (llm.Completer, error) {
	cfg := a.Config
	switch cfg.LLM.Provider {
	case "gemini":
		if cfg.Credentials.Gemini.APIKey == "" {
			return nil, nil
		}
		g, err := llm.NewGeminiClient(ctx, cfg.Credentials.Gemini.APIKey, cfg.LLM.GeminiModel, cfg.LLM.Temperature)
		if err != nil {
			return nil, err
		}
		a.Logger.Debug().Str("model", cfg.LLM.GeminiModel).Msg("Gemini client initialized")
		return g, nil
	default:
		if cfg.Credentials.OpenAI.APIKey == "" {
			return nil, nil
		}
		a.Logger.Debug().Str("model", cfg.LLM.OpenAIModel).Msg("OpenAI client initialized")
		return llm.NewOpenAIClient(cfg.Credentials.OpenAI.APIKey, cfg.LLM.BaseURL, cfg.LLM.OpenAIModel, cfg.LLM.Temperature), nil
	}
}

// Close releases held resources.
func (a *App) Close() {
	if a.Market != nil {
		a.Market.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Closing store")
		}
	}
}

func (a *App) requireMarket() error {
	if a.Market == nil {
		return fmt.Errorf("finnhub api key missing from %s/credentials.toml: %w", a.ConfigDir, apperrors.ErrNotConfigured)
	}
	return nil
}

func (a *App) requireChat() error {
	if err := a.requireMarket(); err != nil {
		return err
	}
	if a.Chat == nil {
		return fmt.Errorf("openai api key missing from %s/credentials.toml: %w", a.ConfigDir, apperrors.ErrNotConfigured)
	}
	return nil
}
