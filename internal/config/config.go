// Package config provides configuration management for the assistant.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"quantb/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Chat        ChatConfig        `mapstructure:"chat"`
	MarketData  MarketDataConfig  `mapstructure:"market_data"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Store       StoreConfig       `mapstructure:"store"`
	Logging     logging.LogConfig `mapstructure:"logging"`
	Credentials Credentials       `mapstructure:"-"` // Loaded separately
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ChatConfig holds orchestration configuration.
type ChatConfig struct {
	TurnTimeout    time.Duration `mapstructure:"turn_timeout"`
	MaxToolRounds  int           `mapstructure:"max_tool_rounds"`
	SystemPrompt   string        `mapstructure:"system_prompt"`
	HistoryLimit   int           `mapstructure:"history_limit"`
	DefaultAccount float64       `mapstructure:"default_account_size"`
	DefaultRiskPct float64       `mapstructure:"default_risk_percent"`
}

// MarketDataConfig holds market-data provider configuration.
type MarketDataConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PacingDelay  time.Duration `mapstructure:"pacing_delay"`
	QuoteTTL     time.Duration `mapstructure:"quote_ttl"`
	ProfileTTL   time.Duration `mapstructure:"profile_ttl"`
	MaxRetries   int           `mapstructure:"max_retries"`
	NewsDaysBack int           `mapstructure:"news_days_back"`
}

// LLMConfig holds completion provider configuration.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // "openai", "gemini"
	ChatModel   string        `mapstructure:"chat_model"`
	OpenAIModel string        `mapstructure:"openai_model"`
	GeminiModel string        `mapstructure:"gemini_model"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// StoreConfig holds conversation repository configuration.
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // "sqlite", "memory"
	Path    string `mapstructure:"path"`
}

// Credentials holds API credentials.
type Credentials struct {
	Finnhub APIKeyCredentials `mapstructure:"finnhub"`
	OpenAI  APIKeyCredentials `mapstructure:"openai"`
	Gemini  APIKeyCredentials `mapstructure:"gemini"`
}

// APIKeyCredentials holds a single provider API key.
type APIKeyCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/quantb"
	}
	return filepath.Join(home, ".config", "quantb")
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
		},
		Chat: ChatConfig{
			TurnTimeout:    2 * time.Minute,
			MaxToolRounds:  1,
			HistoryLimit:   20,
			DefaultAccount: 10000,
			DefaultRiskPct: 1,
		},
		MarketData: MarketDataConfig{
			BaseURL:      "https://finnhub.io/api/v1",
			Timeout:      10 * time.Second,
			PacingDelay:  200 * time.Millisecond,
			QuoteTTL:     15 * time.Second,
			ProfileTTL:   24 * time.Hour,
			MaxRetries:   3,
			NewsDaysBack: 7,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			ChatModel:   "gpt-4o-mini",
			OpenAIModel: "gpt-4o-mini",
			GeminiModel: "gemini-2.0-flash",
			Temperature: 0.3,
			Timeout:     60 * time.Second,
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    filepath.Join(DefaultConfigDir(), "quantb.db"),
		},
		Logging: logging.DefaultLogConfig(),
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// First run: write a template and continue with defaults
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		cfg.Credentials.Finnhub.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Credentials.Gemini.APIKey = v
	}
	if v := os.Getenv("QUANTB_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("QUANTB_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("QUANTB_STORE"); v != "" {
		cfg.Store.Backend = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.Provider != "openai" && c.LLM.Provider != "gemini" {
		return fmt.Errorf("invalid llm provider: %s (must be 'openai' or 'gemini')", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be between 0 and 2")
	}
	if c.Store.Backend != "sqlite" && c.Store.Backend != "memory" {
		return fmt.Errorf("invalid store backend: %s (must be 'sqlite' or 'memory')", c.Store.Backend)
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store path is required for sqlite backend")
	}
	if c.MarketData.PacingDelay < 0 {
		return fmt.Errorf("market_data.pacing_delay must be non-negative")
	}
	if c.MarketData.MaxRetries < 1 {
		return fmt.Errorf("market_data.max_retries must be at least 1")
	}
	if c.Chat.MaxToolRounds < 1 {
		return fmt.Errorf("chat.max_tool_rounds must be at least 1")
	}
	if c.Chat.DefaultRiskPct <= 0 || c.Chat.DefaultRiskPct > 100 {
		return fmt.Errorf("chat.default_risk_percent must be between 0 and 100")
	}
	return nil
}

// HasMarketData reports whether a market-data key is configured.
func (c *Config) HasMarketData() bool {
	return c.Credentials.Finnhub.APIKey != ""
}
