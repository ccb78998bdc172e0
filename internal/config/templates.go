package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# quantb configuration

[server]
# Listen address for the HTTP API
addr = ":8080"
read_timeout = "15s"

[chat]
# Maximum duration of one assistant turn, including tool calls
turn_timeout = "2m"
# Tool-calling rounds per turn before the model must answer in text
max_tool_rounds = 1
# Number of prior messages sent to the model
history_limit = 20
# Defaults for the position size calculator
default_account_size = 10000.0
default_risk_percent = 1.0

[market_data]
base_url = "https://finnhub.io/api/v1"
timeout = "10s"
# Delay between sequential upstream calls in batch screening
pacing_delay = "200ms"
quote_ttl = "15s"
profile_ttl = "24h"
max_retries = 3
news_days_back = 7

[llm]
# Completion provider for criteria parsing and analysis: "openai" or "gemini"
provider = "openai"
# Model used for chat with tool calling (OpenAI compatible)
chat_model = "gpt-4o-mini"
openai_model = "gpt-4o-mini"
gemini_model = "gemini-2.0-flash"
temperature = 0.3
timeout = "60s"

[store]
# Conversation repository: "sqlite" or "memory"
backend = "sqlite"
# Database file (default: ~/.config/quantb/quantb.db)
# path = "/var/lib/quantb/quantb.db"

[logging]
level = "info"
console = true
file = true
max_size = 100
max_backups = 7
max_age = 30
`

const credentialsTemplate = `# quantb credentials
# WARNING: Keep this file secure! Do not commit to version control.

[finnhub]
api_key = ""

[openai]
api_key = ""

[gemini]
api_key = ""
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
