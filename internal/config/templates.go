package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# stockwatch configuration

[server]
port = "8000"
# Origins allowed by CORS
allowed_origins = ["http://localhost:5173", "http://localhost:3000"]
# User id used when a request carries no X-User-ID header
default_user = "default"

[database]
# Driver: "sqlite3" or "postgres"
driver = "sqlite3"
dsn = "stockwatch.db"

[redis]
# Leave empty to disable summary caching and the cross-process refresh lock
url = ""

[explore]
universe_file = "data/universe.txt"
# How often the explore cache is refreshed
interval = "10m"
# Maximum symbols refreshed per run
sample_cap = 200
# Page ordering: "symbol" or "price"
sort = "symbol"

[market]
base_url = "https://query1.finance.yahoo.com"
timeout = "20s"
lookback = "5d"

[news]
lookback_days = 7
default_category = "general"
# Finnhub requests per minute; the free tier allows 60
rate_limit = 60

[llm]
# Provider: "openai", "anthropic" or empty to disable summaries
provider = ""
model = ""
cache_ttl = "5m"
# Optional YAML guardrail policy; built-in policy when empty
guardrail_file = ""

[log]
level = "info"
json = false
file = false
file_path = "logs/stockwatch.log"
`

// createTemplateConfig writes a template config file unless one already exists.
func createTemplateConfig(configDir, name string) error {
	path := filepath.Join(configDir, name+".toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config template: %w", err)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
