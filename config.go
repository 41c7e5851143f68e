package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SlackBotToken   string `yaml:"slack_bot_token"`
	SlackAppToken   string `yaml:"slack_app_token"`
	TargetChannelID string `yaml:"target_channel_id"`

	OCRAPIURL string `yaml:"ocr_api_url"`

	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OllamaAPIURL    string `yaml:"ollama_api_url"`

	SearchEnabled bool   `yaml:"search_enabled"`
	SearchAPIURL  string `yaml:"search_api_url"`

	SheetPath string `yaml:"sheet_path"`
	DBPath    string `yaml:"db_path"`

	WorkerConcurrency int    `yaml:"worker_concurrency"`
	ReviewTimeoutSecs int    `yaml:"review_timeout_seconds"`
	SummaryCron       string `yaml:"summary_cron"`
	SummaryChannelID  string `yaml:"summary_channel_id"`
}

func (c Config) ReviewTimeout() time.Duration {
	return time.Duration(c.ReviewTimeoutSecs) * time.Second
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.TargetChannelID, "TARGET_CHANNEL_ID")
	envOverride(&cfg.OCRAPIURL, "OCR_API_URL")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OllamaAPIURL, "OLLAMA_API_URL")
	envOverrideBool(&cfg.SearchEnabled, "SEARCH_ENABLED")
	envOverride(&cfg.SearchAPIURL, "SEARCH_API_URL")
	envOverride(&cfg.SheetPath, "SHEET_PATH")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverrideInt(&cfg.WorkerConcurrency, "WORKER_CONCURRENCY")
	envOverrideInt(&cfg.ReviewTimeoutSecs, "REVIEW_TIMEOUT_SECONDS")
	envOverride(&cfg.SummaryCron, "SUMMARY_CRON")
	envOverride(&cfg.SummaryChannelID, "SUMMARY_CHANNEL_ID")

	// Defaults
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "ollama"
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = "qwen2.5vl:3b"
	}
	if cfg.OllamaAPIURL == "" {
		cfg.OllamaAPIURL = "http://localhost:11434/v1"
	}
	if cfg.SearchAPIURL == "" {
		cfg.SearchAPIURL = "https://api.duckduckgo.com/"
	}
	if cfg.SheetPath == "" {
		cfg.SheetPath = "./receipts.xlsx"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./receiptbot.db"
	}
	if cfg.WorkerConcurrency == 0 {
		cfg.WorkerConcurrency = 2
	}
	if cfg.ReviewTimeoutSecs == 0 {
		cfg.ReviewTimeoutSecs = 180
	}
	if cfg.SummaryCron == "" {
		cfg.SummaryCron = "0 9 1 * *"
	}
	if cfg.SummaryChannelID == "" {
		cfg.SummaryChannelID = cfg.TargetChannelID
	}

	// Validate required fields
	required := map[string]string{
		"slack_bot_token": cfg.SlackBotToken,
		"slack_app_token": cfg.SlackAppToken,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}

	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "ollama":
		// base URL has a default; nothing else required
	default:
		log.Fatalf("llm_provider must be 'anthropic' or 'ollama', got '%s'", cfg.LLMProvider)
	}

	if cfg.WorkerConcurrency < 1 {
		log.Fatalf("invalid worker_concurrency '%d': must be >= 1", cfg.WorkerConcurrency)
	}
	if cfg.ReviewTimeoutSecs < 1 {
		log.Fatalf("invalid review_timeout_seconds '%d': must be >= 1", cfg.ReviewTimeoutSecs)
	}
	if !strings.HasSuffix(cfg.SheetPath, ".xlsx") {
		log.Fatalf("invalid sheet_path '%s': must end with .xlsx", cfg.SheetPath)
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
