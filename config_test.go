package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setMinimalValidConfigEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_APP_TOKEN", "xapp-test")
}

func TestLoadConfigDefaults(t *testing.T) {
	setMinimalValidConfigEnv(t)

	cfg := LoadConfig()

	if cfg.LLMProvider != "ollama" {
		t.Errorf("unexpected provider default: %q", cfg.LLMProvider)
	}
	if cfg.LLMModel != "qwen2.5vl:3b" {
		t.Errorf("unexpected model default: %q", cfg.LLMModel)
	}
	if cfg.OllamaAPIURL != "http://localhost:11434/v1" {
		t.Errorf("unexpected ollama URL default: %q", cfg.OllamaAPIURL)
	}
	if cfg.WorkerConcurrency != 2 {
		t.Errorf("unexpected worker concurrency default: %d", cfg.WorkerConcurrency)
	}
	if cfg.ReviewTimeoutSecs != 180 {
		t.Errorf("unexpected review timeout default: %d", cfg.ReviewTimeoutSecs)
	}
	if cfg.ReviewTimeout() != 180*time.Second {
		t.Errorf("unexpected review timeout duration: %v", cfg.ReviewTimeout())
	}
	if cfg.SheetPath != "./receipts.xlsx" {
		t.Errorf("unexpected sheet path default: %q", cfg.SheetPath)
	}
	if cfg.DBPath != "./receiptbot.db" {
		t.Errorf("unexpected db path default: %q", cfg.DBPath)
	}
	if cfg.SummaryCron != "0 9 1 * *" {
		t.Errorf("unexpected summary cron default: %q", cfg.SummaryCron)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	setMinimalValidConfigEnv(t)
	t.Setenv("TARGET_CHANNEL_ID", "C999")
	t.Setenv("WORKER_CONCURRENCY", "4")
	t.Setenv("REVIEW_TIMEOUT_SECONDS", "60")
	t.Setenv("SEARCH_ENABLED", "true")
	t.Setenv("OCR_API_URL", "http://ocr.local:8000/ocr")

	cfg := LoadConfig()

	if cfg.TargetChannelID != "C999" {
		t.Errorf("target channel override missing: %q", cfg.TargetChannelID)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Errorf("worker concurrency override missing: %d", cfg.WorkerConcurrency)
	}
	if cfg.ReviewTimeoutSecs != 60 {
		t.Errorf("review timeout override missing: %d", cfg.ReviewTimeoutSecs)
	}
	if !cfg.SearchEnabled {
		t.Error("search enabled override missing")
	}
	if cfg.OCRAPIURL != "http://ocr.local:8000/ocr" {
		t.Errorf("OCR URL override missing: %q", cfg.OCRAPIURL)
	}
}

func TestLoadConfigYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
slack_bot_token: xoxb-yaml
slack_app_token: xapp-yaml
target_channel_id: C_YAML
llm_provider: anthropic
anthropic_api_key: sk-ant-test
llm_model: claude-sonnet-4-20250514
summary_channel_id: C_SUMMARY
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SLACK_BOT_TOKEN", "")
	t.Setenv("SLACK_APP_TOKEN", "")

	cfg := LoadConfig()

	if cfg.SlackBotToken != "xoxb-yaml" || cfg.SlackAppToken != "xapp-yaml" {
		t.Errorf("yaml tokens not loaded: %q %q", cfg.SlackBotToken, cfg.SlackAppToken)
	}
	if cfg.LLMProvider != "anthropic" || cfg.AnthropicAPIKey != "sk-ant-test" {
		t.Errorf("anthropic provider config not loaded: %q %q", cfg.LLMProvider, cfg.AnthropicAPIKey)
	}
	if cfg.SummaryChannelID != "C_SUMMARY" {
		t.Errorf("summary channel not loaded: %q", cfg.SummaryChannelID)
	}
}

func TestLoadConfigSummaryChannelFallsBackToTarget(t *testing.T) {
	setMinimalValidConfigEnv(t)
	t.Setenv("TARGET_CHANNEL_ID", "C123")

	cfg := LoadConfig()
	if cfg.SummaryChannelID != "C123" {
		t.Errorf("summary channel should default to target channel, got %q", cfg.SummaryChannelID)
	}
}
