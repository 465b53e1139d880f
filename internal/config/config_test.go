package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mise.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.LLM.Temperature != 0.1 {
		t.Errorf("default temperature %.2f, want 0.1 for reproducibility", cfg.LLM.Temperature)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("default max attempts %d, want 3", cfg.Retry.MaxAttempts)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want default", cfg.LLM.Model)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: gemini
  model: gemini-2.0-flash
  max_tokens: 4096
rate:
  requests_per_minute: 5
classification:
  confidence_floor: 0.8
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Provider != "gemini" || cfg.LLM.Model != "gemini-2.0-flash" {
		t.Errorf("llm section not merged: %+v", cfg.LLM)
	}
	if cfg.Rate.RequestsPerMinute != 5 {
		t.Errorf("rate not merged: %+v", cfg.Rate)
	}
	if cfg.Classification.ConfidenceFloor != 0.8 {
		t.Errorf("floor not merged: %+v", cfg.Classification)
	}
	// Untouched sections keep their defaults.
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("retry defaults lost: %+v", cfg.Retry)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad provider":    "llm:\n  provider: anthropic\n",
		"bad temperature": "llm:\n  temperature: 3.5\n",
		"bad attempts":    "retry:\n  max_attempts: 0\n",
		"bad floor":       "classification:\n  confidence_floor: 1.5\n",
		"bad multiplier":  "retry:\n  backoff_multiplier: 0.5\n",
		"not yaml":        "{{{{",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Fatal("invalid config accepted")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MISE_API_KEY", "key-a, key-b")
	t.Setenv("MISE_MODEL", "gpt-4.1-mini")
	t.Setenv("MISE_DB_PATH", "/tmp/override.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.LLM.APIKeys) != 2 || cfg.LLM.APIKeys[0] != "key-a" || cfg.LLM.APIKeys[1] != "key-b" {
		t.Errorf("api keys = %v, want [key-a key-b]", cfg.LLM.APIKeys)
	}
	if cfg.LLM.Model != "gpt-4.1-mini" {
		t.Errorf("model override lost: %q", cfg.LLM.Model)
	}
	if cfg.Store.DatabasePath != "/tmp/override.db" {
		t.Errorf("db path override lost: %q", cfg.Store.DatabasePath)
	}
}

func TestTimeoutParsesFromYAML(t *testing.T) {
	path := writeConfig(t, "llm:\n  timeout_seconds: 30\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.LLMTimeout(); got != 30*time.Second {
		t.Errorf("LLMTimeout = %v, want 30s", got)
	}

	if _, err := Load(writeConfig(t, "llm:\n  timeout_seconds: -5\n")); err == nil {
		t.Fatal("negative timeout accepted")
	}
}

func TestBackoffBase(t *testing.T) {
	cfg := Default()
	cfg.Retry.BackoffBaseMs = 250
	if got := cfg.BackoffBase(); got != 250*time.Millisecond {
		t.Errorf("BackoffBase = %v, want 250ms", got)
	}
}
