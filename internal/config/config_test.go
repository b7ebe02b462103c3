package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.GitHub.TokenEnv != "GITHUB_TOKEN" {
		t.Errorf("expected token_env 'GITHUB_TOKEN', got %q", cfg.GitHub.TokenEnv)
	}
	if cfg.Poll.CommitBurstThreshold != 3 {
		t.Errorf("expected commit_burst_threshold 3, got %d", cfg.Poll.CommitBurstThreshold)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("expected default embedding model, got %q", cfg.Embedding.Model)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
poll:
  commit_burst_threshold: 5
  lookback_days: 3
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Poll.CommitBurstThreshold != 5 {
		t.Errorf("expected threshold 5, got %d", cfg.Poll.CommitBurstThreshold)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Embedding.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.Embedding.OllamaURL)
	}
	if cfg.Discovery.MinScore != 0.35 {
		t.Errorf("expected default min_score 0.35, got %v", cfg.Discovery.MinScore)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Poll.LookbackDays != 7 {
		t.Errorf("expected lookback_days 7, got %d", cfg.Poll.LookbackDays)
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}

func TestGitHubToken(t *testing.T) {
	cfg := &Config{GitHub: GitHub{TokenEnv: "GITSCOUT_TEST_TOKEN"}}
	t.Setenv("GITSCOUT_TEST_TOKEN", "abc123")
	if cfg.GitHubToken() != "abc123" {
		t.Errorf("expected token from env, got %q", cfg.GitHubToken())
	}

	cfg.GitHub.TokenEnv = ""
	if cfg.GitHubToken() != "" {
		t.Error("expected empty token when token_env unset")
	}
}
