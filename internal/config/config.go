package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	GitHub    GitHub    `yaml:"github"`
	Poll      Poll      `yaml:"poll"`
	Embedding Embedding `yaml:"embedding"`
	Summary   Summary   `yaml:"summary"`
	Discovery Discovery `yaml:"discovery"`
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

type GitHub struct {
	TokenEnv string `yaml:"token_env"`
	Username string `yaml:"username"`
}

type Poll struct {
	LookbackDays         int     `yaml:"lookback_days"`
	CommitBurstThreshold int     `yaml:"commit_burst_threshold"`
	MaxRetries           int     `yaml:"max_retries"`
	MaxRateLimitWaitSecs int     `yaml:"max_rate_limit_wait_secs"`
	Workers              int     `yaml:"workers"`
	MinRelevance         float64 `yaml:"min_relevance"`
}

type Embedding struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	OllamaURL string `yaml:"ollama_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type Summary struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	MaxTokens   int    `yaml:"max_tokens"`
}

type Discovery struct {
	MinStars int     `yaml:"min_stars"`
	MinScore float64 `yaml:"min_score"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for gitscout.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "gitscout")
}

// DataDir returns the XDG data directory for gitscout.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "gitscout")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/gitscout/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'gitscout init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		GitHub: GitHub{
			TokenEnv: "GITHUB_TOKEN",
		},
		Poll: Poll{
			LookbackDays:         7,
			CommitBurstThreshold: 3,
			MaxRetries:           3,
			MaxRateLimitWaitSecs: 120,
			Workers:              4,
			MinRelevance:         0.4,
		},
		Embedding: Embedding{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			OllamaURL: "http://localhost:11434",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Summary: Summary{
			Provider:    "ollama",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxTokens:   300,
		},
		Discovery: Discovery{
			MinStars: 50,
			MinScore: 0.35,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GitHubToken resolves the GitHub API token from the configured env var.
// Empty means unauthenticated access: releases and commits fall back to the
// public Atom feeds.
func (c *Config) GitHubToken() string {
	if c.GitHub.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.GitHub.TokenEnv)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
