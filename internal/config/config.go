package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docsync/internal/apperr"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Dir is the per-project working directory holding config, metadata,
// backups and the checkpoint database.
const Dir = ".docsync"

// DefaultPath is where LoadConfig looks when no path is given.
var DefaultPath = filepath.Join(Dir, "config.yaml")

type Config struct {
	LLM struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		APIKey   string `yaml:"api_key,omitempty"`
		BaseURL  string `yaml:"base_url,omitempty"`
		Timeout  int    `yaml:"timeout"` // seconds
	} `yaml:"llm"`
	Repositories struct {
		CacheDir string `yaml:"cache_dir,omitempty"` // empty = temp dir removed after the run
		Shallow  bool   `yaml:"shallow"`
	} `yaml:"repositories"`
	Batch struct {
		Workers         int     `yaml:"workers"`
		CostPer1KTokens float64 `yaml:"cost_per_1k_tokens"`
		Validate        bool    `yaml:"validate"`
	} `yaml:"batch"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	Log struct {
		File  string `yaml:"file,omitempty"`
		Debug bool   `yaml:"debug"`
	} `yaml:"log"`
}

// Default returns a config with every field set to its default.
func Default() *Config {
	var cfg Config
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.Model = "claude-3-5-sonnet-20241022"
	cfg.LLM.Timeout = 60
	cfg.Repositories.Shallow = true
	cfg.Batch.Workers = 1
	cfg.Batch.CostPer1KTokens = 0.02
	cfg.Store.Path = filepath.Join(Dir, "docsync.db")
	return &cfg
}

// LoadConfig reads the YAML config at path on top of the defaults. A missing
// file is not an error. Environment variables (and a .env file, if present)
// override the file.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, apperr.New(apperr.KindConfig, "parse %s: %v", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, apperr.New(apperr.KindConfig, "read %s: %v", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if provider := os.Getenv("DOCSYNC_LLM_PROVIDER"); provider != "" {
		cfg.LLM.Provider = provider
	}
	if model := os.Getenv("DOCSYNC_LLM_MODEL"); model != "" {
		cfg.LLM.Model = model
	}
	if apiKey := os.Getenv("DOCSYNC_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
		return
	}
	if cfg.LLM.APIKey != "" {
		return
	}
	if key := os.Getenv(providerKeyEnv(cfg.LLM.Provider)); key != "" {
		cfg.LLM.APIKey = key
	}
}

func providerKeyEnv(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return "OPENAI_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}

// Validate checks the settings a generation run needs.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LLM.Provider) {
	case "anthropic", "openai", "gemini":
	default:
		return apperr.New(apperr.KindConfig, "unsupported llm provider %q (want anthropic, openai or gemini)", c.LLM.Provider)
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return apperr.New(apperr.KindConfig,
			"LLM API key not found. Set in config.yaml or environment:\n  export %s=your-key-here",
			providerKeyEnv(c.LLM.Provider))
	}
	if c.Batch.Workers < 1 {
		return apperr.New(apperr.KindConfig, "batch.workers must be at least 1, got %d", c.Batch.Workers)
	}
	return nil
}

// Timeout returns the generation-service request timeout.
func (c *Config) Timeout() time.Duration {
	if c.LLM.Timeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.LLM.Timeout) * time.Second
}

// Save writes the config as YAML. The API key is never written.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	out := *c
	out.LLM.APIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
