package config

import (
	"os"
	"path/filepath"
	"testing"

	"docsync/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"DOCSYNC_LLM_PROVIDER", "DOCSYNC_LLM_MODEL", "DOCSYNC_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 60, cfg.LLM.Timeout)
	assert.Equal(t, 1, cfg.Batch.Workers)
	assert.InDelta(t, 0.02, cfg.Batch.CostPer1KTokens, 1e-9)
	assert.True(t, cfg.Repositories.Shallow)
}

func TestLoadConfig_FileAndEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: openai
  model: gpt-4o
  timeout: 30
repositories:
  cache_dir: /tmp/docsync-cache
batch:
  workers: 4
`), 0o644))
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "/tmp/docsync-cache", cfg.Repositories.CacheDir)
	assert.Equal(t, 4, cfg.Batch.Workers)
	assert.Equal(t, int64(30), int64(cfg.Timeout().Seconds()))
	require.NoError(t, cfg.Validate())

	t.Setenv("DOCSYNC_LLM_PROVIDER", "gemini")
	t.Setenv("DOCSYNC_API_KEY", "explicit")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "explicit", cfg.LLM.APIKey)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfig))
}

func TestValidate_MissingKey(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfig))
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")

	cfg.LLM.Provider = "cohere"
	cfg.LLM.APIKey = "x"
	assert.Error(t, cfg.Validate())
}

func TestSave_OmitsAPIKey(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.LLM.APIKey = "secret"
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.LLM.Model, loaded.LLM.Model)
	assert.Equal(t, cfg.Store.Path, loaded.Store.Path)
}
