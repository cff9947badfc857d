package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
}

func TestLoadProjectConfigMerges(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-user-config"))
	project := `
search:
  rrf_constant: 80
collections:
  - name: docs
    path: /srv/docs
    pattern: "**/*.md"
    provider: filesystem
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(project), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Search.RRFConstant)
	// Untouched settings keep their defaults.
	assert.Equal(t, 10, cfg.Search.MaxResults)
	require.Len(t, cfg.Collections, 1)
	assert.Equal(t, "docs", cfg.Collections[0].Name)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-user-config"))
	t.Setenv("KBENGINE_EMBEDDINGS_PROVIDER", "static")
	t.Setenv("KBENGINE_RRF_CONSTANT", "90")
	t.Setenv("KBENGINE_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 90, cfg.Search.RRFConstant)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejections(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.DatabasePath = "" },
		func(c *Config) { c.Search.RRFConstant = 0 },
		func(c *Config) { c.Search.MaxResults = -1 },
		func(c *Config) { c.Logging.Level = "verbose" },
		func(c *Config) { c.Collections = []CollectionConfig{{Name: "", Path: "/x"}} },
		func(c *Config) {
			c.Collections = []CollectionConfig{
				{Name: "dup", Path: "/a"}, {Name: "dup", Path: "/b"},
			}
		},
		func(c *Config) { c.Collections = []CollectionConfig{{Name: "nopath"}} },
	}
	for i, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.APIKey())

	cfg.LLM.APIKeyEnv = "KBENGINE_TEST_KEY"
	t.Setenv("KBENGINE_TEST_KEY", "secret-value")
	assert.Equal(t, "secret-value", cfg.APIKey())
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-user-config"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("search: [unclosed"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestBM25BackendValidation(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "sqlite", cfg.Search.BM25Backend)

	cfg.Search.BM25Backend = "bleve"
	require.NoError(t, cfg.Validate())

	cfg.Search.BM25Backend = "elastic"
	require.Error(t, cfg.Validate())
}
