package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad provider", func(c *Config) { c.Backend.Provider = "llamacpp" }},
		{"empty url", func(c *Config) { c.Backend.URL = "" }},
		{"empty model", func(c *Config) { c.Backend.Model = "" }},
		{"bad send format", func(c *Config) { c.Send.Format = "bmp" }},
		{"quality too low", func(c *Config) { c.Send.Quality = 0 }},
		{"quality too high", func(c *Config) { c.Send.Quality = 101 }},
		{"negative max dim", func(c *Config) { c.Send.MaxDim = -1 }},
		{"bad export format", func(c *Config) { c.Export.Format = "xml" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// An empty output dir is legal here: it means no destination was selected,
// which the sink layer reports as its own condition at run time.
func TestValidateAllowsEmptyOutputDir(t *testing.T) {
	cfg := Default()
	cfg.Export.OutputDir = ""
	require.NoError(t, cfg.Validate())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Backend.Provider = "openai"
	cfg.Backend.URL = "http://localhost:8081/v1"
	cfg.Backend.Model = "llava"
	cfg.Extract.Annotate = true

	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadFromFileMalformed(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))

	_, err := LoadFromFile(bad)
	require.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("VISION_BATCH_PROVIDER", "openai")
	t.Setenv("VISION_BATCH_URL", "http://gpu-box:8081/v1")
	t.Setenv("VISION_BATCH_MODEL", "qwen2-vl")
	t.Setenv("VISION_BATCH_TOKEN", "secret")

	cfg := Default()
	cfg.applyEnv()

	assert.Equal(t, "openai", cfg.Backend.Provider)
	assert.Equal(t, "http://gpu-box:8081/v1", cfg.Backend.URL)
	assert.Equal(t, "qwen2-vl", cfg.Backend.Model)
	assert.Equal(t, "secret", cfg.Backend.Token)
}

func TestApplyEnvLeavesUnsetFields(t *testing.T) {
	t.Setenv("VISION_BATCH_PROVIDER", "")
	t.Setenv("VISION_BATCH_URL", "")
	t.Setenv("VISION_BATCH_TOKEN", "")
	t.Setenv("VISION_BATCH_MODEL", "qwen2-vl")

	cfg := Default()
	cfg.applyEnv()

	assert.Equal(t, "ollama", cfg.Backend.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.Backend.URL)
	assert.Equal(t, "qwen2-vl", cfg.Backend.Model)
}
