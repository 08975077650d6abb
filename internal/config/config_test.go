package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "klinevault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"KLINEVAULT_BASE_URL", "KLINEVAULT_WORKERS", "KLINEVAULT_TEMP_DIR", "KLINEVAULT_OUTPUT_DIR", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
source:
  base_url: "https://mirror.example.com"
  timeout: 30s
gather:
  workers: 45
  fetch_retries: 2
  retry_delay: 500ms
  parse_retry_delay: 1s
  max_probe_days: 100
  temp_dir: "/tmp/kv"
  keep_temp: true
output:
  dir: "/data/out"
  format: "parquet"
logging:
  level: "debug"
  format: "text"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://mirror.example.com", cfg.Source.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Source.Timeout)
	assert.Equal(t, 45, cfg.Gather.Workers)
	assert.Equal(t, 2, cfg.Gather.FetchRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Gather.RetryDelay)
	assert.Equal(t, time.Second, cfg.Gather.ParseRetryDelay)
	assert.Equal(t, 100, cfg.Gather.MaxProbeDays)
	assert.Equal(t, "/tmp/kv", cfg.Gather.TempDir)
	assert.True(t, cfg.Gather.KeepTemp)
	assert.Equal(t, "/data/out", cfg.Output.Dir)
	assert.Equal(t, "parquet", cfg.Output.Format)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "logging:\n  level: warn\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.Source.BaseURL)
	assert.Equal(t, DefaultWorkers, cfg.Gather.Workers)
	assert.Equal(t, 0, cfg.Gather.FetchRetries)
	assert.Equal(t, DefaultParseRetryDelay, cfg.Gather.ParseRetryDelay)
	assert.Equal(t, "csv", cfg.Output.Format)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("KLINEVAULT_WORKERS", "8")
	t.Setenv("KLINEVAULT_OUTPUT_DIR", "/env/out")
	t.Setenv("MIRROR_HOST", "mirror.internal")

	cfg, err := Load(writeConfig(t, "source:\n  base_url: \"http://${MIRROR_HOST}\"\ngather:\n  workers: 40\n"))
	require.NoError(t, err)

	assert.Equal(t, "http://mirror.internal", cfg.Source.BaseURL)
	assert.Equal(t, 8, cfg.Gather.Workers)
	assert.Equal(t, "/env/out", cfg.Output.Dir)
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkers, cfg.Gather.Workers)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad url", func(c *Config) { c.Source.BaseURL = "ftp://x" }},
		{"too many workers", func(c *Config) { c.Gather.Workers = MaxWorkers + 1 }},
		{"negative retries", func(c *Config) { c.Gather.FetchRetries = -1 }},
		{"bad format", func(c *Config) { c.Output.Format = "xlsx" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
