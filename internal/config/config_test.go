package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "data/ksync.db", cfg.Data.Path)
	assert.Equal(t, "binance", cfg.Source.Exchange)
	assert.Equal(t, 600, cfg.Source.RateLimitPerMin)
	assert.Equal(t, 1000, cfg.Source.MaxBatch)
	assert.Equal(t, 2, cfg.Sync.MaxConcurrent)
	assert.Equal(t, 730, cfg.Sync.LookbackDays)
}

func TestLoadOverridesAndDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: debug
data:
  path: /tmp/test.db
source:
  rate_limit_per_min: 120
sync:
  max_concurrent: 8
`)
	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "/tmp/test.db", cfg.Data.Path)
	assert.Equal(t, 120, cfg.Source.RateLimitPerMin)
	assert.Equal(t, 8, cfg.Sync.MaxConcurrent)
	// 未出现的字段补默认值
	assert.Equal(t, "binance", cfg.Source.Exchange)
	assert.Equal(t, 1000, cfg.Source.MaxBatch)
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(writeConfig(t, "source:\n  max_batch: 5000\n"))
	assert.ErrorContains(t, err, "max_batch")

	_, err = Load(writeConfig(t, "sync:\n  max_concurrent: 128\n"))
	assert.ErrorContains(t, err, "max_concurrent")

	_, err = Load(writeConfig(t, "source:\n  exchange: okx\n"))
	assert.ErrorContains(t, err, "okx")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
