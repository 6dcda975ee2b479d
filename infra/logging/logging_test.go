package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Level = "loud"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Encoding = "xml"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Level = "DEBUG"
	assert.NoError(t, cfg.Validate())
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mmsim.log")
	cfg := DefaultConfig()
	cfg.File.Path = path

	logger, closeFn, err := New(cfg)
	require.NoError(t, err)
	logger.Named("test").Info("session started")
	closeFn()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"session started"`), string(data))
	assert.True(t, strings.Contains(string(data), `"logger":"test"`))
}

func TestNewFiltersByLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mmsim.log")
	cfg := DefaultConfig()
	cfg.Level = "warn"
	cfg.File.Path = path

	logger, closeFn, err := New(cfg)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown")
	closeFn()

	data, _ := os.ReadFile(path)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}
