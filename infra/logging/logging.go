// Package logging builds the process zap logger, optionally teeing to a
// rotated file.
package logging

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type FileConfig struct {
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

type Config struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level"`
	// Encoding is json or console.
	Encoding string     `toml:"encoding"`
	File     FileConfig `toml:"file"`
}

func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Encoding: "console",
		File: FileConfig{
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

func (c Config) zapLevel() (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(c.Level))); err != nil {
		return lvl, errors.Wrapf(err, "log level %q", c.Level)
	}
	return lvl, nil
}

func (c Config) Validate() error {
	if _, err := c.zapLevel(); err != nil {
		return err
	}
	switch c.Encoding {
	case "json", "console":
		return nil
	}
	return errors.Newf("log encoding %q: want json or console", c.Encoding)
}

// New builds a logger writing to stderr and, when File.Path is set, to a
// rotated file. The returned func flushes and closes the file.
func New(cfg Config) (*zap.Logger, func(), error) {
	lvl, err := cfg.zapLevel()
	if err != nil {
		return nil, nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if cfg.Encoding == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl),
	}

	var rotator *lumberjack.Logger
	if cfg.File.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
			return nil, nil, errors.Wrap(err, "log dir")
		}
		rotator = &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		// files always get json
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			lvl,
		))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	closeFn := func() {
		_ = logger.Sync()
		if rotator != nil {
			_ = rotator.Close()
		}
	}
	return logger, closeFn, nil
}
