package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mmsim.toml")
	body := `
[session]
book_depth = 4
starting_inventory = "-2.5"

[quoting]
spread = "0.01"
reference_daily_volume = "5000"
replenish = false

[quoting.ladder]
levels = 3
size = "10"
step = "0.02"

[kafka]
brokers = ["k1:9092", "k2:9092"]
publish_interval = "1s"

[storage]
store_dir = "/tmp/outbox"

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Session.BookDepth)
	assert.True(t, c.Session.StartingInventory.Equal(decimal.RequireFromString("-2.5")))
	assert.True(t, c.Quoting.Spread.Equal(decimal.RequireFromString("0.01")))
	assert.False(t, c.Quoting.Replenish)
	assert.Equal(t, 3, c.Quoting.Ladder.Levels)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, time.Second, c.Kafka.PublishInterval)
	assert.Equal(t, "debug", c.Logging.Level)
	// untouched sections keep their defaults
	assert.Equal(t, "mmsim.trades", c.Kafka.TradesTopic)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"MMSIM_BOOK_DEPTH":    "7",
		"MMSIM_SPREAD":        "0.5",
		"MMSIM_KAFKA_BROKERS": " a:1, ,b:2 ",
		"MMSIM_STORE_DIR":     "/data/store",
		"MMSIM_LOG_LEVEL":     "warn",
	}
	c := Default()
	require.NoError(t, applyEnv(&c, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	assert.Equal(t, 7, c.Session.BookDepth)
	assert.True(t, c.Quoting.Spread.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, []string{"a:1", "b:2"}, c.Kafka.Brokers)
	assert.Equal(t, "/data/store", c.Storage.StoreDir)
	assert.Equal(t, "warn", c.Logging.Level)
	require.NoError(t, c.Validate())
}

func TestEnvBadValue(t *testing.T) {
	c := Default()
	err := applyEnv(&c, func(k string) (string, bool) {
		if k == "MMSIM_REFERENCE_DAILY_VOLUME" {
			return "lots", true
		}
		return "", false
	})
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestLoadUsesEnvironment(t *testing.T) {
	t.Setenv("MMSIM_BOOK_DEPTH", "3")
	t.Setenv("MMSIM_LOG_LEVEL", "error")
	// default ladder has 5 levels, deeper than the overridden book
	_, err := Load("")
	assert.True(t, errors.Is(err, ErrInvalid))

	t.Setenv("MMSIM_BOOK_DEPTH", "5")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, c.Session.BookDepth)
	assert.Equal(t, "error", c.Logging.Level)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"depth":           func(c *Config) { c.Session.BookDepth = 0 },
		"negative spread": func(c *Config) { c.Quoting.Spread = decimal.NewFromInt(-1) },
		"zero rdv":        func(c *Config) { c.Quoting.ReferenceDailyVolume = decimal.Zero },
		"ladder size":     func(c *Config) { c.Quoting.Ladder.Size = decimal.Zero },
		"ladder step":     func(c *Config) { c.Quoting.Ladder.Step = decimal.Zero },
		"ladder levels":   func(c *Config) { c.Quoting.Ladder.Levels = -1 },
		"probability":     func(c *Config) { c.Arrivals.Probability = 1.5 },
		"buy ratio":       func(c *Config) { c.Arrivals.BuyRatio = -0.1 },
		"size range":      func(c *Config) { c.Arrivals.MaxSize = decimal.NewFromInt(1) },
		"snapshot dirs":   func(c *Config) { c.Storage.SnapshotEvery = 10 },
		"outbox":          func(c *Config) { c.Kafka.Brokers = []string{"k:9092"} },
		"log level":       func(c *Config) { c.Logging.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(&c)
			assert.True(t, errors.Is(c.Validate(), ErrInvalid))
		})
	}
}
