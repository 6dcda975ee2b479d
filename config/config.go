// Package config loads the simulator configuration: defaults, then an
// optional TOML file, then MMSIM_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"mmsim/infra/logging"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Session  Session        `toml:"session"`
	Quoting  Quoting        `toml:"quoting"`
	Arrivals Arrivals       `toml:"arrivals"`
	Storage  Storage        `toml:"storage"`
	Kafka    Kafka          `toml:"kafka"`
	Metrics  Metrics        `toml:"metrics"`
	Logging  logging.Config `toml:"logging"`
}

type Session struct {
	BookDepth         int             `toml:"book_depth"`
	StartingInventory decimal.Decimal `toml:"starting_inventory"`
	PriceFeed         string          `toml:"price_feed"`
}

// Ladder is the maker's initial quote ladder around the first fair price.
type Ladder struct {
	Levels int             `toml:"levels"`
	Size   decimal.Decimal `toml:"size"`
	Step   decimal.Decimal `toml:"step"`
}

type Quoting struct {
	Spread               decimal.Decimal `toml:"spread"`
	ReferenceDailyVolume decimal.Decimal `toml:"reference_daily_volume"`
	Replenish            bool            `toml:"replenish"`
	Ladder               Ladder          `toml:"ladder"`
}

// Arrivals parameterises the built-in random aggressor model.
type Arrivals struct {
	Seed        uint64          `toml:"seed"`
	Probability float64         `toml:"probability"`
	BuyRatio    float64         `toml:"buy_ratio"`
	MinSize     decimal.Decimal `toml:"min_size"`
	MaxSize     decimal.Decimal `toml:"max_size"`

	// FallbackOffset, when positive, lets unfilled size rest this far
	// through the fair price.
	FallbackOffset decimal.Decimal `toml:"fallback_offset"`
}

type Storage struct {
	JournalDir    string `toml:"journal_dir"`
	StoreDir      string `toml:"store_dir"`
	SnapshotDir   string `toml:"snapshot_dir"`
	SegmentSize   int64  `toml:"segment_size"`
	SnapshotEvery int    `toml:"snapshot_every"`
}

type Kafka struct {
	Brokers         []string      `toml:"brokers"`
	TradesTopic     string        `toml:"trades_topic"`
	PnLTopic        string        `toml:"pnl_topic"`
	PublishInterval time.Duration `toml:"publish_interval"`
	MaxRetries      uint32        `toml:"max_retries"`
}

type Metrics struct {
	Addr string `toml:"addr"`
}

func Default() Config {
	return Config{
		Session: Session{
			BookDepth:         10,
			StartingInventory: decimal.Zero,
		},
		Quoting: Quoting{
			Spread:               decimal.RequireFromString("0.001"),
			ReferenceDailyVolume: decimal.NewFromInt(1_000_000),
			Replenish:            true,
			Ladder: Ladder{
				Levels: 5,
				Size:   decimal.NewFromInt(1000),
				Step:   decimal.RequireFromString("0.0005"),
			},
		},
		Arrivals: Arrivals{
			Seed:           1,
			Probability:    0.2,
			BuyRatio:       0.5,
			MinSize:        decimal.NewFromInt(100),
			MaxSize:        decimal.NewFromInt(2000),
			FallbackOffset: decimal.Zero,
		},
		Storage: Storage{
			SegmentSize:   64 << 20,
			SnapshotEvery: 0,
		},
		Kafka: Kafka{
			TradesTopic:     "mmsim.trades",
			PnLTopic:        "mmsim.pnl",
			PublishInterval: 250 * time.Millisecond,
			MaxRetries:      5,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load builds the configuration. An empty path skips the file.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &c); err != nil {
			return Config{}, errors.Wrapf(err, "decode %s", path)
		}
	}
	if err := applyEnv(&c, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(c *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dec := func(key string, dst *decimal.Decimal) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(ErrInvalid, "%s=%q", key, v)
		}
		*dst = d
		return nil
	}

	if v, ok := lookup("MMSIM_BOOK_DEPTH"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(ErrInvalid, "MMSIM_BOOK_DEPTH=%q", v)
		}
		c.Session.BookDepth = n
	}
	if v, ok := lookup("MMSIM_ARRIVALS_SEED"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errors.Wrapf(ErrInvalid, "MMSIM_ARRIVALS_SEED=%q", v)
		}
		c.Arrivals.Seed = n
	}
	for key, dst := range map[string]*decimal.Decimal{
		"MMSIM_STARTING_INVENTORY":     &c.Session.StartingInventory,
		"MMSIM_SPREAD":                 &c.Quoting.Spread,
		"MMSIM_REFERENCE_DAILY_VOLUME": &c.Quoting.ReferenceDailyVolume,
	} {
		if err := dec(key, dst); err != nil {
			return err
		}
	}
	str("MMSIM_PRICE_FEED", &c.Session.PriceFeed)
	str("MMSIM_JOURNAL_DIR", &c.Storage.JournalDir)
	str("MMSIM_STORE_DIR", &c.Storage.StoreDir)
	str("MMSIM_SNAPSHOT_DIR", &c.Storage.SnapshotDir)
	str("MMSIM_METRICS_ADDR", &c.Metrics.Addr)
	str("MMSIM_LOG_LEVEL", &c.Logging.Level)
	if v, ok := lookup("MMSIM_KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = splitCSV(v)
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) Validate() error {
	var problems []string
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Session.BookDepth < 1 {
		bad("session.book_depth %d", c.Session.BookDepth)
	}
	if c.Quoting.Spread.IsNegative() {
		bad("quoting.spread %s", c.Quoting.Spread)
	}
	if !c.Quoting.ReferenceDailyVolume.IsPositive() {
		bad("quoting.reference_daily_volume %s", c.Quoting.ReferenceDailyVolume)
	}
	if l := c.Quoting.Ladder; l.Levels > 0 {
		if l.Levels > c.Session.BookDepth {
			bad("quoting.ladder.levels %d exceeds book depth %d", l.Levels, c.Session.BookDepth)
		}
		if !l.Size.IsPositive() {
			bad("quoting.ladder.size %s", l.Size)
		}
		if !l.Step.IsPositive() {
			bad("quoting.ladder.step %s", l.Step)
		}
	} else if l.Levels < 0 {
		bad("quoting.ladder.levels %d", l.Levels)
	}

	a := c.Arrivals
	if a.Probability < 0 || a.Probability > 1 {
		bad("arrivals.probability %v", a.Probability)
	}
	if a.BuyRatio < 0 || a.BuyRatio > 1 {
		bad("arrivals.buy_ratio %v", a.BuyRatio)
	}
	if !a.MinSize.IsPositive() || a.MaxSize.LessThan(a.MinSize) {
		bad("arrivals size range [%s, %s]", a.MinSize, a.MaxSize)
	}
	if a.FallbackOffset.IsNegative() {
		bad("arrivals.fallback_offset %s", a.FallbackOffset)
	}

	if c.Storage.SnapshotEvery < 0 {
		bad("storage.snapshot_every %d", c.Storage.SnapshotEvery)
	}
	if c.Storage.SnapshotEvery > 0 && (c.Storage.SnapshotDir == "" || c.Storage.JournalDir == "") {
		bad("storage.snapshot_every needs snapshot_dir and journal_dir")
	}
	if len(c.Kafka.Brokers) > 0 {
		if c.Kafka.TradesTopic == "" || c.Kafka.PnLTopic == "" {
			bad("kafka topics must be set when brokers are")
		}
		if c.Kafka.PublishInterval <= 0 {
			bad("kafka.publish_interval %s", c.Kafka.PublishInterval)
		}
		if c.Storage.StoreDir == "" {
			bad("kafka.brokers needs storage.store_dir for the trade outbox")
		}
	}
	if err := c.Logging.Validate(); err != nil {
		bad("logging: %v", err)
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.Wrap(ErrInvalid, strings.Join(problems, "; "))
}
