package main

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mmsim/config"
	"mmsim/domain/matching"
	"mmsim/domain/pricefeed"
	"mmsim/infra/journal"
	"mmsim/infra/logging"
	"mmsim/infra/metrics"
	"mmsim/infra/store"
	"mmsim/service"
	"mmsim/snapshot"
)

// app holds everything one command wires from the config.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	feed     *pricefeed.Series
	store    *store.Store
	session  *service.Session
	closers  []func() error
}

// newApp wires a session. A read-only app opens neither the journal for
// writing nor the trade store.
func newApp(cfg config.Config, readOnly bool) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	// ---------------- Logging ----------------

	log, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a.log = log
	a.closers = append(a.closers, func() error { closeLog(); return nil })

	// ---------------- Metrics ----------------

	a.registry = metrics.NewRegistry()
	a.metrics = metrics.New(a.registry)

	// ---------------- Price feed ----------------

	if cfg.Session.PriceFeed != "" {
		if a.feed, err = loadFeed(cfg.Session.PriceFeed); err != nil {
			return a, err
		}
	}

	opts := service.Options{
		Depth:   cfg.Session.BookDepth,
		Metrics: a.metrics,
		Logger:  log,
	}
	if cfg.Quoting.Replenish {
		if a.feed == nil {
			return a, errors.New("replenishment needs a price feed")
		}
		opts.Quoter = &matching.Quoter{
			Prices:               a.feed,
			Spread:               cfg.Quoting.Spread,
			ReferenceDailyVolume: cfg.Quoting.ReferenceDailyVolume,
		}
	}

	// ---------------- Trade store ----------------

	if cfg.Storage.StoreDir != "" && !readOnly {
		if a.store, err = store.Open(cfg.Storage.StoreDir); err != nil {
			return a, err
		}
		a.closers = append(a.closers, a.store.Close)
		opts.Sink = a.store
	}

	// ---------------- Journal ----------------

	if cfg.Storage.JournalDir != "" && !readOnly {
		j, err := journal.Open(journal.Config{Dir: cfg.Storage.JournalDir, SegmentSize: cfg.Storage.SegmentSize})
		if err != nil {
			return a, err
		}
		if n := j.TornBytes(); n > 0 {
			log.Warn("journal torn tail cut", zap.Int64("bytes", n), zap.Uint64("last_seq", j.LastSeq()))
		}
		opts.Journal = j
	}
	if cfg.Storage.SnapshotDir != "" && !readOnly {
		opts.Snapshots = &snapshot.Writer{Dir: cfg.Storage.SnapshotDir}
	}

	// ---------------- Session ----------------

	if a.session, err = service.NewSession(opts); err != nil {
		if opts.Journal != nil {
			_ = opts.Journal.Close()
		}
		return a, err
	}
	a.closers = append(a.closers, a.session.Close)

	if _, err := a.session.Recover(cfg.Storage.SnapshotDir, cfg.Storage.JournalDir); err != nil {
		return a, errors.Wrap(err, "recover session")
	}
	return a, nil
}

func loadFeed(path string) (*pricefeed.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := pricefeed.ReadCSV(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return s, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.log != nil {
			a.log.Warn("close", zap.Error(err))
		}
	}
	a.closers = nil
}

func randomConfig(c config.Arrivals) service.RandomConfig {
	return service.RandomConfig{
		Seed:           c.Seed,
		Probability:    c.Probability,
		BuyRatio:       c.BuyRatio,
		MinSize:        c.MinSize,
		MaxSize:        c.MaxSize,
		FallbackOffset: c.FallbackOffset,
		SizePlaces:     2,
	}
}

func runConfig(c config.Config) service.RunConfig {
	return service.RunConfig{
		Ladder: service.Ladder{
			Levels: c.Quoting.Ladder.Levels,
			Size:   c.Quoting.Ladder.Size,
			Step:   c.Quoting.Ladder.Step,
		},
		StartingInventory: c.Session.StartingInventory,
		SnapshotEvery:     c.Storage.SnapshotEvery,
	}
}
