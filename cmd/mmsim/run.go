package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mmsim/infra/kafka"
	"mmsim/infra/metrics"
	"mmsim/infra/store"
	"mmsim/jobs/broadcaster"
	"mmsim/service"
)

const (
	seedFlagName    = "seed"
	bookCSVFlagName = "book-csv"
	pnlCSVFlagName  = "pnl-csv"
)

func init() {
	runCmd.Flags().Uint64(seedFlagName, 0, "arrival seed, overrides arrivals.seed")
	runCmd.Flags().String(bookCSVFlagName, "", "write the final book snapshot as CSV to this path")
	runCmd.Flags().String(pnlCSVFlagName, "", "write the PnL path as CSV to this path")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Walk the fair-price feed with random aggressors and report PnL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed(seedFlagName) {
			cfg.Arrivals.Seed, _ = cmd.Flags().GetUint64(seedFlagName)
		}
		if cfg.Session.PriceFeed == "" {
			return errors.New("a price feed is required (--feed or session.price_feed)")
		}

		a, err := newApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		jobCtx, cancelJobs := context.WithCancel(ctx)
		defer cancelJobs()
		g, gctx := errgroup.WithContext(jobCtx)

		// ---------------- Background jobs ----------------

		if cfg.Metrics.Addr != "" {
			serveMetrics(gctx, g, cfg.Metrics.Addr, a)
		}
		if len(cfg.Kafka.Brokers) > 0 {
			b, err := broadcaster.Dial(a.store, cfg.Kafka.Brokers, broadcaster.Config{
				Topic:      cfg.Kafka.TradesTopic,
				Session:    a.session.ID(),
				MaxRetries: cfg.Kafka.MaxRetries,
			}, broadcaster.WithLogger(a.log), broadcaster.WithMetrics(a.metrics))
			if err != nil {
				return err
			}
			defer b.Close()
			g.Go(func() error { return b.Run(gctx, cfg.Kafka.PublishInterval) })
		}

		// ---------------- Simulation ----------------

		arrivals := service.NewRandomArrivals(randomConfig(cfg.Arrivals))
		res, runErr := service.NewRunner(a.session, a.feed, arrivals, runConfig(cfg)).Run(gctx)
		cancelJobs()
		if err := g.Wait(); err != nil && runErr == nil {
			runErr = err
		}
		if runErr != nil {
			return runErr
		}
		if a.store != nil {
			logOutbox(a)
		}

		if len(cfg.Kafka.Brokers) > 0 && len(res.Points) > 0 {
			pub := kafka.NewPointPublisher(kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.PnLTopic), a.session.ID())
			err := pub.Publish(ctx, res.Points)
			if cerr := pub.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			a.log.Info("pnl published", zap.Int("points", len(res.Points)), zap.String("topic", cfg.Kafka.PnLTopic))
		}

		// ---------------- Report ----------------

		out := cmd.OutOrStdout()
		if err := printBook(out, a.session.Book().Snapshot()); err != nil {
			return err
		}
		if err := printSummary(out, a.session.ID(), res); err != nil {
			return err
		}
		if path, _ := cmd.Flags().GetString(bookCSVFlagName); path != "" {
			if err := writeFile(path, func(f *os.File) error { return writeBookCSV(f, a.session.Book().Snapshot()) }); err != nil {
				return err
			}
		}
		if path, _ := cmd.Flags().GetString(pnlCSVFlagName); path != "" {
			if err := writeFile(path, func(f *os.File) error { return writePointsCSV(f, res.Points) }); err != nil {
				return err
			}
		}
		return nil
	},
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, a *app) {
	srv := &http.Server{Addr: addr, Handler: metrics.Handler(a.registry), ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		a.log.Info("metrics server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "metrics server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func logOutbox(a *app) {
	counts, err := a.store.Counts()
	if err != nil {
		a.log.Warn("outbox counts", zap.Error(err))
		return
	}
	a.log.Info("outbox",
		zap.Int("new", counts[store.StateNew]),
		zap.Int("sent", counts[store.StateSent]),
		zap.Int("acked", counts[store.StateAcked]),
		zap.Int("failed", counts[store.StateFailed]))
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return f.Close()
}
