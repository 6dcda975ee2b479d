package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mmsim/domain/matching"
	"mmsim/domain/orderbook"
	"mmsim/domain/pnl"
	"mmsim/domain/pricefeed"
)

var ErrEmptyFeed = errors.New("price feed has no observations")

// Feed is the fair-price series a run walks.
type Feed interface {
	Each(fn func(pricefeed.Observation) bool)
	PriceAt(ts time.Time) (decimal.Decimal, error)
}

// Tick is what the arrival model sees at each fair-price observation.
type Tick struct {
	Time time.Time
	Fair decimal.Decimal
	Book orderbook.View
}

// Arrivals decides whether an aggressor arrives at a tick. A zero order
// Time is filled in with the tick time.
type Arrivals interface {
	Next(t Tick) (matching.Order, bool)
}

// Ladder is the initial maker quote ladder: Levels prices on each side,
// Step apart, starting one Step away from the first fair price.
type Ladder struct {
	Levels int
	Size   decimal.Decimal
	Step   decimal.Decimal
}

type RunConfig struct {
	Ladder            Ladder
	StartingInventory decimal.Decimal

	// SnapshotEvery checkpoints the session after that many ticks.
	SnapshotEvery int
	Window        pnl.Window
}

type Result struct {
	Ticks    int
	Orders   int
	Rejected int
	Points   []pnl.Point
	Summary  pnl.Summary
}

type Runner struct {
	session  *Session
	feed     Feed
	arrivals Arrivals
	cfg      RunConfig
	log      *zap.Logger
}

func NewRunner(s *Session, feed Feed, arrivals Arrivals, cfg RunConfig) *Runner {
	return &Runner{
		session:  s,
		feed:     feed,
		arrivals: arrivals,
		cfg:      cfg,
		log:      s.log.Named("runner"),
	}
}

// Run walks the feed once. Rejected orders are counted and skipped; a
// book accounting failure or any other error stops the run.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var (
		res    Result
		runErr error
		seeded bool
	)
	r.feed.Each(func(obs pricefeed.Observation) bool {
		if err := ctx.Err(); err != nil {
			runErr = err
			return false
		}
		if !seeded {
			if err := r.seed(obs); err != nil {
				runErr = err
				return false
			}
			seeded = true
		}
		res.Ticks++

		if err := r.tick(obs, &res); err != nil {
			runErr = err
			return false
		}
		if r.cfg.SnapshotEvery > 0 && res.Ticks%r.cfg.SnapshotEvery == 0 {
			if err := r.session.Checkpoint(); err != nil {
				runErr = err
				return false
			}
		}
		return true
	})
	if runErr != nil {
		return res, runErr
	}
	if !seeded {
		return res, ErrEmptyFeed
	}

	trades := r.session.Ledger().Records()
	points, err := pnl.Track(trades, r.feed, r.cfg.StartingInventory, r.cfg.Window)
	if err != nil {
		return res, errors.Wrap(err, "track pnl")
	}
	res.Points = points
	res.Summary = pnl.Summarize(points, trades)
	if m := r.session.metrics; m != nil {
		m.Inventory.Set(res.Summary.FinalInventory.InexactFloat64())
		m.PnL.Set(res.Summary.TotalPnL.InexactFloat64())
	}

	r.log.Info("run completed",
		zap.Int("ticks", res.Ticks),
		zap.Int("orders", res.Orders),
		zap.Int("rejected", res.Rejected),
		zap.Int("trades", len(trades)),
		zap.Stringer("pnl", res.Summary.TotalPnL),
		zap.Stringer("inventory", res.Summary.FinalInventory))
	return res, nil
}

func (r *Runner) tick(obs pricefeed.Observation, res *Result) error {
	o, ok := r.arrivals.Next(Tick{Time: obs.Time, Fair: obs.Price, Book: r.session.Book()})
	if !ok {
		return nil
	}
	if o.Time.IsZero() {
		o.Time = obs.Time
	}
	res.Orders++

	_, err := r.session.Execute(o)
	switch {
	case err == nil:
		return nil
	case IsRejection(err):
		res.Rejected++
		return nil
	case errors.Is(err, matching.ErrBookAccounting):
		return errors.Wrapf(err, "tick %s", obs.Time)
	default:
		return errors.Wrapf(err, "execute at %s", obs.Time)
	}
}

// seed posts the ladder around the first fair price. A book that already
// holds levels, from a recovered session, is left alone.
func (r *Runner) seed(obs pricefeed.Observation) error {
	book := r.session.Book()
	if book.Len(orderbook.Bid) > 0 || book.Len(orderbook.Ask) > 0 {
		return nil
	}
	return SeedLadder(r.session, r.cfg.Ladder, obs.Price, obs.Time)
}

// SeedLadder posts l around fair as maker quotes. Bid prices that would
// not be positive are skipped.
func SeedLadder(s *Session, l Ladder, fair decimal.Decimal, ts time.Time) error {
	for i := 1; i <= l.Levels; i++ {
		off := l.Step.Mul(decimal.NewFromInt(int64(i)))
		if bid := fair.Sub(off); bid.IsPositive() {
			if err := s.Quote(orderbook.Bid, bid, l.Size, ts, orderbook.Maker); err != nil {
				return errors.Wrapf(err, "seed bid %d", i)
			}
		}
		if err := s.Quote(orderbook.Ask, fair.Add(off), l.Size, ts, orderbook.Maker); err != nil {
			return errors.Wrapf(err, "seed ask %d", i)
		}
	}
	return nil
}
