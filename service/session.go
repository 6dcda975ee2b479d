package service

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mmsim/domain/ledger"
	"mmsim/domain/matching"
	"mmsim/domain/orderbook"
	"mmsim/infra/codec"
	"mmsim/infra/journal"
	"mmsim/infra/metrics"
	"mmsim/infra/sequence"
	"mmsim/snapshot"
)

/*
Session is the ONLY write entry point into a simulation.

Every command is validated, journaled, and only then applied to the
engine. Metrics and logs are updated after the engine returns.
*/
type Session struct {
	id      string
	engine  *matching.Engine
	journal *journal.Journal
	seq     *sequence.Sequencer
	snaps   *snapshot.Writer
	metrics *metrics.Metrics
	log     *zap.Logger
}

type Options struct {
	// ID defaults to a random UUID.
	ID        string
	Depth     int
	Quoter    *matching.Quoter
	Sink      ledger.Sink
	Journal   *journal.Journal
	Snapshots *snapshot.Writer
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

func NewSession(opts Options) (*Session, error) {
	book, err := orderbook.NewBook(opts.Depth)
	if err != nil {
		return nil, err
	}
	var lopts []ledger.Option
	if opts.Sink != nil {
		lopts = append(lopts, ledger.WithSink(opts.Sink))
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("session", id))

	eopts := []matching.Option{matching.WithLogger(log)}
	if opts.Quoter != nil {
		eopts = append(eopts, matching.WithQuoter(opts.Quoter))
	}
	engine, err := matching.NewEngine(book, ledger.New(lopts...), eopts...)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:      id,
		engine:  engine,
		journal: opts.Journal,
		seq:     sequence.New(0),
		snaps:   opts.Snapshots,
		metrics: opts.Metrics,
		log:     log.Named("session"),
	}
	if s.journal != nil {
		s.seq.Advance(s.journal.LastSeq())
	}
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Book() orderbook.View { return s.engine.View() }

func (s *Session) Ledger() *ledger.Ledger { return s.engine.Ledger() }

// JournalSeq is the sequence of the last command applied.
func (s *Session) JournalSeq() uint64 { return s.seq.Current() }

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// Quote places, refreshes or (size <= 0) removes a resting level.
func (s *Session) Quote(side orderbook.Side, price, size decimal.Decimal, ts time.Time, origin orderbook.Origin) error {
	if err := orderbook.CheckUpsert(side, price, size, origin); err != nil {
		return err
	}
	cmd := codec.QuoteCommand{Side: side, Price: price, Size: size, Time: ts, Origin: origin}
	if err := s.append(journal.RecordQuote, ts, codec.EncodeQuote(cmd)); err != nil {
		return err
	}
	if err := s.engine.Quote(side, price, size, ts, origin); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ObserveBook(s.engine.View())
	}
	return nil
}

// Execute runs one aggressor order. Rejections (see IsRejection) leave
// the book untouched and are journaled like any other command, so a
// replay rejects them again.
func (s *Session) Execute(o matching.Order) (matching.Report, error) {
	if err := o.Validate(); err != nil {
		s.reject(err)
		return matching.Report{}, err
	}
	cmd := codec.ExecuteCommand{
		Direction:     o.Direction,
		Size:          o.Size,
		Time:          o.Time,
		FallbackPrice: o.FallbackPrice,
	}
	if err := s.append(journal.RecordExecute, o.Time, codec.EncodeExecute(cmd)); err != nil {
		return matching.Report{}, err
	}

	rep, err := s.engine.Execute(o)
	s.observe(o, rep)
	if err != nil {
		s.reject(err)
		if IsRejection(err) {
			s.log.Info("order rejected",
				zap.Stringer("direction", o.Direction),
				zap.Stringer("size", o.Size),
				zap.Error(err))
		} else {
			s.log.Error("execute failed",
				zap.Stringer("direction", o.Direction),
				zap.Stringer("size", o.Size),
				zap.Int("trades", len(rep.Trades)),
				zap.Error(err))
		}
		return rep, err
	}

	s.log.Debug("executed",
		zap.Stringer("direction", o.Direction),
		zap.Stringer("size", o.Size),
		zap.Stringer("filled", rep.Filled()),
		zap.Int("trades", len(rep.Trades)),
		zap.Int("requotes", len(rep.Requotes)),
		zap.Bool("rested", rep.Rested != nil))
	return rep, nil
}

// IsRejection reports whether err is an expected outcome of an order
// against the current book rather than a fault.
func IsRejection(err error) bool {
	return errors.Is(err, matching.ErrInsufficientLiquidity)
}

func (s *Session) append(typ journal.RecordType, ts time.Time, data []byte) error {
	if s.journal == nil {
		s.seq.Next()
		return nil
	}
	seq := s.seq.Current() + 1
	if err := s.journal.Append(&journal.Record{Type: typ, Seq: seq, Time: ts, Data: data}); err != nil {
		return errors.Wrapf(err, "journal %s", typ)
	}
	s.seq.Next()
	if s.metrics != nil {
		s.metrics.Journal.Inc()
	}
	return nil
}

func (s *Session) observe(o matching.Order, rep matching.Report) {
	if s.metrics == nil {
		return
	}
	for _, t := range rep.Trades {
		s.metrics.ObserveFill(t.Direction, t.Origin, t.Size)
	}
	if len(rep.Requotes) > 0 {
		side, _ := matching.ConsumedSide(o.Direction)
		s.metrics.Requotes.WithLabelValues(side.String()).Add(float64(len(rep.Requotes)))
	}
	if rep.Rested != nil {
		s.metrics.Rested.Inc()
	}
	s.metrics.ObserveBook(s.engine.View())
}

func (s *Session) reject(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.Rejections.WithLabelValues(reason(err)).Inc()
}

func reason(err error) string {
	switch {
	case errors.Is(err, matching.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, matching.ErrBookAccounting):
		return "book_accounting"
	case errors.Is(err, matching.ErrInvalidSize),
		errors.Is(err, orderbook.ErrInvalidDirection),
		errors.Is(err, orderbook.ErrInvalidPrice):
		return "invalid"
	default:
		return "internal"
	}
}

// Close syncs and closes the journal.
func (s *Session) Close() error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Close()
}
