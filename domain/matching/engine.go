// Package matching fills aggressor orders against the price-level book and
// replenishes the maker's consumed quotes.
package matching

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mmsim/domain/ledger"
	"mmsim/domain/orderbook"
)

var (
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrBookAccounting        = errors.New("book accounting violated")
	ErrInvalidSize           = errors.New("order size must be positive")
)

// side mapping at the engine boundary
var (
	consumes = map[orderbook.Direction]orderbook.Side{
		orderbook.Buy:  orderbook.Ask,
		orderbook.Sell: orderbook.Bid,
	}
	rests = map[orderbook.Direction]orderbook.Side{
		orderbook.Buy:  orderbook.Bid,
		orderbook.Sell: orderbook.Ask,
	}
)

// ConsumedSide returns the book side an aggressor of direction d trades against.
func ConsumedSide(d orderbook.Direction) (orderbook.Side, bool) {
	s, ok := consumes[d]
	return s, ok
}

// Order is one aggressor. When FallbackPrice is valid any size the book
// cannot fill rests on the aggressor's own side at that price.
type Order struct {
	Direction     orderbook.Direction
	Size          decimal.Decimal
	Time          time.Time
	FallbackPrice decimal.NullDecimal
}

// Report is the outcome of one Execute call.
type Report struct {
	Trades   []ledger.TradeRecord
	Rested   *orderbook.Level
	Requotes []orderbook.Level
}

// Filled is the total traded size.
func (r Report) Filled() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range r.Trades {
		sum = sum.Add(t.Size)
	}
	return sum
}

/*
Engine is the only writer of the book. Reads go through Engine.View.

Execute is not atomic: when a step fails, levels consumed before it
stay consumed and the trades logged for them stay logged.
*/
type Engine struct {
	book   *orderbook.Book
	ledger *ledger.Ledger
	quoter *Quoter
	log    *zap.Logger
}

type Option func(*Engine)

// WithQuoter enables replenishment of consumed maker levels.
func WithQuoter(q *Quoter) Option {
	return func(e *Engine) { e.quoter = q }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func NewEngine(book *orderbook.Book, l *ledger.Ledger, opts ...Option) (*Engine, error) {
	if book == nil || l == nil {
		return nil, errors.New("engine needs a book and a ledger")
	}
	e := &Engine{book: book, ledger: l, log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	if e.quoter != nil {
		if err := e.quoter.Validate(); err != nil {
			return nil, err
		}
	}
	e.log = e.log.Named("matching")
	return e, nil
}

func (e *Engine) View() orderbook.View { return e.book }

func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Quote places or refreshes a resting level. A non-positive size removes it.
func (e *Engine) Quote(side orderbook.Side, price, size decimal.Decimal, ts time.Time, origin orderbook.Origin) error {
	dropped, err := e.book.Upsert(side, price, size, ts, origin)
	if err != nil {
		return err
	}
	for _, l := range dropped {
		e.log.Debug("level trimmed", zap.Stringer("side", side), zap.Stringer("price", l.Price))
	}
	return nil
}

// consumption is one swept level, kept for replenishment.
type consumption struct {
	side orderbook.Side
	size decimal.Decimal
}

// Validate checks o without looking at the book.
func (o Order) Validate() error {
	if _, ok := consumes[o.Direction]; !ok {
		return errors.Wrapf(orderbook.ErrInvalidDirection, "direction %d", o.Direction)
	}
	if !o.Size.IsPositive() {
		return errors.Wrapf(ErrInvalidSize, "size %s", o.Size)
	}
	if o.FallbackPrice.Valid && !o.FallbackPrice.Decimal.IsPositive() {
		return errors.Wrapf(orderbook.ErrInvalidPrice, "fallback %s", o.FallbackPrice.Decimal)
	}
	return nil
}

// Execute fills o against the opposite side of the book, best price first.
// Consumed maker levels are requoted only once the sweep has finished.
// A requote that has no fair price at o.Time is skipped.
func (e *Engine) Execute(o Order) (Report, error) {
	if err := o.Validate(); err != nil {
		return Report{}, err
	}
	opposite := consumes[o.Direction]

	depth := e.book.TotalDepth(opposite)
	if depth.LessThan(o.Size) && !o.FallbackPrice.Valid {
		return Report{}, errors.Wrapf(ErrInsufficientLiquidity,
			"%s %s against %s depth %s", o.Direction, o.Size, opposite, depth)
	}

	var (
		rep       Report
		consumed  []consumption
		remaining = o.Size
	)
	for remaining.IsPositive() {
		best, ok := e.book.Best(opposite)
		if !ok {
			if !o.FallbackPrice.Valid {
				return rep, errors.Mark(errors.AssertionFailedf(
					"%s side empty with %s of %s %s unfilled", opposite, remaining, o.Direction, o.Size),
					ErrBookAccounting)
			}
			rested, err := e.rest(o, remaining)
			if err != nil {
				return rep, err
			}
			rep.Rested = &rested
			break
		}
		if !best.Size.IsPositive() {
			return rep, errors.Mark(errors.AssertionFailedf(
				"%s level %s holds size %s", opposite, best.Price, best.Size), ErrBookAccounting)
		}

		fill := remaining
		if remaining.LessThanOrEqual(best.Size) {
			if _, err := e.book.Upsert(opposite, best.Price, best.Size.Sub(remaining), o.Time, best.Origin); err != nil {
				return rep, errors.Wrap(err, "reduce best level")
			}
		} else {
			fill = best.Size
			if err := e.book.Remove(opposite, best.Price); err != nil {
				return rep, errors.Wrap(err, "remove best level")
			}
		}
		remaining = remaining.Sub(fill)

		tr, err := e.ledger.Log(ledger.TradeRecord{
			Time:      o.Time,
			Direction: o.Direction,
			Price:     best.Price,
			Size:      fill,
			Origin:    best.Origin,
		})
		if err != nil {
			return rep, errors.Wrap(err, "log trade")
		}
		rep.Trades = append(rep.Trades, tr)
		e.log.Debug("fill",
			zap.Uint64("seq", tr.Seq),
			zap.Stringer("direction", o.Direction),
			zap.Stringer("price", tr.Price),
			zap.Stringer("size", tr.Size),
			zap.Stringer("origin", tr.Origin))

		if best.Origin == orderbook.Maker {
			consumed = append(consumed, consumption{side: opposite, size: fill})
		}
	}

	// requotes go in after the sweep so it never trades against them
	if e.quoter == nil || len(consumed) == 0 {
		return rep, nil
	}
	fair, err := e.quoter.Prices.PriceAt(o.Time)
	if err != nil {
		e.log.Warn("requote skipped, no fair price",
			zap.Time("at", o.Time),
			zap.Int("levels", len(consumed)),
			zap.Error(err))
		return rep, nil
	}
	for _, c := range consumed {
		lvl, posted, err := e.replenish(c, fair, o.Time)
		if err != nil {
			return rep, err
		}
		if posted {
			rep.Requotes = append(rep.Requotes, lvl)
		}
	}
	return rep, nil
}

func (e *Engine) rest(o Order, size decimal.Decimal) (orderbook.Level, error) {
	side := rests[o.Direction]
	lvl := orderbook.Level{
		Price:  o.FallbackPrice.Decimal,
		Size:   size,
		Time:   o.Time,
		Origin: orderbook.Client,
	}
	if _, err := e.book.Upsert(side, lvl.Price, lvl.Size, lvl.Time, lvl.Origin); err != nil {
		return orderbook.Level{}, errors.Wrap(err, "rest unfilled size")
	}
	e.log.Debug("rested",
		zap.Stringer("side", side),
		zap.Stringer("price", lvl.Price),
		zap.Stringer("size", lvl.Size))
	return lvl, nil
}

func (e *Engine) replenish(c consumption, fair decimal.Decimal, ts time.Time) (orderbook.Level, bool, error) {
	px := e.quoter.Price(c.side, fair, c.size)
	if !px.IsPositive() {
		e.log.Warn("requote skipped, price not positive",
			zap.Stringer("side", c.side),
			zap.Stringer("fair", fair),
			zap.Stringer("price", px))
		return orderbook.Level{}, false, nil
	}
	lvl := orderbook.Level{Price: px, Size: c.size, Time: ts, Origin: orderbook.Maker}
	if _, err := e.book.Upsert(c.side, lvl.Price, lvl.Size, lvl.Time, lvl.Origin); err != nil {
		return orderbook.Level{}, false, errors.Wrap(err, "requote")
	}
	return lvl, true, nil
}
