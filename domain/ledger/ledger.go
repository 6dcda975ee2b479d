// Package ledger records every fill in insertion order.
package ledger

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"mmsim/domain/orderbook"
	"mmsim/infra/sequence"
)

var (
	ErrInvalidTrade = errors.New("invalid trade record")
	ErrNotEmpty     = errors.New("ledger already holds records")
)

// TradeRecord is one fill. Records are immutable once logged.
type TradeRecord struct {
	Seq       uint64
	Time      time.Time
	Direction orderbook.Direction
	Price     decimal.Decimal
	Size      decimal.Decimal
	Origin    orderbook.Origin
}

func (r TradeRecord) String() string {
	return fmt.Sprintf("Trade{Seq=%d, %s %s @ %s, Origin=%s, Time=%s}",
		r.Seq, r.Direction, r.Size, r.Price, r.Origin, r.Time.Format(time.RFC3339Nano))
}

// Notional is price times size.
func (r TradeRecord) Notional() decimal.Decimal {
	return r.Price.Mul(r.Size)
}

func (r TradeRecord) validate() error {
	switch {
	case !r.Direction.Valid():
		return errors.Wrapf(orderbook.ErrInvalidDirection, "trade direction %d", r.Direction)
	case !r.Origin.Valid():
		return errors.Wrapf(orderbook.ErrInvalidOrigin, "trade origin %d", r.Origin)
	case !r.Price.IsPositive():
		return errors.Wrapf(ErrInvalidTrade, "price %s", r.Price)
	case !r.Size.IsPositive():
		return errors.Wrapf(ErrInvalidTrade, "size %s", r.Size)
	}
	return nil
}

// Sink durably stores a record before the ledger accepts it.
type Sink interface {
	Persist(TradeRecord) error
}

// Ledger is an append-only trade log. It is not safe for concurrent use;
// the session owns it.
type Ledger struct {
	seq     *sequence.Sequencer
	sink    Sink
	records []TradeRecord
}

type Option func(*Ledger)

// WithSink persists every record to s before it is appended.
func WithSink(s Sink) Option {
	return func(l *Ledger) { l.sink = s }
}

func New(opts ...Option) *Ledger {
	l := &Ledger{seq: sequence.New(0)}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Log assigns the next sequence number and appends the record. When a
// sink is configured and fails the record is not appended.
func (l *Ledger) Log(r TradeRecord) (TradeRecord, error) {
	if err := r.validate(); err != nil {
		return TradeRecord{}, err
	}
	r.Seq = l.seq.Current() + 1
	if l.sink != nil {
		if err := l.sink.Persist(r); err != nil {
			return TradeRecord{}, errors.Wrapf(err, "persist trade %d", r.Seq)
		}
	}
	l.seq.Next()
	l.records = append(l.records, r)
	return r, nil
}

// Range returns the records with time in [start, end], in insertion order.
func (l *Ledger) Range(start, end time.Time) []TradeRecord {
	var out []TradeRecord
	for _, r := range l.records {
		if r.Time.Before(start) || r.Time.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Records returns a copy of every record.
func (l *Ledger) Records() []TradeRecord {
	out := make([]TradeRecord, len(l.records))
	copy(out, l.records)
	return out
}

func (l *Ledger) Len() int { return len(l.records) }

// LastSeq is the sequence of the most recent record, 0 when empty.
func (l *Ledger) LastSeq() uint64 { return l.seq.Current() }

// Restore loads previously logged records into an empty ledger. The sink
// is not called. Records must carry increasing sequence numbers.
func (l *Ledger) Restore(records []TradeRecord) error {
	if len(l.records) > 0 {
		return ErrNotEmpty
	}
	var last uint64
	for i, r := range records {
		if err := r.validate(); err != nil {
			return errors.Wrapf(err, "restore record %d", i)
		}
		if r.Seq <= last {
			return errors.Wrapf(ErrInvalidTrade, "restore record %d: seq %d after %d", i, r.Seq, last)
		}
		last = r.Seq
	}
	l.records = append(l.records[:0], records...)
	l.seq.Advance(last)
	return nil
}
