// Package pricefeed holds the external fair-price time series and answers
// last-observation-carried-forward lookups against it.
package pricefeed

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

var (
	ErrNoReferencePrice = errors.New("no fair price at or before timestamp")
	ErrUnorderedSeries  = errors.New("fair price series must be strictly increasing in time")
	ErrInvalidPrice     = errors.New("fair price must be positive")
)

// Observation is one (timestamp, fair price) sample.
type Observation struct {
	Time  time.Time
	Price decimal.Decimal
}

func lessObservation(a, b Observation) bool { return a.Time.Before(b.Time) }

// Series is an immutable, time-ordered fair-price series.
type Series struct {
	tree *btree.BTreeG[Observation]
}

// NewSeries builds a series from observations that are already ordered by
// strictly increasing time.
func NewSeries(obs []Observation) (*Series, error) {
	tree := btree.NewG(16, lessObservation)
	for i, o := range obs {
		if !o.Price.IsPositive() {
			return nil, errors.Wrapf(ErrInvalidPrice, "observation %d at %s: %s", i, o.Time.Format(time.RFC3339Nano), o.Price)
		}
		if i > 0 && !obs[i-1].Time.Before(o.Time) {
			return nil, errors.Wrapf(ErrUnorderedSeries, "observation %d at %s", i, o.Time.Format(time.RFC3339Nano))
		}
		tree.ReplaceOrInsert(o)
	}
	return &Series{tree: tree}, nil
}

// Len returns the number of observations.
func (s *Series) Len() int { return s.tree.Len() }

// PriceAt returns the latest fair price observed at or before ts.
func (s *Series) PriceAt(ts time.Time) (decimal.Decimal, error) {
	var (
		found Observation
		ok    bool
	)
	s.tree.DescendLessOrEqual(Observation{Time: ts}, func(o Observation) bool {
		found, ok = o, true
		return false
	})
	if !ok {
		return decimal.Zero, errors.Wrapf(ErrNoReferencePrice, "at %s", ts.Format(time.RFC3339Nano))
	}
	return found.Price, nil
}

// Last returns the latest observation; false on an empty series.
func (s *Series) Last() (Observation, bool) { return s.tree.Max() }

// Each visits observations in time order until fn returns false.
func (s *Series) Each(fn func(Observation) bool) {
	s.tree.Ascend(fn)
}
