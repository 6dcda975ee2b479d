// Package pnl folds the trade ledger against the fair-price series into
// a cumulative PnL and inventory path.
package pnl

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"mmsim/domain/ledger"
	"mmsim/domain/pricefeed"
)

var ErrNoReferencePrice = pricefeed.ErrNoReferencePrice

// Prices is the LOCF lookup the tracker joins against.
type Prices interface {
	PriceAt(ts time.Time) (decimal.Decimal, error)
}

// Window bounds the trades that are tracked, inclusive. A zero bound
// defaults to the first or last trade time.
type Window struct {
	Start time.Time
	End   time.Time
}

// Point is the accounting state after one trade.
type Point struct {
	Seq            uint64
	Time           time.Time
	ReferencePrice decimal.Decimal
	Increment      decimal.Decimal
	CumulativePnL  decimal.Decimal
	Inventory      decimal.Decimal
}

// Track emits one point per trade inside the window, in input order.
// Buys reduce inventory and sells increase it; each trade contributes
// sign*(size/ref)*(price-ref). Track has no side effects.
func Track(trades []ledger.TradeRecord, prices Prices, startingInventory decimal.Decimal, w Window) ([]Point, error) {
	if len(trades) == 0 {
		return nil, nil
	}
	start, end := w.Start, w.End
	if start.IsZero() {
		start = trades[0].Time
	}
	if end.IsZero() {
		end = trades[len(trades)-1].Time
	}

	var (
		points    = make([]Point, 0, len(trades))
		inventory = startingInventory
		cum       = decimal.Zero
	)
	for _, tr := range trades {
		if tr.Time.Before(start) || tr.Time.After(end) {
			continue
		}
		ref, err := prices.PriceAt(tr.Time)
		if err != nil {
			return nil, errors.Wrapf(err, "trade %d", tr.Seq)
		}
		if !ref.IsPositive() {
			return nil, errors.Wrapf(pricefeed.ErrInvalidPrice, "trade %d: reference %s", tr.Seq, ref)
		}

		sign := decimal.NewFromInt(tr.Direction.Sign())
		inc := sign.Mul(tr.Size.Div(ref)).Mul(tr.Price.Sub(ref))
		inventory = inventory.Sub(sign.Mul(tr.Size))
		cum = cum.Add(inc)

		points = append(points, Point{
			Seq:            tr.Seq,
			Time:           tr.Time,
			ReferencePrice: ref,
			Increment:      inc,
			CumulativePnL:  cum,
			Inventory:      inventory,
		})
	}
	return points, nil
}
