package matching

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"mmsim/domain/orderbook"
)

var ErrInvalidQuoter = errors.New("invalid quoter parameters")

// PriceSource supplies the fair price at a point in time.
type PriceSource interface {
	PriceAt(ts time.Time) (decimal.Decimal, error)
}

// Quoter holds the replenishment parameters. The fair price and the
// reference daily volume are external inputs.
type Quoter struct {
	Prices               PriceSource
	Spread               decimal.Decimal
	ReferenceDailyVolume decimal.Decimal
}

func (q *Quoter) Validate() error {
	switch {
	case q.Prices == nil:
		return errors.Wrap(ErrInvalidQuoter, "no price source")
	case q.Spread.IsNegative():
		return errors.Wrapf(ErrInvalidQuoter, "spread %s", q.Spread)
	case !q.ReferenceDailyVolume.IsPositive():
		return errors.Wrapf(ErrInvalidQuoter, "reference daily volume %s", q.ReferenceDailyVolume)
	}
	return nil
}

// Price is the replenishment price for consumed size on side:
// fair -/+ spread*(1 + consumed/referenceDailyVolume), below fair on
// bids and above fair on asks.
func (q *Quoter) Price(side orderbook.Side, fair, consumed decimal.Decimal) decimal.Decimal {
	skew := q.Spread.Mul(decimal.NewFromInt(1).Add(consumed.Div(q.ReferenceDailyVolume)))
	if side == orderbook.Bid {
		return fair.Sub(skew)
	}
	return fair.Add(skew)
}
