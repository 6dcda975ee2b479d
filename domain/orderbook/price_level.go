package orderbook

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Level is one resting price on one side of the book.
type Level struct {
	Price  decimal.Decimal
	Size   decimal.Decimal
	Time   time.Time
	Origin Origin
}

// Empty reports whether the level is the zero value, used as the
// padding entry in snapshots.
func (l Level) Empty() bool {
	return l.Origin == 0 && l.Price.IsZero() && l.Size.IsZero() && l.Time.IsZero()
}

func (l Level) String() string {
	return fmt.Sprintf("Level{Price=%s, Size=%s, Origin=%s, Time=%s}",
		l.Price, l.Size, l.Origin, l.Time.Format(time.RFC3339Nano))
}
