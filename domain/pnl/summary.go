package pnl

import (
	"time"

	"github.com/shopspring/decimal"

	"mmsim/domain/ledger"
	"mmsim/domain/orderbook"
)

// Summary aggregates a tracked run.
type Summary struct {
	Trades         int
	Buys           int
	Sells          int
	Volume         decimal.Decimal
	Notional       decimal.Decimal
	FinalInventory decimal.Decimal
	MinInventory   decimal.Decimal
	MaxInventory   decimal.Decimal
	TotalPnL       decimal.Decimal
	Start          time.Time
	End            time.Time
}

// Summarize combines the points from Track with the trades they came from.
// Only trades that produced a point are counted.
func Summarize(points []Point, trades []ledger.TradeRecord) Summary {
	s := Summary{
		Volume:   decimal.Zero,
		Notional: decimal.Zero,
	}
	if len(points) == 0 {
		return s
	}

	tracked := make(map[uint64]struct{}, len(points))
	for _, p := range points {
		tracked[p.Seq] = struct{}{}
	}
	for _, tr := range trades {
		if _, ok := tracked[tr.Seq]; !ok {
			continue
		}
		s.Trades++
		if tr.Direction == orderbook.Buy {
			s.Buys++
		} else {
			s.Sells++
		}
		s.Volume = s.Volume.Add(tr.Size)
		s.Notional = s.Notional.Add(tr.Notional())
	}

	first, last := points[0], points[len(points)-1]
	s.Start, s.End = first.Time, last.Time
	s.FinalInventory = last.Inventory
	s.TotalPnL = last.CumulativePnL
	s.MinInventory, s.MaxInventory = first.Inventory, first.Inventory
	for _, p := range points[1:] {
		s.MinInventory = decimal.Min(s.MinInventory, p.Inventory)
		s.MaxInventory = decimal.Max(s.MaxInventory, p.Inventory)
	}
	return s
}
