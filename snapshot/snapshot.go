package snapshot

import (
	"time"

	"mmsim/domain/ledger"
	"mmsim/domain/orderbook"
)

const fileName = "snapshot.bin"

type Snapshot struct {
	Seq     uint64
	Session string
	Created time.Time
	Depth   int
	Bids    []orderbook.Level
	Asks    []orderbook.Level
	Trades  []ledger.TradeRecord
}

// Capture copies the current book and ledger into a snapshot taken at
// journal sequence seq.
func Capture(seq uint64, session string, book orderbook.View, l *ledger.Ledger) Snapshot {
	return Snapshot{
		Seq:     seq,
		Session: session,
		Created: time.Now().UTC(),
		Depth:   book.Depth(),
		Bids:    book.Levels(orderbook.Bid),
		Asks:    book.Levels(orderbook.Ask),
		Trades:  l.Records(),
	}
}
