package orderbook

import "time"

// Header names the snapshot columns. Ask columns mirror the bid columns
// so the two prices sit next to each other.
var Header = []string{
	"origin_bid", "timestamp_bid", "size_bid", "price_bid",
	"price_ask", "size_ask", "timestamp_ask", "origin_ask",
}

// Row pairs the i-th best bid with the i-th best ask. The shorter side is
// padded with empty levels.
type Row struct {
	Bid Level
	Ask Level
}

type Snapshot struct {
	Rows []Row
}

// Snapshot aligns both sides best to worst, row by row.
func (b *Book) Snapshot() Snapshot {
	bids := b.Levels(Bid)
	asks := b.Levels(Ask)

	n := max(len(bids), len(asks))
	rows := make([]Row, n)
	for i := range rows {
		if i < len(bids) {
			rows[i].Bid = bids[i]
		}
		if i < len(asks) {
			rows[i].Ask = asks[i]
		}
	}
	return Snapshot{Rows: rows}
}

// Records renders the snapshot as string rows in Header order. Empty
// levels render as blank cells.
func (s Snapshot) Records() [][]string {
	out := make([][]string, 0, len(s.Rows))
	for _, r := range s.Rows {
		bid := cells(r.Bid)
		ask := cells(r.Ask)
		out = append(out, []string{
			bid[0], bid[1], bid[2], bid[3],
			ask[3], ask[2], ask[1], ask[0],
		})
	}
	return out
}

// cells returns origin, timestamp, size, price.
func cells(l Level) [4]string {
	if l.Empty() {
		return [4]string{}
	}
	return [4]string{
		l.Origin.String(),
		l.Time.UTC().Format(time.RFC3339Nano),
		l.Size.String(),
		l.Price.String(),
	}
}
