package orderbook

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrice = errors.New("price must be positive")
	ErrInvalidDepth = errors.New("book depth must be at least one level")
)

// View is the read-only surface of a Book.
type View interface {
	Depth() int
	Len(side Side) int
	Best(side Side) (Level, bool)
	Get(side Side, price decimal.Decimal) (Level, bool)
	TotalDepth(side Side) decimal.Decimal
	Levels(side Side) []Level
	Snapshot() Snapshot
}

// bookSide wraps one tree with its price ordering and a running size total.
type bookSide struct {
	side  Side
	tree  *rbTree
	total decimal.Decimal
}

func newBookSide(side Side) *bookSide {
	return &bookSide{side: side, tree: newRBTree(), total: decimal.Zero}
}

func (s *bookSide) best() (Level, bool) {
	if s.side == Bid {
		return s.tree.Max()
	}
	return s.tree.Min()
}

func (s *bookSide) worst() (Level, bool) {
	if s.side == Bid {
		return s.tree.Min()
	}
	return s.tree.Max()
}

// walk visits levels best first.
func (s *bookSide) walk(fn func(Level) bool) {
	if s.side == Bid {
		s.tree.Descend(fn)
		return
	}
	s.tree.Ascend(fn)
}

func (s *bookSide) put(lvl Level) {
	if old, replaced := s.tree.Put(lvl); replaced {
		s.total = s.total.Sub(old.Size)
	}
	s.total = s.total.Add(lvl.Size)
}

func (s *bookSide) delete(price decimal.Decimal) (Level, bool) {
	old, ok := s.tree.Delete(price)
	if ok {
		s.total = s.total.Sub(old.Size)
	}
	return old, ok
}

// trim drops worst-priced levels until at most depth remain.
func (s *bookSide) trim(depth int) []Level {
	var dropped []Level
	for s.tree.Len() > depth {
		w, _ := s.worst()
		s.delete(w.Price)
		dropped = append(dropped, w)
	}
	return dropped
}

// Book is a two-sided price-level book capped at depth levels per side.
// It is not safe for concurrent use.
type Book struct {
	depth int
	bids  *bookSide
	asks  *bookSide
}

func NewBook(depth int) (*Book, error) {
	if depth < 1 {
		return nil, errors.Wrapf(ErrInvalidDepth, "got %d", depth)
	}
	return &Book{
		depth: depth,
		bids:  newBookSide(Bid),
		asks:  newBookSide(Ask),
	}, nil
}

func (b *Book) side(s Side) *bookSide {
	switch s {
	case Bid:
		return b.bids
	case Ask:
		return b.asks
	default:
		return nil
	}
}

// ---- mutations ----

// Upsert inserts or replaces the level at price. A non-positive size
// removes the level instead. The side is trimmed to the best depth
// levels afterwards; the trimmed levels are returned.
func (b *Book) Upsert(side Side, price, size decimal.Decimal, ts time.Time, origin Origin) ([]Level, error) {
	if err := CheckUpsert(side, price, size, origin); err != nil {
		return nil, err
	}
	bs := b.side(side)
	if !size.IsPositive() {
		bs.delete(price)
		return nil, nil
	}

	bs.put(Level{Price: price, Size: size, Time: ts, Origin: origin})
	return bs.trim(b.depth), nil
}

// CheckUpsert reports whether Upsert would accept its arguments. The
// origin is only checked when size is positive.
func CheckUpsert(side Side, price, size decimal.Decimal, origin Origin) error {
	if !side.Valid() {
		return errors.Wrapf(ErrInvalidSide, "upsert %d", side)
	}
	if !price.IsPositive() {
		return errors.Wrapf(ErrInvalidPrice, "upsert %s %s", side, price)
	}
	if size.IsPositive() && !origin.Valid() {
		return errors.Wrapf(ErrInvalidOrigin, "upsert %s %s", side, price)
	}
	return nil
}

// Remove deletes the level at price. Absent prices are a no-op.
func (b *Book) Remove(side Side, price decimal.Decimal) error {
	bs := b.side(side)
	if bs == nil {
		return errors.Wrapf(ErrInvalidSide, "remove %d", side)
	}
	bs.delete(price)
	return nil
}

// ---- queries ----

func (b *Book) Depth() int { return b.depth }

func (b *Book) Len(side Side) int {
	if bs := b.side(side); bs != nil {
		return bs.tree.Len()
	}
	return 0
}

// Best returns the extreme-price level of side; false when the side is empty.
func (b *Book) Best(side Side) (Level, bool) {
	if bs := b.side(side); bs != nil {
		return bs.best()
	}
	return Level{}, false
}

// Get returns the level stored at price.
func (b *Book) Get(side Side, price decimal.Decimal) (Level, bool) {
	if bs := b.side(side); bs != nil {
		return bs.tree.Get(price)
	}
	return Level{}, false
}

// TotalDepth is the sum of sizes resting on side.
func (b *Book) TotalDepth(side Side) decimal.Decimal {
	if bs := b.side(side); bs != nil {
		return bs.total
	}
	return decimal.Zero
}

// Levels returns the levels of side ordered best to worst.
func (b *Book) Levels(side Side) []Level {
	bs := b.side(side)
	if bs == nil {
		return nil
	}
	out := make([]Level, 0, bs.tree.Len())
	bs.walk(func(l Level) bool {
		out = append(out, l)
		return true
	})
	return out
}
