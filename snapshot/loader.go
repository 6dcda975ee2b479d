package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"mmsim/domain/ledger"
	"mmsim/domain/orderbook"
)

var ErrDepthMismatch = errors.New("snapshot depth differs from book depth")

// Load reads the snapshot in dir. A missing snapshot returns false.
func Load(dir string) (Snapshot, bool, error) {
	f, err := os.Open(filepath.Join(dir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return Snapshot{}, false, errors.Wrap(err, "decode snapshot")
	}
	return s, true, nil
}

// Seeder places restored levels; matching.Engine.Quote satisfies it.
type Seeder func(side orderbook.Side, lvl orderbook.Level) error

// Apply loads s into an empty book through seed and into an empty ledger.
func Apply(s Snapshot, book orderbook.View, seed Seeder, l *ledger.Ledger) error {
	if s.Depth != book.Depth() {
		return errors.Wrapf(ErrDepthMismatch, "snapshot %d, book %d", s.Depth, book.Depth())
	}
	for _, side := range []struct {
		side   orderbook.Side
		levels []orderbook.Level
	}{
		{orderbook.Bid, s.Bids},
		{orderbook.Ask, s.Asks},
	} {
		for _, lvl := range side.levels {
			if err := seed(side.side, lvl); err != nil {
				return errors.Wrapf(err, "restore %s %s", side.side, lvl.Price)
			}
		}
	}
	return l.Restore(s.Trades)
}
