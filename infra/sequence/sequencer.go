// Package sequence hands out monotonic identifiers for ledger trades and
// journal commands.
package sequence

import "sync/atomic"

// Sequencer issues strictly increasing IDs starting after its seed.
// The zero value starts at 1.
type Sequencer struct {
	last atomic.Uint64
}

// New returns a sequencer whose first Next is start+1.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued ID, or the seed if none was issued.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Advance moves the sequencer forward to at least v. Used when restoring
// records that already carry IDs; it never moves backwards.
func (s *Sequencer) Advance(v uint64) {
	for {
		cur := s.last.Load()
		if v <= cur || s.last.CompareAndSwap(cur, v) {
			return
		}
	}
}
