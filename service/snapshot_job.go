package service

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"mmsim/snapshot"
)

var ErrNoSnapshots = errors.New("session has no snapshot writer")

// Checkpoint writes a snapshot at the current journal sequence and then
// drops the journal segments it covers.
func (s *Session) Checkpoint() error {
	if s.snaps == nil {
		return ErrNoSnapshots
	}
	seq := s.seq.Current()
	if s.journal != nil {
		if err := s.journal.Sync(); err != nil {
			return err
		}
	}
	if err := s.snaps.Write(snapshot.Capture(seq, s.id, s.engine.View(), s.Ledger())); err != nil {
		return errors.Wrapf(err, "snapshot at seq %d", seq)
	}
	if s.journal != nil {
		if err := s.journal.TruncateBefore(seq); err != nil {
			return errors.Wrapf(err, "truncate journal before %d", seq)
		}
	}
	s.log.Info("checkpoint written", zap.Uint64("seq", seq))
	return nil
}
