package service

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"mmsim/domain/matching"
	"mmsim/domain/orderbook"
	"mmsim/infra/codec"
	"mmsim/infra/journal"
	"mmsim/snapshot"
)

var ErrNotFresh = errors.New("session already has state")

/*
Recover rebuilds the session from the snapshot in snapDir (if any) and
the journal in journalDir, skipping journaled commands the snapshot
already covers.

IMPORTANT:
- This MUST run before the first command
- Replayed commands are not journaled again
- Rejections replay as rejections; any other failure aborts
*/
func (s *Session) Recover(snapDir, journalDir string) (uint64, error) {
	view := s.engine.View()
	if view.Len(orderbook.Bid) > 0 || view.Len(orderbook.Ask) > 0 || s.Ledger().Len() > 0 {
		return 0, ErrNotFresh
	}

	var from uint64
	if snapDir != "" {
		snap, ok, err := snapshot.Load(snapDir)
		if err != nil {
			return 0, err
		}
		if ok {
			seed := func(side orderbook.Side, lvl orderbook.Level) error {
				return s.engine.Quote(side, lvl.Price, lvl.Size, lvl.Time, lvl.Origin)
			}
			if err := snapshot.Apply(snap, view, seed, s.Ledger()); err != nil {
				return 0, errors.Wrap(err, "apply snapshot")
			}
			from = snap.Seq
			s.log.Info("snapshot restored",
				zap.Uint64("seq", snap.Seq),
				zap.String("snapshot_session", snap.Session),
				zap.Int("trades", len(snap.Trades)))
		}
	}

	var (
		replayed int
		last     uint64
	)
	if journalDir != "" {
		var err error
		last, err = journal.Replay(journalDir, func(rec *journal.Record) error {
			if rec.Seq <= from {
				return nil
			}
			replayed++
			return s.apply(rec)
		})
		if err != nil {
			return 0, err
		}
	}
	if last < from {
		last = from
	}
	s.seq.Advance(last)

	s.log.Info("journal replay completed",
		zap.Uint64("last_seq", last),
		zap.Int("replayed", replayed))
	return last, nil
}

func (s *Session) apply(rec *journal.Record) error {
	switch rec.Type {
	case journal.RecordQuote:
		c, err := codec.DecodeQuote(rec.Data)
		if err != nil {
			return err
		}
		return s.engine.Quote(c.Side, c.Price, c.Size, c.Time, c.Origin)
	case journal.RecordExecute:
		c, err := codec.DecodeExecute(rec.Data)
		if err != nil {
			return err
		}
		_, err = s.engine.Execute(matching.Order{
			Direction:     c.Direction,
			Size:          c.Size,
			Time:          c.Time,
			FallbackPrice: c.FallbackPrice,
		})
		if err != nil && !IsRejection(err) {
			return err
		}
		return nil
	default:
		return errors.Wrapf(journal.ErrCorrupt, "record type %d", rec.Type)
	}
}
