// Package store is the durable trade outbox. Every logged trade is kept
// under its ledger sequence together with its publish state, so the
// broadcaster can deliver trades at least once across restarts.
package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"

	"mmsim/domain/ledger"
	"mmsim/infra/codec"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Status is the publish bookkeeping for one trade.
type Status struct {
	State       State
	Retries     uint32
	LastAttempt time.Time
}

// binary encoding: [state:1][retries:4][lastAttempt:8]
func encodeStatus(s Status) []byte {
	buf := make([]byte, 1+4+8)
	buf[0] = byte(s.State)
	binary.BigEndian.PutUint32(buf[1:5], s.Retries)
	var ts int64
	if !s.LastAttempt.IsZero() {
		ts = s.LastAttempt.UnixNano()
	}
	binary.BigEndian.PutUint64(buf[5:13], uint64(ts))
	return buf
}

func decodeStatus(b []byte) (Status, error) {
	if len(b) != 13 {
		return Status{}, errors.Newf("invalid status length %d", len(b))
	}
	s := Status{
		State:   State(b[0]),
		Retries: binary.BigEndian.Uint32(b[1:5]),
	}
	if ts := int64(binary.BigEndian.Uint64(b[5:13])); ts != 0 {
		s.LastAttempt = time.Unix(0, ts).UTC()
	}
	return s, nil
}

// -------------------- Store --------------------

var ErrNotFound = errors.New("trade not found")

const (
	tradePrefix = "trade/"
	statePrefix = "state/"
)

type Store struct {
	db  *pebble.DB
	now func() time.Time
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open trade store %s", dir)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// -------------------- API --------------------

// Persist stores a trade in state New. Persisting a sequence twice keeps
// the first record and its state. It implements ledger.Sink.
func (s *Store) Persist(r ledger.TradeRecord) error {
	key := tradeKey(r.Seq)
	_, closer, err := s.db.Get(key)
	if err == nil {
		return closer.Close()
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(key, codec.EncodeTrade(r), nil); err != nil {
		return err
	}
	if err := b.Set(stateKey(r.Seq), encodeStatus(Status{State: StateNew}), nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// Get returns a stored trade and its status.
func (s *Store) Get(seq uint64) (ledger.TradeRecord, Status, error) {
	val, closer, err := s.db.Get(tradeKey(seq))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ledger.TradeRecord{}, Status{}, errors.Wrapf(ErrNotFound, "seq %d", seq)
		}
		return ledger.TradeRecord{}, Status{}, err
	}
	rec, err := codec.DecodeTrade(val)
	_ = closer.Close()
	if err != nil {
		return ledger.TradeRecord{}, Status{}, err
	}

	st, err := s.status(seq)
	if err != nil {
		return ledger.TradeRecord{}, Status{}, err
	}
	return rec, st, nil
}

func (s *Store) status(seq uint64) (Status, error) {
	val, closer, err := s.db.Get(stateKey(seq))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Status{}, errors.Wrapf(ErrNotFound, "state %d", seq)
		}
		return Status{}, err
	}
	defer closer.Close()
	return decodeStatus(val)
}

// UpdateState records a publish attempt outcome.
func (s *Store) UpdateState(seq uint64, state State, retries uint32) error {
	if _, err := s.status(seq); err != nil {
		return err
	}
	st := Status{State: state, Retries: retries, LastAttempt: s.now()}
	return s.db.Set(stateKey(seq), encodeStatus(st), pebble.Sync)
}

// Load returns every stored trade in sequence order.
func (s *Store) Load() ([]ledger.TradeRecord, error) {
	var out []ledger.TradeRecord
	err := s.scan(tradePrefix, func(_ uint64, val []byte) error {
		rec, err := codec.DecodeTrade(val)
		if err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// -------------------- Scan --------------------

// ScanByState visits every trade whose status is state, in sequence order.
func (s *Store) ScanByState(state State, fn func(ledger.TradeRecord, Status) error) error {
	var seqs []uint64
	var states []Status
	err := s.scan(statePrefix, func(seq uint64, val []byte) error {
		st, err := decodeStatus(val)
		if err != nil {
			return err
		}
		if st.State == state {
			seqs = append(seqs, seq)
			states = append(states, st)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// fn may update state, so it runs after the iterator is closed
	for i, seq := range seqs {
		rec, _, err := s.Get(seq)
		if err != nil {
			return err
		}
		if err := fn(rec, states[i]); err != nil {
			return err
		}
	}
	return nil
}

// Counts returns how many trades sit in each state.
func (s *Store) Counts() (map[State]int, error) {
	out := make(map[State]int)
	err := s.scan(statePrefix, func(_ uint64, val []byte) error {
		st, err := decodeStatus(val)
		if err != nil {
			return err
		}
		out[st.State]++
		return nil
	})
	return out, err
}

func (s *Store) scan(prefix string, fn func(seq uint64, val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(prefix, iter.Key())
		if err != nil {
			return err
		}
		if err := fn(seq, iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// -------------------- Helpers --------------------

func tradeKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", tradePrefix, seq))
}

func stateKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", statePrefix, seq))
}

func parseKey(prefix string, b []byte) (uint64, error) {
	seq, err := strconv.ParseUint(string(bytes.TrimPrefix(b, []byte(prefix))), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse key %q", b)
	}
	return seq, nil
}
