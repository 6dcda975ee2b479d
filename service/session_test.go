package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmsim/domain/matching"
	"mmsim/domain/orderbook"
	"mmsim/domain/pricefeed"
	"mmsim/infra/journal"
	"mmsim/infra/metrics"
	"mmsim/infra/store"
	"mmsim/snapshot"
)

var t0 = time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func flatFeed(t *testing.T, px string, n int) *pricefeed.Series {
	t.Helper()
	obs := make([]pricefeed.Observation, n)
	for i := range obs {
		obs[i] = pricefeed.Observation{Time: t0.Add(time.Duration(i) * time.Minute), Price: d(px)}
	}
	s, err := pricefeed.NewSeries(obs)
	require.NoError(t, err)
	return s
}

func quoter(t *testing.T) *matching.Quoter {
	return &matching.Quoter{Prices: flatFeed(t, "100", 10), Spread: d("0.5"), ReferenceDailyVolume: d("1000")}
}

func openJournal(t *testing.T, dir string) *journal.Journal {
	t.Helper()
	j, err := journal.Open(journal.Config{Dir: dir, SegmentSize: 256})
	require.NoError(t, err)
	return j
}

func newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	if opts.Depth == 0 {
		opts.Depth = 5
	}
	s, err := NewSession(opts)
	require.NoError(t, err)
	return s
}

// drive applies a fixed command mix: a ladder, a sweep with requotes,
// a rested remainder and a rejection.
func drive(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, SeedLadder(s, Ladder{Levels: 3, Size: d("10"), Step: d("1")}, d("100"), t0))

	_, err := s.Execute(matching.Order{Direction: orderbook.Buy, Size: d("15"), Time: t0.Add(time.Minute)})
	require.NoError(t, err)

	o := matching.Order{Direction: orderbook.Sell, Size: d("40"), Time: t0.Add(2 * time.Minute),
		FallbackPrice: decimal.NewNullDecimal(d("100.2"))}
	rep, err := s.Execute(o)
	require.NoError(t, err)
	require.NotNil(t, rep.Rested)

	_, err = s.Execute(matching.Order{Direction: orderbook.Buy, Size: d("1000"), Time: t0.Add(3 * time.Minute)})
	require.True(t, errors.Is(err, matching.ErrInsufficientLiquidity))

	require.NoError(t, s.Quote(orderbook.Bid, d("95"), d("2"), t0.Add(4*time.Minute), orderbook.Client))
}

func TestSessionReplayRebuildsState(t *testing.T) {
	dir := t.TempDir()

	s := newSession(t, Options{Quoter: quoter(t), Journal: openJournal(t, dir)})
	drive(t, s)
	want := s.Book().Snapshot().Records()
	wantTrades := s.Ledger().Records()
	wantSeq := s.JournalSeq()
	require.NoError(t, s.Close())

	r := newSession(t, Options{Quoter: quoter(t), Journal: openJournal(t, dir)})
	defer r.Close()
	last, err := r.Recover("", dir)
	require.NoError(t, err)

	assert.Equal(t, wantSeq, last)
	assert.Equal(t, wantSeq, r.JournalSeq())
	assert.Equal(t, want, r.Book().Snapshot().Records())
	assert.Equal(t, wantTrades, r.Ledger().Records())

	// new commands continue the journal sequence
	require.NoError(t, r.Quote(orderbook.Ask, d("120"), d("1"), t0.Add(time.Hour), orderbook.Maker))
	assert.Equal(t, wantSeq+1, r.JournalSeq())
}

func TestRecoverAfterTornWrite(t *testing.T) {
	dir := t.TempDir()
	open := func() *journal.Journal {
		j, err := journal.Open(journal.Config{Dir: dir, SegmentSize: 1 << 20})
		require.NoError(t, err)
		return j
	}

	s := newSession(t, Options{Quoter: quoter(t), Journal: open()})
	drive(t, s)
	wantTrades := s.Ledger().Records()
	wantSeq := s.JournalSeq()
	require.NoError(t, s.Close())

	// a crash in the middle of the last append
	files, err := filepath.Glob(filepath.Join(dir, "segment-*.wal"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(files[0], data[:len(data)-3], 0o644))

	r := newSession(t, Options{Quoter: quoter(t), Journal: open()})
	defer r.Close()
	last, err := r.Recover("", dir)
	require.NoError(t, err)
	assert.Equal(t, wantSeq-1, last)
	assert.Equal(t, wantTrades, r.Ledger().Records())
	_, ok := r.Book().Get(orderbook.Bid, d("95"))
	assert.False(t, ok, "the torn quote is not applied")

	require.NoError(t, r.Quote(orderbook.Bid, d("95"), d("2"), t0.Add(time.Hour), orderbook.Client))
	assert.Equal(t, wantSeq, r.JournalSeq())
}

func TestSessionCheckpointAndRecover(t *testing.T) {
	jdir, sdir := t.TempDir(), t.TempDir()

	s := newSession(t, Options{
		Quoter:    quoter(t),
		Journal:   openJournal(t, jdir),
		Snapshots: &snapshot.Writer{Dir: sdir},
	})
	drive(t, s)
	require.NoError(t, s.Checkpoint())
	_, err := s.Execute(matching.Order{Direction: orderbook.Sell, Size: d("3"), Time: t0.Add(5 * time.Minute)})
	require.NoError(t, err)
	want := s.Book().Snapshot().Records()
	wantTrades := s.Ledger().Records()
	require.NoError(t, s.Close())

	r := newSession(t, Options{Quoter: quoter(t), Journal: openJournal(t, jdir)})
	defer r.Close()
	_, err = r.Recover(sdir, jdir)
	require.NoError(t, err)
	assert.Equal(t, want, r.Book().Snapshot().Records())
	assert.Equal(t, wantTrades, r.Ledger().Records())
}

func TestRecoverNeedsFreshSession(t *testing.T) {
	s := newSession(t, Options{})
	require.NoError(t, s.Quote(orderbook.Bid, d("1"), d("1"), t0, orderbook.Maker))
	_, err := s.Recover("", t.TempDir())
	assert.True(t, errors.Is(err, ErrNotFresh))
}

func TestCheckpointNeedsWriter(t *testing.T) {
	s := newSession(t, Options{})
	assert.True(t, errors.Is(s.Checkpoint(), ErrNoSnapshots))
}

func TestInvalidCommandsAreNotJournaled(t *testing.T) {
	s := newSession(t, Options{Journal: openJournal(t, t.TempDir())})
	defer s.Close()

	err := s.Quote(orderbook.Bid, d("0"), d("1"), t0, orderbook.Maker)
	assert.True(t, errors.Is(err, orderbook.ErrInvalidPrice))
	_, err = s.Execute(matching.Order{Direction: orderbook.Buy, Size: d("0"), Time: t0})
	assert.True(t, errors.Is(err, matching.ErrInvalidSize))
	assert.Equal(t, uint64(0), s.JournalSeq())
}

func TestSessionMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := newSession(t, Options{Quoter: quoter(t), Metrics: m, Journal: openJournal(t, t.TempDir())})
	defer s.Close()
	drive(t, s)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues("insufficient_liquidity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rested))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Trades.WithLabelValues("buy", "maker")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requotes.WithLabelValues("ask")))
	assert.Equal(t, float64(s.JournalSeq()), testutil.ToFloat64(m.Journal))
	assert.Equal(t, float64(s.Book().Len(orderbook.Ask)), testutil.ToFloat64(m.Levels.WithLabelValues("ask")))
}

func TestSessionPersistsTrades(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	s := newSession(t, Options{Sink: st})
	drive(t, s)

	stored, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, s.Ledger().Records(), stored)
}

func TestSessionIDDefaultsToUUID(t *testing.T) {
	a, b := newSession(t, Options{}), newSession(t, Options{})
	assert.Len(t, a.ID(), 36)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "fixed", newSession(t, Options{ID: "fixed"}).ID())
}
