package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotPadsShorterSide(t *testing.T) {
	b := newTestBook(t, 5)
	_, _ = b.Upsert(Bid, d("99"), d("1"), t0, Maker)
	_, _ = b.Upsert(Bid, d("98"), d("2"), t0, Client)
	_, _ = b.Upsert(Ask, d("101"), d("3"), t0, Maker)

	snap := b.Snapshot()
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, "99", snap.Rows[0].Bid.Price.String())
	assert.Equal(t, "101", snap.Rows[0].Ask.Price.String())
	assert.Equal(t, "98", snap.Rows[1].Bid.Price.String())
	assert.True(t, snap.Rows[1].Ask.Empty())

	recs := snap.Records()
	require.Len(t, recs, 2)
	require.Len(t, recs[0], len(Header))
	assert.Equal(t, []string{
		"maker", "2024-01-02T09:30:00Z", "1", "99",
		"101", "3", "2024-01-02T09:30:00Z", "maker",
	}, recs[0])
	assert.Equal(t, []string{
		"client", "2024-01-02T09:30:00Z", "2", "98",
		"", "", "", "",
	}, recs[1])
}

func TestSnapshotEmptyBook(t *testing.T) {
	b := newTestBook(t, 3)
	assert.Empty(t, b.Snapshot().Rows)
	assert.Empty(t, b.Snapshot().Records())
}

func TestHeaderMirrorsAskColumns(t *testing.T) {
	assert.Equal(t, "price_bid", Header[3])
	assert.Equal(t, "price_ask", Header[4])
	assert.Equal(t, "origin_ask", Header[7])
}
