package orderbook

import (
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func lvl(price string) Level {
	return Level{Price: decimal.RequireFromString(price), Size: decimal.NewFromInt(1), Origin: Maker}
}

// checkRB verifies the red-black properties and returns the black height.
func checkRB(t *testing.T, tr *rbTree, n *node) int {
	t.Helper()
	if n == tr.nil {
		return 1
	}
	if n.color == red {
		require.Equal(t, black, n.left.color, "red node with red left child")
		require.Equal(t, black, n.right.color, "red node with red right child")
	}
	if n.left != tr.nil {
		require.True(t, n.left.level.Price.LessThan(n.level.Price))
		require.Same(t, n, n.left.parent)
	}
	if n.right != tr.nil {
		require.True(t, n.right.level.Price.GreaterThan(n.level.Price))
		require.Same(t, n, n.right.parent)
	}
	lh := checkRB(t, tr, n.left)
	rh := checkRB(t, tr, n.right)
	require.Equal(t, lh, rh, "black height mismatch")
	if n.color == black {
		return lh + 1
	}
	return lh
}

func TestRBTreePutReplaces(t *testing.T) {
	tr := newRBTree()
	_, replaced := tr.Put(lvl("10"))
	require.False(t, replaced)

	upd := lvl("10.0")
	upd.Size = decimal.NewFromInt(7)
	old, replaced := tr.Put(upd)
	require.True(t, replaced)
	require.True(t, old.Size.Equal(decimal.NewFromInt(1)))
	require.Equal(t, 1, tr.Len())

	got, ok := tr.Get(decimal.RequireFromString("10.00"))
	require.True(t, ok)
	require.True(t, got.Size.Equal(decimal.NewFromInt(7)))
}

func TestRBTreeOrderAndDelete(t *testing.T) {
	tr := newRBTree()
	rng := rand.New(rand.NewPCG(1, 2))
	keys := rng.Perm(500)
	for _, k := range keys {
		tr.Put(Level{Price: decimal.NewFromInt(int64(k + 1)), Size: decimal.NewFromInt(1), Origin: Maker})
	}
	require.Equal(t, 500, tr.Len())
	require.Equal(t, black, tr.root.color)
	checkRB(t, tr, tr.root)

	for i, k := range keys {
		if i%2 == 0 {
			_, ok := tr.Delete(decimal.NewFromInt(int64(k + 1)))
			require.True(t, ok)
		}
	}
	require.Equal(t, 250, tr.Len())
	checkRB(t, tr, tr.root)

	_, ok := tr.Delete(decimal.NewFromInt(100000))
	require.False(t, ok)

	var prev decimal.Decimal
	count := 0
	tr.Ascend(func(l Level) bool {
		if count > 0 {
			require.True(t, l.Price.GreaterThan(prev))
		}
		prev = l.Price
		count++
		return true
	})
	require.Equal(t, 250, count)

	count = 0
	tr.Descend(func(l Level) bool {
		if count > 0 {
			require.True(t, l.Price.LessThan(prev))
		}
		prev = l.Price
		count++
		return true
	})
	require.Equal(t, 250, count)
}

func TestRBTreeMinMaxEmpty(t *testing.T) {
	tr := newRBTree()
	_, ok := tr.Min()
	require.False(t, ok)
	_, ok = tr.Max()
	require.False(t, ok)

	tr.Put(lvl("3"))
	tr.Put(lvl("1"))
	tr.Put(lvl("2"))
	lo, _ := tr.Min()
	hi, _ := tr.Max()
	require.Equal(t, "1", lo.Price.String())
	require.Equal(t, "3", hi.Price.String())

	for _, p := range []string{"1", "2", "3"} {
		tr.Delete(decimal.RequireFromString(p))
	}
	require.Equal(t, 0, tr.Len())
	require.Same(t, tr.nil, tr.root)
}
