package matching

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"mmsim/domain/ledger"
	"mmsim/domain/orderbook"
	"mmsim/domain/pricefeed"
)

var t0 = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixedPrice struct{ px decimal.Decimal }

func (f fixedPrice) PriceAt(time.Time) (decimal.Decimal, error) { return f.px, nil }

func newEngine(t *testing.T, depth int, opts ...Option) (*Engine, *orderbook.Book, *ledger.Ledger) {
	t.Helper()
	book, err := orderbook.NewBook(depth)
	require.NoError(t, err)
	l := ledger.New()
	e, err := NewEngine(book, l, opts...)
	require.NoError(t, err)
	return e, book, l
}

func seed(t *testing.T, e *Engine, side orderbook.Side, origin orderbook.Origin, levels ...[2]string) {
	t.Helper()
	for _, lv := range levels {
		require.NoError(t, e.Quote(side, d(lv[0]), d(lv[1]), t0, origin))
	}
}

func buy(size string) Order {
	return Order{Direction: orderbook.Buy, Size: d(size), Time: t0.Add(time.Second)}
}

func sell(size string) Order {
	return Order{Direction: orderbook.Sell, Size: d(size), Time: t0.Add(time.Second)}
}

func TestSweepTwoLevels(t *testing.T) {
	e, book, l := newEngine(t, 5)
	seed(t, e, orderbook.Ask, orderbook.Maker, [2]string{"10.0", "5"}, [2]string{"10.5", "5"})

	rep, err := e.Execute(buy("7"))
	require.NoError(t, err)
	require.Len(t, rep.Trades, 2)
	assert.Equal(t, "10", rep.Trades[0].Price.String())
	assert.Equal(t, "5", rep.Trades[0].Size.String())
	assert.Equal(t, "10.5", rep.Trades[1].Price.String())
	assert.Equal(t, "2", rep.Trades[1].Size.String())
	assert.Nil(t, rep.Rested)
	assert.Empty(t, rep.Requotes)

	asks := book.Levels(orderbook.Ask)
	require.Len(t, asks, 1)
	assert.Equal(t, "10.5", asks[0].Price.String())
	assert.Equal(t, "3", asks[0].Size.String())
	assert.Equal(t, orderbook.Maker, asks[0].Origin)
	assert.True(t, asks[0].Time.Equal(t0.Add(time.Second)), "partial fill refreshes the timestamp")

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, []uint64{1, 2}, []uint64{rep.Trades[0].Seq, rep.Trades[1].Seq})
}

func TestSweepReplenishesMakerLevels(t *testing.T) {
	q := &Quoter{Prices: fixedPrice{d("10")}, Spread: d("1"), ReferenceDailyVolume: d("100")}
	e, book, _ := newEngine(t, 5, WithQuoter(q))
	seed(t, e, orderbook.Ask, orderbook.Maker, [2]string{"10.0", "5"}, [2]string{"10.5", "5"})

	rep, err := e.Execute(buy("7"))
	require.NoError(t, err)
	require.Len(t, rep.Trades, 2)
	require.Len(t, rep.Requotes, 2)
	// fair + spread*(1 + consumed/volume)
	assert.Equal(t, "11.05", rep.Requotes[0].Price.String())
	assert.Equal(t, "5", rep.Requotes[0].Size.String())
	assert.Equal(t, "11.02", rep.Requotes[1].Price.String())
	assert.Equal(t, "2", rep.Requotes[1].Size.String())

	asks := book.Levels(orderbook.Ask)
	require.Len(t, asks, 3)
	assert.Equal(t, []string{"10.5", "11.02", "11.05"},
		[]string{asks[0].Price.String(), asks[1].Price.String(), asks[2].Price.String()})
	assert.Equal(t, "3", asks[0].Size.String())
	for _, a := range asks {
		assert.Equal(t, orderbook.Maker, a.Origin)
	}
}

func TestBidReplenishmentBelowFair(t *testing.T) {
	q := &Quoter{Prices: fixedPrice{d("10")}, Spread: d("0.5"), ReferenceDailyVolume: d("10")}
	e, book, _ := newEngine(t, 5, WithQuoter(q))
	seed(t, e, orderbook.Bid, orderbook.Maker, [2]string{"9.8", "4"})

	rep, err := e.Execute(sell("4"))
	require.NoError(t, err)
	require.Len(t, rep.Requotes, 1)
	// 10 - 0.5*(1 + 4/10)
	assert.Equal(t, "9.3", rep.Requotes[0].Price.String())

	best, ok := book.Best(orderbook.Bid)
	require.True(t, ok)
	assert.Equal(t, "9.3", best.Price.String())
	assert.Equal(t, "4", best.Size.String())
}

func TestClientLevelsNotReplenished(t *testing.T) {
	q := &Quoter{Prices: fixedPrice{d("10")}, Spread: d("1"), ReferenceDailyVolume: d("100")}
	e, book, _ := newEngine(t, 5, WithQuoter(q))
	seed(t, e, orderbook.Ask, orderbook.Client, [2]string{"10.0", "5"})
	seed(t, e, orderbook.Ask, orderbook.Maker, [2]string{"10.5", "5"})

	rep, err := e.Execute(buy("6"))
	require.NoError(t, err)
	require.Len(t, rep.Trades, 2)
	assert.Equal(t, orderbook.Client, rep.Trades[0].Origin)
	assert.Equal(t, orderbook.Maker, rep.Trades[1].Origin)
	require.Len(t, rep.Requotes, 1)
	assert.Equal(t, "1", rep.Requotes[0].Size.String())
	assert.Equal(t, 2, book.Len(orderbook.Ask))
}

func TestFallbackOnEmptyBookRests(t *testing.T) {
	e, book, l := newEngine(t, 5)
	o := buy("3")
	o.FallbackPrice = decimal.NewNullDecimal(d("11.0"))

	rep, err := e.Execute(o)
	require.NoError(t, err)
	assert.Empty(t, rep.Trades)
	require.NotNil(t, rep.Rested)
	assert.Equal(t, 0, l.Len())

	bid, ok := book.Best(orderbook.Bid)
	require.True(t, ok)
	assert.Equal(t, "11", bid.Price.String())
	assert.Equal(t, "3", bid.Size.String())
	assert.Equal(t, orderbook.Client, bid.Origin)
	assert.Equal(t, 0, book.Len(orderbook.Ask))
}

func TestFallbackRestsRemainderAfterSweep(t *testing.T) {
	e, book, l := newEngine(t, 5)
	seed(t, e, orderbook.Bid, orderbook.Client, [2]string{"9", "2"})
	o := sell("5")
	o.FallbackPrice = decimal.NewNullDecimal(d("9.5"))

	rep, err := e.Execute(o)
	require.NoError(t, err)
	require.Len(t, rep.Trades, 1)
	assert.Equal(t, "2", rep.Trades[0].Size.String())
	require.NotNil(t, rep.Rested)
	assert.Equal(t, "3", rep.Rested.Size.String())

	ask, ok := book.Best(orderbook.Ask)
	require.True(t, ok)
	assert.Equal(t, "9.5", ask.Price.String())
	assert.Equal(t, orderbook.Client, ask.Origin)
	assert.Equal(t, 0, book.Len(orderbook.Bid))
	assert.Equal(t, 1, l.Len())
}

func TestInsufficientLiquidityLeavesBookUntouched(t *testing.T) {
	e, book, l := newEngine(t, 5)
	seed(t, e, orderbook.Ask, orderbook.Maker, [2]string{"10", "1"}, [2]string{"11", "1"})

	_, err := e.Execute(buy("2.5"))
	require.True(t, errors.Is(err, ErrInsufficientLiquidity))
	assert.Equal(t, 2, book.Len(orderbook.Ask))
	assert.True(t, book.TotalDepth(orderbook.Ask).Equal(d("2")))
	assert.Equal(t, 0, l.Len())
}

func TestExecuteValidation(t *testing.T) {
	e, _, _ := newEngine(t, 5)

	_, err := e.Execute(Order{Direction: orderbook.Direction(7), Size: d("1")})
	assert.True(t, errors.Is(err, orderbook.ErrInvalidDirection))

	_, err = e.Execute(buy("0"))
	assert.True(t, errors.Is(err, ErrInvalidSize))

	o := buy("1")
	o.FallbackPrice = decimal.NewNullDecimal(d("-1"))
	_, err = e.Execute(o)
	assert.True(t, errors.Is(err, orderbook.ErrInvalidPrice))
}

func TestExactSizeRemovesOneLevel(t *testing.T) {
	e, book, l := newEngine(t, 5)
	seed(t, e, orderbook.Bid, orderbook.Maker, [2]string{"9", "4"}, [2]string{"8", "4"}, [2]string{"7", "4"})

	best, _ := book.Best(orderbook.Bid)
	rep, err := e.Execute(sell(best.Size.String()))
	require.NoError(t, err)
	require.Len(t, rep.Trades, 1)
	assert.True(t, rep.Trades[0].Size.Equal(best.Size))
	assert.Equal(t, 2, book.Len(orderbook.Bid))
	assert.Equal(t, 1, l.Len())
}

func TestSweepSumsToAggressorSize(t *testing.T) {
	e, book, _ := newEngine(t, 10)
	seed(t, e, orderbook.Ask, orderbook.Maker,
		[2]string{"10", "1.5"}, [2]string{"10.1", "2"}, [2]string{"10.2", "0.25"}, [2]string{"10.3", "3"})

	total := book.TotalDepth(orderbook.Ask)
	size := total.Sub(d("3")).Add(d("0.1")) // more than total minus one level
	rep, err := e.Execute(Order{Direction: orderbook.Buy, Size: size, Time: t0})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(rep.Trades), 2)
	assert.True(t, rep.Filled().Equal(size), "filled %s want %s", rep.Filled(), size)
	assert.True(t, book.TotalDepth(orderbook.Ask).Equal(total.Sub(size)))

	for i := 1; i < len(rep.Trades); i++ {
		assert.True(t, rep.Trades[i].Price.GreaterThan(rep.Trades[i-1].Price), "buy sweeps upward")
	}
}

func TestRequoteSkippedWhenNotPositive(t *testing.T) {
	q := &Quoter{Prices: fixedPrice{d("0.5")}, Spread: d("1"), ReferenceDailyVolume: d("100")}
	core, logs := observer.New(zapcore.WarnLevel)
	e, book, _ := newEngine(t, 5, WithQuoter(q), WithLogger(zap.New(core)))
	seed(t, e, orderbook.Bid, orderbook.Maker, [2]string{"0.4", "1"})

	rep, err := e.Execute(sell("1"))
	require.NoError(t, err)
	assert.Empty(t, rep.Requotes)
	assert.Equal(t, 0, book.Len(orderbook.Bid))
	assert.Equal(t, 1, logs.FilterMessage("requote skipped, price not positive").Len())
}

func lateQuoter(t *testing.T) *Quoter {
	t.Helper()
	series, err := pricefeed.NewSeries([]pricefeed.Observation{{Time: t0.Add(time.Hour), Price: d("10")}})
	require.NoError(t, err)
	return &Quoter{Prices: series, Spread: d("1"), ReferenceDailyVolume: d("100")}
}

func TestRequoteSkippedWithoutFairPrice(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e, book, l := newEngine(t, 5, WithQuoter(lateQuoter(t)), WithLogger(zap.New(core)))
	seed(t, e, orderbook.Ask, orderbook.Maker, [2]string{"10", "5"})

	rep, err := e.Execute(buy("1"))
	require.NoError(t, err)
	assert.Len(t, rep.Trades, 1)
	assert.Empty(t, rep.Requotes)
	assert.Equal(t, 1, l.Len())
	assert.True(t, book.TotalDepth(orderbook.Ask).Equal(d("4")))
	assert.Equal(t, 1, logs.FilterMessage("requote skipped, no fair price").Len())
}

func TestClientFillNeedsNoFairPrice(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e, book, l := newEngine(t, 5, WithQuoter(lateQuoter(t)), WithLogger(zap.New(core)))
	seed(t, e, orderbook.Ask, orderbook.Client, [2]string{"10", "5"})

	rep, err := e.Execute(buy("1"))
	require.NoError(t, err)
	require.Len(t, rep.Trades, 1)
	assert.Equal(t, orderbook.Client, rep.Trades[0].Origin)
	assert.Equal(t, 1, l.Len())
	assert.True(t, book.TotalDepth(orderbook.Ask).Equal(d("4")))
	assert.Zero(t, logs.Len())
}

func TestFallbackRestNeedsNoFairPrice(t *testing.T) {
	e, book, l := newEngine(t, 5, WithQuoter(lateQuoter(t)))

	o := buy("3")
	o.FallbackPrice = decimal.NewNullDecimal(d("11"))
	rep, err := e.Execute(o)
	require.NoError(t, err)
	require.NotNil(t, rep.Rested)
	assert.Equal(t, 0, l.Len())

	best, ok := book.Best(orderbook.Bid)
	require.True(t, ok)
	assert.Equal(t, "11", best.Price.String())
	assert.Equal(t, "3", best.Size.String())
	assert.Equal(t, orderbook.Client, best.Origin)
}

func TestNewEngineValidatesQuoter(t *testing.T) {
	book, _ := orderbook.NewBook(1)
	_, err := NewEngine(book, ledger.New(), WithQuoter(&Quoter{Spread: d("1"), ReferenceDailyVolume: d("1")}))
	assert.True(t, errors.Is(err, ErrInvalidQuoter))

	_, err = NewEngine(book, ledger.New(), WithQuoter(&Quoter{Prices: fixedPrice{}, Spread: d("1")}))
	assert.True(t, errors.Is(err, ErrInvalidQuoter))
}

func TestConsumedSideTable(t *testing.T) {
	s, ok := ConsumedSide(orderbook.Buy)
	require.True(t, ok)
	assert.Equal(t, orderbook.Ask, s)
	s, ok = ConsumedSide(orderbook.Sell)
	require.True(t, ok)
	assert.Equal(t, orderbook.Bid, s)
	_, ok = ConsumedSide(orderbook.Direction(0))
	assert.False(t, ok)
}

type failingSink struct{}

func (failingSink) Persist(ledger.TradeRecord) error { return errors.New("store down") }

func TestExecuteIsNotAtomic(t *testing.T) {
	book, _ := orderbook.NewBook(5)
	e, err := NewEngine(book, ledger.New(ledger.WithSink(failingSink{})))
	require.NoError(t, err)
	require.NoError(t, e.Quote(orderbook.Ask, d("10"), d("1"), t0, orderbook.Maker))

	_, err = e.Execute(buy("1"))
	require.Error(t, err)
	// the level was consumed before the ledger refused the trade
	assert.Equal(t, 0, book.Len(orderbook.Ask))
}

func TestBookAccountingIsAssertion(t *testing.T) {
	err := errors.Mark(errors.AssertionFailedf("x"), ErrBookAccounting)
	assert.True(t, errors.Is(err, ErrBookAccounting))
	assert.True(t, errors.HasAssertionFailure(err))
}

func TestOrderValidate(t *testing.T) {
	assert.NoError(t, buy("1").Validate())
	assert.True(t, errors.Is(Order{Direction: orderbook.Buy}.Validate(), ErrInvalidSize))
	assert.True(t, errors.Is(Order{Size: d("1")}.Validate(), orderbook.ErrInvalidDirection))

	o := sell("1")
	o.FallbackPrice = decimal.NewNullDecimal(d("-1"))
	assert.True(t, errors.Is(o.Validate(), orderbook.ErrInvalidPrice))
}
