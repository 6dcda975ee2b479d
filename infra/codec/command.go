package codec

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"

	"mmsim/domain/orderbook"
)

// QuoteCommand places or refreshes one resting level.
type QuoteCommand struct {
	Side   orderbook.Side
	Price  decimal.Decimal
	Size   decimal.Decimal
	Time   time.Time
	Origin orderbook.Origin
}

// ExecuteCommand is one aggressor order.
type ExecuteCommand struct {
	Direction     orderbook.Direction
	Size          decimal.Decimal
	Time          time.Time
	FallbackPrice decimal.NullDecimal
}

const (
	quoteSide   protowire.Number = 1
	quotePrice  protowire.Number = 2
	quoteSize   protowire.Number = 3
	quoteTime   protowire.Number = 4
	quoteOrigin protowire.Number = 5

	execDirection protowire.Number = 1
	execSize      protowire.Number = 2
	execTime      protowire.Number = 3
	execFallback  protowire.Number = 4
)

func EncodeQuote(c QuoteCommand) []byte {
	b := make([]byte, 0, 48)
	b = appendUint(b, quoteSide, uint64(c.Side))
	b = appendDecimal(b, quotePrice, c.Price)
	b = appendDecimal(b, quoteSize, c.Size)
	b = appendTime(b, quoteTime, c.Time)
	b = appendUint(b, quoteOrigin, uint64(c.Origin))
	return b
}

func DecodeQuote(b []byte) (QuoteCommand, error) {
	var (
		c            QuoteCommand
		side, origin uint64
		price, size  decimalField
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		switch num {
		case quoteSide:
			return consumeUint(typ, v, &side)
		case quotePrice:
			return price.consume(typ, v)
		case quoteSize:
			return size.consume(typ, v)
		case quoteTime:
			return consumeTime(typ, v, &c.Time)
		case quoteOrigin:
			return consumeUint(typ, v, &origin)
		}
		return 0
	})
	if err != nil {
		return QuoteCommand{}, errors.Wrap(err, "decode quote")
	}
	c.Side = orderbook.Side(side)
	c.Origin = orderbook.Origin(origin)
	if c.Price, err = price.value("price"); err != nil {
		return QuoteCommand{}, err
	}
	if c.Size, err = size.value("size"); err != nil {
		return QuoteCommand{}, err
	}
	return c, nil
}

func EncodeExecute(c ExecuteCommand) []byte {
	b := make([]byte, 0, 48)
	b = appendUint(b, execDirection, uint64(c.Direction))
	b = appendDecimal(b, execSize, c.Size)
	b = appendTime(b, execTime, c.Time)
	if c.FallbackPrice.Valid {
		b = appendDecimal(b, execFallback, c.FallbackPrice.Decimal)
	}
	return b
}

func DecodeExecute(b []byte) (ExecuteCommand, error) {
	var (
		c              ExecuteCommand
		dir            uint64
		size, fallback decimalField
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		switch num {
		case execDirection:
			return consumeUint(typ, v, &dir)
		case execSize:
			return size.consume(typ, v)
		case execTime:
			return consumeTime(typ, v, &c.Time)
		case execFallback:
			return fallback.consume(typ, v)
		}
		return 0
	})
	if err != nil {
		return ExecuteCommand{}, errors.Wrap(err, "decode execute")
	}
	c.Direction = orderbook.Direction(dir)
	if c.Size, err = size.value("size"); err != nil {
		return ExecuteCommand{}, err
	}
	if fallback.set {
		px, err := fallback.value("fallback")
		if err != nil {
			return ExecuteCommand{}, err
		}
		c.FallbackPrice = decimal.NewNullDecimal(px)
	}
	return c, nil
}
