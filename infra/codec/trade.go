package codec

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"mmsim/domain/ledger"
	"mmsim/domain/orderbook"
)

// trade fields
const (
	tradeSeq       protowire.Number = 1
	tradeTime      protowire.Number = 2
	tradeDirection protowire.Number = 3
	tradePrice     protowire.Number = 4
	tradeSize      protowire.Number = 5
	tradeOrigin    protowire.Number = 6
)

func EncodeTrade(r ledger.TradeRecord) []byte {
	b := make([]byte, 0, 64)
	b = appendUint(b, tradeSeq, r.Seq)
	b = appendTime(b, tradeTime, r.Time)
	b = appendUint(b, tradeDirection, uint64(r.Direction))
	b = appendDecimal(b, tradePrice, r.Price)
	b = appendDecimal(b, tradeSize, r.Size)
	b = appendUint(b, tradeOrigin, uint64(r.Origin))
	return b
}

func DecodeTrade(b []byte) (ledger.TradeRecord, error) {
	var (
		r           ledger.TradeRecord
		dir, origin uint64
		price, size decimalField
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		switch num {
		case tradeSeq:
			return consumeUint(typ, v, &r.Seq)
		case tradeTime:
			return consumeTime(typ, v, &r.Time)
		case tradeDirection:
			return consumeUint(typ, v, &dir)
		case tradePrice:
			return price.consume(typ, v)
		case tradeSize:
			return size.consume(typ, v)
		case tradeOrigin:
			return consumeUint(typ, v, &origin)
		}
		return 0
	})
	if err != nil {
		return ledger.TradeRecord{}, errors.Wrap(err, "decode trade")
	}

	r.Direction = orderbook.Direction(dir)
	r.Origin = orderbook.Origin(origin)
	if !r.Direction.Valid() {
		return ledger.TradeRecord{}, errors.Wrapf(orderbook.ErrInvalidDirection, "decode trade %d", r.Seq)
	}
	if !r.Origin.Valid() {
		return ledger.TradeRecord{}, errors.Wrapf(orderbook.ErrInvalidOrigin, "decode trade %d", r.Seq)
	}
	if r.Price, err = price.value("price"); err != nil {
		return ledger.TradeRecord{}, err
	}
	if r.Size, err = size.value("size"); err != nil {
		return ledger.TradeRecord{}, err
	}
	return r, nil
}
