package codec

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"

	"mmsim/domain/pnl"
)

// point fields
const (
	pointSeq        protowire.Number = 1
	pointTime       protowire.Number = 2
	pointReference  protowire.Number = 3
	pointIncrement  protowire.Number = 4
	pointCumulative protowire.Number = 5
	pointInventory  protowire.Number = 6
	pointSession    protowire.Number = 7
)

// EncodePoint tags a PnL point with the session that produced it.
func EncodePoint(session string, p pnl.Point) []byte {
	b := make([]byte, 0, 96)
	b = appendUint(b, pointSeq, p.Seq)
	b = appendTime(b, pointTime, p.Time)
	b = appendDecimal(b, pointReference, p.ReferencePrice)
	b = appendDecimal(b, pointIncrement, p.Increment)
	b = appendDecimal(b, pointCumulative, p.CumulativePnL)
	b = appendDecimal(b, pointInventory, p.Inventory)
	b = appendString(b, pointSession, session)
	return b
}

func DecodePoint(b []byte) (string, pnl.Point, error) {
	var (
		session                  string
		p                        pnl.Point
		ref, inc, cum, inventory decimalField
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		switch num {
		case pointSeq:
			return consumeUint(typ, v, &p.Seq)
		case pointTime:
			return consumeTime(typ, v, &p.Time)
		case pointReference:
			return ref.consume(typ, v)
		case pointIncrement:
			return inc.consume(typ, v)
		case pointCumulative:
			return cum.consume(typ, v)
		case pointInventory:
			return inventory.consume(typ, v)
		case pointSession:
			return consumeString(typ, v, &session)
		}
		return 0
	})
	if err != nil {
		return "", pnl.Point{}, errors.Wrap(err, "decode point")
	}
	for _, f := range []struct {
		name string
		src  *decimalField
		dst  *decimal.Decimal
	}{
		{"reference", &ref, &p.ReferencePrice},
		{"increment", &inc, &p.Increment},
		{"cumulative", &cum, &p.CumulativePnL},
		{"inventory", &inventory, &p.Inventory},
	} {
		if *f.dst, err = f.src.value(f.name); err != nil {
			return "", pnl.Point{}, err
		}
	}
	return session, p, nil
}
