// Package codec encodes trades, PnL points and journal commands in the
// protobuf wire format. Messages are hand-framed with protowire so no
// generated code is needed; unknown fields are skipped on decode.
//
// Decimals travel as their exact string form. Times travel as unix
// nanoseconds and are omitted when zero.
package codec

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"
)

var ErrMalformed = errors.New("malformed message")

// ---------------- encoding helpers ----------------

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendTime(b []byte, num protowire.Number, ts time.Time) []byte {
	if ts.IsZero() {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(ts.UnixNano()))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendDecimal(b []byte, num protowire.Number, d decimal.Decimal) []byte {
	return appendString(b, num, d.String())
}

// ---------------- decoding helpers ----------------

// fieldFunc handles one field; it returns the bytes consumed, or a
// negative protowire error code. Returning 0 skips the field.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) int

func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "tag")
		}
		b = b[n:]

		m := fn(num, typ, b)
		if m < 0 {
			return errors.Wrapf(protowire.ParseError(m), "field %d", num)
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return errors.Wrapf(protowire.ParseError(m), "skip field %d", num)
			}
		}
		b = b[m:]
	}
	return nil
}

func consumeUint(typ protowire.Type, b []byte, dst *uint64) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n > 0 {
		*dst = v
	}
	return n
}

func consumeTime(typ protowire.Type, b []byte, dst *time.Time) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n > 0 {
		*dst = time.Unix(0, protowire.DecodeZigZag(v)).UTC()
	}
	return n
}

func consumeString(typ protowire.Type, b []byte, dst *string) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeString(b)
	if n > 0 {
		*dst = v
	}
	return n
}

// decimalField collects a decimal during walk and parses it afterwards.
type decimalField struct {
	raw string
	set bool
}

func (f *decimalField) consume(typ protowire.Type, b []byte) int {
	n := consumeString(typ, b, &f.raw)
	if n > 0 {
		f.set = true
	}
	return n
}

func (f *decimalField) value(name string) (decimal.Decimal, error) {
	if !f.set {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(f.raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(ErrMalformed, "%s %q", name, f.raw)
	}
	return d, nil
}
