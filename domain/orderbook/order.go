package orderbook

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Side is a book side.
type Side uint8

// Direction is the direction of an aggressor order.
type Direction uint8

// Origin tells who owns a resting level.
type Origin uint8

const (
	Bid Side = iota + 1
	Ask
)

const (
	Buy Direction = iota + 1
	Sell
)

const (
	Maker Origin = iota + 1
	Client
)

var (
	ErrInvalidSide      = errors.New("invalid book side")
	ErrInvalidDirection = errors.New("invalid order direction")
	ErrInvalidOrigin    = errors.New("invalid level origin")
)

func (s Side) Valid() bool { return s == Bid || s == Ask }

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	switch s {
	case Bid:
		return Ask
	case Ask:
		return Bid
	default:
		return s
	}
}

func (d Direction) Valid() bool { return d == Buy || d == Sell }

func (d Direction) String() string {
	switch d {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Sign is +1 for Buy and -1 for Sell.
func (d Direction) Sign() int64 {
	if d == Sell {
		return -1
	}
	return 1
}

func (o Origin) Valid() bool { return o == Maker || o == Client }

func (o Origin) String() string {
	switch o {
	case Maker:
		return "maker"
	case Client:
		return "client"
	default:
		return "unknown"
	}
}

// ParseSide accepts "bid" or "ask" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bid":
		return Bid, nil
	case "ask":
		return Ask, nil
	}
	return 0, errors.Wrapf(ErrInvalidSide, "%q", s)
}

// ParseDirection accepts "buy" or "sell" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	}
	return 0, errors.Wrapf(ErrInvalidDirection, "%q", s)
}

// ParseOrigin accepts "maker" or "client" in any case.
func ParseOrigin(s string) (Origin, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "maker":
		return Maker, nil
	case "client":
		return Client, nil
	}
	return 0, errors.Wrapf(ErrInvalidOrigin, "%q", s)
}
