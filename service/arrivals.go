package service

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"mmsim/domain/matching"
	"mmsim/domain/orderbook"
)

type RandomConfig struct {
	Seed        uint64
	Probability float64
	BuyRatio    float64
	MinSize     decimal.Decimal
	MaxSize     decimal.Decimal

	// FallbackOffset, when positive, rests unfilled size that far below
	// (buys) or above (sells) the fair price.
	FallbackOffset decimal.Decimal

	// SizePlaces is the number of decimals sizes are rounded to.
	SizePlaces int32
}

// RandomArrivals draws aggressors from a seeded PCG source, so a run is
// reproducible for a given seed and feed.
type RandomArrivals struct {
	cfg RandomConfig
	rng *rand.Rand
}

func NewRandomArrivals(cfg RandomConfig) *RandomArrivals {
	return &RandomArrivals{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

func (a *RandomArrivals) Next(t Tick) (matching.Order, bool) {
	if a.rng.Float64() >= a.cfg.Probability {
		return matching.Order{}, false
	}

	dir := orderbook.Sell
	if a.rng.Float64() < a.cfg.BuyRatio {
		dir = orderbook.Buy
	}
	span := a.cfg.MaxSize.Sub(a.cfg.MinSize)
	size := a.cfg.MinSize.Add(span.Mul(decimal.NewFromFloat(a.rng.Float64()))).Round(a.cfg.SizePlaces)
	if !size.IsPositive() {
		size = a.cfg.MinSize
	}

	o := matching.Order{Direction: dir, Size: size, Time: t.Time}
	if a.cfg.FallbackOffset.IsPositive() {
		px := t.Fair.Add(a.cfg.FallbackOffset)
		if dir == orderbook.Buy {
			px = t.Fair.Sub(a.cfg.FallbackOffset)
		}
		if px.IsPositive() {
			o.FallbackPrice = decimal.NewNullDecimal(px)
		}
	}
	return o, true
}
