package quote

import (
	"fmt"

	"ammCore/internal/amm"
	"ammCore/internal/numeric"
	"ammCore/internal/oracle"
)

// FeeMode selects how a pool's trade fee rate is chosen.
type FeeMode uint8

const (
	// FeeStatic always charges the configured trade fee rate.
	FeeStatic FeeMode = iota
	// FeeVolatility raises the rate with recent price volatility, using the
	// pool's observation ring. The configured rate is the floor and the
	// fallback when the ring lacks coverage.
	FeeVolatility
)

// ParseFeeMode maps the config strings to a mode.
func ParseFeeMode(s string) (FeeMode, error) {
	switch s {
	case "", "static":
		return FeeStatic, nil
	case "volatility":
		return FeeVolatility, nil
	default:
		return 0, fmt.Errorf("%w: unknown fee mode %q", amm.ErrValidation, s)
	}
}

const (
	// VolatilityWindow is the trailing span, in seconds, volatility is
	// measured over.
	VolatilityWindow = 3600
	// MaxVolatilityFeeBps caps the volatility-adjusted rate.
	MaxVolatilityFeeBps = 100
	// volatilityFeeDivisor converts relative volatility in basis points into
	// a fee surcharge: one bp of surcharge per percentage point of range.
	volatilityFeeDivisor = 100
)

// VolatilityFeeBps prices the trade fee off the observation ring: the relative
// price range over the trailing window, in basis points of the window low, is
// divided down and added to the base rate, capped at MaxVolatilityFeeBps.
// Fewer than two observations inside the window yield the base rate unchanged.
func VolatilityFeeBps(obs *oracle.Aggregator, now, baseFeeBps uint64) (uint64, error) {
	if obs == nil {
		return baseFeeBps, nil
	}
	minPrice, maxPrice, _, ok := obs.PriceRange(now, VolatilityWindow)
	if !ok {
		return baseFeeBps, nil
	}

	volatilityBps, err := numeric.MulDivFloor(maxPrice-minPrice, amm.BpsDenominator, minPrice)
	if err != nil {
		return 0, err
	}
	surcharge := volatilityBps / volatilityFeeDivisor
	if surcharge > MaxVolatilityFeeBps {
		surcharge = MaxVolatilityFeeBps
	}
	fee := baseFeeBps + surcharge
	if fee > MaxVolatilityFeeBps {
		fee = MaxVolatilityFeeBps
	}
	return fee, nil
}
