package amm

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Key identifies a persisted record (pool, config, owner, reward campaign). The
// surrounding execution environment resolves these; the core treats them as opaque.
type Key = solana.PublicKey

// KeyFromBase58 parses a base58 key, used by the CLI and storage layers.
func KeyFromBase58(s string) (Key, error) {
	key, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return Key{}, fmt.Errorf("parse key %q: %w", s, err)
	}
	return key, nil
}

// Direction describes which reserve a trade consumes.
type Direction uint8

const (
	// ZeroForOne trades token0 in for token1 out.
	ZeroForOne Direction = iota
	// OneForZero trades token1 in for token0 out.
	OneForZero
)

func (d Direction) String() string {
	switch d {
	case ZeroForOne:
		return "zero_for_one"
	case OneForZero:
		return "one_for_zero"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	if d == ZeroForOne {
		return OneForZero
	}
	return ZeroForOne
}

// ParseDirection accepts the string forms used by the CLI and journal.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "zero_for_one", "0to1":
		return ZeroForOne, nil
	case "one_for_zero", "1to0":
		return OneForZero, nil
	default:
		return 0, fmt.Errorf("%w: unknown direction %q", ErrValidation, s)
	}
}

const (
	// BpsDenominator is the denominator for every basis-point rate in the system.
	BpsDenominator = 10_000

	// PriceScale is the fixed-point scale for prices crossing component
	// boundaries: oracle samples, venue quotes, deviation checks.
	PriceScale = 1_000_000_000
)
