// Package venue decodes foreign liquidity-venue state into a uniform quote
// capability. Quotes are advisory cross-checks; settlement truth always comes
// from the pool ledger.
package venue

import (
	"fmt"

	"github.com/holiman/uint256"

	"ammCore/internal/amm"
	"ammCore/internal/numeric"
)

// Kind tags the byte layout a raw state blob carries.
type Kind uint8

const (
	KindConstantProduct Kind = iota + 1
	KindWhirlpool
	KindConcentrated
	KindBinLiquidity
	KindLendingCollateral
)

func (k Kind) String() string {
	switch k {
	case KindConstantProduct:
		return "constant_product"
	case KindWhirlpool:
		return "whirlpool"
	case KindConcentrated:
		return "concentrated"
	case KindBinLiquidity:
		return "bin_liquidity"
	case KindLendingCollateral:
		return "lending_collateral"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Adapter is the one capability foreign venues expose. AmountOut is expressed
// in the venue's opposite-side token units at the pool's native scale.
type Adapter interface {
	Kind() Kind
	Venue() amm.Key
	Quote(amountIn uint64, direction amm.Direction) (uint64, error)
}

type decodeFunc func([]byte) (Adapter, error)

var decoders = map[Kind]decodeFunc{
	KindConstantProduct:   decodeConstantProduct,
	KindWhirlpool:         decodeWhirlpool,
	KindConcentrated:      decodeConcentrated,
	KindBinLiquidity:      decodeBinLiquidity,
	KindLendingCollateral: decodeLendingCollateral,
}

// Decode dispatches on the leading kind tag and hands the payload to the
// variant's own layout decoder.
func Decode(data []byte) (Adapter, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty venue state", amm.ErrValidation)
	}
	kind := Kind(data[0])
	decode, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown venue kind %d", amm.ErrValidation, data[0])
	}
	adapter, err := decode(data[1:])
	if err != nil {
		return nil, fmt.Errorf("decode %s state: %w", kind, err)
	}
	return adapter, nil
}

// priceFromSqrtQ64 converts a Q64.64 square-root price into the shared 1e9
// price scale: price = sqrtPrice^2 * scale >> 128.
func priceFromSqrtQ64(sqrtPrice *uint256.Int) (*uint256.Int, error) {
	if sqrtPrice.IsZero() {
		return nil, fmt.Errorf("%w: zero sqrt price", amm.ErrValidation)
	}
	price := new(uint256.Int).Mul(sqrtPrice, sqrtPrice)
	price.Mul(price, numeric.U256(amm.PriceScale))
	price.Rsh(price, 128)
	if price.IsZero() {
		return nil, fmt.Errorf("%w: price underflows scale", amm.ErrValidation)
	}
	return price, nil
}

// quoteAtPrice prices amountIn against a 1e9-scaled token0-in-token1 price
// after charging feeBps off the input, ceiling division on the fee and floor
// on the output, matching the settlement engine's rounding.
func quoteAtPrice(amountIn uint64, direction amm.Direction, price *uint256.Int, feeBps uint64) (uint64, error) {
	if amountIn == 0 {
		return 0, fmt.Errorf("%w: zero input amount", amm.ErrValidation)
	}
	if feeBps >= amm.BpsDenominator {
		return 0, fmt.Errorf("%w: fee %d bps", amm.ErrValidation, feeBps)
	}
	fee, err := numeric.MulDivCeil(amountIn, feeBps, amm.BpsDenominator)
	if err != nil {
		return 0, err
	}
	afterFee := amountIn - fee
	if afterFee == 0 {
		return 0, fmt.Errorf("%w: input consumed by fee", amm.ErrValidation)
	}
	var out *uint256.Int
	switch direction {
	case amm.ZeroForOne:
		out = new(uint256.Int).Mul(numeric.U256(afterFee), price)
		out.Div(out, numeric.U256(amm.PriceScale))
	case amm.OneForZero:
		out = new(uint256.Int).Mul(numeric.U256(afterFee), numeric.U256(amm.PriceScale))
		out, err = numeric.FloorDiv256(out, price)
		if err != nil {
			return 0, err
		}
	default:
		return 0, amm.ErrInvalidDirection
	}
	return numeric.ToUint64(out)
}
