package venue

import (
	"fmt"

	"github.com/holiman/uint256"

	"ammCore/internal/amm"
	"ammCore/internal/numeric"
)

const constantProductSize = 32 + 8 + 8 + 8 + 8

// ConstantProduct mirrors a foreign x*y=k pool: two reserves and a trade fee
// charged off the input side.
type ConstantProduct struct {
	venue    amm.Key
	reserve0 uint64
	reserve1 uint64
	feeBps   uint64
}

func decodeConstantProduct(data []byte) (Adapter, error) {
	r := newReader(data, constantProductSize)
	cp := &ConstantProduct{
		venue:    r.key(),
		reserve0: r.u64(),
		reserve1: r.u64(),
		feeBps:   r.u64(),
	}
	r.padding(8)
	if r.err != nil {
		return nil, r.err
	}
	if cp.feeBps >= amm.BpsDenominator {
		return nil, fmt.Errorf("%w: fee %d bps", amm.ErrValidation, cp.feeBps)
	}
	return cp, nil
}

func (c *ConstantProduct) Kind() Kind     { return KindConstantProduct }
func (c *ConstantProduct) Venue() amm.Key { return c.venue }

// Quote prices amountIn against the foreign curve with the same rounding the
// settlement engine uses: fee rounded up off the input, output floored.
func (c *ConstantProduct) Quote(amountIn uint64, direction amm.Direction) (uint64, error) {
	if amountIn == 0 {
		return 0, fmt.Errorf("%w: zero input amount", amm.ErrValidation)
	}
	reserveIn, reserveOut := c.reserve0, c.reserve1
	switch direction {
	case amm.ZeroForOne:
	case amm.OneForZero:
		reserveIn, reserveOut = c.reserve1, c.reserve0
	default:
		return 0, amm.ErrInvalidDirection
	}
	if reserveIn == 0 || reserveOut == 0 {
		return 0, amm.ErrInsufficientLiquidity
	}
	fee, err := numeric.MulDivCeil(amountIn, c.feeBps, amm.BpsDenominator)
	if err != nil {
		return 0, err
	}
	afterFee := amountIn - fee
	if afterFee == 0 {
		return 0, fmt.Errorf("%w: input consumed by fee", amm.ErrValidation)
	}
	newIn, err := numeric.CheckedAdd(reserveIn, afterFee)
	if err != nil {
		return 0, err
	}
	quotient, err := numeric.FloorDiv256(
		new(uint256.Int).Mul(numeric.U256(reserveIn), numeric.U256(reserveOut)),
		numeric.U256(newIn),
	)
	if err != nil {
		return 0, err
	}
	kept, err := numeric.ToUint64(quotient)
	if err != nil {
		return 0, err
	}
	return reserveOut - kept, nil
}
