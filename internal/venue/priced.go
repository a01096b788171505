package venue

import (
	"fmt"

	"github.com/holiman/uint256"

	"ammCore/internal/amm"
	"ammCore/internal/numeric"
)

// The four price-quoting variants below reduce their foreign state to a single
// token0-in-token1 price at the shared 1e9 scale and quote against it. That is
// deliberately a spot-price approximation without slippage walking, which is
// all an advisory cross-check needs.

const whirlpoolSize = 32 + 16 + 16 + 8 + 8

// Whirlpool mirrors a whirlpool-style pool: a Q64.64 square-root price plus
// in-range liquidity.
type Whirlpool struct {
	venue     amm.Key
	sqrtPrice *uint256.Int
	liquidity *uint256.Int
	feeBps    uint64
}

func decodeWhirlpool(data []byte) (Adapter, error) {
	r := newReader(data, whirlpoolSize)
	w := &Whirlpool{
		venue:     r.key(),
		sqrtPrice: r.u128(),
		liquidity: r.u128(),
		feeBps:    r.u64(),
	}
	r.padding(8)
	if r.err != nil {
		return nil, r.err
	}
	if w.sqrtPrice.IsZero() {
		return nil, fmt.Errorf("%w: zero sqrt price", amm.ErrValidation)
	}
	return w, nil
}

func (w *Whirlpool) Kind() Kind     { return KindWhirlpool }
func (w *Whirlpool) Venue() amm.Key { return w.venue }

func (w *Whirlpool) Quote(amountIn uint64, direction amm.Direction) (uint64, error) {
	if w.liquidity.IsZero() {
		return 0, amm.ErrInsufficientLiquidity
	}
	price, err := priceFromSqrtQ64(w.sqrtPrice)
	if err != nil {
		return 0, err
	}
	return quoteAtPrice(amountIn, direction, price, w.feeBps)
}

// maxTick bounds the usable tick range in concentrated layouts.
const maxTick = 443_636

const concentratedSize = 32 + 4 + 2 + 2 + 16 + 16 + 8 + 8

// Concentrated mirrors a concentrated-liquidity pool: current tick plus the
// cached Q64.64 square-root price for the active range.
type Concentrated struct {
	venue       amm.Key
	currentTick int32
	tickSpacing uint16
	sqrtPrice   *uint256.Int
	liquidity   *uint256.Int
	feeBps      uint64
}

func decodeConcentrated(data []byte) (Adapter, error) {
	r := newReader(data, concentratedSize)
	c := &Concentrated{
		venue:       r.key(),
		currentTick: r.i32(),
		tickSpacing: r.u16(),
	}
	r.padding(2)
	c.sqrtPrice = r.u128()
	c.liquidity = r.u128()
	c.feeBps = r.u64()
	r.padding(8)
	if r.err != nil {
		return nil, r.err
	}
	if c.currentTick > maxTick || c.currentTick < -maxTick {
		return nil, fmt.Errorf("%w: tick %d out of range", amm.ErrValidation, c.currentTick)
	}
	if c.sqrtPrice.IsZero() {
		return nil, fmt.Errorf("%w: zero sqrt price", amm.ErrValidation)
	}
	return c, nil
}

func (c *Concentrated) Kind() Kind     { return KindConcentrated }
func (c *Concentrated) Venue() amm.Key { return c.venue }

func (c *Concentrated) Quote(amountIn uint64, direction amm.Direction) (uint64, error) {
	if c.liquidity.IsZero() {
		return 0, amm.ErrInsufficientLiquidity
	}
	price, err := priceFromSqrtQ64(c.sqrtPrice)
	if err != nil {
		return 0, err
	}
	return quoteAtPrice(amountIn, direction, price, c.feeBps)
}

const binLiquiditySize = 32 + 4 + 2 + 2 + 16 + 8 + 8

// BinLiquidity mirrors a bin-liquidity pool: trades execute at the active
// bin's cached Q64.64 price.
type BinLiquidity struct {
	venue       amm.Key
	activeBin   int32
	binStepBps  uint16
	activePrice *uint256.Int
	feeBps      uint64
}

func decodeBinLiquidity(data []byte) (Adapter, error) {
	r := newReader(data, binLiquiditySize)
	b := &BinLiquidity{
		venue:      r.key(),
		activeBin:  r.i32(),
		binStepBps: r.u16(),
	}
	r.padding(2)
	b.activePrice = r.u128()
	b.feeBps = r.u64()
	r.padding(8)
	if r.err != nil {
		return nil, r.err
	}
	if b.binStepBps == 0 || uint64(b.binStepBps) >= amm.BpsDenominator {
		return nil, fmt.Errorf("%w: bin step %d bps", amm.ErrValidation, b.binStepBps)
	}
	if b.activePrice.IsZero() {
		return nil, fmt.Errorf("%w: zero active bin price", amm.ErrValidation)
	}
	return b, nil
}

func (b *BinLiquidity) Kind() Kind     { return KindBinLiquidity }
func (b *BinLiquidity) Venue() amm.Key { return b.venue }

func (b *BinLiquidity) Quote(amountIn uint64, direction amm.Direction) (uint64, error) {
	price := new(uint256.Int).Mul(b.activePrice, numeric.U256(amm.PriceScale))
	price.Rsh(price, 64)
	if price.IsZero() {
		return 0, fmt.Errorf("%w: price underflows scale", amm.ErrValidation)
	}
	return quoteAtPrice(amountIn, direction, price, b.feeBps)
}

// lendingRateShift is the binary scale of the collateral exchange rate.
const lendingRateShift = 60

const lendingCollateralSize = 32 + 16 + 8 + 8

// LendingCollateral mirrors a lending market's collateral token: redemptions
// convert at the market exchange rate, fixed-point with a 2^60 denominator.
type LendingCollateral struct {
	venue        amm.Key
	exchangeRate *uint256.Int
	feeBps       uint64
}

func decodeLendingCollateral(data []byte) (Adapter, error) {
	r := newReader(data, lendingCollateralSize)
	l := &LendingCollateral{
		venue:        r.key(),
		exchangeRate: r.u128(),
	}
	l.feeBps = r.u64()
	r.padding(8)
	if r.err != nil {
		return nil, r.err
	}
	if l.exchangeRate.IsZero() {
		return nil, fmt.Errorf("%w: zero exchange rate", amm.ErrValidation)
	}
	return l, nil
}

func (l *LendingCollateral) Kind() Kind     { return KindLendingCollateral }
func (l *LendingCollateral) Venue() amm.Key { return l.venue }

func (l *LendingCollateral) Quote(amountIn uint64, direction amm.Direction) (uint64, error) {
	price := new(uint256.Int).Mul(l.exchangeRate, numeric.U256(amm.PriceScale))
	price.Rsh(price, lendingRateShift)
	if price.IsZero() {
		return 0, fmt.Errorf("%w: price underflows scale", amm.ErrValidation)
	}
	return quoteAtPrice(amountIn, direction, price, l.feeBps)
}
