// Package quote computes trade outcomes as a pure function of a pool snapshot,
// a fee config, and an optional oracle snapshot. Nothing here mutates shared
// state; results are applied to the ledger by the caller.
package quote

import (
	"fmt"

	"github.com/holiman/uint256"

	"ammCore/internal/amm"
	"ammCore/internal/numeric"
	"ammCore/internal/oracle"
)

// OracleMode selects how the engine uses an oracle snapshot.
type OracleMode uint8

const (
	// OracleOff ignores oracle snapshots entirely.
	OracleOff OracleMode = iota
	// OracleBound cross-checks the constant-product quote against the oracle
	// fair price when a snapshot is available and fails past the deviation
	// bound. A missing snapshot skips the check.
	OracleBound
	// OracleGate refuses to quote without a usable oracle snapshot.
	OracleGate
)

// ParseOracleMode maps the config strings to a mode.
func ParseOracleMode(s string) (OracleMode, error) {
	switch s {
	case "", "bound":
		return OracleBound, nil
	case "off":
		return OracleOff, nil
	case "gate":
		return OracleGate, nil
	default:
		return 0, fmt.Errorf("%w: unknown oracle mode %q", amm.ErrValidation, s)
	}
}

// Config carries the fee rates and oracle policy. All rates are basis points
// over amm.BpsDenominator; protocol and fund rates apply to the collected trade
// fee, not to the traded amount.
type Config struct {
	TradeFeeBps     uint64
	ProtocolFeeBps  uint64
	FundFeeBps      uint64
	OracleMode      OracleMode
	MaxDeviationBps uint64
}

// Validate rejects rates outside the denominator.
func (c Config) Validate() error {
	if c.TradeFeeBps >= amm.BpsDenominator {
		return fmt.Errorf("%w: trade fee %d bps", amm.ErrValidation, c.TradeFeeBps)
	}
	if c.ProtocolFeeBps > amm.BpsDenominator || c.FundFeeBps > amm.BpsDenominator {
		return fmt.Errorf("%w: fee split exceeds denominator", amm.ErrValidation)
	}
	if c.ProtocolFeeBps+c.FundFeeBps > amm.BpsDenominator {
		return fmt.Errorf("%w: protocol and fund fees exceed the trade fee", amm.ErrValidation)
	}
	if c.OracleMode != OracleOff && c.MaxDeviationBps == 0 {
		return fmt.Errorf("%w: oracle mode requires a deviation bound", amm.ErrValidation)
	}
	return nil
}

// PoolView is the immutable snapshot of pool state the engine prices against.
// Price0 is the value of token0 denominated in token1, scaled by amm.PriceScale;
// the oracle records the same orientation.
type PoolView struct {
	Reserve0    uint64
	Reserve1    uint64
	SwapEnabled bool
}

// Result describes one priced trade. TradeFee includes the protocol and fund
// portions; the pool retains TradeFee − ProtocolFee − FundFee.
type Result struct {
	Direction   amm.Direction
	AmountIn    uint64
	AmountOut   uint64
	TradeFee    uint64
	ProtocolFee uint64
	FundFee     uint64
}

// ExactInput prices a trade of a fixed input amount. The trade fee is taken off
// the input first (input after fee rounded down), and the output follows the
// constant-product relation with the quotient floored, per the settlement
// contract. osnap may be nil except in gate mode.
func ExactInput(view PoolView, cfg Config, amountIn uint64, dir amm.Direction, osnap *oracle.Snapshot) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if !view.SwapEnabled {
		return Result{}, fmt.Errorf("%w: swaps disabled for this pool", amm.ErrInvalidDirection)
	}
	if amountIn == 0 {
		return Result{}, fmt.Errorf("%w: zero input amount", amm.ErrValidation)
	}
	reserveIn, reserveOut := orient(view, dir)
	if reserveIn == 0 || reserveOut == 0 {
		return Result{}, amm.ErrInsufficientLiquidity
	}
	if err := checkOracle(view, cfg, dir, osnap); err != nil {
		return Result{}, err
	}

	tradeFee, err := numeric.MulDivCeil(amountIn, cfg.TradeFeeBps, amm.BpsDenominator)
	if err != nil {
		return Result{}, err
	}
	inAfterFee, err := numeric.CheckedSub(amountIn, tradeFee)
	if err != nil {
		return Result{}, err
	}
	if inAfterFee == 0 {
		return Result{}, fmt.Errorf("%w: input consumed entirely by fees", amm.ErrValidation)
	}

	// amountOut = reserveOut − floor(reserveIn*reserveOut / (reserveIn + inAfterFee))
	k := new(uint256.Int).Mul(numeric.U256(reserveIn), numeric.U256(reserveOut))
	denom, err := numeric.CheckedAdd(reserveIn, inAfterFee)
	if err != nil {
		return Result{}, err
	}
	quotient, err := numeric.FloorDiv256(k, numeric.U256(denom))
	if err != nil {
		return Result{}, err
	}
	newReserveOut, err := numeric.ToUint64(quotient)
	if err != nil {
		return Result{}, err
	}
	amountOut, err := numeric.CheckedSub(reserveOut, newReserveOut)
	if err != nil {
		return Result{}, err
	}
	if amountOut == 0 {
		return Result{}, fmt.Errorf("%w: trade too small for a non-zero output", amm.ErrValidation)
	}

	protocolFee, fundFee, err := splitFees(tradeFee, cfg)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Direction:   dir,
		AmountIn:    amountIn,
		AmountOut:   amountOut,
		TradeFee:    tradeFee,
		ProtocolFee: protocolFee,
		FundFee:     fundFee,
	}, nil
}

// ExactOutput prices a trade for a fixed output amount. The required input is
// rounded up at both the curve step and the fee gross-up.
func ExactOutput(view PoolView, cfg Config, amountOut uint64, dir amm.Direction, osnap *oracle.Snapshot) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if !view.SwapEnabled {
		return Result{}, fmt.Errorf("%w: swaps disabled for this pool", amm.ErrInvalidDirection)
	}
	if amountOut == 0 {
		return Result{}, fmt.Errorf("%w: zero output amount", amm.ErrValidation)
	}
	reserveIn, reserveOut := orient(view, dir)
	if reserveIn == 0 || reserveOut == 0 || amountOut >= reserveOut {
		return Result{}, amm.ErrInsufficientLiquidity
	}
	if err := checkOracle(view, cfg, dir, osnap); err != nil {
		return Result{}, err
	}

	// inAfterFee = ceil(reserveIn*amountOut / (reserveOut − amountOut))
	num := new(uint256.Int).Mul(numeric.U256(reserveIn), numeric.U256(amountOut))
	quotient, err := numeric.CeilDiv256(num, numeric.U256(reserveOut-amountOut))
	if err != nil {
		return Result{}, err
	}
	inAfterFee, err := numeric.ToUint64(quotient)
	if err != nil {
		return Result{}, err
	}

	// Gross up for the input-side fee, rounding up again.
	amountIn, err := numeric.MulDivCeil(inAfterFee, amm.BpsDenominator, amm.BpsDenominator-cfg.TradeFeeBps)
	if err != nil {
		return Result{}, err
	}
	tradeFee := amountIn - inAfterFee

	protocolFee, fundFee, err := splitFees(tradeFee, cfg)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Direction:   dir,
		AmountIn:    amountIn,
		AmountOut:   amountOut,
		TradeFee:    tradeFee,
		ProtocolFee: protocolFee,
		FundFee:     fundFee,
	}, nil
}

// EffectivePrice returns the post-trade spot price of token0 in token1 units,
// scaled by amm.PriceScale, for recording into the oracle ring.
func EffectivePrice(reserve0, reserve1 uint64) (uint64, error) {
	if reserve0 == 0 {
		return 0, amm.ErrInsufficientLiquidity
	}
	return numeric.MulDivFloor(reserve1, amm.PriceScale, reserve0)
}

func orient(view PoolView, dir amm.Direction) (reserveIn, reserveOut uint64) {
	if dir == amm.ZeroForOne {
		return view.Reserve0, view.Reserve1
	}
	return view.Reserve1, view.Reserve0
}

func splitFees(tradeFee uint64, cfg Config) (protocolFee, fundFee uint64, err error) {
	protocolFee, err = numeric.MulDivFloor(tradeFee, cfg.ProtocolFeeBps, amm.BpsDenominator)
	if err != nil {
		return 0, 0, err
	}
	fundFee, err = numeric.MulDivFloor(tradeFee, cfg.FundFeeBps, amm.BpsDenominator)
	if err != nil {
		return 0, 0, err
	}
	return protocolFee, fundFee, nil
}

// checkOracle applies the configured oracle policy. The spot price is oriented
// the same way as the trade: output token per input token.
func checkOracle(view PoolView, cfg Config, dir amm.Direction, osnap *oracle.Snapshot) error {
	switch cfg.OracleMode {
	case OracleOff:
		return nil
	case OracleBound:
		if osnap == nil {
			return nil
		}
	case OracleGate:
		if osnap == nil {
			return fmt.Errorf("%w: oracle snapshot required to settle", amm.ErrStaleOracle)
		}
	}

	reserveIn, reserveOut := orient(view, dir)
	spot, err := numeric.MulDivFloor(reserveOut, amm.PriceScale, reserveIn)
	if err != nil {
		return err
	}
	fair := osnap.Price
	if dir == amm.OneForZero {
		// The oracle stores token0 priced in token1; invert for the other leg.
		inverted := new(uint256.Int).Mul(numeric.U256(amm.PriceScale), numeric.U256(amm.PriceScale))
		if fair == 0 {
			return fmt.Errorf("%w: zero oracle price", amm.ErrValidation)
		}
		inverted.Div(inverted, numeric.U256(fair))
		fair, err = numeric.ToUint64(inverted)
		if err != nil {
			return err
		}
	}
	if fair == 0 {
		return fmt.Errorf("%w: zero oracle price", amm.ErrValidation)
	}

	var diff uint64
	if spot > fair {
		diff = spot - fair
	} else {
		diff = fair - spot
	}
	deviationBps, err := numeric.MulDivFloor(diff, amm.BpsDenominator, fair)
	if err != nil {
		return err
	}
	if deviationBps > cfg.MaxDeviationBps {
		return fmt.Errorf("%w: %d bps against a %d bps bound",
			amm.ErrOracleDeviation, deviationBps, cfg.MaxDeviationBps)
	}
	return nil
}
