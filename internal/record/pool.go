package record

import (
	"fmt"

	"ammCore/internal/amm"
	"ammCore/internal/ledger"
	"ammCore/internal/quote"
)

// PoolStateSize is the exact byte length of a persisted pool record.
const PoolStateSize = 32 + 6*8 + 8 + 7*8 + 24

// PositionSize is the exact byte length of a persisted liquidity position.
const PositionSize = 32 + 32 + 6*8 + 16

// EncodePoolState lays the pool record out as:
// key, fee rates, mode and status bytes, balances, reserved tail.
func EncodePoolState(p *ledger.PoolState) ([]byte, error) {
	b := newEncoder(PoolStateSize)
	b.putKey(p.Key)
	b.putU64(p.Config.TradeFeeBps)
	b.putU64(p.Config.ProtocolFeeBps)
	b.putU64(p.Config.FundFeeBps)
	b.putU64(p.Config.CreatePoolFee)
	b.putU64(p.Config.DepositRatioToleranceBps)
	b.putU64(p.Config.MaxDeviationBps)
	b.putU8(uint8(p.Config.OracleMode))
	b.putU8(uint8(p.Status))
	b.putU8(uint8(p.Config.FeeMode))
	b.reserved(5)
	b.putU64(p.Reserve0)
	b.putU64(p.Reserve1)
	b.putU64(p.LpSupply)
	b.putU64(p.ProtocolFees0)
	b.putU64(p.ProtocolFees1)
	b.putU64(p.FundFees0)
	b.putU64(p.FundFees1)
	b.reserved(24)
	return b.finish()
}

// DecodePoolState is the inverse of EncodePoolState. It validates the fee
// configuration and rejects unknown status bits and oracle modes.
func DecodePoolState(data []byte) (*ledger.PoolState, error) {
	b := newDecoder(data, PoolStateSize)
	p := &ledger.PoolState{Key: b.key()}
	p.Config.TradeFeeBps = b.u64()
	p.Config.ProtocolFeeBps = b.u64()
	p.Config.FundFeeBps = b.u64()
	p.Config.CreatePoolFee = b.u64()
	p.Config.DepositRatioToleranceBps = b.u64()
	p.Config.MaxDeviationBps = b.u64()
	mode := b.u8()
	status := b.u8()
	feeMode := b.u8()
	b.reserved(5)
	p.Reserve0 = b.u64()
	p.Reserve1 = b.u64()
	p.LpSupply = b.u64()
	p.ProtocolFees0 = b.u64()
	p.ProtocolFees1 = b.u64()
	p.FundFees0 = b.u64()
	p.FundFees1 = b.u64()
	b.reserved(24)
	if _, err := b.finish(); err != nil {
		return nil, err
	}
	if mode > uint8(quote.OracleGate) {
		return nil, fmt.Errorf("%w: oracle mode %d", amm.ErrValidation, mode)
	}
	p.Config.OracleMode = quote.OracleMode(mode)
	if status&^uint8(ledger.StatusAllEnabled) != 0 {
		return nil, fmt.Errorf("%w: status bits %#x", amm.ErrValidation, status)
	}
	p.Status = ledger.Status(status)
	if feeMode > uint8(quote.FeeVolatility) {
		return nil, fmt.Errorf("%w: fee mode %d", amm.ErrValidation, feeMode)
	}
	p.Config.FeeMode = quote.FeeMode(feeMode)
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// EncodePosition serializes a per-owner liquidity record.
func EncodePosition(pos *ledger.Position) ([]byte, error) {
	b := newEncoder(PositionSize)
	b.putKey(pos.Owner)
	b.putKey(pos.Pool)
	b.putU64(pos.Token0Deposited)
	b.putU64(pos.Token1Deposited)
	b.putU64(pos.Token0Withdrawn)
	b.putU64(pos.Token1Withdrawn)
	b.putU64(pos.LpOwned)
	b.putU64(pos.FirstInvestmentAt)
	b.reserved(16)
	return b.finish()
}

// DecodePosition is the inverse of EncodePosition.
func DecodePosition(data []byte) (*ledger.Position, error) {
	b := newDecoder(data, PositionSize)
	pos := &ledger.Position{
		Owner:             b.key(),
		Pool:              b.key(),
		Token0Deposited:   b.u64(),
		Token1Deposited:   b.u64(),
		Token0Withdrawn:   b.u64(),
		Token1Withdrawn:   b.u64(),
		LpOwned:           b.u64(),
		FirstInvestmentAt: b.u64(),
	}
	b.reserved(16)
	if _, err := b.finish(); err != nil {
		return nil, err
	}
	return pos, nil
}
