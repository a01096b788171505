// Package ledger owns pool reserves, fee totals, and LP supply, and applies
// deposits, withdrawals, and priced swaps as atomic state transitions.
package ledger

import (
	"fmt"

	"ammCore/internal/amm"
	"ammCore/internal/quote"
)

// MinLiquidity is the LP amount locked by the first deposit. It is never minted
// to anyone, which keeps lp supply and reserves away from zero for the life of
// the pool.
const MinLiquidity = 100

// Status holds the independently toggleable operation flags of a pool.
type Status uint8

const (
	StatusSwapEnabled Status = 1 << iota
	StatusDepositEnabled
	StatusWithdrawEnabled

	StatusAllEnabled = StatusSwapEnabled | StatusDepositEnabled | StatusWithdrawEnabled
)

// Enabled reports whether every flag in mask is set.
func (s Status) Enabled(mask Status) bool {
	return s&mask == mask
}

// Config carries the per-pool rates. Immutable after pool creation except
// through the privileged update path, which is the caller's concern.
type Config struct {
	TradeFeeBps              uint64
	ProtocolFeeBps           uint64
	FundFeeBps               uint64
	CreatePoolFee            uint64
	DepositRatioToleranceBps uint64
	OracleMode               quote.OracleMode
	MaxDeviationBps          uint64
	FeeMode                  quote.FeeMode
}

// Validate checks the rates against the shared denominator.
func (c Config) Validate() error {
	if err := c.quoteConfig().Validate(); err != nil {
		return err
	}
	if c.DepositRatioToleranceBps > amm.BpsDenominator {
		return fmt.Errorf("%w: deposit tolerance %d bps", amm.ErrValidation, c.DepositRatioToleranceBps)
	}
	if c.FeeMode > quote.FeeVolatility {
		return fmt.Errorf("%w: fee mode %d", amm.ErrValidation, c.FeeMode)
	}
	return nil
}

func (c Config) quoteConfig() quote.Config {
	return quote.Config{
		TradeFeeBps:     c.TradeFeeBps,
		ProtocolFeeBps:  c.ProtocolFeeBps,
		FundFeeBps:      c.FundFeeBps,
		OracleMode:      c.OracleMode,
		MaxDeviationBps: c.MaxDeviationBps,
	}
}

// PoolState is the persisted pool record. Reserves and supply are exact token
// units; fee totals accumulate the protocol and fund carve-outs per token side.
type PoolState struct {
	Key           amm.Key
	Config        Config
	Reserve0      uint64
	Reserve1      uint64
	LpSupply      uint64
	ProtocolFees0 uint64
	ProtocolFees1 uint64
	FundFees0     uint64
	FundFees1     uint64
	Status        Status
}

// View produces the immutable snapshot the quote engine prices against.
func (p PoolState) View() quote.PoolView {
	return quote.PoolView{
		Reserve0:    p.Reserve0,
		Reserve1:    p.Reserve1,
		SwapEnabled: p.Status.Enabled(StatusSwapEnabled),
	}
}

// Position is the per-owner liquidity record: cumulative flows plus the LP
// balance withdrawals are checked against.
type Position struct {
	Owner             amm.Key
	Pool              amm.Key
	Token0Deposited   uint64
	Token1Deposited   uint64
	Token0Withdrawn   uint64
	Token1Withdrawn   uint64
	LpOwned           uint64
	FirstInvestmentAt uint64
}
