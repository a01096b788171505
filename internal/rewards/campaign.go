// Package rewards accrues time-weighted incentive payouts to liquidity
// providers against a per-share accumulator, and settles claims against it.
// It reads pool share snapshots but never mutates pool state.
package rewards

import (
	"fmt"

	"github.com/holiman/uint256"

	"ammCore/internal/amm"
)

// AccumulatorScale is the fixed-point scale of the per-share accumulator.
const AccumulatorScale = 1_000_000_000_000

// BoostDenominator expresses boost multipliers in basis points; 10,000 is 1x.
const BoostDenominator = amm.BpsDenominator

// Campaign is one incentive schedule: a fixed total disbursed linearly between
// StartAt and EndAt, tracked through a per-share accumulator.
//
// Invariants: EndAt > StartAt; LastCalculatedAt is non-decreasing and never
// exceeds EndAt; TotalDisbursed never exceeds TotalToDisburse.
type Campaign struct {
	Key              amm.Key
	Pool             amm.Key
	RewardToken      amm.Key
	TotalToDisburse  uint64
	StartAt          uint64
	EndAt            uint64
	EmissionRate     uint64 // reward units per second
	LastCalculatedAt uint64
	AccPerShare      *uint256.Int // scaled by AccumulatorScale
	TotalDisbursed   uint64
	EscrowLeft       uint64
	Migrated         bool
}

// NewCampaign validates the schedule and derives the emission rate. The integer
// remainder of total/(end−start) stays in escrow and is never emitted.
func NewCampaign(key, pool, rewardToken amm.Key, total, startAt, endAt uint64) (*Campaign, error) {
	if endAt <= startAt {
		return nil, fmt.Errorf("%w: campaign end %d not after start %d", amm.ErrValidation, endAt, startAt)
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: zero reward total", amm.ErrValidation)
	}
	rate := total / (endAt - startAt)
	if rate == 0 {
		return nil, fmt.Errorf("%w: emission rate rounds to zero", amm.ErrValidation)
	}
	return &Campaign{
		Key:              key,
		Pool:             pool,
		RewardToken:      rewardToken,
		TotalToDisburse:  total,
		StartAt:          startAt,
		EndAt:            endAt,
		EmissionRate:     rate,
		LastCalculatedAt: startAt,
		AccPerShare:      uint256.NewInt(0),
		EscrowLeft:       total,
	}, nil
}

// Active reports whether the campaign can still emit or still owes escrow.
func (c *Campaign) Active(now uint64) bool {
	return c.EndAt > now || c.EscrowLeft > 0
}

// UserReward is the per-owner claim record against one campaign. RewardDebt is
// the accumulator value already settled for the owner's shares.
type UserReward struct {
	Owner        amm.Key
	Pool         amm.Key
	Campaign     amm.Key
	ShareAmount  uint64
	RewardDebt   *uint256.Int
	Unsettled    uint64 // accrued across share changes, not yet claimed
	TotalRewards uint64 // claimed to date
	BoostBps     uint64
}
