package record

import (
	"fmt"

	"ammCore/internal/amm"
	"ammCore/internal/rewards"
)

// CampaignSize is the exact byte length of a persisted reward campaign.
const CampaignSize = 3*32 + 5*8 + 16 + 2*8 + 8 + 16

// UserRewardSize is the exact byte length of a persisted user claim record.
const UserRewardSize = 3*32 + 8 + 16 + 3*8 + 16

// EncodeCampaign serializes a reward campaign record.
func EncodeCampaign(c *rewards.Campaign) ([]byte, error) {
	b := newEncoder(CampaignSize)
	b.putKey(c.Key)
	b.putKey(c.Pool)
	b.putKey(c.RewardToken)
	b.putU64(c.TotalToDisburse)
	b.putU64(c.StartAt)
	b.putU64(c.EndAt)
	b.putU64(c.EmissionRate)
	b.putU64(c.LastCalculatedAt)
	b.putU128(c.AccPerShare)
	b.putU64(c.TotalDisbursed)
	b.putU64(c.EscrowLeft)
	migrated := uint8(0)
	if c.Migrated {
		migrated = 1
	}
	b.putU8(migrated)
	b.reserved(7)
	b.reserved(16)
	return b.finish()
}

// DecodeCampaign is the inverse of EncodeCampaign. The schedule and escrow
// invariants are re-checked so a tampered record cannot re-enter the ledger.
func DecodeCampaign(data []byte) (*rewards.Campaign, error) {
	b := newDecoder(data, CampaignSize)
	c := &rewards.Campaign{
		Key:              b.key(),
		Pool:             b.key(),
		RewardToken:      b.key(),
		TotalToDisburse:  b.u64(),
		StartAt:          b.u64(),
		EndAt:            b.u64(),
		EmissionRate:     b.u64(),
		LastCalculatedAt: b.u64(),
		AccPerShare:      b.u128(),
		TotalDisbursed:   b.u64(),
		EscrowLeft:       b.u64(),
	}
	migrated := b.u8()
	b.reserved(7)
	b.reserved(16)
	if _, err := b.finish(); err != nil {
		return nil, err
	}
	if migrated > 1 {
		return nil, fmt.Errorf("%w: migration marker %d", amm.ErrValidation, migrated)
	}
	c.Migrated = migrated == 1
	if c.EndAt <= c.StartAt {
		return nil, fmt.Errorf("%w: campaign end %d not after start %d", amm.ErrValidation, c.EndAt, c.StartAt)
	}
	if c.LastCalculatedAt < c.StartAt || c.LastCalculatedAt > c.EndAt {
		return nil, fmt.Errorf("%w: last calculation %d outside schedule", amm.ErrValidation, c.LastCalculatedAt)
	}
	if c.TotalDisbursed > c.TotalToDisburse {
		return nil, fmt.Errorf("%w: disbursed %d exceeds total %d",
			amm.ErrInvariantViolation, c.TotalDisbursed, c.TotalToDisburse)
	}
	if c.EscrowLeft > c.TotalToDisburse-c.TotalDisbursed {
		return nil, fmt.Errorf("%w: escrow %d exceeds undisbursed remainder",
			amm.ErrInvariantViolation, c.EscrowLeft)
	}
	return c, nil
}

// EncodeUserReward serializes a per-owner claim record.
func EncodeUserReward(u *rewards.UserReward) ([]byte, error) {
	b := newEncoder(UserRewardSize)
	b.putKey(u.Owner)
	b.putKey(u.Pool)
	b.putKey(u.Campaign)
	b.putU64(u.ShareAmount)
	b.putU128(u.RewardDebt)
	b.putU64(u.Unsettled)
	b.putU64(u.TotalRewards)
	b.putU64(u.BoostBps)
	b.reserved(16)
	return b.finish()
}

// DecodeUserReward is the inverse of EncodeUserReward.
func DecodeUserReward(data []byte) (*rewards.UserReward, error) {
	b := newDecoder(data, UserRewardSize)
	u := &rewards.UserReward{
		Owner:        b.key(),
		Pool:         b.key(),
		Campaign:     b.key(),
		ShareAmount:  b.u64(),
		RewardDebt:   b.u128(),
		Unsettled:    b.u64(),
		TotalRewards: b.u64(),
		BoostBps:     b.u64(),
	}
	b.reserved(16)
	if _, err := b.finish(); err != nil {
		return nil, err
	}
	if u.BoostBps == 0 {
		return nil, fmt.Errorf("%w: zero boost multiplier", amm.ErrValidation)
	}
	return u, nil
}
