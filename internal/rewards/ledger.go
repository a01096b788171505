package rewards

import (
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammCore/internal/amm"
	"ammCore/internal/numeric"
)

// ShareSource supplies liquidity-share snapshots at accrual time. It is
// implemented by the pool ledger; the reward ledger only ever reads from it.
type ShareSource interface {
	LpSupply() uint64
	LpOwned(owner amm.Key) uint64
}

// TransferFunc delivers claimed tokens to the owner. It runs only after all
// bookkeeping has been computed and validated; an error aborts the claim with
// no state change.
type TransferFunc func(owner amm.Key, amount uint64) error

// Ledger tracks one campaign and its per-owner claim records.
type Ledger struct {
	campaign *Campaign
	users    map[amm.Key]*UserReward
	shares   ShareSource
	logger   *zap.Logger
}

func New(campaign *Campaign, shares ShareSource, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		campaign: campaign,
		users:    make(map[amm.Key]*UserReward),
		shares:   shares,
		logger:   logger,
	}
}

// Restore rebuilds a ledger from persisted records.
func Restore(campaign *Campaign, users []*UserReward, shares ShareSource, logger *zap.Logger) (*Ledger, error) {
	l := New(campaign, shares, logger)
	var claimed uint64
	for _, u := range users {
		if u.Campaign != campaign.Key {
			return nil, fmt.Errorf("%w: user record for campaign %s in ledger %s",
				amm.ErrValidation, u.Campaign, campaign.Key)
		}
		var err error
		if claimed, err = numeric.CheckedAdd(claimed, u.TotalRewards); err != nil {
			return nil, err
		}
		l.users[u.Owner] = u
	}
	if claimed > campaign.TotalDisbursed {
		return nil, fmt.Errorf("%w: user claims %d exceed campaign disbursed %d",
			amm.ErrInvariantViolation, claimed, campaign.TotalDisbursed)
	}
	return l, nil
}

func (l *Ledger) Campaign() *Campaign { return l.campaign }

// User returns the claim record for owner, or nil if none exists.
func (l *Ledger) User(owner amm.Key) *UserReward {
	return l.users[owner]
}

// Accrue advances the per-share accumulator to min(now, end). Calling it twice
// at the same timestamp is a no-op. Once the campaign has started, a now before
// the last accrual is rejected; before StartAt the call is a no-op, since share
// syncs and batch runs reach campaigns whose schedule has not opened yet. With
// zero total shares the accumulator holds still but the accrual clock still
// advances, so the skipped interval's emission stays in escrow.
func (l *Ledger) Accrue(now uint64) error {
	c := l.campaign
	if now < c.LastCalculatedAt && now >= c.StartAt {
		return fmt.Errorf("%w: accrual time %d before last calculation %d",
			amm.ErrValidation, now, c.LastCalculatedAt)
	}
	effective := now
	if effective > c.EndAt {
		effective = c.EndAt
	}
	if effective <= c.LastCalculatedAt {
		return nil
	}
	elapsed := effective - c.LastCalculatedAt
	total := l.shares.LpSupply()
	if total == 0 {
		c.LastCalculatedAt = effective
		return nil
	}
	emitted, err := numeric.CheckedMul(elapsed, c.EmissionRate)
	if err != nil {
		return err
	}
	delta, err := numeric.MulDivWide(emitted, AccumulatorScale, total)
	if err != nil {
		return err
	}
	var overflow bool
	if c.AccPerShare, overflow = new(uint256.Int).AddOverflow(c.AccPerShare, delta); overflow {
		return fmt.Errorf("%w: reward accumulator", amm.ErrArithmeticOverflow)
	}
	c.LastCalculatedAt = effective
	l.logger.Debug("rewards accrued",
		zap.String("campaign", c.Key.String()),
		zap.Uint64("elapsed", elapsed),
		zap.Uint64("total_shares", total))
	return nil
}

// SyncShares records a share-balance change for owner. Rewards earned on the
// old balance are settled into the unsettled bucket and the debt is reset, so
// the new balance earns only from now on. Call Accrue at the change time
// before the pool's shares move, then SyncShares after; every deposit,
// withdrawal, or position transfer affecting owner needs this pair.
func (l *Ledger) SyncShares(owner amm.Key, now uint64) error {
	if err := l.Accrue(now); err != nil {
		return err
	}
	u := l.user(owner)
	if u.ShareAmount > 0 {
		earned, err := l.earned(u)
		if err != nil {
			return err
		}
		if u.Unsettled, err = numeric.CheckedAdd(u.Unsettled, earned); err != nil {
			return err
		}
	}
	u.ShareAmount = l.shares.LpOwned(owner)
	u.RewardDebt = new(uint256.Int).Set(l.campaign.AccPerShare)
	return nil
}

// SetBoost updates owner's boost multiplier after settling rewards earned at
// the old multiplier. 10,000 bps is the neutral 1x.
func (l *Ledger) SetBoost(owner amm.Key, boostBps, now uint64) error {
	if boostBps == 0 {
		return fmt.Errorf("%w: zero boost multiplier", amm.ErrValidation)
	}
	if err := l.SyncShares(owner, now); err != nil {
		return err
	}
	l.user(owner).BoostBps = boostBps
	return nil
}

// Pending reports what owner could claim if accrual ran at now, without
// mutating any record.
func (l *Ledger) Pending(owner amm.Key, now uint64) (uint64, error) {
	u := l.users[owner]
	if u == nil {
		return 0, nil
	}
	acc := l.projectedAccumulator(now)
	if acc.Lt(u.RewardDebt) {
		return 0, fmt.Errorf("%w: reward debt ahead of accumulator", amm.ErrInvariantViolation)
	}
	diff := new(uint256.Int).Sub(acc, u.RewardDebt)
	raw, err := numeric.MulDiv256Floor(diff, u.ShareAmount, AccumulatorScale)
	if err != nil {
		return 0, err
	}
	boost := u.BoostBps
	if boost == 0 {
		boost = BoostDenominator
	}
	boosted, err := numeric.MulDivFloor(raw, boost, BoostDenominator)
	if err != nil {
		return 0, err
	}
	payout, err := numeric.CheckedAdd(boosted, u.Unsettled)
	if err != nil {
		return 0, err
	}
	if payout > l.campaign.EscrowLeft {
		payout = l.campaign.EscrowLeft
	}
	return payout, nil
}

// projectedAccumulator is the accumulator value Accrue(now) would commit,
// computed without side effects. Arithmetic failures fall back to the current
// value; Claim repeats the checked path.
func (l *Ledger) projectedAccumulator(now uint64) *uint256.Int {
	c := l.campaign
	effective := now
	if effective > c.EndAt {
		effective = c.EndAt
	}
	if effective <= c.LastCalculatedAt {
		return c.AccPerShare
	}
	total := l.shares.LpSupply()
	if total == 0 {
		return c.AccPerShare
	}
	emitted, err := numeric.CheckedMul(effective-c.LastCalculatedAt, c.EmissionRate)
	if err != nil {
		return c.AccPerShare
	}
	delta, err := numeric.MulDivWide(emitted, AccumulatorScale, total)
	if err != nil {
		return c.AccPerShare
	}
	return new(uint256.Int).Add(c.AccPerShare, delta)
}

// Claim accrues to now, settles owner's pending rewards, and hands the payout
// amount to transfer. State commits only if transfer succeeds; the transfer is
// the last step and sees fully validated bookkeeping. A zero payout returns
// ErrNothingToClaim untouched.
func (l *Ledger) Claim(owner amm.Key, now uint64, transfer TransferFunc) (uint64, error) {
	if err := l.Accrue(now); err != nil {
		return 0, err
	}
	u := l.users[owner]
	if u == nil {
		return 0, amm.ErrNothingToClaim
	}
	earned, err := l.earned(u)
	if err != nil {
		return 0, err
	}
	payout, err := numeric.CheckedAdd(earned, u.Unsettled)
	if err != nil {
		return 0, err
	}
	// Boosts above 1x can only pay out of what is still escrowed.
	if payout > l.campaign.EscrowLeft {
		payout = l.campaign.EscrowLeft
	}
	if payout == 0 {
		return 0, amm.ErrNothingToClaim
	}
	totalRewards, err := numeric.CheckedAdd(u.TotalRewards, payout)
	if err != nil {
		return 0, err
	}
	disbursed, err := numeric.CheckedAdd(l.campaign.TotalDisbursed, payout)
	if err != nil {
		return 0, err
	}
	if disbursed > l.campaign.TotalToDisburse {
		return 0, fmt.Errorf("%w: disbursed %d exceeds campaign total %d",
			amm.ErrInvariantViolation, disbursed, l.campaign.TotalToDisburse)
	}
	if transfer != nil {
		if err := transfer(owner, payout); err != nil {
			return 0, fmt.Errorf("reward transfer: %w", err)
		}
	}
	u.Unsettled = 0
	u.RewardDebt = new(uint256.Int).Set(l.campaign.AccPerShare)
	u.TotalRewards = totalRewards
	l.campaign.TotalDisbursed = disbursed
	l.campaign.EscrowLeft -= payout
	l.logger.Debug("rewards claimed",
		zap.String("campaign", l.campaign.Key.String()),
		zap.String("owner", owner.String()),
		zap.Uint64("amount", payout))
	return payout, nil
}

// Migrate reconciles the campaign against an externally audited disbursed
// total, then sets the migration marker. A second call is rejected with
// ErrAlreadyMigrated before any field is read or written.
func (l *Ledger) Migrate(disbursed uint64) error {
	c := l.campaign
	if c.Migrated {
		return amm.ErrAlreadyMigrated
	}
	if disbursed > c.TotalToDisburse {
		return fmt.Errorf("%w: audited disbursed %d exceeds campaign total %d",
			amm.ErrValidation, disbursed, c.TotalToDisburse)
	}
	c.TotalDisbursed = disbursed
	c.EscrowLeft = c.TotalToDisburse - disbursed
	c.Migrated = true
	l.logger.Info("campaign migrated",
		zap.String("campaign", c.Key.String()),
		zap.Uint64("disbursed", disbursed))
	return nil
}

// earned is the reward owner's current shares have accumulated since the last
// debt reset, with the boost multiplier applied. Floor rounding throughout.
func (l *Ledger) earned(u *UserReward) (uint64, error) {
	if l.campaign.AccPerShare.Lt(u.RewardDebt) {
		return 0, fmt.Errorf("%w: reward debt ahead of accumulator", amm.ErrInvariantViolation)
	}
	diff := new(uint256.Int).Sub(l.campaign.AccPerShare, u.RewardDebt)
	raw, err := numeric.MulDiv256Floor(diff, u.ShareAmount, AccumulatorScale)
	if err != nil {
		return 0, err
	}
	boost := u.BoostBps
	if boost == 0 {
		boost = BoostDenominator
	}
	return numeric.MulDivFloor(raw, boost, BoostDenominator)
}

func (l *Ledger) user(owner amm.Key) *UserReward {
	u := l.users[owner]
	if u == nil {
		u = &UserReward{
			Owner:      owner,
			Pool:       l.campaign.Pool,
			Campaign:   l.campaign.Key,
			RewardDebt: uint256.NewInt(0),
			BoostBps:   BoostDenominator,
		}
		l.users[owner] = u
	}
	return u
}
