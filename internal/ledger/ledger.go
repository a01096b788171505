package ledger

import (
	"fmt"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammCore/internal/amm"
	"ammCore/internal/numeric"
	"ammCore/internal/oracle"
	"ammCore/internal/quote"
)

// Ledger binds one pool's state to its observation series and the per-owner
// position records. Every mutating method is one atomic transition: it either
// commits every field it touches or returns with the state untouched. The
// execution environment serializes writers; no locking happens here.
type Ledger struct {
	state        *PoolState
	observations *oracle.Aggregator
	positions    map[amm.Key]*Position
	journal      amm.Journal
	sequence     uint64
	logger       *zap.Logger
}

// New creates a ledger for a fresh pool. The pool starts empty; the first
// deposit establishes the price ratio.
func New(key amm.Key, cfg Config, status Status, observations *oracle.Aggregator, logger *zap.Logger) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if observations == nil {
		return nil, fmt.Errorf("%w: observation series required", amm.ErrValidation)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		state: &PoolState{
			Key:    key,
			Config: cfg,
			Status: status,
		},
		observations: observations,
		positions:    make(map[amm.Key]*Position),
		logger:       logger,
	}, nil
}

// Restore rebuilds a ledger around an existing pool record, e.g. one decoded
// from storage. The record must already satisfy the active-pool invariant.
func Restore(state *PoolState, observations *oracle.Aggregator, logger *zap.Logger) (*Ledger, error) {
	if state == nil || observations == nil {
		return nil, fmt.Errorf("%w: state and observation series required", amm.ErrValidation)
	}
	if err := state.Config.Validate(); err != nil {
		return nil, err
	}
	if state.LpSupply > 0 && (state.Reserve0 == 0 || state.Reserve1 == 0) {
		return nil, fmt.Errorf("%w: active pool with empty reserve", amm.ErrInvariantViolation)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		state:        state,
		observations: observations,
		positions:    make(map[amm.Key]*Position),
		logger:       logger,
	}, nil
}

// State returns a copy of the pool record.
func (l *Ledger) State() PoolState {
	return *l.state
}

// Position returns a copy of the owner's liquidity record.
func (l *Ledger) Position(owner amm.Key) (Position, bool) {
	pos, ok := l.positions[owner]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// LpSupply returns the outstanding LP unit supply, lock included.
func (l *Ledger) LpSupply() uint64 {
	return l.state.LpSupply
}

// LpOwned returns the LP units held by owner, zero if no position exists.
func (l *Ledger) LpOwned(owner amm.Key) uint64 {
	if pos, ok := l.positions[owner]; ok {
		return pos.LpOwned
	}
	return 0
}

// SetStatus replaces the operation flags. Authority checks happen upstream.
func (l *Ledger) SetStatus(status Status) {
	l.state.Status = status
}

// Observations exposes the pool's observation series for quoting.
func (l *Ledger) Observations() *oracle.Aggregator {
	return l.observations
}

// AttachJournal starts appending one OperationRecord per applied transition.
// lastSequence seeds the strictly increasing sequence numbers; pass the last
// sequence already in the journal, or zero for a fresh one. The record is
// appended before the transition commits, so a failed append aborts it.
func (l *Ledger) AttachJournal(j amm.Journal, lastSequence uint64) {
	l.journal = j
	l.sequence = lastSequence
}

// TradeFeeBps resolves the fee rate for a trade settling at now. Static mode
// returns the configured rate; volatility mode prices the rate off the
// observation ring and falls back to the configured rate when the ring lacks
// coverage.
func (l *Ledger) TradeFeeBps(now uint64) (uint64, error) {
	if l.state.Config.FeeMode == quote.FeeVolatility {
		return quote.VolatilityFeeBps(l.observations, now, l.state.Config.TradeFeeBps)
	}
	return l.state.Config.TradeFeeBps, nil
}

// appendJournal stamps and writes one record. Mutating methods call it after
// every fallible check has passed and before any field is assigned.
func (l *Ledger) appendJournal(rec amm.OperationRecord) error {
	if l.journal == nil {
		return nil
	}
	rec.Sequence = l.sequence + 1
	rec.Pool = l.state.Key.String()
	rec.AppliedAt = time.Now().UTC().Format(time.RFC3339)
	if err := l.journal.PutOperationBatch([]amm.OperationRecord{rec}); err != nil {
		return fmt.Errorf("journal append: %w", err)
	}
	l.sequence++
	return nil
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// Deposit adds liquidity and mints LP units to the owner. The first deposit
// mints sqrt(amount0*amount1) minus the permanent MinLiquidity lock; follow-up
// deposits mint the smaller of the two ratio-implied amounts, rounded down.
func (l *Ledger) Deposit(owner amm.Key, amount0, amount1, now uint64) (uint64, error) {
	s := l.state
	if !s.Status.Enabled(StatusDepositEnabled) {
		return 0, fmt.Errorf("%w: deposits disabled", amm.ErrValidation)
	}

	var minted uint64
	var newReserve0, newReserve1, newSupply uint64
	if s.LpSupply == 0 {
		root := numeric.SqrtProduct(amount0, amount1)
		if root <= MinLiquidity {
			return 0, fmt.Errorf("%w: initial deposit below the minimum liquidity lock", amm.ErrInsufficientLiquidity)
		}
		minted = root - MinLiquidity
		newReserve0 = amount0
		newReserve1 = amount1
		newSupply = root
	} else {
		if amount0 == 0 || amount1 == 0 {
			return 0, fmt.Errorf("%w: both amounts required once the pool has liquidity", amm.ErrValidation)
		}
		if err := l.checkDepositRatio(amount0, amount1); err != nil {
			return 0, err
		}
		minted0, err := numeric.MulDivFloor(amount0, s.LpSupply, s.Reserve0)
		if err != nil {
			return 0, err
		}
		minted1, err := numeric.MulDivFloor(amount1, s.LpSupply, s.Reserve1)
		if err != nil {
			return 0, err
		}
		minted = minted0
		if minted1 < minted {
			minted = minted1
		}
		if minted == 0 {
			return 0, fmt.Errorf("%w: deposit too small to mint", amm.ErrInsufficientLiquidity)
		}
		newReserve0, err = numeric.CheckedAdd(s.Reserve0, amount0)
		if err != nil {
			return 0, err
		}
		newReserve1, err = numeric.CheckedAdd(s.Reserve1, amount1)
		if err != nil {
			return 0, err
		}
		newSupply, err = numeric.CheckedAdd(s.LpSupply, minted)
		if err != nil {
			return 0, err
		}
	}

	if err := l.appendJournal(amm.OperationRecord{
		Kind:      "deposit",
		Owner:     owner.String(),
		Amount0:   formatAmount(amount0),
		Amount1:   formatAmount(amount1),
		LpAmount:  formatAmount(minted),
		Timestamp: now,
	}); err != nil {
		return 0, err
	}

	s.Reserve0 = newReserve0
	s.Reserve1 = newReserve1
	s.LpSupply = newSupply

	pos := l.position(owner, now)
	pos.Token0Deposited += amount0
	pos.Token1Deposited += amount1
	pos.LpOwned += minted

	l.logger.Debug("deposit applied",
		zap.String("pool", s.Key.String()),
		zap.Uint64("amount0", amount0),
		zap.Uint64("amount1", amount1),
		zap.Uint64("minted", minted),
	)
	return minted, nil
}

// Withdraw burns LP units and returns the proportional reserves, rounded down
// so rounding loss stays with the pool.
func (l *Ledger) Withdraw(owner amm.Key, lpAmount, now uint64) (out0, out1 uint64, err error) {
	s := l.state
	if !s.Status.Enabled(StatusWithdrawEnabled) {
		return 0, 0, fmt.Errorf("%w: withdrawals disabled", amm.ErrValidation)
	}
	if lpAmount == 0 {
		return 0, 0, fmt.Errorf("%w: zero lp amount", amm.ErrValidation)
	}
	pos, ok := l.positions[owner]
	if !ok || lpAmount > pos.LpOwned {
		return 0, 0, fmt.Errorf("%w: lp amount exceeds recorded balance", amm.ErrInsufficientLiquidity)
	}

	out0, err = numeric.MulDivFloor(lpAmount, s.Reserve0, s.LpSupply)
	if err != nil {
		return 0, 0, err
	}
	out1, err = numeric.MulDivFloor(lpAmount, s.Reserve1, s.LpSupply)
	if err != nil {
		return 0, 0, err
	}

	if err := l.appendJournal(amm.OperationRecord{
		Kind:      "withdraw",
		Owner:     owner.String(),
		Amount0:   formatAmount(out0),
		Amount1:   formatAmount(out1),
		LpAmount:  formatAmount(lpAmount),
		Timestamp: now,
	}); err != nil {
		return 0, 0, err
	}

	s.Reserve0 -= out0
	s.Reserve1 -= out1
	s.LpSupply -= lpAmount
	pos.LpOwned -= lpAmount
	pos.Token0Withdrawn += out0
	pos.Token1Withdrawn += out1

	l.logger.Debug("withdraw applied",
		zap.String("pool", s.Key.String()),
		zap.Uint64("lp", lpAmount),
		zap.Uint64("out0", out0),
		zap.Uint64("out1", out1),
	)
	return out0, out1, nil
}

// ApplySwap commits a priced trade: reserves move, the protocol and fund fee
// totals advance, and the constant-product invariant is re-checked against the
// pre-swap reserves. On success one observation is appended at the post-swap
// effective price. The observation and the journal record are validated before
// any field is assigned, so nothing mutates if any step fails.
func (l *Ledger) ApplySwap(res quote.Result, now uint64) error {
	s := l.state
	if !s.Status.Enabled(StatusSwapEnabled) {
		return fmt.Errorf("%w: swaps disabled for this pool", amm.ErrInvalidDirection)
	}

	reserveIn, reserveOut := s.Reserve0, s.Reserve1
	if res.Direction == amm.OneForZero {
		reserveIn, reserveOut = s.Reserve1, s.Reserve0
	}
	if res.AmountOut >= reserveOut {
		return amm.ErrInsufficientLiquidity
	}

	carveOut, err := numeric.CheckedAdd(res.ProtocolFee, res.FundFee)
	if err != nil {
		return err
	}
	retainedIn, err := numeric.CheckedSub(res.AmountIn, carveOut)
	if err != nil {
		return fmt.Errorf("%w: fee carve-out exceeds input", amm.ErrValidation)
	}
	newReserveIn, err := numeric.CheckedAdd(reserveIn, retainedIn)
	if err != nil {
		return err
	}
	newReserveOut := reserveOut - res.AmountOut

	// k' >= k, checked against the pre-swap values.
	kBefore := new(uint256.Int).Mul(numeric.U256(reserveIn), numeric.U256(reserveOut))
	kAfter := new(uint256.Int).Mul(numeric.U256(newReserveIn), numeric.U256(newReserveOut))
	if kAfter.Lt(kBefore) {
		return fmt.Errorf("%w: %s < %s", amm.ErrInvariantViolation, kAfter, kBefore)
	}

	newReserve0, newReserve1 := newReserveIn, newReserveOut
	amount0, amount1 := res.AmountIn, res.AmountOut
	if res.Direction == amm.OneForZero {
		newReserve0, newReserve1 = newReserveOut, newReserveIn
		amount0, amount1 = res.AmountOut, res.AmountIn
	}

	price, err := quote.EffectivePrice(newReserve0, newReserve1)
	if err != nil {
		return err
	}
	if err := l.observations.CanRecord(now, price); err != nil {
		return err
	}

	if err := l.appendJournal(amm.OperationRecord{
		Kind:        "swap",
		Direction:   res.Direction.String(),
		Amount0:     formatAmount(amount0),
		Amount1:     formatAmount(amount1),
		TradeFee:    formatAmount(res.TradeFee),
		ProtocolFee: formatAmount(res.ProtocolFee),
		FundFee:     formatAmount(res.FundFee),
		Timestamp:   now,
	}); err != nil {
		return err
	}

	s.Reserve0 = newReserve0
	s.Reserve1 = newReserve1
	if res.Direction == amm.ZeroForOne {
		s.ProtocolFees0 += res.ProtocolFee
		s.FundFees0 += res.FundFee
	} else {
		s.ProtocolFees1 += res.ProtocolFee
		s.FundFees1 += res.FundFee
	}
	if err := l.observations.Record(now, price); err != nil {
		return err
	}

	l.logger.Debug("swap applied",
		zap.String("pool", s.Key.String()),
		zap.String("direction", res.Direction.String()),
		zap.Uint64("in", res.AmountIn),
		zap.Uint64("out", res.AmountOut),
		zap.Uint64("fee", res.TradeFee),
	)
	return nil
}

// checkDepositRatio rejects follow-up deposits whose implied ratio drifts from
// the pool ratio beyond the configured tolerance. Cross-products avoid division.
func (l *Ledger) checkDepositRatio(amount0, amount1 uint64) error {
	s := l.state
	tolerance := s.Config.DepositRatioToleranceBps
	if tolerance == 0 {
		return nil
	}
	left := new(uint256.Int).Mul(numeric.U256(amount0), numeric.U256(s.Reserve1))
	right := new(uint256.Int).Mul(numeric.U256(amount1), numeric.U256(s.Reserve0))
	larger, smaller := left, right
	if right.Gt(left) {
		larger, smaller = right, left
	}
	diff := new(uint256.Int).Sub(larger, smaller)
	diff.Mul(diff, numeric.U256(amm.BpsDenominator))
	if larger.IsZero() {
		return fmt.Errorf("%w: degenerate deposit ratio", amm.ErrValidation)
	}
	deviation := diff.Div(diff, larger)
	if deviation.GtUint64(tolerance) {
		return fmt.Errorf("%w: deposit ratio off by %s bps against a %d bps tolerance",
			amm.ErrValidation, deviation, tolerance)
	}
	return nil
}

func (l *Ledger) position(owner amm.Key, now uint64) *Position {
	pos, ok := l.positions[owner]
	if !ok {
		pos = &Position{
			Owner:             owner,
			Pool:              l.state.Key,
			FirstInvestmentAt: now,
		}
		l.positions[owner] = pos
	}
	return pos
}
