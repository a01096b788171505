package ledger

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"ammCore/internal/amm"
	"ammCore/internal/oracle"
	"ammCore/internal/quote"
)

func testKey(b byte) amm.Key {
	var k amm.Key
	k[0] = b
	return k
}

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	obs, err := oracle.New(0, 60)
	if err != nil {
		t.Fatalf("oracle: %v", err)
	}
	cfg := Config{
		TradeFeeBps:              30,
		DepositRatioToleranceBps: 100,
		OracleMode:               quote.OracleOff,
	}
	l, err := New(testKey(1), cfg, StatusAllEnabled, obs, zap.NewNop())
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l
}

func TestFirstDepositLocksMinimumLiquidity(t *testing.T) {
	l := testLedger(t)
	owner := testKey(2)

	minted, err := l.Deposit(owner, 1_000_000, 2_000_000, 10)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// floor(sqrt(2×10^12)) = 1,414,213
	if minted != 1_414_213-MinLiquidity {
		t.Fatalf("minted mismatch: %d", minted)
	}
	if l.LpSupply() != 1_414_213 {
		t.Fatalf("supply mismatch: %d", l.LpSupply())
	}
	if l.LpOwned(owner) != minted {
		t.Fatalf("owned mismatch: %d", l.LpOwned(owner))
	}

	pos, ok := l.Position(owner)
	if !ok || pos.FirstInvestmentAt != 10 {
		t.Fatalf("position mismatch: %+v ok=%v", pos, ok)
	}
}

func TestFirstDepositBelowLockRejected(t *testing.T) {
	l := testLedger(t)
	if _, err := l.Deposit(testKey(2), 10, 10, 0); !errors.Is(err, amm.ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
}

func TestFollowUpDepositProportional(t *testing.T) {
	l := testLedger(t)
	owner := testKey(2)
	if _, err := l.Deposit(owner, 1_000_000, 2_000_000, 0); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
	supply := l.LpSupply()

	minted, err := l.Deposit(owner, 100_000, 200_000, 5)
	if err != nil {
		t.Fatalf("follow-up deposit: %v", err)
	}
	// Exactly 10% of the pool at the same ratio.
	if minted != supply/10 {
		t.Fatalf("minted mismatch: %d != %d", minted, supply/10)
	}

	if _, err := l.Deposit(owner, 100_000, 0, 6); !errors.Is(err, amm.ErrValidation) {
		t.Fatalf("expected validation error for one-sided deposit, got %v", err)
	}
	// 2:1 pool, 1:1 deposit is 5,000 bps off against a 100 bps tolerance.
	if _, err := l.Deposit(owner, 100_000, 100_000, 7); !errors.Is(err, amm.ErrValidation) {
		t.Fatalf("expected validation error for skewed ratio, got %v", err)
	}
}

func TestDepositMintMonotonic(t *testing.T) {
	amounts := []uint64{10_000, 20_000, 50_000, 100_000}
	var prev uint64
	for _, a := range amounts {
		l := testLedger(t)
		if _, err := l.Deposit(testKey(2), 1_000_000, 2_000_000, 0); err != nil {
			t.Fatalf("seed deposit: %v", err)
		}
		minted, err := l.Deposit(testKey(3), a, 2*a, 1)
		if err != nil {
			t.Fatalf("deposit %d: %v", a, err)
		}
		if minted <= prev {
			t.Fatalf("minted not monotonic: %d after %d", minted, prev)
		}
		prev = minted
	}
}

func TestWithdrawRoundTripBounded(t *testing.T) {
	l := testLedger(t)
	owner := testKey(2)
	if _, err := l.Deposit(owner, 1_000_000, 2_000_000, 0); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
	minted, err := l.Deposit(testKey(3), 100_000, 200_000, 1)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	out0, out1, err := l.Withdraw(testKey(3), minted, 2)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if out0 > 100_000 || out1 > 200_000 {
		t.Fatalf("withdrew more than deposited: %d, %d", out0, out1)
	}
	if 100_000-out0 > 2 || 200_000-out1 > 2 {
		t.Fatalf("rounding loss too large: %d, %d", 100_000-out0, 200_000-out1)
	}
}

func TestWithdrawChecksBalance(t *testing.T) {
	l := testLedger(t)
	owner := testKey(2)
	minted, err := l.Deposit(owner, 1_000_000, 2_000_000, 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, _, err := l.Withdraw(owner, minted+1, 1); !errors.Is(err, amm.ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
	if _, _, err := l.Withdraw(testKey(9), 1, 1); !errors.Is(err, amm.ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity for unknown owner, got %v", err)
	}
}

func TestApplySwapMovesReservesAndRecordsPrice(t *testing.T) {
	l := testLedger(t)
	if _, err := l.Deposit(testKey(2), 1_000_000, 2_000_000, 0); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	cfg := quote.Config{TradeFeeBps: 30, ProtocolFeeBps: 2_000, FundFeeBps: 1_000, OracleMode: quote.OracleOff}
	res, err := quote.ExactInput(l.State().View(), cfg, 10_000, amm.ZeroForOne, nil)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	if err := l.ApplySwap(res, 100); err != nil {
		t.Fatalf("apply swap: %v", err)
	}

	s := l.State()
	carve := res.ProtocolFee + res.FundFee
	if s.Reserve0 != 1_000_000+res.AmountIn-carve {
		t.Fatalf("reserve0 mismatch: %d", s.Reserve0)
	}
	if s.Reserve1 != 2_000_000-res.AmountOut {
		t.Fatalf("reserve1 mismatch: %d", s.Reserve1)
	}
	if s.ProtocolFees0 != res.ProtocolFee || s.FundFees0 != res.FundFee {
		t.Fatalf("fee totals mismatch: %+v", s)
	}
	if s.ProtocolFees1 != 0 || s.FundFees1 != 0 {
		t.Fatalf("wrong side charged: %+v", s)
	}
	if l.Observations().Len() != 1 {
		t.Fatalf("observation not recorded")
	}
}

func TestApplySwapRejectsShrinkingProduct(t *testing.T) {
	l := testLedger(t)
	if _, err := l.Deposit(testKey(2), 1_000_000, 2_000_000, 0); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	before := l.State()
	// A hand-built result that under-pays the pool.
	bad := quote.Result{
		Direction: amm.ZeroForOne,
		AmountIn:  10,
		AmountOut: 10_000,
	}
	if err := l.ApplySwap(bad, 100); !errors.Is(err, amm.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	after := l.State()
	if after.Reserve0 != before.Reserve0 || after.Reserve1 != before.Reserve1 {
		t.Fatalf("failed swap mutated reserves: %+v", after)
	}
	if l.Observations().Len() != 0 {
		t.Fatalf("failed swap recorded an observation")
	}
}

func TestStatusFlagsGateOperations(t *testing.T) {
	l := testLedger(t)
	if _, err := l.Deposit(testKey(2), 1_000_000, 2_000_000, 0); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	l.SetStatus(StatusSwapEnabled)
	if _, err := l.Deposit(testKey(2), 100, 200, 1); !errors.Is(err, amm.ErrValidation) {
		t.Fatalf("expected deposits disabled, got %v", err)
	}
	if _, _, err := l.Withdraw(testKey(2), 1, 1); !errors.Is(err, amm.ErrValidation) {
		t.Fatalf("expected withdrawals disabled, got %v", err)
	}

	l.SetStatus(StatusDepositEnabled | StatusWithdrawEnabled)
	if err := l.ApplySwap(quote.Result{Direction: amm.ZeroForOne, AmountIn: 10, AmountOut: 1}, 1); !errors.Is(err, amm.ErrInvalidDirection) {
		t.Fatalf("expected swaps disabled, got %v", err)
	}
}

func TestRestoreRejectsEmptyActivePool(t *testing.T) {
	obs, _ := oracle.New(0, 60)
	state := &PoolState{
		Key:      testKey(1),
		Config:   Config{TradeFeeBps: 30},
		LpSupply: 1_000,
	}
	if _, err := Restore(state, obs, nil); !errors.Is(err, amm.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestApplySwapOlderClockLeavesStateUntouched(t *testing.T) {
	l := testLedger(t)
	if _, err := l.Deposit(testKey(2), 1_000_000, 2_000_000, 0); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	cfg := quote.Config{TradeFeeBps: 30, ProtocolFeeBps: 2_000, FundFeeBps: 1_000, OracleMode: quote.OracleOff}

	res, err := quote.ExactInput(l.State().View(), cfg, 10_000, amm.ZeroForOne, nil)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if err := l.ApplySwap(res, 100); err != nil {
		t.Fatalf("apply swap: %v", err)
	}

	before := l.State()
	res, err = quote.ExactInput(l.State().View(), cfg, 10_000, amm.ZeroForOne, nil)
	if err != nil {
		t.Fatalf("second quote: %v", err)
	}
	// A clock behind the newest observation must reject the whole swap, not
	// just the observation append.
	if err := l.ApplySwap(res, 50); !errors.Is(err, amm.ErrValidation) {
		t.Fatalf("expected validation error for regressing clock, got %v", err)
	}

	after := l.State()
	if after.Reserve0 != before.Reserve0 || after.Reserve1 != before.Reserve1 {
		t.Fatalf("rejected swap moved reserves: %+v", after)
	}
	if after.ProtocolFees0 != before.ProtocolFees0 || after.FundFees0 != before.FundFees0 {
		t.Fatalf("rejected swap advanced fee totals: %+v", after)
	}
	if l.Observations().Len() != 1 {
		t.Fatalf("rejected swap touched the observation ring: %d", l.Observations().Len())
	}
}

type captureJournal struct {
	records []amm.OperationRecord
	fail    bool
}

func (j *captureJournal) PutOperationBatch(ops []amm.OperationRecord) error {
	if j.fail {
		return errors.New("journal sink closed")
	}
	j.records = append(j.records, ops...)
	return nil
}

func TestJournalRecordsAppliedOperations(t *testing.T) {
	l := testLedger(t)
	journal := &captureJournal{}
	l.AttachJournal(journal, 0)
	owner := testKey(2)

	minted, err := l.Deposit(owner, 1_000_000, 2_000_000, 10)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	cfg := quote.Config{TradeFeeBps: 30, OracleMode: quote.OracleOff}
	res, err := quote.ExactInput(l.State().View(), cfg, 10_000, amm.ZeroForOne, nil)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if err := l.ApplySwap(res, 20); err != nil {
		t.Fatalf("apply swap: %v", err)
	}
	if _, _, err := l.Withdraw(owner, minted/2, 30); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	if len(journal.records) != 3 {
		t.Fatalf("expected 3 journal records, got %d", len(journal.records))
	}
	for i, kind := range []string{"deposit", "swap", "withdraw"} {
		rec := journal.records[i]
		if rec.Kind != kind {
			t.Fatalf("record %d kind mismatch: %q", i, rec.Kind)
		}
		if rec.Sequence != uint64(i+1) {
			t.Fatalf("record %d sequence mismatch: %d", i, rec.Sequence)
		}
		if rec.Pool != l.State().Key.String() {
			t.Fatalf("record %d pool mismatch: %q", i, rec.Pool)
		}
	}
	swap := journal.records[1]
	if swap.Direction != amm.ZeroForOne.String() || swap.Amount0 != "10000" {
		t.Fatalf("swap record mismatch: %+v", swap)
	}
	if swap.TradeFee != "30" {
		t.Fatalf("swap record fee mismatch: %+v", swap)
	}
}

func TestJournalFailureAbortsTransition(t *testing.T) {
	l := testLedger(t)
	journal := &captureJournal{}
	l.AttachJournal(journal, 0)
	if _, err := l.Deposit(testKey(2), 1_000_000, 2_000_000, 10); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	journal.fail = true
	before := l.State()
	if _, err := l.Deposit(testKey(3), 100_000, 200_000, 11); err == nil {
		t.Fatalf("expected deposit to fail with a broken journal")
	}
	after := l.State()
	if after.LpSupply != before.LpSupply || after.Reserve0 != before.Reserve0 {
		t.Fatalf("aborted deposit mutated state: %+v", after)
	}
	if l.LpOwned(testKey(3)) != 0 {
		t.Fatalf("aborted deposit minted lp units")
	}
	if len(journal.records) != 1 {
		t.Fatalf("aborted deposit reached the journal: %d", len(journal.records))
	}
}

func TestTradeFeeBpsFollowsFeeMode(t *testing.T) {
	obs, err := oracle.New(0, 3_600)
	if err != nil {
		t.Fatalf("oracle: %v", err)
	}
	cfg := Config{
		TradeFeeBps: 30,
		OracleMode:  quote.OracleOff,
		FeeMode:     quote.FeeVolatility,
	}
	l, err := New(testKey(1), cfg, StatusAllEnabled, obs, zap.NewNop())
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}

	// An empty ring falls back to the static rate.
	fee, err := l.TradeFeeBps(0)
	if err != nil || fee != 30 {
		t.Fatalf("empty ring fee: %d, %v", fee, err)
	}

	if err := obs.Record(0, 1_000_000_000); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := obs.Record(100, 1_200_000_000); err != nil {
		t.Fatalf("record: %v", err)
	}
	fee, err = l.TradeFeeBps(100)
	if err != nil {
		t.Fatalf("trade fee: %v", err)
	}
	if fee != 50 {
		t.Fatalf("volatility fee mismatch: %d", fee)
	}

	static := testLedger(t)
	fee, err = static.TradeFeeBps(0)
	if err != nil || fee != 30 {
		t.Fatalf("static fee mismatch: %d, %v", fee, err)
	}
}
