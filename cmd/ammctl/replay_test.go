package main

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"ammCore/internal/amm"
	"ammCore/internal/ledger"
	"ammCore/internal/oracle"
	"ammCore/internal/quote"
	"ammCore/internal/storage"
)

func TestReplayRebuildsJournaledState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	journal := storage.NewJsonlJournal(path)

	obs, err := oracle.New(0, 3_600)
	if err != nil {
		t.Fatalf("oracle: %v", err)
	}
	var poolKey, owner amm.Key
	poolKey[0], owner[0] = 1, 2
	cfg := ledger.Config{TradeFeeBps: 30, ProtocolFeeBps: 2_000, FundFeeBps: 1_000, OracleMode: quote.OracleOff}
	live, err := ledger.New(poolKey, cfg, ledger.StatusAllEnabled, obs, zap.NewNop())
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	live.AttachJournal(journal, 0)

	minted, err := live.Deposit(owner, 1_000_000, 2_000_000, 10)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	qcfg := quote.Config{TradeFeeBps: 30, ProtocolFeeBps: 2_000, FundFeeBps: 1_000, OracleMode: quote.OracleOff}
	res, err := quote.ExactInput(live.State().View(), qcfg, 10_000, amm.ZeroForOne, nil)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if err := live.ApplySwap(res, 20); err != nil {
		t.Fatalf("apply swap: %v", err)
	}
	if _, _, err := live.Withdraw(owner, minted/2, 30); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	ops, err := storage.ReadJournal(path)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("expected 3 journaled operations, got %d", len(ops))
	}

	pools := make(map[amm.Key]*ledger.Ledger)
	for i, op := range ops {
		if err := applyOperation(pools, op, zap.NewNop()); err != nil {
			t.Fatalf("apply operation %d: %v", i, err)
		}
	}

	rebuilt, ok := pools[poolKey]
	if !ok {
		t.Fatalf("replay did not rebuild pool %s", poolKey)
	}
	got, want := rebuilt.State(), live.State()
	if got.Reserve0 != want.Reserve0 || got.Reserve1 != want.Reserve1 {
		t.Fatalf("reserves diverge after replay:\n got %+v\nwant %+v", got, want)
	}
	if got.LpSupply != want.LpSupply {
		t.Fatalf("lp supply diverges: %d != %d", got.LpSupply, want.LpSupply)
	}
	if got.ProtocolFees0 != want.ProtocolFees0 || got.FundFees0 != want.FundFees0 {
		t.Fatalf("fee totals diverge:\n got %+v\nwant %+v", got, want)
	}
	if rebuilt.Observations().Len() != 1 {
		t.Fatalf("replay did not rebuild the observation ring: %d", rebuilt.Observations().Len())
	}
}

func TestReplayRejectsMintMismatch(t *testing.T) {
	var poolKey, owner amm.Key
	poolKey[0], owner[0] = 1, 2
	op := amm.OperationRecord{
		Sequence:  1,
		Kind:      "deposit",
		Pool:      poolKey.String(),
		Owner:     owner.String(),
		Amount0:   "1000000",
		Amount1:   "2000000",
		LpAmount:  "999",
		Timestamp: 10,
	}
	pools := make(map[amm.Key]*ledger.Ledger)
	if err := applyOperation(pools, op, zap.NewNop()); err == nil {
		t.Fatalf("expected mint mismatch to fail the replay")
	}
}
