package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammCore/internal/amm"
	"ammCore/internal/config"
	"ammCore/internal/ledger"
	"ammCore/internal/oracle"
	"ammCore/internal/quote"
	"ammCore/internal/record"
	"ammCore/internal/storage"
)

// replayPool is the final state of one pool after re-application.
type replayPool struct {
	Pool     string `json:"pool"`
	Reserve0 uint64 `json:"reserve0"`
	Reserve1 uint64 `json:"reserve1"`
	LpSupply uint64 `json:"lp_supply"`
}

// replaySummary is printed after a journal has been re-applied from scratch.
type replaySummary struct {
	Operations    int            `json:"operations"`
	FirstSequence uint64         `json:"first_sequence,omitempty"`
	LastSequence  uint64         `json:"last_sequence,omitempty"`
	ByKind        map[string]int `json:"by_kind"`
	Pools         []replayPool   `json:"pools"`
	StateDigest   string         `json:"state_digest"`
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ops, err := storage.ReadJournal(cfg.In)
	if err != nil {
		return err
	}

	summary := replaySummary{ByKind: make(map[string]int)}
	pools := make(map[amm.Key]*ledger.Ledger)
	var lastSeq uint64
	for i, op := range ops {
		if cfg.Pool != "" && op.Pool != cfg.Pool {
			continue
		}
		if summary.Operations > 0 && op.Sequence <= lastSeq {
			return fmt.Errorf("journal sequence %d at line %d does not advance past %d",
				op.Sequence, i+1, lastSeq)
		}
		if summary.Operations == 0 {
			summary.FirstSequence = op.Sequence
		}
		lastSeq = op.Sequence
		summary.Operations++
		summary.ByKind[op.Kind]++

		if err := applyOperation(pools, op, logger); err != nil {
			return fmt.Errorf("line %d (sequence %d): %w", i+1, op.Sequence, err)
		}
	}
	summary.LastSequence = lastSeq

	digest := sha256.New()
	for _, key := range sortedPoolKeys(pools) {
		state := pools[key].State()
		encoded, err := record.EncodePoolState(&state)
		if err != nil {
			return fmt.Errorf("encode pool %s: %w", key, err)
		}
		digest.Write(encoded)
		summary.Pools = append(summary.Pools, replayPool{
			Pool:     key.String(),
			Reserve0: state.Reserve0,
			Reserve1: state.Reserve1,
			LpSupply: state.LpSupply,
		})
	}
	summary.StateDigest = hex.EncodeToString(digest.Sum(nil))

	logger.Info("journal replayed",
		zap.String("in", cfg.In),
		zap.Int("operations", summary.Operations),
		zap.Int("pools", len(summary.Pools)),
		zap.String("state_digest", summary.StateDigest),
	)

	encoded, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}

// applyOperation replays one record against the pool's rebuilt ledger. Reward
// operations settle against campaign records, not pool state, so they only
// count toward the summary.
func applyOperation(pools map[amm.Key]*ledger.Ledger, op amm.OperationRecord, logger *zap.Logger) error {
	switch op.Kind {
	case "deposit", "withdraw", "swap":
	default:
		return nil
	}

	poolKey, err := amm.KeyFromBase58(op.Pool)
	if err != nil {
		return err
	}
	led, ok := pools[poolKey]
	if !ok {
		if led, err = emptyLedger(poolKey, logger); err != nil {
			return err
		}
		pools[poolKey] = led
	}

	switch op.Kind {
	case "deposit":
		owner, err := amm.KeyFromBase58(op.Owner)
		if err != nil {
			return err
		}
		amount0, err := parseAmount(op.Amount0)
		if err != nil {
			return err
		}
		amount1, err := parseAmount(op.Amount1)
		if err != nil {
			return err
		}
		recorded, err := parseAmount(op.LpAmount)
		if err != nil {
			return err
		}
		minted, err := led.Deposit(owner, amount0, amount1, op.Timestamp)
		if err != nil {
			return err
		}
		if minted != recorded {
			return fmt.Errorf("%w: replayed mint %d disagrees with journaled %d",
				amm.ErrInvariantViolation, minted, recorded)
		}
	case "withdraw":
		owner, err := amm.KeyFromBase58(op.Owner)
		if err != nil {
			return err
		}
		lpAmount, err := parseAmount(op.LpAmount)
		if err != nil {
			return err
		}
		if _, _, err := led.Withdraw(owner, lpAmount, op.Timestamp); err != nil {
			return err
		}
	case "swap":
		res, err := swapResult(op)
		if err != nil {
			return err
		}
		if err := led.ApplySwap(res, op.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

// emptyLedger builds the blank pool a journal is re-applied against. Rates and
// gates are irrelevant: fees replay from the records and every operation in the
// journal was accepted once already.
func emptyLedger(key amm.Key, logger *zap.Logger) (*ledger.Ledger, error) {
	obs, err := oracle.New(0, math.MaxUint64)
	if err != nil {
		return nil, err
	}
	return ledger.New(key, ledger.Config{OracleMode: quote.OracleOff}, ledger.StatusAllEnabled, obs, logger)
}

// swapResult rebuilds the priced trade from a journaled swap record.
func swapResult(op amm.OperationRecord) (quote.Result, error) {
	dir, err := amm.ParseDirection(op.Direction)
	if err != nil {
		return quote.Result{}, err
	}
	amount0, err := parseAmount(op.Amount0)
	if err != nil {
		return quote.Result{}, err
	}
	amount1, err := parseAmount(op.Amount1)
	if err != nil {
		return quote.Result{}, err
	}
	tradeFee, err := parseAmount(op.TradeFee)
	if err != nil {
		return quote.Result{}, err
	}
	protocolFee, err := parseAmount(op.ProtocolFee)
	if err != nil {
		return quote.Result{}, err
	}
	fundFee, err := parseAmount(op.FundFee)
	if err != nil {
		return quote.Result{}, err
	}
	res := quote.Result{
		Direction:   dir,
		AmountIn:    amount0,
		AmountOut:   amount1,
		TradeFee:    tradeFee,
		ProtocolFee: protocolFee,
		FundFee:     fundFee,
	}
	if dir == amm.OneForZero {
		res.AmountIn, res.AmountOut = amount1, amount0
	}
	return res, nil
}

func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

func sortedPoolKeys(pools map[amm.Key]*ledger.Ledger) []amm.Key {
	keys := make([]amm.Key, 0, len(pools))
	for k := range pools {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}
