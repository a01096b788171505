package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ammCore/internal/amm"
	"ammCore/internal/config"
	"ammCore/internal/oracle"
	"ammCore/internal/quote"
)

func main() {
	root := &cobra.Command{
		Use:          "ammctl",
		Short:        "AMM settlement core tooling",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a swap against a pool snapshot",
		RunE:  runQuote,
	}

	quoteCmd.Flags().Uint64("reserve0", 0, "token0 reserve")
	quoteCmd.Flags().Uint64("reserve1", 0, "token1 reserve")
	quoteCmd.Flags().Uint64("trade-fee-bps", 30, "trade fee in basis points")
	quoteCmd.Flags().Uint64("protocol-fee-bps", 0, "protocol share of the trade fee in basis points")
	quoteCmd.Flags().Uint64("fund-fee-bps", 0, "fund share of the trade fee in basis points")
	quoteCmd.Flags().Uint64("amount-in", 0, "exact input amount (mutually exclusive with amount-out)")
	quoteCmd.Flags().Uint64("amount-out", 0, "exact output amount (mutually exclusive with amount-in)")
	quoteCmd.Flags().String("direction", "zero_for_one", "trade direction (zero_for_one, one_for_zero)")
	quoteCmd.Flags().String("oracle-mode", "bound", "oracle policy (off, bound, gate)")
	quoteCmd.Flags().Uint64("oracle-price", 0, "oracle fair price of token0 in token1, scaled by 1e9 (0 = no snapshot)")
	quoteCmd.Flags().Uint64("max-deviation-bps", 500, "maximum spot deviation from the oracle price")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	rewardsCmd := &cobra.Command{
		Use:   "rewards",
		Short: "Batch reward campaign administration",
	}
	addRewardsFlags := func(cmd *cobra.Command) {
		cmd.Flags().String("pg-dsn", "", "Postgres DSN")
		cmd.Flags().Int("window-size", 200, "campaigns per checkpointed window")
		cmd.Flags().String("checkpoint", "./data/rewards_checkpoint.json", "checkpoint file path")
		cmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
		cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
		cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
		cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	}

	accrueCmd := &cobra.Command{
		Use:   "accrue",
		Short: "Advance every campaign's accumulator to a clock value",
		RunE:  runRewardsAccrue,
	}
	addRewardsFlags(accrueCmd)
	accrueCmd.Flags().Uint64("now", 0, "accrual clock (unix seconds)")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Reconcile unmigrated campaigns against their claim records",
		RunE:  runRewardsMigrate,
	}
	addRewardsFlags(migrateCmd)

	rewardsCmd.AddCommand(accrueCmd, migrateCmd)
	root.AddCommand(rewardsCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Audit an operation journal",
		RunE:  runReplay,
	}
	replayCmd.Flags().String("in", "./data/journal.jsonl", "input journal JSONL")
	replayCmd.Flags().String("pool", "", "restrict the audit to one pool key")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(replayCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dir, err := amm.ParseDirection(cfg.Direction)
	if err != nil {
		return err
	}
	mode, err := quote.ParseOracleMode(cfg.OracleMode)
	if err != nil {
		return err
	}
	if (cfg.AmountIn == 0) == (cfg.AmountOut == 0) {
		return fmt.Errorf("exactly one of amount-in and amount-out is required")
	}

	engineCfg := quote.Config{
		TradeFeeBps:     cfg.TradeFeeBps,
		ProtocolFeeBps:  cfg.ProtocolFeeBps,
		FundFeeBps:      cfg.FundFeeBps,
		OracleMode:      mode,
		MaxDeviationBps: cfg.MaxDeviationBps,
	}
	view := quote.PoolView{
		Reserve0:    cfg.Reserve0,
		Reserve1:    cfg.Reserve1,
		SwapEnabled: true,
	}

	var osnap *oracle.Snapshot
	if cfg.OraclePrice != 0 {
		osnap = &oracle.Snapshot{Price: cfg.OraclePrice, ObservedAt: uint64(time.Now().Unix())}
	}

	var result quote.Result
	if cfg.AmountIn != 0 {
		result, err = quote.ExactInput(view, engineCfg, cfg.AmountIn, dir, osnap)
	} else {
		result, err = quote.ExactOutput(view, engineCfg, cfg.AmountOut, dir, osnap)
	}
	if err != nil {
		return err
	}

	logger.Info("quote computed",
		zap.String("direction", result.Direction.String()),
		zap.Uint64("amount_in", result.AmountIn),
		zap.Uint64("amount_out", result.AmountOut),
		zap.Uint64("trade_fee", result.TradeFee),
	)

	out := struct {
		Direction   string `json:"direction"`
		AmountIn    uint64 `json:"amount_in"`
		AmountOut   uint64 `json:"amount_out"`
		TradeFee    uint64 `json:"trade_fee"`
		ProtocolFee uint64 `json:"protocol_fee"`
		FundFee     uint64 `json:"fund_fee"`
	}{
		Direction:   result.Direction.String(),
		AmountIn:    result.AmountIn,
		AmountOut:   result.AmountOut,
		TradeFee:    result.TradeFee,
		ProtocolFee: result.ProtocolFee,
		FundFee:     result.FundFee,
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
