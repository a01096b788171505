// Package config merges config file, environment variables, and flags into
// per-command settings. Every value is reachable three ways: a flag, an
// AMMCTL_ environment variable, or a key in config.yaml.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("AMMCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}

// QuoteConfig holds the inputs of a one-off quote computation.
type QuoteConfig struct {
	Reserve0        uint64
	Reserve1        uint64
	TradeFeeBps     uint64
	ProtocolFeeBps  uint64
	FundFeeBps      uint64
	AmountIn        uint64
	AmountOut       uint64
	Direction       string
	OracleMode      string
	OraclePrice     uint64
	MaxDeviationBps uint64
	LogLevel        string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return QuoteConfig{}, err
	}

	v.SetDefault("trade-fee-bps", uint64(30))
	v.SetDefault("direction", "zero_for_one")
	v.SetDefault("oracle-mode", "bound")
	v.SetDefault("max-deviation-bps", uint64(500))
	v.SetDefault("log-level", "info")

	cfg := QuoteConfig{
		Reserve0:        v.GetUint64("reserve0"),
		Reserve1:        v.GetUint64("reserve1"),
		TradeFeeBps:     v.GetUint64("trade-fee-bps"),
		ProtocolFeeBps:  v.GetUint64("protocol-fee-bps"),
		FundFeeBps:      v.GetUint64("fund-fee-bps"),
		AmountIn:        v.GetUint64("amount-in"),
		AmountOut:       v.GetUint64("amount-out"),
		Direction:       v.GetString("direction"),
		OracleMode:      v.GetString("oracle-mode"),
		OraclePrice:     v.GetUint64("oracle-price"),
		MaxDeviationBps: v.GetUint64("max-deviation-bps"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}
