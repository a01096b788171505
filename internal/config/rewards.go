package config

import (
	"time"

	"github.com/spf13/pflag"
)

// RewardsConfig holds configuration for the batch reward commands.
type RewardsConfig struct {
	PGDSN             string
	Now               uint64
	WindowSize        int
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	LogLevel          string
}

// LoadRewards merges config file, environment variables, and flags into RewardsConfig.
func LoadRewards(cfgFile string, flags *pflag.FlagSet) (RewardsConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return RewardsConfig{}, err
	}

	v.SetDefault("window-size", 200)
	v.SetDefault("checkpoint", "./data/rewards_checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	cfg := RewardsConfig{
		PGDSN:             v.GetString("pg-dsn"),
		Now:               v.GetUint64("now"),
		WindowSize:        v.GetInt("window-size"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// ReplayConfig holds configuration for journal replay.
type ReplayConfig struct {
	In       string
	Pool     string
	LogLevel string
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return ReplayConfig{}, err
	}

	v.SetDefault("in", "./data/journal.jsonl")
	v.SetDefault("log-level", "info")

	cfg := ReplayConfig{
		In:       v.GetString("in"),
		Pool:     v.GetString("pool"),
		LogLevel: v.GetString("log-level"),
	}

	return cfg, nil
}
