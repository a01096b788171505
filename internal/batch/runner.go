package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ammCore/internal/amm"
	"ammCore/internal/ledger"
	"ammCore/internal/numeric"
	"ammCore/internal/rewards"
)

// Mode selects the administrative operation a run performs.
type Mode string

const (
	ModeAccrue  Mode = "accrue"
	ModeMigrate Mode = "migrate"
)

// Store is the persistence surface the runner needs.
type Store interface {
	ListCampaigns(ctx context.Context, onlyUnmigrated bool) ([]*rewards.Campaign, error)
	ListUserRewards(ctx context.Context, campaign amm.Key) ([]*rewards.UserReward, error)
	LoadPool(ctx context.Context, key amm.Key) (*ledger.PoolState, bool, error)
	UpsertCampaigns(ctx context.Context, campaigns []*rewards.Campaign) error
}

// RunConfig holds runtime settings for a batch run.
type RunConfig struct {
	Mode              Mode
	Now               uint64
	WindowSize        int
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Runner walks every campaign and applies the configured operation. Campaign
// idempotence carries the correctness; the checkpoint only saves work on
// restart.
type Runner struct {
	cfg        RunConfig
	store      Store
	logger     *zap.Logger
	seen       map[amm.Key]struct{}
	checkpoint *CheckpointStore
}

func NewRunner(cfg RunConfig, store Store, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		store:      store,
		logger:     logger,
		seen:       make(map[amm.Key]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the batch loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.store == nil {
		return fmt.Errorf("store is nil")
	}
	if r.cfg.WindowSize <= 0 {
		return fmt.Errorf("window size must be greater than zero")
	}
	if r.cfg.Mode != ModeAccrue && r.cfg.Mode != ModeMigrate {
		return fmt.Errorf("unknown mode %q", r.cfg.Mode)
	}
	if r.cfg.Mode == ModeAccrue && r.cfg.Now == 0 {
		return fmt.Errorf("accrue requires a clock value")
	}

	campaigns, err := r.listCampaignsWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("list campaigns: %w", err)
	}
	if len(campaigns) == 0 {
		r.logger.Info("no campaigns to process", zap.String("mode", string(r.cfg.Mode)))
		return nil
	}

	windows, err := SplitWindows(len(campaigns), r.cfg.WindowSize)
	if err != nil {
		return err
	}

	start := 0
	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return err
	}
	if ok && cp.Mode == string(r.cfg.Mode) && cp.LastProcessedWindow+1 > start {
		start = cp.LastProcessedWindow + 1
		r.logger.Info("resume from checkpoint",
			zap.Int("last_processed", cp.LastProcessedWindow),
			zap.Int("start", start))
	}

	for i := start; i < len(windows); i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		w := windows[i]
		r.logger.Info("process window",
			zap.String("mode", string(r.cfg.Mode)),
			zap.Int("from", w.From), zap.Int("to", w.To))

		processed := 0
		for _, c := range campaigns[w.From:w.To] {
			if _, ok := r.seen[c.Key]; ok {
				continue
			}
			r.seen[c.Key] = struct{}{}

			if err := r.processCampaignWithRetry(ctx, c); err != nil {
				return fmt.Errorf("campaign %s: %w", c.Key, err)
			}
			processed++
		}

		if err := r.checkpoint.Save(i, string(r.cfg.Mode)); err != nil {
			return err
		}

		r.logger.Info("window complete", zap.Int("campaigns", processed),
			zap.Int("from", w.From), zap.Int("to", w.To))
	}

	return nil
}

func (r *Runner) listCampaignsWithRetry(ctx context.Context) ([]*rewards.Campaign, error) {
	var campaigns []*rewards.Campaign
	err := withRetry(ctx, r.logger, "list campaigns", r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		campaigns, err = r.store.ListCampaigns(ctx, r.cfg.Mode == ModeMigrate)
		return err
	})
	return campaigns, err
}

func (r *Runner) processCampaignWithRetry(ctx context.Context, c *rewards.Campaign) error {
	return withRetry(ctx, r.logger, string(r.cfg.Mode), r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		return r.processCampaign(ctx, c)
	})
}

func (r *Runner) processCampaign(ctx context.Context, c *rewards.Campaign) error {
	users, err := r.store.ListUserRewards(ctx, c.Key)
	if err != nil {
		return fmt.Errorf("list user rewards: %w", err)
	}

	shares, err := r.loadShares(ctx, c.Pool, users)
	if err != nil {
		return err
	}

	led, err := rewards.Restore(c, users, shares, r.logger)
	if err != nil {
		return err
	}

	switch r.cfg.Mode {
	case ModeAccrue:
		if err := led.Accrue(r.cfg.Now); err != nil {
			return err
		}
	case ModeMigrate:
		distributed, err := claimedTotal(users)
		if err != nil {
			return err
		}
		if err := led.Migrate(distributed); err != nil {
			if errors.Is(err, amm.ErrAlreadyMigrated) {
				r.logger.Info("campaign already migrated", zap.String("campaign", c.Key.String()))
				return nil
			}
			return err
		}
	}

	if err := r.store.UpsertCampaigns(ctx, []*rewards.Campaign{led.Campaign()}); err != nil {
		return fmt.Errorf("persist campaign: %w", err)
	}
	return nil
}

// loadShares builds the share snapshot the reward math divides by. Total
// supply comes from the pool record; per-owner balances from the claim
// records themselves.
func (r *Runner) loadShares(ctx context.Context, pool amm.Key, users []*rewards.UserReward) (rewards.ShareSource, error) {
	state, ok, err := r.store.LoadPool(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: pool %s not found", amm.ErrValidation, pool)
	}
	shares := staticShares{supply: state.LpSupply, owned: make(map[amm.Key]uint64, len(users))}
	for _, u := range users {
		shares.owned[u.Owner] = u.ShareAmount
	}
	return shares, nil
}

// claimedTotal is the audited disbursement a migration reconciles against.
func claimedTotal(users []*rewards.UserReward) (uint64, error) {
	var total uint64
	for _, u := range users {
		var err error
		if total, err = numeric.CheckedAdd(total, u.TotalRewards); err != nil {
			return 0, err
		}
	}
	return total, nil
}

type staticShares struct {
	supply uint64
	owned  map[amm.Key]uint64
}

func (s staticShares) LpSupply() uint64 { return s.supply }

func (s staticShares) LpOwned(owner amm.Key) uint64 { return s.owned[owner] }
