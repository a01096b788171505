// Package postgres persists pool, campaign, and user reward records, plus the
// progress state of long-running batch jobs.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammCore/internal/amm"
	"ammCore/internal/ledger"
	"ammCore/internal/quote"
	"ammCore/internal/rewards"
)

// Store provides Postgres persistence for settlement records. Wide integers
// are stored as NUMERIC; keys as base58 text.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertPools inserts or updates pool records.
func (s *Store) UpsertPools(ctx context.Context, pools []*ledger.PoolState) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range pools {
		batch.Queue(`
			INSERT INTO pools (
				pool_key, trade_fee_bps, protocol_fee_bps, fund_fee_bps, create_pool_fee,
				deposit_tolerance_bps, oracle_mode, max_deviation_bps,
				reserve0, reserve1, lp_supply,
				protocol_fees0, protocol_fees1, fund_fees0, fund_fees1,
				status, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now(),now())
			ON CONFLICT (pool_key)
			DO UPDATE SET
				trade_fee_bps = EXCLUDED.trade_fee_bps,
				protocol_fee_bps = EXCLUDED.protocol_fee_bps,
				fund_fee_bps = EXCLUDED.fund_fee_bps,
				create_pool_fee = EXCLUDED.create_pool_fee,
				deposit_tolerance_bps = EXCLUDED.deposit_tolerance_bps,
				oracle_mode = EXCLUDED.oracle_mode,
				max_deviation_bps = EXCLUDED.max_deviation_bps,
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				lp_supply = EXCLUDED.lp_supply,
				protocol_fees0 = EXCLUDED.protocol_fees0,
				protocol_fees1 = EXCLUDED.protocol_fees1,
				fund_fees0 = EXCLUDED.fund_fees0,
				fund_fees1 = EXCLUDED.fund_fees1,
				status = EXCLUDED.status,
				updated_at = now()
		`,
			p.Key.String(),
			int64(p.Config.TradeFeeBps),
			int64(p.Config.ProtocolFeeBps),
			int64(p.Config.FundFeeBps),
			int64(p.Config.CreatePoolFee),
			int64(p.Config.DepositRatioToleranceBps),
			int16(p.Config.OracleMode),
			int64(p.Config.MaxDeviationBps),
			pgNumeric(p.Reserve0),
			pgNumeric(p.Reserve1),
			pgNumeric(p.LpSupply),
			pgNumeric(p.ProtocolFees0),
			pgNumeric(p.ProtocolFees1),
			pgNumeric(p.FundFees0),
			pgNumeric(p.FundFees1),
			int16(p.Status),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertCampaigns inserts or updates reward campaign records.
func (s *Store) UpsertCampaigns(ctx context.Context, campaigns []*rewards.Campaign) error {
	if len(campaigns) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range campaigns {
		batch.Queue(`
			INSERT INTO reward_campaigns (
				campaign_key, pool_key, reward_token,
				total_to_disburse, start_at, end_at, emission_rate, last_calculated_at,
				acc_per_share, total_disbursed, escrow_left, migrated,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
			ON CONFLICT (campaign_key)
			DO UPDATE SET
				last_calculated_at = EXCLUDED.last_calculated_at,
				acc_per_share = EXCLUDED.acc_per_share,
				total_disbursed = EXCLUDED.total_disbursed,
				escrow_left = EXCLUDED.escrow_left,
				migrated = EXCLUDED.migrated,
				updated_at = now()
		`,
			c.Key.String(),
			c.Pool.String(),
			c.RewardToken.String(),
			pgNumeric(c.TotalToDisburse),
			pgNumeric(c.StartAt),
			pgNumeric(c.EndAt),
			pgNumeric(c.EmissionRate),
			pgNumeric(c.LastCalculatedAt),
			c.AccPerShare.Dec(),
			pgNumeric(c.TotalDisbursed),
			pgNumeric(c.EscrowLeft),
			c.Migrated,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range campaigns {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertUserRewards inserts or updates per-owner claim records.
func (s *Store) UpsertUserRewards(ctx context.Context, users []*rewards.UserReward) error {
	if len(users) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, u := range users {
		batch.Queue(`
			INSERT INTO user_rewards (
				owner_key, pool_key, campaign_key,
				share_amount, reward_debt, unsettled, total_rewards, boost_bps,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
			ON CONFLICT (owner_key, campaign_key)
			DO UPDATE SET
				share_amount = EXCLUDED.share_amount,
				reward_debt = EXCLUDED.reward_debt,
				unsettled = EXCLUDED.unsettled,
				total_rewards = EXCLUDED.total_rewards,
				boost_bps = EXCLUDED.boost_bps,
				updated_at = now()
		`,
			u.Owner.String(),
			u.Pool.String(),
			u.Campaign.String(),
			pgNumeric(u.ShareAmount),
			u.RewardDebt.Dec(),
			pgNumeric(u.Unsettled),
			pgNumeric(u.TotalRewards),
			int64(u.BoostBps),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range users {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ListCampaigns returns campaign records, optionally only those not yet
// migrated, ordered by key for stable batch windows.
func (s *Store) ListCampaigns(ctx context.Context, onlyUnmigrated bool) ([]*rewards.Campaign, error) {
	query := `
		SELECT campaign_key, pool_key, reward_token,
			total_to_disburse, start_at, end_at, emission_rate, last_calculated_at,
			acc_per_share, total_disbursed, escrow_left, migrated
		FROM reward_campaigns`
	if onlyUnmigrated {
		query += ` WHERE NOT migrated`
	}
	query += ` ORDER BY campaign_key`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*rewards.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListUserRewards returns every claim record for one campaign.
func (s *Store) ListUserRewards(ctx context.Context, campaign amm.Key) ([]*rewards.UserReward, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT owner_key, pool_key, campaign_key,
			share_amount, reward_debt, unsettled, total_rewards, boost_bps
		FROM user_rewards
		WHERE campaign_key = $1
		ORDER BY owner_key
	`, campaign.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*rewards.UserReward
	for rows.Next() {
		var (
			u          rewards.UserReward
			owner      string
			pool       string
			campaignID string
			share      string
			debt       string
			unsettled  string
			total      string
			boost      int64
		)
		if err := rows.Scan(&owner, &pool, &campaignID, &share, &debt, &unsettled, &total, &boost); err != nil {
			return nil, err
		}
		if u.Owner, err = amm.KeyFromBase58(owner); err != nil {
			return nil, err
		}
		if u.Pool, err = amm.KeyFromBase58(pool); err != nil {
			return nil, err
		}
		if u.Campaign, err = amm.KeyFromBase58(campaignID); err != nil {
			return nil, err
		}
		if u.ShareAmount, err = parseU64(share); err != nil {
			return nil, err
		}
		if u.RewardDebt, err = parseU128(debt); err != nil {
			return nil, err
		}
		if u.Unsettled, err = parseU64(unsettled); err != nil {
			return nil, err
		}
		if u.TotalRewards, err = parseU64(total); err != nil {
			return nil, err
		}
		u.BoostBps = uint64(boost)
		out = append(out, &u)
	}
	return out, rows.Err()
}

// LoadPool returns one pool record by key.
func (s *Store) LoadPool(ctx context.Context, key amm.Key) (*ledger.PoolState, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT pool_key, trade_fee_bps, protocol_fee_bps, fund_fee_bps, create_pool_fee,
			deposit_tolerance_bps, oracle_mode, max_deviation_bps,
			reserve0, reserve1, lp_supply,
			protocol_fees0, protocol_fees1, fund_fees0, fund_fees1, status
		FROM pools WHERE pool_key = $1
	`, key.String())

	var (
		p                  ledger.PoolState
		poolKey            string
		tradeFee, protoFee int64
		fundFee, createFee int64
		tolerance, maxDev  int64
		mode, status       int16
		r0, r1, lp         string
		pf0, pf1, ff0, ff1 string
	)
	err := row.Scan(&poolKey, &tradeFee, &protoFee, &fundFee, &createFee,
		&tolerance, &mode, &maxDev,
		&r0, &r1, &lp, &pf0, &pf1, &ff0, &ff1, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if p.Key, err = amm.KeyFromBase58(poolKey); err != nil {
		return nil, false, err
	}
	p.Config = ledger.Config{
		TradeFeeBps:              uint64(tradeFee),
		ProtocolFeeBps:           uint64(protoFee),
		FundFeeBps:               uint64(fundFee),
		CreatePoolFee:            uint64(createFee),
		DepositRatioToleranceBps: uint64(tolerance),
		OracleMode:               quote.OracleMode(mode),
		MaxDeviationBps:          uint64(maxDev),
	}
	if p.Reserve0, err = parseU64(r0); err != nil {
		return nil, false, err
	}
	if p.Reserve1, err = parseU64(r1); err != nil {
		return nil, false, err
	}
	if p.LpSupply, err = parseU64(lp); err != nil {
		return nil, false, err
	}
	if p.ProtocolFees0, err = parseU64(pf0); err != nil {
		return nil, false, err
	}
	if p.ProtocolFees1, err = parseU64(pf1); err != nil {
		return nil, false, err
	}
	if p.FundFees0, err = parseU64(ff0); err != nil {
		return nil, false, err
	}
	if p.FundFees1, err = parseU64(ff1); err != nil {
		return nil, false, err
	}
	p.Status = ledger.Status(status)
	return &p, true, nil
}

// LoadState returns the saved progress marker for a batch job name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM core_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return ts, true, nil
}

// SaveState upserts the progress marker for a batch job name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO core_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, ts)
	return err
}

func scanCampaign(rows pgx.Rows) (*rewards.Campaign, error) {
	var (
		c                      rewards.Campaign
		key, pool, token       string
		total, start, end      string
		rate, lastCalc         string
		acc, disbursed, escrow string
	)
	err := rows.Scan(&key, &pool, &token, &total, &start, &end, &rate, &lastCalc,
		&acc, &disbursed, &escrow, &c.Migrated)
	if err != nil {
		return nil, err
	}
	if c.Key, err = amm.KeyFromBase58(key); err != nil {
		return nil, err
	}
	if c.Pool, err = amm.KeyFromBase58(pool); err != nil {
		return nil, err
	}
	if c.RewardToken, err = amm.KeyFromBase58(token); err != nil {
		return nil, err
	}
	if c.TotalToDisburse, err = parseU64(total); err != nil {
		return nil, err
	}
	if c.StartAt, err = parseU64(start); err != nil {
		return nil, err
	}
	if c.EndAt, err = parseU64(end); err != nil {
		return nil, err
	}
	if c.EmissionRate, err = parseU64(rate); err != nil {
		return nil, err
	}
	if c.LastCalculatedAt, err = parseU64(lastCalc); err != nil {
		return nil, err
	}
	if c.AccPerShare, err = parseU128(acc); err != nil {
		return nil, err
	}
	if c.TotalDisbursed, err = parseU64(disbursed); err != nil {
		return nil, err
	}
	if c.EscrowLeft, err = parseU64(escrow); err != nil {
		return nil, err
	}
	return &c, nil
}

// pgNumeric renders a uint64 as its decimal string so values above the signed
// 64-bit range still fit a NUMERIC column.
func pgNumeric(v uint64) string {
	return uint256.NewInt(v).Dec()
}

func parseU64(s string) (uint64, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return 0, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("numeric %q exceeds 64 bits", s)
	}
	return v.Uint64(), nil
}

func parseU128(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return v, nil
}
