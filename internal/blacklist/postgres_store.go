package blacklist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/walletscope/walletscope/internal/flags"
)

// PostgresStore persists wallet aggregates in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed aggregate store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the wallet_aggregates table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS wallet_aggregates (
			chain           VARCHAR(32) NOT NULL,
			address         VARCHAR(128) NOT NULL,
			flags_count     INTEGER NOT NULL DEFAULT 0 CHECK (flags_count >= 0),
			blacklisted     BOOLEAN NOT NULL DEFAULT FALSE,
			last_flagger    VARCHAR(128),
			flag_threshold  INTEGER CHECK (flag_threshold IS NULL OR flag_threshold >= 1),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (chain, address)
		);

		CREATE INDEX IF NOT EXISTS idx_wallet_aggregates_blacklisted
			ON wallet_aggregates (chain) WHERE blacklisted;
	`)
	return err
}

const aggregateColumns = `chain, address, flags_count, blacklisted, last_flagger, flag_threshold, updated_at`

func (s *PostgresStore) Get(ctx context.Context, chain, address string) (*WalletAggregate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+aggregateColumns+`
		FROM wallet_aggregates
		WHERE chain = $1 AND address = $2
	`, flags.NormalizeKey(chain), flags.NormalizeKey(address))

	agg, err := scanAggregate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAggregateNotFound
	}
	return agg, err
}

// Upsert writes count, decision, last flagger and (optionally) the override
// in one statement. The WHERE clause rejects the update when the stored
// override differs from the expected one, or when a larger count is already
// stored and the update may not decrease it.
func (s *PostgresStore) Upsert(ctx context.Context, u Update) (*WalletAggregate, error) {
	chain, address := flags.NormalizeKey(u.Chain), flags.NormalizeKey(u.Address)

	var threshold sql.NullInt64
	if u.ExpectedThreshold != nil {
		threshold = sql.NullInt64{Int64: int64(*u.ExpectedThreshold), Valid: true}
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO wallet_aggregates
			(chain, address, flags_count, blacklisted, last_flagger, flag_threshold, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NOW())
		ON CONFLICT (chain, address) DO UPDATE SET
			flags_count    = EXCLUDED.flags_count,
			blacklisted    = EXCLUDED.blacklisted,
			last_flagger   = COALESCE(EXCLUDED.last_flagger, wallet_aggregates.last_flagger),
			flag_threshold = CASE WHEN $7::BOOLEAN THEN EXCLUDED.flag_threshold
			                      ELSE wallet_aggregates.flag_threshold END,
			updated_at     = NOW()
		WHERE ($7::BOOLEAN OR wallet_aggregates.flag_threshold IS NOT DISTINCT FROM EXCLUDED.flag_threshold)
		  AND ($8::BOOLEAN OR wallet_aggregates.flags_count <= EXCLUDED.flags_count)
		RETURNING `+aggregateColumns,
		chain, address, u.FlagsCount, u.Blacklisted, flags.NormalizeKey(u.LastFlagger),
		threshold, u.SetThreshold, u.AllowDecrease,
	)

	agg, err := scanAggregate(row)
	if err == nil {
		return agg, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("upsert wallet aggregate: %w", err)
	}

	// The guard rejected the write. Tell a changed override apart from a
	// newer count.
	cur, err := s.Get(ctx, chain, address)
	if err != nil {
		return nil, err
	}
	if !u.SetThreshold && !sameThreshold(cur.FlagThreshold, u.ExpectedThreshold) {
		return nil, ErrThresholdChanged
	}
	return cur, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAggregate(row scanner) (*WalletAggregate, error) {
	var (
		agg         WalletAggregate
		lastFlagger sql.NullString
		threshold   sql.NullInt64
	)
	if err := row.Scan(
		&agg.Chain, &agg.Address, &agg.FlagsCount, &agg.Blacklisted,
		&lastFlagger, &threshold, &agg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	agg.LastFlagger = lastFlagger.String
	if threshold.Valid {
		v := int(threshold.Int64)
		agg.FlagThreshold = &v
	}
	return &agg, nil
}
