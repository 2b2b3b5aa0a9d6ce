package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/walletscope/walletscope/internal/flags"
)

// PostgresStore persists risk aggregates and behaviour signals in PostgreSQL.
// It implements both AggregateStore and SignalStore.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed risk store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the wallet_risk and behavior_signals tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS wallet_risk (
			chain             VARCHAR(32) NOT NULL,
			address           VARCHAR(128) NOT NULL,
			risk_score        SMALLINT NOT NULL CHECK (risk_score >= 0 AND risk_score <= 100),
			risk_level        VARCHAR(8) NOT NULL CHECK (risk_level IN ('low', 'medium', 'high')),
			flags             JSONB NOT NULL DEFAULT '[]',
			behavior_signals  JSONB,
			last_updated      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (chain, address)
		);

		CREATE TABLE IF NOT EXISTS behavior_signals (
			chain                        VARCHAR(32) NOT NULL,
			address                      VARCHAR(128) NOT NULL,
			rapid_fund_hopping           BOOLEAN NOT NULL DEFAULT FALSE,
			mixer_proximity              BOOLEAN NOT NULL DEFAULT FALSE,
			scam_cluster_exposure_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at                   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (chain, address)
		);
	`)
	return err
}

func (s *PostgresStore) Upsert(ctx context.Context, agg *WalletRiskAggregate) error {
	flagsJSON, err := json.Marshal(agg.Flags)
	if err != nil {
		return fmt.Errorf("failed to marshal flags: %w", err)
	}
	var signalsJSON sql.NullString
	if agg.HasSignals {
		b, err := json.Marshal(agg.BehaviorSignals)
		if err != nil {
			return fmt.Errorf("failed to marshal behavior signals: %w", err)
		}
		signalsJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wallet_risk (chain, address, risk_score, risk_level, flags, behavior_signals, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chain, address) DO UPDATE SET
			risk_score = EXCLUDED.risk_score,
			risk_level = EXCLUDED.risk_level,
			flags = EXCLUDED.flags,
			behavior_signals = EXCLUDED.behavior_signals,
			last_updated = EXCLUDED.last_updated
	`,
		flags.NormalizeKey(agg.Chain),
		flags.NormalizeKey(agg.Address),
		agg.RiskScore,
		string(agg.RiskLevel),
		flagsJSON,
		signalsJSON,
		agg.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert risk aggregate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, chain, address string) (*WalletRiskAggregate, error) {
	var agg WalletRiskAggregate
	var level string
	var flagsJSON, signalsJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT chain, address, risk_score, risk_level, flags, behavior_signals, last_updated
		FROM wallet_risk
		WHERE chain = $1 AND address = $2
	`, flags.NormalizeKey(chain), flags.NormalizeKey(address)).Scan(
		&agg.Chain, &agg.Address, &agg.RiskScore, &level, &flagsJSON, &signalsJSON, &agg.LastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAggregateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get risk aggregate: %w", err)
	}

	agg.RiskLevel = Level(level)
	if err := json.Unmarshal(flagsJSON, &agg.Flags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flags: %w", err)
	}
	if len(signalsJSON) > 0 {
		if err := json.Unmarshal(signalsJSON, &agg.BehaviorSignals); err != nil {
			return nil, fmt.Errorf("failed to unmarshal behavior signals: %w", err)
		}
		agg.HasSignals = true
	}
	return &agg, nil
}

// Signals returns a SignalStore view over the same database.
func (s *PostgresStore) Signals() *PostgresSignalStore {
	return &PostgresSignalStore{db: s.db}
}

// PostgresSignalStore reads and writes the behavior_signals table.
type PostgresSignalStore struct {
	db *sql.DB
}

func (s *PostgresSignalStore) Get(ctx context.Context, chain, address string) (BehaviorSignals, bool, error) {
	var sig BehaviorSignals
	err := s.db.QueryRowContext(ctx, `
		SELECT rapid_fund_hopping, mixer_proximity, scam_cluster_exposure_score
		FROM behavior_signals
		WHERE chain = $1 AND address = $2
	`, flags.NormalizeKey(chain), flags.NormalizeKey(address)).Scan(
		&sig.RapidFundHopping, &sig.MixerProximity, &sig.ScamClusterExposureScore,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return BehaviorSignals{}, false, nil
	}
	if err != nil {
		return BehaviorSignals{}, false, fmt.Errorf("failed to get behavior signals: %w", err)
	}
	return sig, true, nil
}

func (s *PostgresSignalStore) Put(ctx context.Context, chain, address string, sig BehaviorSignals) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO behavior_signals (chain, address, rapid_fund_hopping, mixer_proximity, scam_cluster_exposure_score, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (chain, address) DO UPDATE SET
			rapid_fund_hopping = EXCLUDED.rapid_fund_hopping,
			mixer_proximity = EXCLUDED.mixer_proximity,
			scam_cluster_exposure_score = EXCLUDED.scam_cluster_exposure_score,
			updated_at = NOW()
	`, flags.NormalizeKey(chain), flags.NormalizeKey(address),
		sig.RapidFundHopping, sig.MixerProximity, sig.ScamClusterExposureScore)
	if err != nil {
		return fmt.Errorf("failed to put behavior signals: %w", err)
	}
	return nil
}
