package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists profiles in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed profile store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the profiles table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS profiles (
			address              VARCHAR(128) PRIMARY KEY,
			signed_in            BOOLEAN NOT NULL DEFAULT FALSE,
			tab_name             BOOLEAN NOT NULL DEFAULT FALSE,
			tab_bio              BOOLEAN NOT NULL DEFAULT FALSE,
			tab_avatar           BOOLEAN NOT NULL DEFAULT FALSE,
			tab_twitter          BOOLEAN NOT NULL DEFAULT FALSE,
			tab_discord          BOOLEAN NOT NULL DEFAULT FALSE,
			tab_telegram         BOOLEAN NOT NULL DEFAULT FALSE,
			tab_github           BOOLEAN NOT NULL DEFAULT FALSE,
			tab_website          BOOLEAN NOT NULL DEFAULT FALSE,
			tab_email            BOOLEAN NOT NULL DEFAULT FALSE,
			connected_chains     INTEGER NOT NULL DEFAULT 0 CHECK (connected_chains >= 0),
			verified_links       INTEGER NOT NULL DEFAULT 0 CHECK (verified_links >= 0),
			wallet_rating_avg    DOUBLE PRECISION NOT NULL DEFAULT 0,
			wallet_rating_count  INTEGER NOT NULL DEFAULT 0,
			tx_rating_avg        DOUBLE PRECISION NOT NULL DEFAULT 0,
			tx_rating_count      INTEGER NOT NULL DEFAULT 0,
			updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, address string) (*Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT address, signed_in,
			tab_name, tab_bio, tab_avatar, tab_twitter, tab_discord,
			tab_telegram, tab_github, tab_website, tab_email,
			connected_chains, verified_links,
			wallet_rating_avg, wallet_rating_count, tx_rating_avg, tx_rating_count,
			updated_at
		FROM profiles WHERE address = $1
	`, normalize(address)).Scan(
		&p.Address, &p.SignedIn,
		&p.Tabs.Name, &p.Tabs.Bio, &p.Tabs.Avatar, &p.Tabs.Twitter, &p.Tabs.Discord,
		&p.Tabs.Telegram, &p.Tabs.Github, &p.Tabs.Website, &p.Tabs.Email,
		&p.ConnectedChains, &p.VerifiedLinks,
		&p.WalletRatingAvg, &p.WalletRatingCount, &p.TxRatingAvg, &p.TxRatingCount,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, p *Profile) error {
	addr := normalize(p.Address)
	if addr == "" {
		return ErrInvalidAddress
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (
			address, signed_in,
			tab_name, tab_bio, tab_avatar, tab_twitter, tab_discord,
			tab_telegram, tab_github, tab_website, tab_email,
			connected_chains, verified_links,
			wallet_rating_avg, wallet_rating_count, tx_rating_avg, tx_rating_count,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW())
		ON CONFLICT (address) DO UPDATE SET
			signed_in = EXCLUDED.signed_in,
			tab_name = EXCLUDED.tab_name,
			tab_bio = EXCLUDED.tab_bio,
			tab_avatar = EXCLUDED.tab_avatar,
			tab_twitter = EXCLUDED.tab_twitter,
			tab_discord = EXCLUDED.tab_discord,
			tab_telegram = EXCLUDED.tab_telegram,
			tab_github = EXCLUDED.tab_github,
			tab_website = EXCLUDED.tab_website,
			tab_email = EXCLUDED.tab_email,
			connected_chains = EXCLUDED.connected_chains,
			verified_links = EXCLUDED.verified_links,
			wallet_rating_avg = EXCLUDED.wallet_rating_avg,
			wallet_rating_count = EXCLUDED.wallet_rating_count,
			tx_rating_avg = EXCLUDED.tx_rating_avg,
			tx_rating_count = EXCLUDED.tx_rating_count,
			updated_at = NOW()
	`,
		addr, p.SignedIn,
		p.Tabs.Name, p.Tabs.Bio, p.Tabs.Avatar, p.Tabs.Twitter, p.Tabs.Discord,
		p.Tabs.Telegram, p.Tabs.Github, p.Tabs.Website, p.Tabs.Email,
		max(p.ConnectedChains, 0), max(p.VerifiedLinks, 0),
		p.WalletRatingAvg, p.WalletRatingCount, p.TxRatingAvg, p.TxRatingCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}
