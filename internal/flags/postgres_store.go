package flags

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/walletscope/walletscope/internal/idgen"
	"github.com/walletscope/walletscope/internal/pagination"
)

// PostgresStore persists the flag ledger in PostgreSQL. Rows are only ever
// inserted, so concurrent appenders never contend on an existing row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed flag ledger.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the flags table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS flags (
			id            VARCHAR(40) PRIMARY KEY,
			chain         VARCHAR(32) NOT NULL,
			address       VARCHAR(128) NOT NULL,
			source        VARCHAR(64) NOT NULL,
			category      VARCHAR(64) NOT NULL,
			confidence    VARCHAR(8) NOT NULL CHECK (confidence IN ('low', 'medium', 'high')),
			evidence_url  TEXT NOT NULL DEFAULT '',
			reason        TEXT NOT NULL DEFAULT '',
			flagger       VARCHAR(128) NOT NULL DEFAULT '',
			first_seen    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_flags_wallet
			ON flags (chain, address, first_seen DESC, id DESC);
	`)
	return err
}

const flagColumns = `id, chain, address, source, category, confidence, evidence_url, reason, flagger, first_seen`

func (s *PostgresStore) Append(ctx context.Context, f *Flag) error {
	if err := f.Normalize(); err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = idgen.FlagID()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flags (`+flagColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		f.ID, f.Chain, f.Address, f.Source, f.Category.String(), string(f.Confidence),
		f.EvidenceURL, f.Reason, f.Flagger, f.FirstSeen,
	)
	if err != nil {
		return fmt.Errorf("failed to append flag: %w", err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context, chain, address string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM flags WHERE chain = $1 AND address = $2
	`, NormalizeKey(chain), NormalizeKey(address)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count flags: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) All(ctx context.Context, chain, address string) ([]*Flag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+flagColumns+` FROM flags
		WHERE chain = $1 AND address = $2
		ORDER BY first_seen, id
	`, NormalizeKey(chain), NormalizeKey(address))
	if err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanFlags(rows)
}

func (s *PostgresStore) List(ctx context.Context, chain, address, cursor string, limit int) (*Page, error) {
	cur, err := pagination.Decode(cursor)
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	if cur == nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+flagColumns+` FROM flags
			WHERE chain = $1 AND address = $2
			ORDER BY first_seen DESC, id DESC
			LIMIT $3
		`, NormalizeKey(chain), NormalizeKey(address), limit+1)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+flagColumns+` FROM flags
			WHERE chain = $1 AND address = $2 AND (first_seen, id) < ($3, $4)
			ORDER BY first_seen DESC, id DESC
			LIMIT $5
		`, NormalizeKey(chain), NormalizeKey(address), cur.At, cur.ID, limit+1)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list flags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list, err := scanFlags(rows)
	if err != nil {
		return nil, err
	}
	items, next, more := pagination.ComputePage(list, limit, flagKey)
	return &Page{Flags: items, NextCursor: next, HasMore: more}, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Flag, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+flagColumns+` FROM flags WHERE id = $1`, id)
	f, err := scanFlag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFlagNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flag: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (*Flag, error) {
	row := s.db.QueryRowContext(ctx, `DELETE FROM flags WHERE id = $1 RETURNING `+flagColumns, id)
	f, err := scanFlag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFlagNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete flag: %w", err)
	}
	return f, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFlag(sc scanner) (*Flag, error) {
	var f Flag
	var category, confidence string
	if err := sc.Scan(&f.ID, &f.Chain, &f.Address, &f.Source, &category, &confidence,
		&f.EvidenceURL, &f.Reason, &f.Flagger, &f.FirstSeen); err != nil {
		return nil, err
	}
	f.Category = ParseCategory(category)
	f.Confidence = ParseConfidence(confidence)
	f.FirstSeen = f.FirstSeen.UTC()
	return &f, nil
}

func scanFlags(rows *sql.Rows) ([]*Flag, error) {
	var out []*Flag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flag: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
