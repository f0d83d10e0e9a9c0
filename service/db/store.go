package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solanare/reclaimer/service/metrics"
	"github.com/solanare/reclaimer/service/reclaim"
)

// DefaultHistoryLimit is how many reclaim records are retained after a trim.
const DefaultHistoryLimit = 1000

// Store provides database operations for reclaim and bump history.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If m is nil, no metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS reclaims (
    id                 BIGSERIAL PRIMARY KEY,
    wallet_address     TEXT NOT NULL,
    signature          TEXT NOT NULL UNIQUE,
    accounts_closed    INT NOT NULL,
    reclaimed_lamports BIGINT NOT NULL,
    tier               TEXT NOT NULL,
    message            TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_reclaims_wallet ON reclaims (wallet_address, created_at DESC);

CREATE TABLE IF NOT EXISTS bumps (
    id             BIGSERIAL PRIMARY KEY,
    wallet_address TEXT NOT NULL,
    token_mint     TEXT NOT NULL,
    signature      TEXT NOT NULL UNIQUE,
    lamports       BIGINT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_bumps_wallet ON bumps (wallet_address, created_at DESC);
`)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Reclaim is one recorded reclaim transaction.
type Reclaim struct {
	ID                int64
	WalletAddress     string
	Signature         string
	AccountsClosed    int
	ReclaimedLamports uint64
	Tier              string
	Message           string
	CreatedAt         time.Time
}

// Bump is one recorded token bump swap.
type Bump struct {
	ID            int64
	WalletAddress string
	TokenMint     string
	Signature     string
	Lamports      uint64
	CreatedAt     time.Time
}

// CreateReclaimParams contains the parameters for recording a reclaim.
type CreateReclaimParams struct {
	WalletAddress     string
	Signature         string
	AccountsClosed    int
	ReclaimedLamports uint64
	Tier              string
	Message           string
}

// CreateReclaim inserts a reclaim record and returns it.
func (s *Store) CreateReclaim(ctx context.Context, params CreateReclaimParams) (*Reclaim, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
INSERT INTO reclaims (wallet_address, signature, accounts_closed, reclaimed_lamports, tier, message)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, wallet_address, signature, accounts_closed, reclaimed_lamports, tier, message, created_at`,
		params.WalletAddress, params.Signature, params.AccountsClosed, int64(params.ReclaimedLamports), params.Tier, params.Message,
	)
	rec, err := scanReclaim(row)
	s.record("insert", "reclaims", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create reclaim: %w", err)
	}
	return rec, nil
}

// ListReclaimsParams contains pagination parameters. An empty WalletAddress
// lists across all wallets.
type ListReclaimsParams struct {
	WalletAddress string
	Limit         int32
	Offset        int32
}

// ListReclaims retrieves reclaim records, most recent first.
func (s *Store) ListReclaims(ctx context.Context, params ListReclaimsParams) ([]*Reclaim, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}

	start := time.Now()
	var rows pgx.Rows
	var err error
	if params.WalletAddress == "" {
		rows, err = s.pool.Query(ctx, `
SELECT id, wallet_address, signature, accounts_closed, reclaimed_lamports, tier, message, created_at
FROM reclaims
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`, params.Limit, params.Offset)
	} else {
		rows, err = s.pool.Query(ctx, `
SELECT id, wallet_address, signature, accounts_closed, reclaimed_lamports, tier, message, created_at
FROM reclaims
WHERE wallet_address = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, params.WalletAddress, params.Limit, params.Offset)
	}
	if err != nil {
		s.record("select", "reclaims", start, err)
		return nil, fmt.Errorf("failed to list reclaims: %w", err)
	}
	defer rows.Close()

	var out []*Reclaim
	for rows.Next() {
		rec, err := scanReclaim(rows)
		if err != nil {
			s.record("select", "reclaims", start, err)
			return nil, fmt.Errorf("failed to scan reclaim: %w", err)
		}
		out = append(out, rec)
	}
	s.record("select", "reclaims", start, rows.Err())
	return out, rows.Err()
}

// TrimReclaims deletes everything but the most recent keep records and
// returns the number deleted. keep of 0 uses DefaultHistoryLimit.
func (s *Store) TrimReclaims(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		keep = DefaultHistoryLimit
	}
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `
DELETE FROM reclaims
WHERE id NOT IN (SELECT id FROM reclaims ORDER BY created_at DESC LIMIT $1)`, keep)
	s.record("delete", "reclaims", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to trim reclaims: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteReclaimsByWallet removes a wallet's reclaim history.
func (s *Store) DeleteReclaimsByWallet(ctx context.Context, walletAddress string) (int64, error) {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `DELETE FROM reclaims WHERE wallet_address = $1`, walletAddress)
	s.record("delete", "reclaims", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reclaims: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CreateBumpParams contains the parameters for recording a bump.
type CreateBumpParams struct {
	WalletAddress string
	TokenMint     string
	Signature     string
	Lamports      uint64
}

// CreateBump inserts a bump record and returns it.
func (s *Store) CreateBump(ctx context.Context, params CreateBumpParams) (*Bump, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
INSERT INTO bumps (wallet_address, token_mint, signature, lamports)
VALUES ($1, $2, $3, $4)
RETURNING id, wallet_address, token_mint, signature, lamports, created_at`,
		params.WalletAddress, params.TokenMint, params.Signature, int64(params.Lamports),
	)
	var b Bump
	var lamports int64
	err := row.Scan(&b.ID, &b.WalletAddress, &b.TokenMint, &b.Signature, &lamports, &b.CreatedAt)
	s.record("insert", "bumps", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create bump: %w", err)
	}
	b.Lamports = uint64(lamports)
	return &b, nil
}

// ListBumps retrieves a wallet's bump records, most recent first.
func (s *Store) ListBumps(ctx context.Context, walletAddress string, limit, offset int32) ([]*Bump, error) {
	if limit <= 0 {
		limit = 50
	}
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
SELECT id, wallet_address, token_mint, signature, lamports, created_at
FROM bumps
WHERE wallet_address = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, walletAddress, limit, offset)
	if err != nil {
		s.record("select", "bumps", start, err)
		return nil, fmt.Errorf("failed to list bumps: %w", err)
	}
	defer rows.Close()

	var out []*Bump
	for rows.Next() {
		var b Bump
		var lamports int64
		if err := rows.Scan(&b.ID, &b.WalletAddress, &b.TokenMint, &b.Signature, &lamports, &b.CreatedAt); err != nil {
			s.record("select", "bumps", start, err)
			return nil, fmt.Errorf("failed to scan bump: %w", err)
		}
		b.Lamports = uint64(lamports)
		out = append(out, &b)
	}
	s.record("select", "bumps", start, rows.Err())
	return out, rows.Err()
}

// Record implements the orchestrator's history sink: each confirmed reclaim
// transaction becomes one row, and the table is trimmed to the retention
// limit afterwards.
func (s *Store) Record(ctx context.Context, rec reclaim.Record) error {
	_, err := s.CreateReclaim(ctx, CreateReclaimParams{
		WalletAddress:     rec.Wallet,
		Signature:         rec.Signature,
		AccountsClosed:    rec.AccountsClosed,
		ReclaimedLamports: rec.ReclaimedLamports,
		Tier:              rec.Tier,
		Message:           rec.Message,
	})
	if err != nil {
		return err
	}
	_, err = s.TrimReclaims(ctx, DefaultHistoryLimit)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReclaim(row rowScanner) (*Reclaim, error) {
	var rec Reclaim
	var lamports int64
	if err := row.Scan(&rec.ID, &rec.WalletAddress, &rec.Signature, &rec.AccountsClosed, &lamports, &rec.Tier, &rec.Message, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.ReclaimedLamports = uint64(lamports)
	return &rec, nil
}

func (s *Store) record(operation, table string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, table, time.Since(start).Seconds(), err)
	}
}
