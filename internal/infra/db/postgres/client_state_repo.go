package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"checkout-confirmation/internal/domain"
	"checkout-confirmation/internal/domain/ports/repository"
)

var _ repository.ClientStateStore = (*clientStateRepo)(nil)

// pgUndefinedTable is SQLSTATE 42P01.
const pgUndefinedTable = "42P01"

type clientStateRepo struct{ pool *pgxpool.Pool }

// NewClientStateRepo stores per-client handoff state in the client_state table
// (deploy/postgres/init.sql). Expired rows are invisible and removed by PurgeExpired.
func NewClientStateRepo(pool *pgxpool.Pool) *clientStateRepo {
	return &clientStateRepo{pool: pool}
}

func (r *clientStateRepo) Get(ctx context.Context, key string) (string, error) {
	const q = `SELECT value FROM client_state WHERE key=$1 AND (expires_at IS NULL OR expires_at > now());`
	var v string
	if err := r.pool.QueryRow(ctx, q, key).Scan(&v); err != nil {
		return "", mapErr(err)
	}
	return v, nil
}

func (r *clientStateRepo) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	const q = `
INSERT INTO client_state (key, value, expires_at, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (key) DO UPDATE SET value=$2, expires_at=$3, updated_at=now();`

	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().UTC().Add(ttl)
		expiresAt = &t
	}
	if _, err := r.pool.Exec(ctx, q, key, value, expiresAt); err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *clientStateRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM client_state WHERE key=$1;`, key); err != nil {
		return mapErr(err)
	}
	return nil
}

// TakeAndClear is a single DELETE ... RETURNING, so two concurrent callers can
// never both observe the row.
func (r *clientStateRepo) TakeAndClear(ctx context.Context, key string) (string, error) {
	const q = `DELETE FROM client_state WHERE key=$1 RETURNING value, expires_at;`
	var (
		v         string
		expiresAt *time.Time
	)
	if err := r.pool.QueryRow(ctx, q, key).Scan(&v, &expiresAt); err != nil {
		return "", mapErr(err)
	}
	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return "", domain.ErrNotFound
	}
	return v, nil
}

// PurgeExpired deletes rows whose TTL has passed and reports how many went.
func (r *clientStateRepo) PurgeExpired(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM client_state WHERE expires_at IS NOT NULL AND expires_at <= now();`)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
		return fmt.Errorf("%w: client_state table missing, apply deploy/postgres/init.sql: %s", domain.ErrOperationFailed, pgErr.Message)
	}
	return fmt.Errorf("%w: %v", domain.ErrOperationFailed, err)
}
