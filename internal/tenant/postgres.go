package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const queryTimeout = 2 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS api_data (
	id         BIGSERIAL PRIMARY KEY,
	shop_url   TEXT NOT NULL UNIQUE,
	api_key    TEXT NOT NULL,
	stage_url  TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// DB is the subset of *pgxpool.Pool used by Postgres.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores credentials in the api_data table.
type Postgres struct {
	db DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// Connect opens a pool for databaseURL and verifies it answers.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the api_data table when it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create api_data: %w", err)
	}
	return nil
}

// Resolve returns the credential of shop.
func (p *Postgres) Resolve(ctx context.Context, shop string) (Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cred := Credential{ShopURL: NormalizeShop(shop)}
	err := p.db.QueryRow(ctx,
		`SELECT api_key, stage_url FROM api_data WHERE shop_url=$1`, cred.ShopURL,
	).Scan(&cred.APIKey, &cred.BaseURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credential{}, notConfigured(shop)
	}
	if err != nil {
		return Credential{}, fmt.Errorf("failed to look up shop %q: %w", shop, err)
	}
	if cred.APIKey == "" {
		return Credential{}, notConfigured(shop)
	}
	return cred, nil
}

// Save inserts or replaces the credential of cred.ShopURL.
func (p *Postgres) Save(ctx context.Context, cred Credential) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := p.db.Exec(ctx, `
INSERT INTO api_data (shop_url, api_key, stage_url)
VALUES ($1, $2, $3)
ON CONFLICT (shop_url) DO UPDATE
SET api_key=EXCLUDED.api_key, stage_url=EXCLUDED.stage_url, updated_at=now()`,
		NormalizeShop(cred.ShopURL), cred.APIKey, cred.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to save shop %q: %w", cred.ShopURL, err)
	}
	return nil
}
