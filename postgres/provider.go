// Package postgres implements privauth.AccountProvider on PostgreSQL via
// database/sql with the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/privora/privauth"
)

// Schema is the DDL for the accounts table. Apply it once at deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id             UUID PRIMARY KEY,
    email          TEXT NOT NULL UNIQUE,
    name           TEXT NOT NULL,
    password_hash  TEXT NOT NULL,
    email_verified BOOLEAN NOT NULL DEFAULT FALSE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const uniqueViolation = "23505"

// Provider is a postgres-backed account store.
type Provider struct {
	db *sql.DB
}

// Open connects with the pgx stdlib driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*Provider, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Provider{db: db}, nil
}

// NewProvider wraps an existing pool, e.g. one shared with other components.
func NewProvider(db *sql.DB) *Provider {
	return &Provider{db: db}
}

// EnsureSchema creates the accounts table if it does not exist.
func (p *Provider) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Provider) Close() error {
	return p.db.Close()
}

func (p *Provider) GetByEmail(ctx context.Context, email string) (privauth.Account, error) {
	const query = `
		SELECT id, email, name, password_hash, email_verified, created_at
		FROM accounts WHERE email = $1`

	return p.scanAccount(p.db.QueryRowContext(ctx, query, email))
}

func (p *Provider) GetByID(ctx context.Context, id string) (privauth.Account, error) {
	const query = `
		SELECT id, email, name, password_hash, email_verified, created_at
		FROM accounts WHERE id = $1`

	return p.scanAccount(p.db.QueryRowContext(ctx, query, id))
}

func (p *Provider) Create(ctx context.Context, account privauth.Account) error {
	const query = `
		INSERT INTO accounts (id, email, name, password_hash, email_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := p.db.ExecContext(ctx, query,
		account.ID, account.Email, account.Name,
		account.PasswordHash, account.EmailVerified, account.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return privauth.ErrAccountExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (p *Provider) UpdatePasswordHash(ctx context.Context, id, newHash string) error {
	const query = `UPDATE accounts SET password_hash = $2 WHERE id = $1`

	result, err := p.db.ExecContext(ctx, query, id, newHash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return expectOneRow(result)
}

func (p *Provider) MarkEmailVerified(ctx context.Context, id string) error {
	const query = `UPDATE accounts SET email_verified = TRUE WHERE id = $1`

	result, err := p.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return expectOneRow(result)
}

func (p *Provider) scanAccount(row *sql.Row) (privauth.Account, error) {
	var account privauth.Account
	err := row.Scan(
		&account.ID, &account.Email, &account.Name,
		&account.PasswordHash, &account.EmailVerified, &account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return privauth.Account{}, privauth.ErrAccountNotFound
		}
		return privauth.Account{}, fmt.Errorf("query account: %w", err)
	}
	return account, nil
}

func expectOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return privauth.ErrAccountNotFound
	}
	return nil
}
