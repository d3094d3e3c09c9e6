// Package pgstore is the Postgres implementation of billing.Store.
//
// Every invariant that must hold under concurrent deliveries is enforced in
// SQL: unique indexes on the subscriber's external id, on (payment id,
// status) and on the token's session id, counter updates inside the same
// transaction as the row change that causes them, and a conditional update
// for token consumption.
package pgstore

import (
	"context"
	"embed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/substrack/pkg/secrets"
	"github.com/dmitrymomot/substrack/svc/billing"
)

// Migrations holds the goose migrations of the billing schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations passed to goose.
const MigrationsDir = "migrations"

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements billing.Store on a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	sealer *secrets.Sealer
}

var _ billing.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithSealer encrypts the merchant's Stripe secret key and webhook secret
// before they are written. Rows written without a sealer are still read.
func WithSealer(s *secrets.Sealer) Option {
	return func(st *Store) {
		st.sealer = s
	}
}

func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// decimalText encodes amounts as text so that numeric columns receive the
// exact value.
func decimalText(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
