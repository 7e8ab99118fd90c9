package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the Postgres-backed Store.
type DB struct {
	Pool *pgxpool.Pool
}

var _ Store = (*DB)(nil)

func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}

func (d *DB) Close() {
	d.Pool.Close()
}

// lockDevice takes a transaction-scoped advisory lock keyed on the machine id,
// serializing writers for the same device until tx ends.
func lockDevice(ctx context.Context, tx pgx.Tx, machineID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, machineID); err != nil {
		return fmt.Errorf("failed to lock device %s: %w", machineID, err)
	}
	return nil
}

// notFound maps pgx.ErrNoRows onto ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
