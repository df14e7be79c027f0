package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ensureSchema cria as tabelas do serviço se ainda não existirem.
// Entradas de outbox nunca são apagadas; ficam retidas para auditoria.
func ensureSchema(ctx context.Context, db *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS outbox (
			id BIGSERIAL PRIMARY KEY,
			user_id INTEGER NOT NULL,
			topic TEXT NOT NULL,
			payload JSONB NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			processed BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS outbox_pending_idx
			ON outbox (id) WHERE processed = false`,
		`CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			user_id INTEGER NOT NULL,
			total_amount NUMERIC(12, 2) NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			order_id BIGINT NOT NULL REFERENCES orders (id),
			article TEXT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			price NUMERIC(12, 2) NOT NULL CHECK (price >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			user_id INTEGER NOT NULL,
			idem_key TEXT NOT NULL,
			outbox_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, idem_key)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
