package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ensureSchema cria as tabelas do serviço se ainda não existirem.
// payments é append-only: no máximo uma decisão de autorização por pedido
// (UNIQUE em order_id); o saldo nunca fica negativo por construção.
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
		`CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY,
			balance NUMERIC(12, 2) NOT NULL DEFAULT 0 CHECK (balance >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL UNIQUE,
			user_id INTEGER NOT NULL,
			amount NUMERIC(12, 2) NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
