package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"transactional-outbox-services/outbox"
)

// Repository define a interface para operações de banco de dados de pedidos
type Repository interface {
	// EnqueueOrder admite a chave de idempotência e grava a entrada de
	// outbox na MESMA transação. Retorna duplicate = true quando a chave já
	// foi usada; nesse caso nada novo é enfileirado e a referência devolvida
	// é a da admissão original.
	EnqueueOrder(ctx context.Context, userID int, idemKey string, payload CreateOrderPayload) (outboxID int64, duplicate bool, err error)

	// InsertOrder materializa o pedido e seus itens na transação recebida
	InsertOrder(ctx context.Context, tx pgx.Tx, order *Order) (int64, error)

	// Begin abre uma transação no pool
	Begin(ctx context.Context) (pgx.Tx, error)

	// GetOrderForUpdate busca o pedido com lock pessimista (FOR UPDATE)
	GetOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID int64) (*Order, error)

	// UpdateOrderStatus grava o status terminal do pedido
	UpdateOrderStatus(ctx context.Context, tx pgx.Tx, orderID int64, status string) error

	// GetOrderItems lista os itens do pedido
	GetOrderItems(ctx context.Context, tx pgx.Tx, orderID int64) ([]OrderItem, error)

	// ListOrders lista os pedidos do usuário, mais recentes primeiro
	ListOrders(ctx context.Context, userID int) ([]Order, error)

	// ListDeadLetters lista as entradas de outbox que esgotaram as tentativas
	ListDeadLetters(ctx context.Context) ([]outbox.Entry, error)
}

// PostgresRepository implementa Repository usando PostgreSQL
type PostgresRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Store
}

func NewRepository(db *pgxpool.Pool, store *outbox.Store) Repository {
	return &PostgresRepository{db: db, outbox: store}
}

func (r *PostgresRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

func (r *PostgresRepository) EnqueueOrder(ctx context.Context, userID int, idemKey string, payload CreateOrderPayload) (int64, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("beginning enqueue transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// admissão: o INSERT só devolve linha quando a chave é nova; um claim
	// concorrente da mesma chave espera o lock e cai no caminho duplicado
	var claimed string
	err = tx.QueryRow(ctx, `
		INSERT INTO idempotency_keys (user_id, idem_key)
		VALUES ($1, $2)
		ON CONFLICT (user_id, idem_key) DO NOTHING
		RETURNING idem_key
	`, userID, idemKey).Scan(&claimed)

	if errors.Is(err, pgx.ErrNoRows) {
		var previous *int64
		err = tx.QueryRow(ctx, `
			SELECT outbox_id FROM idempotency_keys
			WHERE user_id = $1 AND idem_key = $2
		`, userID, idemKey).Scan(&previous)
		if err != nil {
			return 0, false, fmt.Errorf("loading duplicate admission: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, false, fmt.Errorf("committing duplicate admission: %w", err)
		}
		var ref int64
		if previous != nil {
			ref = *previous
		}
		return ref, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("admitting idempotency key: %w", err)
	}

	outboxID, err := r.outbox.Enqueue(ctx, tx, userID, TopicOrderCreate, payload)
	if err != nil {
		return 0, false, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE idempotency_keys SET outbox_id = $1
		WHERE user_id = $2 AND idem_key = $3
	`, outboxID, userID, idemKey)
	if err != nil {
		return 0, false, fmt.Errorf("binding idempotency key: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("committing enqueue transaction: %w", err)
	}
	return outboxID, false, nil
}

func (r *PostgresRepository) InsertOrder(ctx context.Context, tx pgx.Tx, order *Order) (int64, error) {
	var orderID int64
	err := tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, total_amount, status, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, order.UserID, order.TotalAmount, order.Status, order.CreatedAt).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("inserting order: %w", err)
	}

	for _, item := range order.Items {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, article, quantity, price)
			VALUES ($1, $2, $3, $4)
		`, orderID, item.Article, item.Quantity, item.Price)
		if err != nil {
			return 0, fmt.Errorf("inserting order item %q: %w", item.Article, err)
		}
	}
	return orderID, nil
}

func (r *PostgresRepository) GetOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID int64) (*Order, error) {
	var order Order
	err := tx.QueryRow(ctx, `
		SELECT id, user_id, total_amount::float8, status, created_at
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID).Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.Status, &order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading order %d: %w", orderID, err)
	}
	return &order, nil
}

func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, tx pgx.Tx, orderID int64, status string) error {
	_, err := tx.Exec(ctx, `
		UPDATE orders SET status = $1 WHERE id = $2
	`, status, orderID)
	if err != nil {
		return fmt.Errorf("updating order %d status: %w", orderID, err)
	}
	return nil
}

func (r *PostgresRepository) GetOrderItems(ctx context.Context, tx pgx.Tx, orderID int64) ([]OrderItem, error) {
	rows, err := tx.Query(ctx, `
		SELECT order_id, article, quantity, price::float8
		FROM order_items
		WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing order %d items: %w", orderID, err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.OrderID, &item.Article, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *PostgresRepository) ListDeadLetters(ctx context.Context) ([]outbox.Entry, error) {
	return r.outbox.DeadLetters(ctx, r.db)
}

func (r *PostgresRepository) ListOrders(ctx context.Context, userID int) ([]Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, total_amount::float8, status, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var order Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.Status, &order.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		rows, err := r.db.Query(ctx, `
			SELECT order_id, article, quantity, price::float8
			FROM order_items
			WHERE order_id = $1
		`, orders[i].ID)
		if err != nil {
			return nil, fmt.Errorf("listing items for order %d: %w", orders[i].ID, err)
		}
		for rows.Next() {
			var item OrderItem
			if err := rows.Scan(&item.OrderID, &item.Article, &item.Quantity, &item.Price); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning order item: %w", err)
			}
			orders[i].Items = append(orders[i].Items, item)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return orders, nil
}
