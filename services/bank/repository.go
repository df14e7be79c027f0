package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"transactional-outbox-services/outbox"
)

// Repository define a interface para operações de banco de dados do ledger
type Repository interface {
	// EnqueuePayment grava a requisição de pagamento no outbox numa
	// transação própria; a autorização acontece depois, no dispatcher
	EnqueuePayment(ctx context.Context, req PaymentRequest) (int64, error)

	// GetBalanceForUpdate lê o saldo com lock pessimista; found = false
	// quando a conta ainda não existe
	GetBalanceForUpdate(ctx context.Context, tx pgx.Tx, userID int) (balance float64, found bool, err error)

	// DebitBalance debita condicionado à suficiência, na mesma transação da
	// decisão. O WHERE balance >= amount é a última linha de defesa contra
	// um débito concorrente entre a checagem e o update.
	DebitBalance(ctx context.Context, tx pgx.Tx, userID int, amount float64) error

	// InsertPayment grava a linha de auditoria da decisão; o UNIQUE em
	// order_id rejeita uma segunda decisão para o mesmo pedido
	InsertPayment(ctx context.Context, tx pgx.Tx, payment *Payment) error

	// GetPaymentStatus devolve a decisão já registrada para o pedido;
	// found = false quando o pedido ainda não foi autorizado
	GetPaymentStatus(ctx context.Context, tx pgx.Tx, orderID int64) (status string, found bool, err error)

	// TopUp credita o saldo, criando a conta na primeira recarga
	TopUp(ctx context.Context, userID int, amount float64) error

	// GetBalance devolve 0 para conta inexistente
	GetBalance(ctx context.Context, userID int) (float64, error)

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

func (r *PostgresRepository) EnqueuePayment(ctx context.Context, req PaymentRequest) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning enqueue transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	id, err := r.outbox.Enqueue(ctx, tx, req.UserID, TopicPaymentAuthorize, req)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing enqueue transaction: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) GetBalanceForUpdate(ctx context.Context, tx pgx.Tx, userID int) (float64, bool, error) {
	var balance float64
	err := tx.QueryRow(ctx, `
		SELECT balance::float8 FROM users
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("loading balance for user %d: %w", userID, err)
	}
	return balance, true, nil
}

func (r *PostgresRepository) DebitBalance(ctx context.Context, tx pgx.Tx, userID int, amount float64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE users SET balance = balance - $1
		WHERE user_id = $2 AND balance >= $1
	`, amount, userID)
	if err != nil {
		return fmt.Errorf("debiting user %d: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (r *PostgresRepository) InsertPayment(ctx context.Context, tx pgx.Tx, payment *Payment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payments (order_id, user_id, amount, status)
		VALUES ($1, $2, $3, $4)
	`, payment.OrderID, payment.UserID, payment.Amount, payment.Status)
	if err != nil {
		return fmt.Errorf("inserting payment audit row: %w", err)
	}
	return nil
}

func (r *PostgresRepository) TopUp(ctx context.Context, userID int, amount float64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET balance = users.balance + $2
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("topping up user %d: %w", userID, err)
	}
	return nil
}

func (r *PostgresRepository) GetPaymentStatus(ctx context.Context, tx pgx.Tx, orderID int64) (string, bool, error) {
	var status string
	err := tx.QueryRow(ctx, `
		SELECT status FROM payments WHERE order_id = $1
	`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading payment for order %d: %w", orderID, err)
	}
	return status, true, nil
}

func (r *PostgresRepository) ListDeadLetters(ctx context.Context) ([]outbox.Entry, error) {
	return r.outbox.DeadLetters(ctx, r.db)
}

func (r *PostgresRepository) GetBalance(ctx context.Context, userID int) (float64, error) {
	var balance float64
	err := r.db.QueryRow(ctx, `
		SELECT balance::float8 FROM users WHERE user_id = $1
	`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading balance for user %d: %w", userID, err)
	}
	return balance, nil
}
