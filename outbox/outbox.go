package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Entry representa um efeito pendente gravado junto com a escrita de negócio
type Entry struct {
	ID        int64           `json:"id"`
	UserID    int             `json:"user_id"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Processed bool            `json:"processed"`
	CreatedAt time.Time       `json:"created_at"`
}

// Querier é o subconjunto de pgx.Tx / pgxpool.Pool usado nas leituras
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const DefaultMaxAttempts = 5

// Store encapsula o acesso à tabela outbox. Todas as operações de escrita
// recebem a transação ambiente do chamador: Enqueue precisa ser chamado na
// mesma transação da escrita de negócio que o originou.
type Store struct {
	maxAttempts int
}

func NewStore(maxAttempts int) *Store {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Store{maxAttempts: maxAttempts}
}

// Enqueue grava uma entrada não processada na transação do chamador
func (s *Store) Enqueue(ctx context.Context, tx pgx.Tx, userID int, topic string, payload any) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encoding outbox payload: %w", err)
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO outbox (user_id, topic, payload)
		VALUES ($1, $2, $3::jsonb)
		RETURNING id
	`, userID, topic, body).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueueing outbox entry: %w", err)
	}
	return id, nil
}

// ClaimBatch seleciona até limit entradas livres em ordem de inserção.
// FOR UPDATE SKIP LOCKED garante que instâncias concorrentes recebam
// conjuntos disjuntos sem bloquear umas às outras. Entradas no limiar de
// tentativas ficam paradas (dead letter) e saem do ciclo de claim.
func (s *Store) ClaimBatch(ctx context.Context, tx pgx.Tx, limit int) ([]Entry, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, user_id, topic, payload, attempts, created_at
		FROM outbox
		WHERE processed = false AND attempts < $1
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $2
	`, s.maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("claiming outbox batch: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Topic, &e.Payload, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading outbox batch: %w", err)
	}
	return entries, nil
}

// MarkProcessed marca a entrada dentro da sub-transação do item. Uma vez
// processed = true a entrada nunca volta a ser claimada.
func (s *Store) MarkProcessed(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `UPDATE outbox SET processed = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking outbox entry %d processed: %w", id, err)
	}
	return nil
}

// RecordFailure incrementa o contador de tentativas. Deve rodar na transação
// EXTERNA, depois do rollback ao savepoint, para que o incremento sobreviva
// ao descarte das escritas parciais da entrada.
func (s *Store) RecordFailure(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `UPDATE outbox SET attempts = attempts + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("recording outbox failure for entry %d: %w", id, err)
	}
	return nil
}

// DeadLetters lista entradas que esgotaram as tentativas, para auditoria
func (s *Store) DeadLetters(ctx context.Context, q Querier) ([]Entry, error) {
	rows, err := q.Query(ctx, `
		SELECT id, user_id, topic, payload, attempts, created_at
		FROM outbox
		WHERE processed = false AND attempts >= $1
		ORDER BY id
	`, s.maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("listing dead letters: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Topic, &e.Payload, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading dead letters: %w", err)
	}
	return entries, nil
}
