package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultPeriod    = 1 * time.Second
	DefaultBatchSize = 10
)

var ErrUnknownTopic = errors.New("no processor registered for topic")

// Processor executa o efeito de domínio de uma entrada dentro da
// sub-transação recebida. Qualquer erro descarta as escritas parciais da
// entrada via rollback ao savepoint; as demais entradas do batch seguem.
type Processor interface {
	Process(ctx context.Context, tx pgx.Tx, entry Entry) error
}

// DB abre a transação de batch. *pgxpool.Pool satisfaz a interface.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Claimer é o contrato do Store usado pelo Dispatcher
type Claimer interface {
	ClaimBatch(ctx context.Context, tx pgx.Tx, limit int) ([]Entry, error)
	MarkProcessed(ctx context.Context, tx pgx.Tx, id int64) error
	RecordFailure(ctx context.Context, tx pgx.Tx, id int64) error
}

// Dispatcher é o worker periódico do outbox: claima um batch sob lock,
// processa cada entrada numa sub-transação isolada e comita o batch.
// Várias instâncias podem rodar em paralelo; a coordenação acontece
// exclusivamente pelos row locks do claim.
type Dispatcher struct {
	db         DB
	store      Claimer
	processors map[string]Processor
	period     time.Duration
	batchSize  int
	log        *zap.Logger
	tracer     trace.Tracer
	processed  metric.Int64Counter
	failed     metric.Int64Counter
}

func NewDispatcher(db DB, store Claimer, log *zap.Logger) *Dispatcher {
	meter := otel.Meter("outbox-dispatcher")
	processed, _ := meter.Int64Counter("outbox.entries.processed")
	failed, _ := meter.Int64Counter("outbox.entries.failed")

	return &Dispatcher{
		db:         db,
		store:      store,
		processors: make(map[string]Processor),
		period:     DefaultPeriod,
		batchSize:  DefaultBatchSize,
		log:        log,
		tracer:     otel.Tracer("outbox-dispatcher"),
		processed:  processed,
		failed:     failed,
	}
}

// Register associa um tópico a um processor. Deve ser chamado antes de Run.
func (d *Dispatcher) Register(topic string, p Processor) {
	d.processors[topic] = p
}

func (d *Dispatcher) WithPeriod(period time.Duration) *Dispatcher {
	if period > 0 {
		d.period = period
	}
	return d
}

func (d *Dispatcher) WithBatchSize(size int) *Dispatcher {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

// Run roda o loop até o contexto ser cancelado. Uma única goroutine executa
// os ticks, então um batch lento nunca se sobrepõe ao próximo: ticks que
// vencerem durante o processamento são simplesmente coalescidos pelo ticker.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	d.log.Info("outbox dispatcher started",
		zap.Duration("period", d.period),
		zap.Int("batch_size", d.batchSize))

	for {
		select {
		case <-ctx.Done():
			d.log.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
			if err := d.Tick(ctx); err != nil {
				// falha no claim aborta o tick inteiro; o próximo recomeça do zero
				d.log.Error("outbox tick failed", zap.Error(err))
			}
		}
	}
}

// Tick executa um ciclo completo: claim, processamento isolado por entrada,
// commit. Entradas que falharam permanecem pendentes para o próximo tick.
func (d *Dispatcher) Tick(ctx context.Context) error {
	ctx, span := d.tracer.Start(ctx, "outbox.tick")
	defer span.End()

	tx, err := d.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning batch transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entries, err := d.store.ClaimBatch(ctx, tx, d.batchSize)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil // nada livre; descarta a transação via defer
	}

	span.SetAttributes(attribute.Int("outbox.batch.claimed", len(entries)))

	for _, entry := range entries {
		if err := d.processOne(ctx, tx, entry); err != nil {
			d.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", entry.Topic)))
			d.log.Error("failed to process outbox entry",
				zap.Int64("outbox_id", entry.ID),
				zap.String("topic", entry.Topic),
				zap.Int("attempts", entry.Attempts+1),
				zap.Error(err))

			if err := d.store.RecordFailure(ctx, tx, entry.ID); err != nil {
				return err
			}
			continue
		}
		d.processed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", entry.Topic)))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing batch transaction: %w", err)
	}
	return nil
}

// processOne isola uma entrada numa transação aninhada (SAVEPOINT no pgx).
// O MarkProcessed acontece dentro da sub-transação: se o efeito falhar, o
// rollback desfaz também a marcação e a entrada continua elegível.
func (d *Dispatcher) processOne(ctx context.Context, tx pgx.Tx, entry Entry) error {
	processor, ok := d.processors[entry.Topic]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, entry.Topic)
	}

	sub, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning entry savepoint: %w", err)
	}

	if err := processor.Process(ctx, sub, entry); err != nil {
		sub.Rollback(ctx)
		return err
	}
	if err := d.store.MarkProcessed(ctx, sub, entry.ID); err != nil {
		sub.Rollback(ctx)
		return err
	}
	return sub.Commit(ctx)
}
