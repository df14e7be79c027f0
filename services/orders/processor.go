package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"transactional-outbox-services/outbox"
)

// Enqueuer é o contrato do outbox.Store usado para encadear efeitos
type Enqueuer interface {
	Enqueue(ctx context.Context, tx pgx.Tx, userID int, topic string, payload any) (int64, error)
}

// Poster é o contrato do notify.Notifier
type Poster interface {
	Post(ctx context.Context, url string, body any, timeout time.Duration, wantStatus int) error
}

// OrderCreateProcessor materializa pedidos a partir de entradas order.create.
// A requisição de pagamento NÃO é disparada aqui: ela vira uma segunda
// entrada de outbox na mesma sub-transação, herdando a garantia write-ahead.
type OrderCreateProcessor struct {
	repository Repository
	enqueuer   Enqueuer
	log        *zap.Logger
}

func NewOrderCreateProcessor(repository Repository, enqueuer Enqueuer, log *zap.Logger) *OrderCreateProcessor {
	return &OrderCreateProcessor{repository: repository, enqueuer: enqueuer, log: log}
}

func (p *OrderCreateProcessor) Process(ctx context.Context, tx pgx.Tx, entry outbox.Entry) error {
	var payload CreateOrderPayload
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		return fmt.Errorf("decoding order payload: %w", err)
	}

	order, err := NewOrder(entry.UserID, payload.CartItems)
	if err != nil {
		return err
	}

	orderID, err := p.repository.InsertOrder(ctx, tx, order)
	if err != nil {
		return err
	}

	_, err = p.enqueuer.Enqueue(ctx, tx, entry.UserID, TopicPaymentRequest, PaymentRequest{
		OrderID: orderID,
		UserID:  entry.UserID,
		Amount:  order.TotalAmount,
	})
	if err != nil {
		return err
	}

	p.log.Info("order materialized",
		zap.Int64("outbox_id", entry.ID),
		zap.Int64("order_id", orderID),
		zap.Float64("total_amount", order.TotalAmount))
	return nil
}

// PaymentRequestProcessor entrega a requisição de pagamento ao bankservice.
// Só marca a entrada como processada quando o banco responde o status
// documentado; qualquer outra resposta deixa a entrada pendente para o
// próximo tick (o banco tolera duplicatas).
type PaymentRequestProcessor struct {
	notifier Poster
	bankURL  string
	timeout  time.Duration
}

func NewPaymentRequestProcessor(notifier Poster, bankURL string) *PaymentRequestProcessor {
	return &PaymentRequestProcessor{
		notifier: notifier,
		bankURL:  bankURL,
		timeout:  30 * time.Second, // o banco demora a autorizar
	}
}

func (p *PaymentRequestProcessor) Process(ctx context.Context, tx pgx.Tx, entry outbox.Entry) error {
	var req PaymentRequest
	if err := json.Unmarshal(entry.Payload, &req); err != nil {
		return fmt.Errorf("decoding payment request: %w", err)
	}
	if req.OrderID <= 0 || req.Amount <= 0 {
		return fmt.Errorf("invalid payment request: order_id=%d amount=%f", req.OrderID, req.Amount)
	}
	return p.notifier.Post(ctx, p.bankURL+"/api/payments", req, p.timeout, http.StatusNoContent)
}
