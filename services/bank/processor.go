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

// PaymentAuthorizeProcessor executa o núcleo do ledger: checa o saldo sob
// lock, decide via policy, debita condicionado e registra a auditoria, tudo
// na mesma sub-transação, para que não exista janela entre decisão e débito.
// A entrega de payment.request é at-least-once, então um pedido já decidido
// não é reautorizado: a decisão original é reenviada sem tocar o saldo.
// INSUFFICIENT_FUNDS não é erro: é um desfecho terminal válido.
type PaymentAuthorizeProcessor struct {
	repository Repository
	policy     AuthorizationPolicy
	enqueuer   Enqueuer
	log        *zap.Logger
}

func NewPaymentAuthorizeProcessor(repository Repository, policy AuthorizationPolicy, enqueuer Enqueuer, log *zap.Logger) *PaymentAuthorizeProcessor {
	return &PaymentAuthorizeProcessor{
		repository: repository,
		policy:     policy,
		enqueuer:   enqueuer,
		log:        log,
	}
}

func (p *PaymentAuthorizeProcessor) Process(ctx context.Context, tx pgx.Tx, entry outbox.Entry) error {
	var req PaymentRequest
	if err := json.Unmarshal(entry.Payload, &req); err != nil {
		return fmt.Errorf("decoding payment payload: %w", err)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	// entrega repetida: o pedido já tem veredito; reenvia o resultado
	// original e não toca o saldo (o UNIQUE em payments.order_id é a
	// trava dura contra claimers concorrentes)
	prior, decided, err := p.repository.GetPaymentStatus(ctx, tx, req.OrderID)
	if err != nil {
		return err
	}
	if decided {
		_, err = p.enqueuer.Enqueue(ctx, tx, req.UserID, TopicPaymentResult, PaymentResultNotification{
			OrderID: req.OrderID,
			Status:  prior,
		})
		if err != nil {
			return err
		}
		p.log.Info("duplicate payment request, replaying prior decision",
			zap.Int64("outbox_id", entry.ID),
			zap.Int64("order_id", req.OrderID),
			zap.String("status", prior))
		return nil
	}

	balance, found, err := p.repository.GetBalanceForUpdate(ctx, tx, req.UserID)
	if err != nil {
		return err
	}

	status := PaymentStatusInsufficientFunds
	if found && balance >= req.Amount {
		status = p.policy.Authorize(req.UserID, req.Amount)
		if status == PaymentStatusPaid {
			if err := p.repository.DebitBalance(ctx, tx, req.UserID, req.Amount); err != nil {
				return err
			}
		}
	}

	if err := p.repository.InsertPayment(ctx, tx, &Payment{
		OrderID: req.OrderID,
		UserID:  req.UserID,
		Amount:  req.Amount,
		Status:  status,
	}); err != nil {
		return err
	}

	_, err = p.enqueuer.Enqueue(ctx, tx, req.UserID, TopicPaymentResult, PaymentResultNotification{
		OrderID: req.OrderID,
		Status:  status,
	})
	if err != nil {
		return err
	}

	p.log.Info("payment authorized",
		zap.Int64("outbox_id", entry.ID),
		zap.Int64("order_id", req.OrderID),
		zap.String("status", status))
	return nil
}

// PaymentResultProcessor devolve o veredito ao orderservice. A entrada só é
// marcada como processada com a resposta 204 documentada; o orderservice é
// idempotente a entregas repetidas.
type PaymentResultProcessor struct {
	notifier  Poster
	ordersURL string
	timeout   time.Duration
}

func NewPaymentResultProcessor(notifier Poster, ordersURL string) *PaymentResultProcessor {
	return &PaymentResultProcessor{
		notifier:  notifier,
		ordersURL: ordersURL,
		timeout:   5 * time.Second,
	}
}

func (p *PaymentResultProcessor) Process(ctx context.Context, tx pgx.Tx, entry outbox.Entry) error {
	var res PaymentResultNotification
	if err := json.Unmarshal(entry.Payload, &res); err != nil {
		return fmt.Errorf("decoding payment result: %w", err)
	}
	if res.OrderID <= 0 || res.Status == "" {
		return fmt.Errorf("%w: order_id=%d status=%q", ErrInvalidPayment, res.OrderID, res.Status)
	}
	return p.notifier.Post(ctx, p.ordersURL+"/api/orders/payment-result", res, p.timeout, http.StatusNoContent)
}
