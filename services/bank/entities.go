package main

import (
	"errors"
	"fmt"
	"time"
)

// Payment é o registro append-only de cada decisão de autorização: uma linha
// por entrada de outbox processada, nunca editada depois
type Payment struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	UserID    int       `json:"user_id"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	PaymentStatusPaid              = "PAID"
	PaymentStatusFailed            = "FAILED"
	PaymentStatusInsufficientFunds = "INSUFFICIENT_FUNDS"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidPayment    = errors.New("invalid payment request")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Tópicos do outbox do banco
const (
	TopicPaymentAuthorize = "payment.authorize"
	TopicPaymentResult    = "payment.result"
)

// PaymentRequest chega do orderservice e vira o payload de
// payment.authorize sem retoques: o payload é auto-descritivo
type PaymentRequest struct {
	OrderID int64   `json:"order_id" binding:"required"`
	UserID  int     `json:"user_id" binding:"required"`
	Amount  float64 `json:"amount" binding:"required,gt=0"`
}

func (r PaymentRequest) Validate() error {
	if r.OrderID <= 0 || r.UserID <= 0 || r.Amount <= 0 {
		return fmt.Errorf("%w: order_id=%d user_id=%d amount=%f",
			ErrInvalidPayment, r.OrderID, r.UserID, r.Amount)
	}
	return nil
}

// PaymentResultNotification é o payload de payment.result, entregue de volta
// ao orderservice
type PaymentResultNotification struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

// TopUpRequest é o corpo de /api/balance/top-up
type TopUpRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}
