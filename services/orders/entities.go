package main

import (
	"errors"
	"fmt"
	"time"
)

// Order representa um pedido materializado a partir de uma entrada de outbox
type Order struct {
	ID          int64       `json:"id"`
	UserID      int         `json:"user_id"`
	TotalAmount float64     `json:"total_amount"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	Items       []OrderItem `json:"items"`
}

// OrderItem é uma linha do pedido; quantity e price vêm congelados do
// payload que originou o pedido
type OrderItem struct {
	OrderID  int64   `json:"order_id"`
	Article  string  `json:"article"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// OrderStatus: PENDING é o único estado inicial; PAID e FAILED são terminais
const (
	OrderStatusPending = "PENDING"
	OrderStatusPaid    = "PAID"
	OrderStatusFailed  = "FAILED"

	// reportado pelo banco quando o saldo não cobre o pedido
	PaymentStatusInsufficientFunds = "INSUFFICIENT_FUNDS"
)

var (
	ErrEmptyCart      = errors.New("cart items are required")
	ErrInvalidItem    = errors.New("invalid cart item")
	ErrUnknownStatus  = errors.New("unknown payment status")
	ErrOrderFinalized = errors.New("order already finalized")
	ErrOrderNotFound  = errors.New("order not found")
)

// CartItem é o formato de linha de carrinho aceito no payload de criação
type CartItem struct {
	Article  string  `json:"article" binding:"required"`
	Quantity int     `json:"quantity" binding:"required,gt=0"`
	Price    float64 `json:"price" binding:"gte=0"`
}

// NewOrder valida os itens e computa o total uma única vez; o total nunca é
// recomputado depois da criação
func NewOrder(userID int, items []CartItem) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	order := &Order{
		UserID:    userID,
		Status:    OrderStatusPending,
		CreatedAt: time.Now(),
	}
	for _, item := range items {
		if item.Article == "" || item.Quantity <= 0 || item.Price < 0 {
			return nil, fmt.Errorf("%w: article=%q quantity=%d price=%f",
				ErrInvalidItem, item.Article, item.Quantity, item.Price)
		}
		order.TotalAmount += float64(item.Quantity) * item.Price
		order.Items = append(order.Items, OrderItem{
			Article:  item.Article,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}
	return order, nil
}

// ApplyResult aplica o resultado do pagamento. Só pedidos PENDING podem
// transicionar; um segundo resultado para o mesmo pedido é ErrOrderFinalized
// e deve ser ignorado pelo chamador (a entrega é at-least-once).
func (o *Order) ApplyResult(status string) error {
	switch status {
	case OrderStatusPaid:
	case OrderStatusFailed, PaymentStatusInsufficientFunds:
		// qualquer resultado terminal não-PAID colapsa em FAILED no pedido
		status = OrderStatusFailed
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	if o.Status != OrderStatusPending {
		return fmt.Errorf("%w: order %d is %s", ErrOrderFinalized, o.ID, o.Status)
	}
	o.Status = status
	return nil
}

// Payloads de outbox. Cada payload é auto-descritivo: o dispatcher decodifica
// sem consultas externas.

const (
	TopicOrderCreate    = "order.create"
	TopicPaymentRequest = "payment.request"
)

// CreateOrderPayload é o payload do tópico order.create
type CreateOrderPayload struct {
	CartItems []CartItem `json:"cart_items"`
}

// PaymentRequest é o payload do tópico payment.request, entregue ao banco
type PaymentRequest struct {
	OrderID int64   `json:"order_id"`
	UserID  int     `json:"user_id"`
	Amount  float64 `json:"amount"`
}

// PaymentResultRequest é o corpo recebido em /api/orders/payment-result
type PaymentResultRequest struct {
	OrderID int64  `json:"order_id" binding:"required"`
	Status  string `json:"status" binding:"required"`
}
