package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"transactional-outbox-services/outbox"
)

// CartRestorer é a fronteira de compensação com o cartservice
type CartRestorer interface {
	RestoreItem(ctx context.Context, userID int, article string, quantity int) error
}

// OrderUseCase contém a lógica de negócio dos pedidos
type OrderUseCase struct {
	repository Repository
	cart       CartRestorer
	log        *zap.Logger
}

// NewOrderUseCase cria uma nova instância de OrderUseCase
func NewOrderUseCase(repository Repository, cart CartRestorer, log *zap.Logger) *OrderUseCase {
	return &OrderUseCase{
		repository: repository,
		cart:       cart,
		log:        log,
	}
}

// CreateOrder aceita a criação: admite a chave de idempotência e grava a
// entrada de outbox na mesma transação. O pedido em si só é materializado
// depois, pelo dispatcher; o chamador sabe que o efeito foi ACEITO, não que
// completou.
func (uc *OrderUseCase) CreateOrder(ctx context.Context, userID int, idemKey string, payload CreateOrderPayload) (int64, bool, error) {
	if len(payload.CartItems) == 0 {
		return 0, false, ErrEmptyCart
	}

	outboxID, duplicate, err := uc.repository.EnqueueOrder(ctx, userID, idemKey, payload)
	if err != nil {
		return 0, false, fmt.Errorf("accepting order: %w", err)
	}

	if duplicate {
		uc.log.Info("duplicate order creation admitted",
			zap.Int("user_id", userID),
			zap.String("idempotency_key", idemKey),
			zap.Int64("outbox_id", outboxID))
		return outboxID, true, nil
	}

	uc.log.Info("order creation accepted",
		zap.Int("user_id", userID),
		zap.Int64("outbox_id", outboxID),
		zap.Int("items", len(payload.CartItems)))
	return outboxID, false, nil
}

// ApplyPaymentResult aplica o resultado vindo do banco. O update de status é
// o fato autoritativo; a compensação do carrinho é efeito secundário
// best-effort, executada DEPOIS do commit e nunca capaz de desfazê-lo.
func (uc *OrderUseCase) ApplyPaymentResult(ctx context.Context, orderID int64, status string) error {
	tx, err := uc.repository.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning payment result transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := uc.repository.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}

	if err := order.ApplyResult(status); err != nil {
		if errors.Is(err, ErrOrderFinalized) {
			// entrega at-least-once: um resultado repetido é reconhecido e
			// descartado, sem recompensar o carrinho
			uc.log.Info("ignoring payment result for finalized order",
				zap.Int64("order_id", orderID),
				zap.String("status", status))
			return nil
		}
		return err
	}

	if err := uc.repository.UpdateOrderStatus(ctx, tx, orderID, order.Status); err != nil {
		return err
	}

	var items []OrderItem
	if order.Status != OrderStatusPaid {
		items, err = uc.repository.GetOrderItems(ctx, tx, orderID)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing payment result: %w", err)
	}

	uc.log.Info("payment result applied",
		zap.Int64("order_id", orderID),
		zap.String("status", order.Status))

	if order.Status != OrderStatusPaid {
		uc.compensateCart(ctx, order.UserID, items)
	}
	return nil
}

// compensateCart devolve as quantidades ao carrinho do dono. Falhas são
// logadas e não propagam: a compensação pode ser refeita fora de banda.
func (uc *OrderUseCase) compensateCart(ctx context.Context, userID int, items []OrderItem) {
	for _, item := range items {
		if err := uc.cart.RestoreItem(ctx, userID, item.Article, item.Quantity); err != nil {
			uc.log.Error("failed to restore cart item",
				zap.Int("user_id", userID),
				zap.String("article", item.Article),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
		}
	}
}

// ListOrders lista os pedidos do usuário
func (uc *OrderUseCase) ListOrders(ctx context.Context, userID int) ([]Order, error) {
	orders, err := uc.repository.ListOrders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return orders, nil
}

// ListDeadLetters expõe as entradas de outbox paradas no limiar de
// tentativas, para inspeção manual
func (uc *OrderUseCase) ListDeadLetters(ctx context.Context) ([]outbox.Entry, error) {
	entries, err := uc.repository.ListDeadLetters(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing dead letters: %w", err)
	}
	return entries, nil
}
