package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"transactional-outbox-services/outbox"
)

// BankUseCase contém a lógica de negócio do ledger
type BankUseCase struct {
	repository Repository
	log        *zap.Logger
}

// NewBankUseCase cria uma nova instância de BankUseCase
func NewBankUseCase(repository Repository, log *zap.Logger) *BankUseCase {
	return &BankUseCase{
		repository: repository,
		log:        log,
	}
}

// TopUp credita o saldo do usuário, criando a conta na primeira recarga
func (uc *BankUseCase) TopUp(ctx context.Context, userID int, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := uc.repository.TopUp(ctx, userID, amount); err != nil {
		return fmt.Errorf("topping up balance: %w", err)
	}
	uc.log.Info("balance topped up",
		zap.Int("user_id", userID),
		zap.Float64("amount", amount))
	return nil
}

// GetBalance devolve o saldo atual (0 para conta inexistente)
func (uc *BankUseCase) GetBalance(ctx context.Context, userID int) (float64, error) {
	return uc.repository.GetBalance(ctx, userID)
}

// EnqueuePayment aceita a requisição de pagamento: só grava o outbox; a
// autorização roda depois no dispatcher, e o chamador sabe apenas que o
// efeito foi aceito
func (uc *BankUseCase) EnqueuePayment(ctx context.Context, req PaymentRequest) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	outboxID, err := uc.repository.EnqueuePayment(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("accepting payment request: %w", err)
	}
	uc.log.Info("payment request accepted",
		zap.Int64("order_id", req.OrderID),
		zap.Int64("outbox_id", outboxID))
	return outboxID, nil
}

// ListDeadLetters expõe as entradas de outbox paradas no limiar de
// tentativas, para inspeção manual
func (uc *BankUseCase) ListDeadLetters(ctx context.Context) ([]outbox.Entry, error) {
	entries, err := uc.repository.ListDeadLetters(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing dead letters: %w", err)
	}
	return entries, nil
}
