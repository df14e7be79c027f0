package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	"transactional-outbox-services/outbox"
)

// testTx implementa pgx.Tx por embedding; só os métodos de controle são usados
type testTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *testTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return &testTx{}, nil
}

func (t *testTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *testTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

// MockRepository simula o Repository para testes sem banco real
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) EnqueuePayment(ctx context.Context, req PaymentRequest) (int64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) GetBalanceForUpdate(ctx context.Context, tx pgx.Tx, userID int) (float64, bool, error) {
	args := m.Called(ctx, tx, userID)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

func (m *MockRepository) DebitBalance(ctx context.Context, tx pgx.Tx, userID int, amount float64) error {
	args := m.Called(ctx, tx, userID, amount)
	return args.Error(0)
}

func (m *MockRepository) InsertPayment(ctx context.Context, tx pgx.Tx, payment *Payment) error {
	args := m.Called(ctx, tx, payment)
	return args.Error(0)
}

func (m *MockRepository) GetPaymentStatus(ctx context.Context, tx pgx.Tx, orderID int64) (string, bool, error) {
	args := m.Called(ctx, tx, orderID)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockRepository) TopUp(ctx context.Context, userID int, amount float64) error {
	args := m.Called(ctx, userID, amount)
	return args.Error(0)
}

func (m *MockRepository) GetBalance(ctx context.Context, userID int) (float64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockRepository) ListDeadLetters(ctx context.Context) ([]outbox.Entry, error) {
	args := m.Called(ctx)
	return args.Get(0).([]outbox.Entry), args.Error(1)
}

// MockEnqueuer simula o encadeamento de entradas de outbox
type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, tx pgx.Tx, userID int, topic string, payload any) (int64, error) {
	args := m.Called(ctx, tx, userID, topic, payload)
	return args.Get(0).(int64), args.Error(1)
}

// MockPoster simula o notificador
type MockPoster struct {
	mock.Mock
}

func (m *MockPoster) Post(ctx context.Context, url string, body any, timeout time.Duration, wantStatus int) error {
	args := m.Called(ctx, url, body, timeout, wantStatus)
	return args.Error(0)
}
