package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	"transactional-outbox-services/outbox"
)

// testTx implementa pgx.Tx por embedding; só Commit/Rollback/Begin importam
// para os use cases e processors
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

func (m *MockRepository) EnqueueOrder(ctx context.Context, userID int, idemKey string, payload CreateOrderPayload) (int64, bool, error) {
	args := m.Called(ctx, userID, idemKey, payload)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockRepository) InsertOrder(ctx context.Context, tx pgx.Tx, order *Order) (int64, error) {
	args := m.Called(ctx, tx, order)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	return args.Get(0).(pgx.Tx), args.Error(1)
}

func (m *MockRepository) GetOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID int64) (*Order, error) {
	args := m.Called(ctx, tx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) UpdateOrderStatus(ctx context.Context, tx pgx.Tx, orderID int64, status string) error {
	args := m.Called(ctx, tx, orderID, status)
	return args.Error(0)
}

func (m *MockRepository) GetOrderItems(ctx context.Context, tx pgx.Tx, orderID int64) ([]OrderItem, error) {
	args := m.Called(ctx, tx, orderID)
	return args.Get(0).([]OrderItem), args.Error(1)
}

func (m *MockRepository) ListOrders(ctx context.Context, userID int) ([]Order, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]Order), args.Error(1)
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

// MockCart simula a fronteira de compensação do carrinho
type MockCart struct {
	mock.Mock
}

func (m *MockCart) RestoreItem(ctx context.Context, userID int, article string, quantity int) error {
	args := m.Called(ctx, userID, article, quantity)
	return args.Error(0)
}

// MockPoster simula o notificador
type MockPoster struct {
	mock.Mock
}

func (m *MockPoster) Post(ctx context.Context, url string, body any, timeout time.Duration, wantStatus int) error {
	args := m.Called(ctx, url, body, timeout, wantStatus)
	return args.Error(0)
}
