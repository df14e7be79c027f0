package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"transactional-outbox-services/outbox"
)

func orderEntry(t *testing.T, id int64, payload any) outbox.Entry {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return outbox.Entry{ID: id, UserID: 7, Topic: TopicOrderCreate, Payload: body}
}

func TestOrderCreateProcessorMaterializesAndChainsPayment(t *testing.T) {
	repo := new(MockRepository)
	enq := new(MockEnqueuer)
	tx := &testTx{}

	entry := orderEntry(t, 1, CreateOrderPayload{CartItems: []CartItem{
		{Article: "book", Quantity: 2, Price: 10},
		{Article: "pen", Quantity: 1, Price: 2.5},
	}})

	repo.On("InsertOrder", mock.Anything, tx, mock.MatchedBy(func(o *Order) bool {
		return o.UserID == 7 && o.Status == OrderStatusPending && o.TotalAmount == 22.5
	})).Return(int64(99), nil)

	enq.On("Enqueue", mock.Anything, tx, 7, TopicPaymentRequest,
		PaymentRequest{OrderID: 99, UserID: 7, Amount: 22.5}).Return(int64(2), nil)

	p := NewOrderCreateProcessor(repo, enq, zap.NewNop())
	err := p.Process(context.Background(), tx, entry)

	require.NoError(t, err)
	repo.AssertExpectations(t)
	enq.AssertExpectations(t)
}

func TestOrderCreateProcessorRejectsEmptyCart(t *testing.T) {
	repo := new(MockRepository)
	enq := new(MockEnqueuer)

	entry := orderEntry(t, 1, CreateOrderPayload{CartItems: []CartItem{}})

	p := NewOrderCreateProcessor(repo, enq, zap.NewNop())
	err := p.Process(context.Background(), &testTx{}, entry)

	assert.ErrorIs(t, err, ErrEmptyCart)
	repo.AssertNotCalled(t, "InsertOrder", mock.Anything, mock.Anything, mock.Anything)
	enq.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderCreateProcessorRejectsMalformedPayload(t *testing.T) {
	repo := new(MockRepository)
	enq := new(MockEnqueuer)

	entry := outbox.Entry{ID: 1, UserID: 7, Topic: TopicOrderCreate, Payload: []byte(`{not json`)}

	p := NewOrderCreateProcessor(repo, enq, zap.NewNop())
	err := p.Process(context.Background(), &testTx{}, entry)

	assert.Error(t, err)
	repo.AssertNotCalled(t, "InsertOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentRequestProcessorDelivers(t *testing.T) {
	poster := new(MockPoster)
	req := PaymentRequest{OrderID: 99, UserID: 7, Amount: 22.5}
	body, _ := json.Marshal(req)

	poster.On("Post", mock.Anything, "http://bankservice:8080/api/payments", req,
		30*time.Second, http.StatusNoContent).Return(nil)

	p := NewPaymentRequestProcessor(poster, "http://bankservice:8080")
	err := p.Process(context.Background(), &testTx{}, outbox.Entry{ID: 2, UserID: 7, Topic: TopicPaymentRequest, Payload: body})

	require.NoError(t, err)
	poster.AssertExpectations(t)
}

func TestPaymentRequestProcessorRejectsInvalidRequest(t *testing.T) {
	poster := new(MockPoster)
	body, _ := json.Marshal(PaymentRequest{OrderID: 0, Amount: -1})

	p := NewPaymentRequestProcessor(poster, "http://bankservice:8080")
	err := p.Process(context.Background(), &testTx{}, outbox.Entry{ID: 2, Payload: body})

	assert.Error(t, err)
	poster.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
