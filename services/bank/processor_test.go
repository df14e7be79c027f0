package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"transactional-outbox-services/outbox"
)

func alwaysPaid() AuthorizationPolicy {
	return PolicyFunc(func(int, float64) string { return PaymentStatusPaid })
}

func alwaysFailed() AuthorizationPolicy {
	return PolicyFunc(func(int, float64) string { return PaymentStatusFailed })
}

func paymentEntry(t *testing.T, req PaymentRequest) outbox.Entry {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return outbox.Entry{ID: 1, UserID: req.UserID, Topic: TopicPaymentAuthorize, Payload: body}
}

func TestAuthorizePaidDebitsAndAudits(t *testing.T) {
	repo := new(MockRepository)
	enq := new(MockEnqueuer)
	tx := &testTx{}
	req := PaymentRequest{OrderID: 9, UserID: 7, Amount: 60}

	repo.On("GetPaymentStatus", mock.Anything, tx, int64(9)).Return("", false, nil)
	repo.On("GetBalanceForUpdate", mock.Anything, tx, 7).Return(100.0, true, nil)
	repo.On("DebitBalance", mock.Anything, tx, 7, 60.0).Return(nil).Once()
	repo.On("InsertPayment", mock.Anything, tx, mock.MatchedBy(func(p *Payment) bool {
		return p.OrderID == 9 && p.Status == PaymentStatusPaid && p.Amount == 60
	})).Return(nil)
	enq.On("Enqueue", mock.Anything, tx, 7, TopicPaymentResult,
		PaymentResultNotification{OrderID: 9, Status: PaymentStatusPaid}).Return(int64(2), nil)

	p := NewPaymentAuthorizeProcessor(repo, alwaysPaid(), enq, zap.NewNop())
	err := p.Process(context.Background(), tx, paymentEntry(t, req))

	require.NoError(t, err)
	repo.AssertExpectations(t)
	enq.AssertExpectations(t)
}

func TestAuthorizeFailedDoesNotDebit(t *testing.T) {
	repo := new(MockRepository)
	enq := new(MockEnqueuer)
	tx := &testTx{}
	req := PaymentRequest{OrderID: 9, UserID: 7, Amount: 60}

	repo.On("GetPaymentStatus", mock.Anything, tx, int64(9)).Return("", false, nil)
	repo.On("GetBalanceForUpdate", mock.Anything, tx, 7).Return(100.0, true, nil)
	repo.On("InsertPayment", mock.Anything, tx, mock.MatchedBy(func(p *Payment) bool {
		return p.Status == PaymentStatusFailed
	})).Return(nil)
	enq.On("Enqueue", mock.Anything, tx, 7, TopicPaymentResult,
		PaymentResultNotification{OrderID: 9, Status: PaymentStatusFailed}).Return(int64(2), nil)

	p := NewPaymentAuthorizeProcessor(repo, alwaysFailed(), enq, zap.NewNop())
	err := p.Process(context.Background(), tx, paymentEntry(t, req))

	require.NoError(t, err)
	repo.AssertNotCalled(t, "DebitBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthorizeInsufficientFunds(t *testing.T) {
	repo := new(MockRepository)
	enq := new(MockEnqueuer)
	tx := &testTx{}
	req := PaymentRequest{OrderID: 9, UserID: 7, Amount: 60}

	repo.On("GetPaymentStatus", mock.Anything, tx, int64(9)).Return("", false, nil)
	repo.On("GetBalanceForUpdate", mock.Anything, tx, 7).Return(40.0, true, nil)
	repo.On("InsertPayment", mock.Anything, tx, mock.MatchedBy(func(p *Payment) bool {
		return p.Status == PaymentStatusInsufficientFunds
	})).Return(nil)
	enq.On("Enqueue", mock.Anything, tx, 7, TopicPaymentResult,
		PaymentResultNotification{OrderID: 9, Status: PaymentStatusInsufficientFunds}).Return(int64(2), nil)

	// a policy nem é consultada: saldo insuficiente é decidido antes dela
	p := NewPaymentAuthorizeProcessor(repo, alwaysPaid(), enq, zap.NewNop())
	err := p.Process(context.Background(), tx, paymentEntry(t, req))

	require.NoError(t, err)
	repo.AssertNotCalled(t, "DebitBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthorizeMissingAccountIsInsufficientFunds(t *testing.T) {
	repo := new(MockRepository)
	enq := new(MockEnqueuer)
	tx := &testTx{}
	req := PaymentRequest{OrderID: 9, UserID: 7, Amount: 60}

	repo.On("GetPaymentStatus", mock.Anything, tx, int64(9)).Return("", false, nil)
	repo.On("GetBalanceForUpdate", mock.Anything, tx, 7).Return(0.0, false, nil)
	repo.On("InsertPayment", mock.Anything, tx, mock.MatchedBy(func(p *Payment) bool {
		return p.Status == PaymentStatusInsufficientFunds
	})).Return(nil)
	enq.On("Enqueue", mock.Anything, tx, 7, TopicPaymentResult,
		PaymentResultNotification{OrderID: 9, Status: PaymentStatusInsufficientFunds}).Return(int64(2), nil)

	p := NewPaymentAuthorizeProcessor(repo, alwaysPaid(), enq, zap.NewNop())
	err := p.Process(context.Background(), tx, paymentEntry(t, req))

	require.NoError(t, err)
}

func TestAuthorizeDebitRaceSurfacesError(t *testing.T) {
	repo := new(MockRepository)
	enq := new(MockEnqueuer)
	tx := &testTx{}
	req := PaymentRequest{OrderID: 9, UserID: 7, Amount: 60}

	repo.On("GetPaymentStatus", mock.Anything, tx, int64(9)).Return("", false, nil)
	repo.On("GetBalanceForUpdate", mock.Anything, tx, 7).Return(100.0, true, nil)
	repo.On("DebitBalance", mock.Anything, tx, 7, 60.0).Return(ErrInsufficientFunds)

	p := NewPaymentAuthorizeProcessor(repo, alwaysPaid(), enq, zap.NewNop())
	err := p.Process(context.Background(), tx, paymentEntry(t, req))

	// o erro devolve a entrada ao próximo tick sem auditoria nem resultado
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	repo.AssertNotCalled(t, "InsertPayment", mock.Anything, mock.Anything, mock.Anything)
	enq.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthorizeDuplicateRequestReplaysPriorDecision(t *testing.T) {
	repo := new(MockRepository)
	enq := new(MockEnqueuer)
	tx := &testTx{}
	req := PaymentRequest{OrderID: 9, UserID: 7, Amount: 60}

	// payment.request é at-least-once: se o orderservice reenviar a mesma
	// requisição, o pedido já decidido só tem o veredito original reenviado
	repo.On("GetPaymentStatus", mock.Anything, tx, int64(9)).
		Return(PaymentStatusPaid, true, nil)
	enq.On("Enqueue", mock.Anything, tx, 7, TopicPaymentResult,
		PaymentResultNotification{OrderID: 9, Status: PaymentStatusPaid}).Return(int64(3), nil)

	p := NewPaymentAuthorizeProcessor(repo, alwaysPaid(), enq, zap.NewNop())
	err := p.Process(context.Background(), tx, paymentEntry(t, req))

	require.NoError(t, err)
	repo.AssertNotCalled(t, "GetBalanceForUpdate", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "DebitBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "InsertPayment", mock.Anything, mock.Anything, mock.Anything)
	enq.AssertExpectations(t)
}

func TestAuthorizeDuplicateRequestDebitsOnce(t *testing.T) {
	repo := new(MockRepository)
	enq := new(MockEnqueuer)
	tx := &testTx{}
	req := PaymentRequest{OrderID: 9, UserID: 7, Amount: 60}

	// primeira entrega: sem decisão prévia, autoriza e debita
	repo.On("GetPaymentStatus", mock.Anything, tx, int64(9)).Return("", false, nil).Once()
	repo.On("GetBalanceForUpdate", mock.Anything, tx, 7).Return(100.0, true, nil).Once()
	repo.On("DebitBalance", mock.Anything, tx, 7, 60.0).Return(nil).Once()
	repo.On("InsertPayment", mock.Anything, tx, mock.Anything).Return(nil).Once()
	// segunda entrega: a decisão já existe
	repo.On("GetPaymentStatus", mock.Anything, tx, int64(9)).Return(PaymentStatusPaid, true, nil)
	enq.On("Enqueue", mock.Anything, tx, 7, TopicPaymentResult,
		PaymentResultNotification{OrderID: 9, Status: PaymentStatusPaid}).Return(int64(3), nil).Twice()

	p := NewPaymentAuthorizeProcessor(repo, alwaysPaid(), enq, zap.NewNop())
	require.NoError(t, p.Process(context.Background(), tx, paymentEntry(t, req)))
	require.NoError(t, p.Process(context.Background(), tx, paymentEntry(t, req)))

	repo.AssertNumberOfCalls(t, "DebitBalance", 1)
	repo.AssertNumberOfCalls(t, "InsertPayment", 1)
	enq.AssertExpectations(t)
}

func TestAuthorizeRejectsMalformedPayload(t *testing.T) {
	repo := new(MockRepository)
	p := NewPaymentAuthorizeProcessor(repo, alwaysPaid(), new(MockEnqueuer), zap.NewNop())

	err := p.Process(context.Background(), &testTx{},
		outbox.Entry{ID: 1, Topic: TopicPaymentAuthorize, Payload: []byte(`{"order_id": "nope"}`)})

	assert.Error(t, err)
	repo.AssertNotCalled(t, "GetBalanceForUpdate", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentResultProcessorDelivers(t *testing.T) {
	poster := new(MockPoster)
	res := PaymentResultNotification{OrderID: 9, Status: PaymentStatusPaid}
	body, _ := json.Marshal(res)

	poster.On("Post", mock.Anything, "http://orderservice:8080/api/orders/payment-result",
		res, 5*time.Second, http.StatusNoContent).Return(nil)

	p := NewPaymentResultProcessor(poster, "http://orderservice:8080")
	err := p.Process(context.Background(), &testTx{},
		outbox.Entry{ID: 2, Topic: TopicPaymentResult, Payload: body})

	require.NoError(t, err)
	poster.AssertExpectations(t)
}

func TestPaymentResultProcessorPropagatesDeliveryFailure(t *testing.T) {
	poster := new(MockPoster)
	res := PaymentResultNotification{OrderID: 9, Status: PaymentStatusFailed}
	body, _ := json.Marshal(res)

	poster.On("Post", mock.Anything, mock.Anything, res, mock.Anything, mock.Anything).
		Return(errors.New("connection refused"))

	p := NewPaymentResultProcessor(poster, "http://orderservice:8080")
	err := p.Process(context.Background(), &testTx{},
		outbox.Entry{ID: 2, Topic: TopicPaymentResult, Payload: body})

	// a falha deixa a entrada pendente; o dispatcher tenta de novo
	assert.Error(t, err)
}
