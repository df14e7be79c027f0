package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"transactional-outbox-services/authclient"
	"transactional-outbox-services/outbox"
)

// BankUseCaseInterface define a interface para o use case
type BankUseCaseInterface interface {
	TopUp(ctx context.Context, userID int, amount float64) error
	GetBalance(ctx context.Context, userID int) (float64, error)
	EnqueuePayment(ctx context.Context, req PaymentRequest) (int64, error)
	ListDeadLetters(ctx context.Context) ([]outbox.Entry, error)
}

// BankHandler contém os handlers HTTP
type BankHandler struct {
	useCase BankUseCaseInterface
	auth    *authclient.Client
	tracer  trace.Tracer
	log     *zap.Logger
}

// NewBankHandler cria uma nova instância de BankHandler
func NewBankHandler(useCase BankUseCaseInterface, auth *authclient.Client, tracer trace.Tracer, log *zap.Logger) *BankHandler {
	return &BankHandler{
		useCase: useCase,
		auth:    auth,
		tracer:  tracer,
		log:     log,
	}
}

// TopUpBalance credita o saldo do usuário autenticado
func (h *BankHandler) TopUpBalance(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "top_up_balance")
	defer span.End()

	userID, err := h.auth.Verify(ctx, c.GetHeader("Authorization"))
	if err != nil {
		if errors.Is(err, authclient.ErrUnauthorized) {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.Status(http.StatusForbidden)
		return
	}

	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.Status(http.StatusBadRequest)
		return
	}

	span.SetAttributes(
		attribute.Int("user_id", userID),
		attribute.Float64("amount", req.Amount),
	)

	if err := h.useCase.TopUp(ctx, userID, req.Amount); err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			c.Status(http.StatusBadRequest)
			return
		}
		span.RecordError(err)
		h.log.Error("failed to top up balance", zap.Int("user_id", userID), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetBalance devolve o saldo do usuário autenticado
func (h *BankHandler) GetBalance(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "get_balance")
	defer span.End()

	userID, err := h.auth.Verify(ctx, c.GetHeader("Authorization"))
	if err != nil {
		if errors.Is(err, authclient.ErrUnauthorized) {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.Status(http.StatusForbidden)
		return
	}

	balance, err := h.useCase.GetBalance(ctx, userID)
	if err != nil {
		span.RecordError(err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

// CreatePayment aceita a requisição de pagamento vinda do orderservice.
// Endpoint interno, tolerante a duplicatas: aceitar a mesma requisição duas
// vezes enfileira duas entradas, mas o processor de autorização reconhece o
// pedido já decidido e só reenvia o veredito original, então o saldo é
// debitado no máximo uma vez por pedido.
func (h *BankHandler) CreatePayment(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "create_payment")
	defer span.End()

	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(
		attribute.Int64("order_id", req.OrderID),
		attribute.Float64("amount", req.Amount),
	)

	outboxID, err := h.useCase.EnqueuePayment(ctx, req)
	if err != nil {
		if errors.Is(err, ErrInvalidPayment) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		span.RecordError(err)
		h.log.Error("failed to accept payment", zap.Int64("order_id", req.OrderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	span.SetAttributes(attribute.Int64("outbox_id", outboxID))
	c.Status(http.StatusNoContent)
}

// DeadLetters lista as entradas de outbox paradas no limiar de tentativas.
// Endpoint interno de auditoria, sem exposição ao cliente final.
func (h *BankHandler) DeadLetters(c *gin.Context) {
	entries, err := h.useCase.ListDeadLetters(c.Request.Context())
	if err != nil {
		h.log.Error("failed to list dead letters", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dead_letters": entries})
}

// HealthCheck verifica se o serviço está saudável
func (h *BankHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "bank"})
}
