package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"transactional-outbox-services/authclient"
	"transactional-outbox-services/outbox"
)

// OrderUseCaseInterface define a interface para o use case
type OrderUseCaseInterface interface {
	CreateOrder(ctx context.Context, userID int, idemKey string, payload CreateOrderPayload) (int64, bool, error)
	ApplyPaymentResult(ctx context.Context, orderID int64, status string) error
	ListOrders(ctx context.Context, userID int) ([]Order, error)
	ListDeadLetters(ctx context.Context) ([]outbox.Entry, error)
}

// CreateOrderRequest representa a requisição para criar um pedido
type CreateOrderRequest struct {
	CartItems []CartItem `json:"cart_items" binding:"required,min=1,dive"`
}

// OrderHandler contém os handlers HTTP
type OrderHandler struct {
	useCase OrderUseCaseInterface
	auth    *authclient.Client
	tracer  trace.Tracer
	log     *zap.Logger
}

// NewOrderHandler cria uma nova instância de OrderHandler
func NewOrderHandler(useCase OrderUseCaseInterface, auth *authclient.Client, tracer trace.Tracer, log *zap.Logger) *OrderHandler {
	return &OrderHandler{
		useCase: useCase,
		auth:    auth,
		tracer:  tracer,
		log:     log,
	}
}

// CreateOrder aceita a criação de um pedido: valida o token, admite a chave
// de idempotência e enfileira o efeito. Responde 204 quando o efeito foi
// aceito; a materialização acontece depois, no dispatcher.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "create_order")
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

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cart items are required"})
		return
	}

	idemKey := c.GetHeader("Idempotency-Key")
	if idemKey == "" {
		// sem chave do cliente não há retry seguro; segue como tentativa nova
		idemKey = uuid.New().String()
	}

	span.SetAttributes(
		attribute.Int("user_id", userID),
		attribute.Int("cart_items", len(req.CartItems)),
	)

	outboxID, duplicate, err := h.useCase.CreateOrder(ctx, userID, idemKey, CreateOrderPayload{CartItems: req.CartItems})
	if err != nil {
		span.RecordError(err)
		h.log.Error("failed to accept order", zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	span.SetAttributes(
		attribute.Int64("outbox_id", outboxID),
		attribute.Bool("duplicate", duplicate),
	)
	c.Status(http.StatusNoContent)
}

// PaymentResult recebe o resultado do pagamento vindo do bankservice.
// O endpoint é tolerante a perda e duplicação: resultados repetidos são
// reconhecidos com 204 sem reaplicar o efeito.
func (h *OrderHandler) PaymentResult(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "payment_result")
	defer span.End()

	var req PaymentResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(
		attribute.Int64("order_id", req.OrderID),
		attribute.String("status", req.Status),
	)

	err := h.useCase.ApplyPaymentResult(ctx, req.OrderID, req.Status)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, ErrUnknownStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		span.RecordError(err)
		h.log.Error("failed to apply payment result", zap.Int64("order_id", req.OrderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// ListOrders lista os pedidos do usuário autenticado
func (h *OrderHandler) ListOrders(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "list_orders")
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

	orders, err := h.useCase.ListOrders(ctx, userID)
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// DeadLetters lista as entradas de outbox paradas no limiar de tentativas.
// Endpoint interno de auditoria, sem exposição ao cliente final.
func (h *OrderHandler) DeadLetters(c *gin.Context) {
	entries, err := h.useCase.ListDeadLetters(c.Request.Context())
	if err != nil {
		h.log.Error("failed to list dead letters", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dead_letters": entries})
}

// HealthCheck verifica se o serviço está saudável
func (h *OrderHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "orders"})
}
