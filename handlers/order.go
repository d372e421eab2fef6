package handlers

import (
	"context"
	"errors"
	"net/http"

	"checkout-svc/middleware"
	"checkout-svc/models"
	"checkout-svc/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderService is the lifecycle the handlers expose over HTTP.
type OrderService interface {
	CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.CreateOrderResponse, error)
	VerifyPayment(ctx context.Context, req models.VerifyPaymentRequest) (*models.VerifyPaymentResponse, error)
	AttachTracking(ctx context.Context, req models.SendTrackingRequest) (*models.SendTrackingResponse, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
}

type OrderHandler struct {
	svc    OrderService
	logger *zap.Logger
}

func NewOrderHandler(svc OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		svc:    svc,
		logger: logger,
	}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	ctx, span := otel.Tracer("checkout-service").Start(c.Request.Context(), "POST /api/create-order")
	defer span.End()

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields", "details": err.Error()})
		return
	}

	resp, err := h.svc.CreateOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		h.writeError(c, err, "Failed to create order")
		return
	}

	span.SetAttributes(attribute.String("razorpay.order_id", resp.OrderID))
	c.JSON(http.StatusOK, resp)
}

func (h *OrderHandler) VerifyPayment(c *gin.Context) {
	ctx, span := otel.Tracer("checkout-service").Start(c.Request.Context(), "POST /api/verify-payment")
	defer span.End()

	var req models.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing payment details", "details": err.Error()})
		return
	}

	resp, err := h.svc.VerifyPayment(ctx, req)
	if err != nil {
		span.RecordError(err)
		h.writeError(c, err, "Failed to verify payment")
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *OrderHandler) SendTracking(c *gin.Context) {
	ctx, span := otel.Tracer("checkout-service").Start(c.Request.Context(), "POST /api/send-tracking")
	defer span.End()

	var req models.SendTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Order ID is required", "details": err.Error()})
		return
	}

	resp, err := h.svc.AttachTracking(ctx, req)
	if err != nil {
		span.RecordError(err)
		h.writeError(c, err, "Failed to send tracking email")
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	ctx, span := otel.Tracer("checkout-service").Start(c.Request.Context(), "GET /api/order/:orderId")
	defer span.End()

	id := c.Param("orderId")
	span.SetAttributes(attribute.String("order.lookup_id", id))

	order, err := h.svc.GetOrder(ctx, id)
	if err != nil {
		h.writeError(c, err, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, order)
}

// writeError maps a service failure onto the response body. Server-side
// failures carry the cause in "details" and, for gateway errors, the
// upstream "statusCode".
func (h *OrderHandler) writeError(c *gin.Context, err error, fallback string) {
	_ = c.Error(err)

	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		h.logger.Error(fallback,
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback, "details": err.Error()})
		return
	}

	status := svcErr.HTTPStatus()
	body := gin.H{"error": svcErr.Message}
	if status >= http.StatusInternalServerError {
		if svcErr.Details != "" {
			body["details"] = svcErr.Details
		}
		if svcErr.UpstreamStatus != 0 {
			body["statusCode"] = svcErr.UpstreamStatus
		}
	}
	c.JSON(status, body)
}
