package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"checkout-svc/circuitbreaker"
	"checkout-svc/gateway"
	"checkout-svc/kafka"
	"checkout-svc/middleware"
	"checkout-svc/models"
	"checkout-svc/notification"
	"checkout-svc/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const defaultCurrency = "INR"

var errPaymentConflict = errors.New("order already paid with a different payment id")

// Notifier sends order emails.
type Notifier interface {
	Send(ctx context.Context, kind notification.Kind, order *models.Order) error
}

// OrderService drives an order through created -> paid and tracking updates.
type OrderService struct {
	store     store.OrderStore
	gateway   gateway.Client
	notifier  Notifier
	publisher kafka.Publisher
	keyID     string
	keySecret string
	now       func() time.Time
	newID     func() string
	logger    *zap.Logger
}

type Option func(*OrderService)

func WithClock(now func() time.Time) Option {
	return func(s *OrderService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *OrderService) { s.newID = newID }
}

func NewOrderService(
	orderStore store.OrderStore,
	gatewayClient gateway.Client,
	notifier Notifier,
	publisher kafka.Publisher,
	keyID, keySecret string,
	logger *zap.Logger,
	opts ...Option,
) *OrderService {
	s := &OrderService{
		store:     orderStore,
		gateway:   gatewayClient,
		notifier:  notifier,
		publisher: publisher,
		keyID:     keyID,
		keySecret: keySecret,
		now:       time.Now,
		newID:     func() string { return "order_" + uuid.NewString() },
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *OrderService) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.CreateOrderResponse, error) {
	ctx, span := otel.Tracer("checkout-service").Start(ctx, "CreateOrder")
	defer span.End()

	if s.keyID == "" || s.keySecret == "" {
		e := newError(KindGatewayNotConfigured, "Razorpay not configured")
		e.Details = "Please add RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET to your .env file"
		return nil, e
	}

	if err := validateCreateOrder(req); err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	minorAmount := int64(math.Round(req.Amount * 100))

	span.SetAttributes(
		attribute.Float64("amount", req.Amount),
		attribute.Int64("amount.minor", minorAmount),
		attribute.String("currency", currency),
		attribute.Int("items.count", len(req.Items)),
	)

	itemsJSON, err := json.Marshal(req.Items)
	if err != nil {
		return nil, wrapError(KindInvalidRequest, "Invalid items", err)
	}

	now := s.now()
	gatewayReq := gateway.CreateOrderRequest{
		Amount:   minorAmount,
		Currency: currency,
		Receipt:  NewReceipt(now),
		Notes: map[string]string{
			"items":          string(itemsJSON),
			"customer_email": req.Customer.Email,
			"customer_name":  req.Customer.Name,
			"customer_phone": req.Customer.Phone,
		},
	}

	traceID := middleware.GetTraceID(ctx)
	s.logger.Info("Creating Razorpay order",
		zap.String("trace_id", traceID),
		zap.Int64("amount_paise", minorAmount),
		zap.String("receipt", gatewayReq.Receipt),
	)

	gwOrder, err := s.gateway.CreateOrder(ctx, gatewayReq)
	if err != nil {
		span.RecordError(err)
		middleware.RecordOrderCreated("failed")
		s.logger.Error("Error creating order", zap.String("trace_id", traceID), zap.Error(err))
		return nil, classifyGatewayError(err)
	}

	if gwOrder.Currency == "" {
		gwOrder.Currency = currency
	}
	if gwOrder.Amount == 0 {
		gwOrder.Amount = minorAmount
	}

	order := &models.Order{
		OrderID:         s.newID(),
		RazorpayOrderID: gwOrder.ID,
		Receipt:         gatewayReq.Receipt,
		Amount:          req.Amount,
		Currency:        gwOrder.Currency,
		Items:           append([]models.Item(nil), req.Items...),
		Customer:        *req.Customer,
		Status:          models.OrderStatusCreated,
		CreatedAt:       now,
	}
	s.store.Put(order)

	span.SetAttributes(
		attribute.String("order.id", order.OrderID),
		attribute.String("razorpay.order_id", order.RazorpayOrderID),
	)
	middleware.RecordOrderCreated("success")
	s.logger.Info("Order created",
		zap.String("trace_id", traceID),
		zap.String("order_id", order.OrderID),
		zap.String("razorpay_order_id", order.RazorpayOrderID),
	)
	s.publish(ctx, models.EventOrderCreated, order)

	return &models.CreateOrderResponse{
		OrderID:  gwOrder.ID,
		Amount:   gwOrder.Amount,
		Currency: gwOrder.Currency,
		Key:      s.keyID,
	}, nil
}

func validateCreateOrder(req models.CreateOrderRequest) error {
	if req.Amount == 0 || len(req.Items) == 0 || req.Customer == nil {
		return newError(KindInvalidRequest, "Missing required fields")
	}
	if req.Amount < 1 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return newError(KindInvalidRequest, "Invalid amount. Minimum amount is ₹1")
	}
	// float64(math.MaxInt64) is 2^63, so >= also rejects the boundary.
	if math.Round(req.Amount*100) >= math.MaxInt64 {
		return newError(KindInvalidRequest, "Invalid amount")
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.Name) == "" || item.Quantity <= 0 || item.Price < 0 {
			e := newError(KindInvalidRequest, "Invalid items")
			e.Details = fmt.Sprintf("item %d needs a name, a positive quantity and a non-negative price", i)
			return e
		}
	}
	if strings.TrimSpace(req.Customer.Name) == "" || strings.TrimSpace(req.Customer.Email) == "" {
		return newError(KindInvalidRequest, "Customer name and email are required")
	}
	return nil
}

func classifyGatewayError(err error) *Error {
	var apiErr *gateway.APIError
	isAPIErr := errors.As(err, &apiErr)

	var e *Error
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		e = wrapError(KindOrderCreationFailed, "Payment gateway temporarily unavailable", err)
	case isAPIErr && apiErr.StatusCode == http.StatusUnauthorized:
		e = wrapError(KindUpstreamAuthFailure, "Invalid Razorpay credentials. Please check your API keys.", err)
	case isAPIErr && apiErr.StatusCode == http.StatusBadRequest:
		msg := apiErr.Description
		if msg == "" {
			msg = "Invalid request to Razorpay"
		}
		e = wrapError(KindUpstreamRejected, msg, err)
	case errors.Is(err, gateway.ErrMissingCredentials),
		strings.Contains(err.Error(), "key_id"),
		strings.Contains(err.Error(), "key_secret"):
		e = wrapError(KindUpstreamAuthFailure, "Razorpay API keys are missing or invalid. Please check your .env file.", err)
	default:
		e = wrapError(KindOrderCreationFailed, "Failed to create order", err)
	}

	if isAPIErr {
		e.UpstreamStatus = apiErr.StatusCode
	}
	return e
}

func (s *OrderService) VerifyPayment(ctx context.Context, req models.VerifyPaymentRequest) (*models.VerifyPaymentResponse, error) {
	ctx, span := otel.Tracer("checkout-service").Start(ctx, "VerifyPayment")
	defer span.End()

	if req.RazorpayOrderID == "" || req.RazorpayPaymentID == "" || req.RazorpaySignature == "" {
		return nil, newError(KindInvalidRequest, "Missing payment details")
	}

	span.SetAttributes(
		attribute.String("razorpay.order_id", req.RazorpayOrderID),
		attribute.String("razorpay.payment_id", req.RazorpayPaymentID),
	)
	traceID := middleware.GetTraceID(ctx)

	// Nothing is read or written before the callback is authenticated.
	if !gateway.VerifySignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature, s.keySecret) {
		middleware.RecordPaymentVerified("signature_mismatch")
		s.logger.Warn("Invalid payment signature",
			zap.String("trace_id", traceID),
			zap.String("razorpay_order_id", req.RazorpayOrderID),
		)
		return nil, newError(KindSignatureMismatch, "Invalid payment signature")
	}

	alreadyPaid := false
	order, err := s.store.Mutate(req.RazorpayOrderID, func(o *models.Order) error {
		if o.Status == models.OrderStatusPaid {
			if o.PaymentID != req.RazorpayPaymentID {
				return errPaymentConflict
			}
			alreadyPaid = true
			return nil
		}

		paidAt := s.now()
		o.Status = models.OrderStatusPaid
		o.PaymentID = req.RazorpayPaymentID
		o.PaidAt = &paidAt
		o.TrackingID = NewTrackingID(paidAt)
		return nil
	})
	switch {
	case errors.Is(err, store.ErrOrderNotFound):
		middleware.RecordPaymentVerified("order_not_found")
		return nil, wrapError(KindOrderNotFound, "Order not found", err)
	case errors.Is(err, errPaymentConflict):
		middleware.RecordPaymentVerified("conflict")
		s.logger.Warn("Order already paid with another payment",
			zap.String("trace_id", traceID),
			zap.String("razorpay_order_id", req.RazorpayOrderID),
			zap.String("payment_id", req.RazorpayPaymentID),
		)
		return nil, wrapError(KindPaymentConflict, "Order already paid", err)
	case err != nil:
		span.RecordError(err)
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}

	span.SetAttributes(attribute.String("order.id", order.OrderID), attribute.Bool("already_paid", alreadyPaid))

	if alreadyPaid {
		middleware.RecordPaymentVerified("duplicate")
		s.logger.Info("Payment already verified",
			zap.String("trace_id", traceID),
			zap.String("order_id", order.OrderID),
			zap.String("payment_id", order.PaymentID),
		)
		return &models.VerifyPaymentResponse{
			Success:    true,
			OrderID:    order.OrderID,
			PaymentID:  order.PaymentID,
			TrackingID: order.TrackingID,
			Message:    "Payment already verified",
		}, nil
	}

	middleware.RecordPaymentVerified("verified")
	s.logger.Info("Payment verified",
		zap.String("trace_id", traceID),
		zap.String("order_id", order.OrderID),
		zap.String("payment_id", order.PaymentID),
		zap.String("tracking_id", order.TrackingID),
	)

	message := "Payment verified and confirmation email sent"
	// The payment stands even if the customer never gets the email.
	if err := s.notifier.Send(ctx, notification.KindConfirmation, order); err != nil {
		span.RecordError(err)
		s.logger.Error("Error sending confirmation email",
			zap.String("trace_id", traceID),
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
		message = "Payment verified"
	}

	s.publish(ctx, models.EventOrderPaid, order)

	return &models.VerifyPaymentResponse{
		Success:    true,
		OrderID:    order.OrderID,
		PaymentID:  order.PaymentID,
		TrackingID: order.TrackingID,
		Message:    message,
	}, nil
}

func (s *OrderService) AttachTracking(ctx context.Context, req models.SendTrackingRequest) (*models.SendTrackingResponse, error) {
	ctx, span := otel.Tracer("checkout-service").Start(ctx, "AttachTracking")
	defer span.End()

	if req.OrderID == "" {
		return nil, newError(KindInvalidRequest, "Order ID is required")
	}
	span.SetAttributes(attribute.String("order.id", req.OrderID))
	traceID := middleware.GetTraceID(ctx)

	order, err := s.store.MutateByInternalID(req.OrderID, func(o *models.Order) error {
		if req.TrackingID != "" {
			o.TrackingID = req.TrackingID
		}
		o.TrackingURL = req.TrackingURL
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return nil, wrapError(KindOrderNotFound, "Order not found", err)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to update tracking: %w", err)
	}

	s.publish(ctx, models.EventTrackingUpdated, order)

	// Here the email is the whole point, so its failure is the caller's failure.
	if err := s.notifier.Send(ctx, notification.KindTracking, order); err != nil {
		span.RecordError(err)
		s.logger.Error("Error sending tracking email",
			zap.String("trace_id", traceID),
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
		return nil, wrapError(KindNotificationFailed, "Failed to send tracking email", err)
	}

	s.logger.Info("Tracking email sent",
		zap.String("trace_id", traceID),
		zap.String("order_id", order.OrderID),
		zap.String("tracking_id", order.TrackingID),
	)
	return &models.SendTrackingResponse{
		Success: true,
		Message: "Tracking email sent successfully",
	}, nil
}

// GetOrder looks the order up by internal id first, then by gateway id.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	_, span := otel.Tracer("checkout-service").Start(ctx, "GetOrder")
	defer span.End()

	span.SetAttributes(attribute.String("order.lookup_id", id))

	if order, err := s.store.GetByInternalID(id); err == nil {
		return order, nil
	}
	order, err := s.store.GetByGatewayID(id)
	if err != nil {
		return nil, wrapError(KindOrderNotFound, "Order not found", err)
	}
	return order, nil
}

// Ready reports whether the service can take payments.
func (s *OrderService) Ready() bool {
	return s.keyID != "" && s.keySecret != ""
}

func (s *OrderService) publish(ctx context.Context, eventType string, order *models.Order) {
	if err := s.publisher.Publish(ctx, models.NewOrderEvent(eventType, order)); err != nil {
		s.logger.Error("Failed to publish order event",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("event_type", eventType),
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
	}
}

const base36 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = base36[rand.IntN(len(base36))]
	}
	return string(b)
}

// NewReceipt returns a gateway receipt: a millisecond timestamp plus a short
// random suffix, never longer than gateway.MaxReceiptLength.
func NewReceipt(now time.Time) string {
	receipt := fmt.Sprintf("K2K%d%s", now.UnixMilli(), randomSuffix(6))
	if len(receipt) > gateway.MaxReceiptLength {
		receipt = receipt[:gateway.MaxReceiptLength]
	}
	return receipt
}

func NewTrackingID(now time.Time) string {
	return fmt.Sprintf("TRK%d%s", now.UnixMilli(), randomSuffix(5))
}
