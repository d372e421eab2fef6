package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"checkout-svc/circuitbreaker"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MaxReceiptLength is the longest receipt Razorpay accepts on order creation.
const MaxReceiptLength = 40

var ErrMissingCredentials = errors.New("razorpay key_id or key_secret is missing")

type CreateOrderRequest struct {
	Amount   int64             `json:"amount"` // minor currency units
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type Order struct {
	ID       string `json:"id"`
	Entity   string `json:"entity"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("razorpay: %d %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("razorpay: unexpected status %d", e.StatusCode)
}

// Client mints gateway orders.
type Client interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
}

type RazorpayClient struct {
	baseURL        string
	keyID          string
	keySecret      string
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *zap.Logger
}

func NewRazorpayClient(
	baseURL, keyID, keySecret string,
	timeout time.Duration,
	breaker *circuitbreaker.CircuitBreaker,
	logger *zap.Logger,
) *RazorpayClient {
	return &RazorpayClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		circuitBreaker: breaker,
		logger:         logger,
	}
}

// IsUpstreamFailure tells the circuit breaker which errors say something about
// gateway health. 4xx answers are caller problems and do not count.
func IsUpstreamFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return err != nil && !errors.Is(err, ErrMissingCredentials)
}

func (rc *RazorpayClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	ctx, span := otel.Tracer("checkout-service").Start(ctx, "razorpay.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("amount", req.Amount),
		attribute.String("currency", req.Currency),
		attribute.String("receipt", req.Receipt),
	)

	if rc.keyID == "" || rc.keySecret == "" {
		return nil, ErrMissingCredentials
	}

	var order *Order
	err := rc.circuitBreaker.Execute(ctx, func() error {
		var err error
		order, err = rc.createOrder(ctx, req)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("razorpay.order_id", order.ID))
	return order, nil
}

func (rc *RazorpayClient) createOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build order request: %w", err)
	}
	httpReq.SetBasicAuth(rc.keyID, rc.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := rc.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call razorpay: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read razorpay response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &errBody) == nil {
			apiErr.Code = errBody.Error.Code
			apiErr.Description = errBody.Error.Description
		}
		rc.logger.Warn("Razorpay rejected order creation",
			zap.Int("status", apiErr.StatusCode),
			zap.String("code", apiErr.Code),
			zap.String("description", apiErr.Description),
		)
		return nil, apiErr
	}

	var order Order
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, fmt.Errorf("failed to decode razorpay order: %w", err)
	}
	if order.ID == "" {
		return nil, errors.New("razorpay returned an order without id")
	}
	return &order, nil
}
