package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"checkout-svc/gateway"
	"checkout-svc/models"
	"checkout-svc/notification"
	"checkout-svc/service"
	"checkout-svc/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const testSecret = "rzp_test_secret"

// Mock gateway client for testing.
type mockGateway struct {
	err  error
	next int
}

func (m *mockGateway) CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.next++
	return &gateway.Order{
		ID:       fmt.Sprintf("order_gw_%d", m.next),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

// Mock notifier that records the kinds it was asked to send.
type mockNotifier struct {
	kinds []notification.Kind
	err   error
}

func (m *mockNotifier) Send(ctx context.Context, kind notification.Kind, order *models.Order) error {
	m.kinds = append(m.kinds, kind)
	return m.err
}

type mockPublisher struct{}

func (mockPublisher) Publish(context.Context, models.OrderEvent) error { return nil }

type orderTest struct {
	router   *gin.Engine
	gateway  *mockGateway
	notifier *mockNotifier
}

func newRouter(h *OrderHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/create-order", h.CreateOrder)
	router.POST("/api/verify-payment", h.VerifyPayment)
	router.POST("/api/send-tracking", h.SendTracking)
	router.GET("/api/order/:orderId", h.GetOrder)
	return router
}

func setupOrderTest(t *testing.T, keyID, keySecret string) *orderTest {
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	gw := &mockGateway{}
	notifier := &mockNotifier{}
	svc := service.NewOrderService(store.NewMemoryStore(), gw, notifier, mockPublisher{}, keyID, keySecret, logger)

	return &orderTest{
		router:   newRouter(NewOrderHandler(svc, logger)),
		gateway:  gw,
		notifier: notifier,
	}
}

func (o *orderTest) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	o.router.ServeHTTP(w, req)
	return w
}

func createBody() gin.H {
	return gin.H{
		"amount":   100,
		"currency": "INR",
		"items":    []gin.H{{"name": "Organic Honey", "price": 100, "quantity": 1}},
		"customer": gin.H{"name": "Asha Rao", "email": "asha@example.com", "phone": "9876543210"},
	}
}

func (o *orderTest) createOrder(t *testing.T) models.CreateOrderResponse {
	t.Helper()
	w := o.do("POST", "/api/create-order", createBody())
	if w.Code != http.StatusOK {
		t.Fatalf("create-order: expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var resp models.CreateOrderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	return resp
}

func assertBody(t *testing.T, w *httptest.ResponseRecorder, expected string) {
	t.Helper()
	if w.Body.String() != expected {
		t.Errorf("Expected body %s, got %s", expected, w.Body.String())
	}
}

func TestCreateOrder_Success(t *testing.T) {
	o := setupOrderTest(t, "rzp_test_key", testSecret)

	resp := o.createOrder(t)

	if resp.OrderID != "order_gw_1" {
		t.Errorf("Expected orderId order_gw_1, got %s", resp.OrderID)
	}
	if resp.Amount != 10000 {
		t.Errorf("Expected amount 10000 paise, got %d", resp.Amount)
	}
	if resp.Currency != "INR" {
		t.Errorf("Expected currency INR, got %s", resp.Currency)
	}
	if resp.Key != "rzp_test_key" {
		t.Errorf("Expected key rzp_test_key, got %s", resp.Key)
	}
}

func TestCreateOrder_MissingFields(t *testing.T) {
	o := setupOrderTest(t, "rzp_test_key", testSecret)

	body := createBody()
	delete(body, "items")
	w := o.do("POST", "/api/create-order", body)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	assertBody(t, w, `{"error":"Missing required fields"}`)
}

func TestCreateOrder_InvalidJSON(t *testing.T) {
	o := setupOrderTest(t, "rzp_test_key", testSecret)

	req := httptest.NewRequest("POST", "/api/create-order", strings.NewReader(`{"amount":`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	o.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if body["error"] != "Missing required fields" {
		t.Errorf("Expected error %q, got %v", "Missing required fields", body["error"])
	}
	if body["details"] == nil {
		t.Error("Expected details to carry the decode error")
	}
}

func TestCreateOrder_NotConfigured(t *testing.T) {
	o := setupOrderTest(t, "", "")

	w := o.do("POST", "/api/create-order", createBody())

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	assertBody(t, w, `{"details":"Please add RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET to your .env file","error":"Razorpay not configured"}`)
}

func TestCreateOrder_GatewayUnauthorized(t *testing.T) {
	o := setupOrderTest(t, "rzp_test_key", testSecret)
	o.gateway.err = &gateway.APIError{StatusCode: 401, Code: "BAD_REQUEST_ERROR", Description: "Authentication failed"}

	w := o.do("POST", "/api/create-order", createBody())

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if body["error"] != "Invalid Razorpay credentials. Please check your API keys." {
		t.Errorf("Unexpected error message: %v", body["error"])
	}
	if body["statusCode"] != float64(401) {
		t.Errorf("Expected statusCode 401, got %v", body["statusCode"])
	}
	if body["details"] == nil {
		t.Error("Expected details to be present")
	}
}

func TestCreateOrder_GatewayRejected(t *testing.T) {
	o := setupOrderTest(t, "rzp_test_key", testSecret)
	o.gateway.err = &gateway.APIError{StatusCode: 400, Description: "Order amount exceeds maximum amount allowed."}

	w := o.do("POST", "/api/create-order", createBody())

	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status %d, got %d", http.StatusBadGateway, w.Code)
	}
}

func TestVerifyPayment_FullFlow(t *testing.T) {
	o := setupOrderTest(t, "rzp_test_key", testSecret)
	created := o.createOrder(t)

	w := o.do("POST", "/api/verify-payment", models.VerifyPaymentRequest{
		RazorpayOrderID:   created.OrderID,
		RazorpayPaymentID: "pay_001",
		RazorpaySignature: gateway.Sign(created.OrderID, "pay_001", testSecret),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var verified models.VerifyPaymentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &verified); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if !verified.Success || verified.PaymentID != "pay_001" || !strings.HasPrefix(verified.TrackingID, "TRK") {
		t.Errorf("Unexpected verify response: %+v", verified)
	}

	w = o.do("GET", "/api/order/"+verified.OrderID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var order models.Order
	if err := json.Unmarshal(w.Body.Bytes(), &order); err != nil {
		t.Fatalf("Failed to unmarshal order: %v", err)
	}
	if order.Status != models.OrderStatusPaid {
		t.Errorf("Expected status paid, got %s", order.Status)
	}
	if order.RazorpayOrderID != created.OrderID {
		t.Errorf("Expected razorpayOrderId %s, got %s", created.OrderID, order.RazorpayOrderID)
	}
	if len(o.notifier.kinds) != 1 || o.notifier.kinds[0] != notification.KindConfirmation {
		t.Errorf("Expected one confirmation email, got %v", o.notifier.kinds)
	}
}

func TestVerifyPayment_TamperedSignature(t *testing.T) {
	o := setupOrderTest(t, "rzp_test_key", testSecret)
	created := o.createOrder(t)

	signature := []byte(gateway.Sign(created.OrderID, "pay_001", testSecret))
	if signature[0] == 'a' {
		signature[0] = 'b'
	} else {
		signature[0] = 'a'
	}

	w := o.do("POST", "/api/verify-payment", models.VerifyPaymentRequest{
		RazorpayOrderID:   created.OrderID,
		RazorpayPaymentID: "pay_001",
		RazorpaySignature: string(signature),
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	assertBody(t, w, `{"error":"Invalid payment signature"}`)

	w = o.do("GET", "/api/order/"+created.OrderID, nil)
	var order models.Order
	if err := json.Unmarshal(w.Body.Bytes(), &order); err != nil {
		t.Fatalf("Failed to unmarshal order: %v", err)
	}
	if order.Status != models.OrderStatusCreated {
		t.Errorf("Expected status created, got %s", order.Status)
	}
	if len(o.notifier.kinds) != 0 {
		t.Errorf("Expected no emails, got %v", o.notifier.kinds)
	}
}

func TestVerifyPayment_MissingDetails(t *testing.T) {
	o := setupOrderTest(t, "rzp_test_key", testSecret)

	w := o.do("POST", "/api/verify-payment", gin.H{"razorpay_order_id": "order_gw_1"})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	assertBody(t, w, `{"error":"Missing payment details"}`)
}

func TestVerifyPayment_EmptyBody(t *testing.T) {
	o := setupOrderTest(t, "rzp_test_key", testSecret)

	w := o.do("POST", "/api/verify-payment", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	assertBody(t, w, `{"details":"EOF","error":"Missing payment details"}`)
}

func TestVerifyPayment_WrongFieldType(t *testing.T) {
	o := setupOrderTest(t, "rzp_test_key", testSecret)

	w := o.do("POST", "/api/verify-payment", gin.H{
		"razorpay_order_id":   12345,
		"razorpay_payment_id": "pay_001",
		"razorpay_signature":  "abc",
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if body["error"] != "Missing payment details" {
		t.Errorf("Expected error %q, got %v", "Missing payment details", body["error"])
	}
	if details, _ := body["details"].(string); !strings.Contains(details, "razorpay_order_id") {
		t.Errorf("Expected details to name the bad field, got %q", details)
	}
}

func TestSendTracking_EmptyBody(t *testing.T) {
	o := setupOrderTest(t, "rzp_test_key", testSecret)

	w := o.do("POST", "/api/send-tracking", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	assertBody(t, w, `{"details":"EOF","error":"Order ID is required"}`)
}

func TestVerifyPayment_OrderNotFound(t *testing.T) {
	o := setupOrderTest(t, "rzp_test_key", testSecret)

	w := o.do("POST", "/api/verify-payment", models.VerifyPaymentRequest{
		RazorpayOrderID:   "order_unknown",
		RazorpayPaymentID: "pay_001",
		RazorpaySignature: gateway.Sign("order_unknown", "pay_001", testSecret),
	})

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	assertBody(t, w, `{"error":"Order not found"}`)
}

func TestSendTracking_Success(t *testing.T) {
	o := setupOrderTest(t, "rzp_test_key", testSecret)
	created := o.createOrder(t)

	w := o.do("GET", "/api/order/"+created.OrderID, nil)
	var order models.Order
	if err := json.Unmarshal(w.Body.Bytes(), &order); err != nil {
		t.Fatalf("Failed to unmarshal order: %v", err)
	}

	w = o.do("POST", "/api/send-tracking", models.SendTrackingRequest{
		OrderID:     order.OrderID,
		TrackingID:  "DTDC998877",
		TrackingURL: "https://track.example.com/DTDC998877",
	})

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	assertBody(t, w, `{"success":true,"message":"Tracking email sent successfully"}`)
}

func TestSendTracking_MissingOrderID(t *testing.T) {
	o := setupOrderTest(t, "rzp_test_key", testSecret)

	w := o.do("POST", "/api/send-tracking", gin.H{"trackingId": "X"})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	assertBody(t, w, `{"error":"Order ID is required"}`)
}

func TestSendTracking_NotFound(t *testing.T) {
	o := setupOrderTest(t, "rzp_test_key", testSecret)

	w := o.do("POST", "/api/send-tracking", gin.H{"orderId": "order_missing", "trackingId": "X"})

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	assertBody(t, w, `{"error":"Order not found"}`)
}

func TestSendTracking_EmailFailure(t *testing.T) {
	o := setupOrderTest(t, "rzp_test_key", testSecret)
	created := o.createOrder(t)

	w := o.do("GET", "/api/order/"+created.OrderID, nil)
	var order models.Order
	if err := json.Unmarshal(w.Body.Bytes(), &order); err != nil {
		t.Fatalf("Failed to unmarshal order: %v", err)
	}

	o.notifier.err = errors.New("smtp: connection reset")
	w = o.do("POST", "/api/send-tracking", gin.H{"orderId": order.OrderID, "trackingId": "X"})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	assertBody(t, w, `{"details":"smtp: connection reset","error":"Failed to send tracking email"}`)
}

func TestGetOrder_NotFound(t *testing.T) {
	o := setupOrderTest(t, "rzp_test_key", testSecret)

	w := o.do("GET", "/api/order/nonexistent", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	assertBody(t, w, `{"error":"Order not found"}`)
}

// Mock service returning an error that is not a *service.Error.
type brokenService struct{}

func (brokenService) CreateOrder(context.Context, models.CreateOrderRequest) (*models.CreateOrderResponse, error) {
	return nil, errors.New("boom")
}

func (brokenService) VerifyPayment(context.Context, models.VerifyPaymentRequest) (*models.VerifyPaymentResponse, error) {
	return nil, errors.New("boom")
}

func (brokenService) AttachTracking(context.Context, models.SendTrackingRequest) (*models.SendTrackingResponse, error) {
	return nil, errors.New("boom")
}

func (brokenService) GetOrder(context.Context, string) (*models.Order, error) {
	return nil, errors.New("boom")
}

func TestVerifyPayment_UnexpectedError(t *testing.T) {
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	o := &orderTest{router: newRouter(NewOrderHandler(brokenService{}, logger))}

	w := o.do("POST", "/api/verify-payment", gin.H{})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	assertBody(t, w, `{"details":"boom","error":"Failed to verify payment"}`)
}
