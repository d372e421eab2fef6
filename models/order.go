package models

import "time"

type OrderStatus string

const (
	OrderStatusCreated OrderStatus = "created"
	OrderStatusPaid    OrderStatus = "paid"
)

type Item struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

// Order is the only entity the service keeps. It lives until the process exits.
type Order struct {
	OrderID         string      `json:"orderId"`
	RazorpayOrderID string      `json:"razorpayOrderId"`
	Receipt         string      `json:"receipt"`
	Amount          float64     `json:"amount"`
	Currency        string      `json:"currency"`
	Items           []Item      `json:"items"`
	Customer        Customer    `json:"customer"`
	Status          OrderStatus `json:"status"`
	PaymentID       string      `json:"paymentId,omitempty"`
	TrackingID      string      `json:"trackingId,omitempty"`
	TrackingURL     string      `json:"trackingUrl,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	PaidAt          *time.Time  `json:"paidAt,omitempty"`
}

// Clone returns a deep copy so stored orders are never shared with callers.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	if o.PaidAt != nil {
		paidAt := *o.PaidAt
		c.PaidAt = &paidAt
	}
	return &c
}

type CreateOrderRequest struct {
	Amount   float64   `json:"amount"`
	Currency string    `json:"currency"`
	Items    []Item    `json:"items"`
	Customer *Customer `json:"customer"`
}

type CreateOrderResponse struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Key      string `json:"key"`
}

type VerifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

type VerifyPaymentResponse struct {
	Success    bool   `json:"success"`
	OrderID    string `json:"orderId"`
	PaymentID  string `json:"paymentId"`
	TrackingID string `json:"trackingId"`
	Message    string `json:"message"`
}

type SendTrackingRequest struct {
	OrderID     string `json:"orderId"`
	TrackingID  string `json:"trackingId"`
	TrackingURL string `json:"trackingUrl"`
}

type SendTrackingResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type OrderEvent struct {
	OrderID         string      `json:"order_id"`
	RazorpayOrderID string      `json:"razorpay_order_id"`
	Amount          float64     `json:"amount"`
	Currency        string      `json:"currency"`
	Status          OrderStatus `json:"status"`
	PaymentID       string      `json:"payment_id,omitempty"`
	TrackingID      string      `json:"tracking_id,omitempty"`
	TrackingURL     string      `json:"tracking_url,omitempty"`
	EventType       string      `json:"event_type"` // order_created, order_paid, tracking_updated
}

const (
	EventOrderCreated    = "order_created"
	EventOrderPaid       = "order_paid"
	EventTrackingUpdated = "tracking_updated"
)

// NewOrderEvent builds the lifecycle event published for an order.
func NewOrderEvent(eventType string, o *Order) OrderEvent {
	return OrderEvent{
		OrderID:         o.OrderID,
		RazorpayOrderID: o.RazorpayOrderID,
		Amount:          o.Amount,
		Currency:        o.Currency,
		Status:          o.Status,
		PaymentID:       o.PaymentID,
		TrackingID:      o.TrackingID,
		TrackingURL:     o.TrackingURL,
		EventType:       eventType,
	}
}
