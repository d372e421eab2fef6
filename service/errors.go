package service

import (
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindInvalidRequest       ErrorKind = "InvalidRequest"
	KindGatewayNotConfigured ErrorKind = "GatewayNotConfigured"
	KindUpstreamAuthFailure  ErrorKind = "UpstreamAuthFailure"
	KindUpstreamRejected     ErrorKind = "UpstreamRejected"
	KindOrderCreationFailed  ErrorKind = "OrderCreationFailed"
	KindSignatureMismatch    ErrorKind = "SignatureMismatch"
	KindOrderNotFound        ErrorKind = "OrderNotFound"
	KindPaymentConflict      ErrorKind = "PaymentConflict"
	KindNotificationFailed   ErrorKind = "NotificationFailed"
)

var kindStatus = map[ErrorKind]int{
	KindInvalidRequest:       http.StatusBadRequest,
	KindGatewayNotConfigured: http.StatusInternalServerError,
	KindUpstreamAuthFailure:  http.StatusInternalServerError,
	KindUpstreamRejected:     http.StatusBadGateway,
	KindOrderCreationFailed:  http.StatusInternalServerError,
	KindSignatureMismatch:    http.StatusBadRequest,
	KindOrderNotFound:        http.StatusNotFound,
	KindPaymentConflict:      http.StatusConflict,
	KindNotificationFailed:   http.StatusInternalServerError,
}

// Error is what every OrderService operation fails with. Message is safe to
// show to the client; Details carries the underlying cause.
type Error struct {
	Kind           ErrorKind
	Message        string
	Details        string
	UpstreamStatus int
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) HTTPStatus() int {
	if status, ok := kindStatus[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind ErrorKind, message string, err error) *Error {
	e := &Error{Kind: kind, Message: message, Err: err}
	if err != nil {
		e.Details = err.Error()
	}
	return e
}
