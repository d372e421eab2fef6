package notification

import (
	"context"
	"errors"
	"fmt"

	"checkout-svc/middleware"
	"checkout-svc/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var ErrNoRecipient = errors.New("order has no customer email")

// Dispatcher renders order emails and hands them to a Transport. It does not
// retry; callers decide whether a failed send matters.
type Dispatcher struct {
	transport Transport
	from      string
	logger    *zap.Logger
}

func NewDispatcher(transport Transport, from string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		from:      from,
		logger:    logger,
	}
}

func (d *Dispatcher) Send(ctx context.Context, kind Kind, order *models.Order) error {
	ctx, span := otel.Tracer("checkout-service").Start(ctx, "notification.Send")
	defer span.End()

	span.SetAttributes(
		attribute.String("notification.kind", string(kind)),
		attribute.String("order.id", order.OrderID),
	)

	err := d.send(ctx, kind, order)
	if err != nil {
		span.RecordError(err)
		middleware.RecordNotificationSent(string(kind), "failed")
		return err
	}

	middleware.RecordNotificationSent(string(kind), "sent")
	d.logger.Info("Email sent",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("kind", string(kind)),
		zap.String("order_id", order.OrderID),
		zap.String("to", order.Customer.Email),
	)
	return nil
}

func (d *Dispatcher) send(ctx context.Context, kind Kind, order *models.Order) error {
	if order.Customer.Email == "" {
		return ErrNoRecipient
	}

	subject, body, err := Render(kind, order)
	if err != nil {
		return err
	}

	msg := Message{
		From:    d.from,
		To:      order.Customer.Email,
		Subject: subject,
		HTML:    body,
	}
	if err := d.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}
	return nil
}
