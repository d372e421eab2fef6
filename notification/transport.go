package notification

import (
	"context"

	"go.uber.org/zap"
)

type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Transport delivers a rendered message. Implementations do not retry.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// LogTransport writes messages to the log instead of delivering them. It is
// what the service falls back to when no mail credentials are configured.
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, msg Message) error {
	t.logger.Info("[EMAIL] not delivered, no mail transport configured",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.HTML)),
	)
	return nil
}
