package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher records events to the log instead of a broker. Used when no
// Kafka brokers are configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates the fallback publisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event and succeeds.
func (p *LogPublisher) Publish(_ context.Context, eventType string, payload any) error {
	p.logger.Info("notification event", zap.String("type", eventType), zap.Any("payload", payload))
	return nil
}
