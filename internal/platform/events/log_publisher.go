package events

import (
	"context"

	"go.uber.org/zap"

	domain "github.com/tailorline/storefront/internal/domain"
)

// LogPublisher writes events to the structured log. It is the local development transport.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher returns a publisher that logs every event at info level.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("notifications")}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.OrderEvent) error {
	p.logger.Info("order event",
		zap.String("eventId", event.ID),
		zap.String("eventType", event.Type),
		zap.String("orderId", event.OrderID),
		zap.String("userId", event.UserID),
		zap.String("status", string(event.Status)),
		zap.String("itemId", event.ItemID),
		zap.String("totalPrice", event.TotalPrice.String()),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
