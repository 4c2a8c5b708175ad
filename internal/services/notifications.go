package services

import (
	"context"
	"time"

	domain "github.com/tailorline/storefront/internal/domain"
)

const defaultNotificationTimeout = 5 * time.Second

// notifier publishes order events without ever failing the operation that produced them.
type notifier struct {
	publisher NotificationPublisher
	timeout   time.Duration
	newID     func() string
	metrics   OrderMetrics
	logger    func(context.Context, string, map[string]any)
}

func (n notifier) notify(ctx context.Context, event domain.OrderEvent) {
	if n.publisher == nil {
		return
	}
	if event.ID == "" {
		event.ID = n.newID()
	}
	timeout := n.timeout
	if timeout <= 0 {
		timeout = defaultNotificationTimeout
	}
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := n.publisher.Publish(publishCtx, event); err != nil {
		n.metrics.NotificationFailed(event.Type)
		n.logger(ctx, "order.notification.failed", map[string]any{
			"type":    event.Type,
			"orderId": event.OrderID,
			"eventId": event.ID,
			"error":   err.Error(),
		})
	}
}

type noopMetrics struct{}

func (noopMetrics) OrderCreated()                  {}
func (noopMetrics) OrderTransition(string, string) {}
func (noopMetrics) ItemUpdate(string, bool)        {}
func (noopMetrics) StockReservationFailed()        {}
func (noopMetrics) NotificationFailed(string)      {}
