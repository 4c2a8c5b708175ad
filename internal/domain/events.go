package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Notification event types published after successful order operations.
const (
	EventOrderConfirmation  = "order.confirmation"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderEvent is the payload handed to the notification transport.
type OrderEvent struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	OrderID        string          `json:"orderId"`
	UserID         string          `json:"userId"`
	Status         OrderStatus     `json:"status"`
	PreviousStatus OrderStatus     `json:"previousStatus,omitempty"`
	ItemID         string          `json:"itemId,omitempty"`
	ItemStatus     ItemStatus      `json:"itemStatus,omitempty"`
	TotalPrice     decimal.Decimal `json:"totalPrice"`
	OccurredAt     time.Time       `json:"occurredAt"`
}
