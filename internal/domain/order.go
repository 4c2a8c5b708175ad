package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod enumerates how an order is paid for.
type PaymentMethod string

const (
	// PaymentPayOnDelivery collects payment when the parcel is handed over.
	PaymentPayOnDelivery PaymentMethod = "pay_on_delivery"
	// PaymentOnline is accepted by the model but disabled at the API boundary.
	PaymentOnline PaymentMethod = "online"
)

// Valid reports whether the payment method is known.
func (m PaymentMethod) Valid() bool {
	return m == PaymentPayOnDelivery || m == PaymentOnline
}

// ShippingAddress is the delivery destination captured at checkout.
type ShippingAddress struct {
	Address string
	State   string
	Phone   string
}

// Order is the persisted aggregate created at checkout. Items are exclusively owned by the order.
type Order struct {
	ID              string
	UserID          string
	Items           []OrderItem
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	ItemsPrice      decimal.Decimal
	ShippingPrice   decimal.Decimal
	TaxPrice        decimal.Decimal
	TotalPrice      decimal.Decimal
	Status          OrderStatus
	PaidAt          *time.Time
	ConfirmedAt     *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem snapshots a cart line at checkout time.
type OrderItem struct {
	ID           string
	ProductID    string
	Name         string
	Image        string
	Price        decimal.Decimal
	Quantity     int64
	Size         string
	Color        string
	Status       ItemStatus
	ConfirmedAt  *time.Time
	CancelledAt  *time.Time
	CancelReason string
	Position     int
}

// LineTotal returns price multiplied by quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(i.Quantity))
}

func (o Order) IsPaid() bool      { return o.PaidAt != nil }
func (o Order) IsConfirmed() bool { return o.ConfirmedAt != nil }
func (o Order) IsShipped() bool   { return o.ShippedAt != nil }
func (o Order) IsDelivered() bool { return o.DeliveredAt != nil }
func (o Order) IsCancelled() bool { return o.Status == OrderStatusCancelled }

// Item looks up an item by id.
func (o Order) Item(itemID string) (OrderItem, int, bool) {
	for idx, item := range o.Items {
		if item.ID == itemID {
			return item, idx, true
		}
	}
	return OrderItem{}, -1, false
}

// Clone returns a deep copy so callers can mutate without aliasing the items slice or timestamps.
func (o Order) Clone() Order {
	clone := o
	clone.PaidAt = cloneTime(o.PaidAt)
	clone.ConfirmedAt = cloneTime(o.ConfirmedAt)
	clone.ShippedAt = cloneTime(o.ShippedAt)
	clone.DeliveredAt = cloneTime(o.DeliveredAt)
	clone.CancelledAt = cloneTime(o.CancelledAt)
	if o.Items != nil {
		clone.Items = make([]OrderItem, len(o.Items))
		for idx, item := range o.Items {
			item.ConfirmedAt = cloneTime(item.ConfirmedAt)
			item.CancelledAt = cloneTime(item.CancelledAt)
			clone.Items[idx] = item
		}
	}
	return clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr returns a pointer to the UTC form of t.
func TimePtr(t time.Time) *time.Time {
	v := t.UTC()
	return &v
}
