package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)

func orderInStatus(status OrderStatus) Order {
	created := testNow.Add(-48 * time.Hour)
	order := Order{ID: "ord_1", UserID: "u1", Status: OrderStatusPending, PaymentMethod: PaymentPayOnDelivery, CreatedAt: created, UpdatedAt: created}
	switch status {
	case OrderStatusDelivered:
		order.DeliveredAt = TimePtr(created.Add(3 * time.Hour))
		fallthrough
	case OrderStatusShipped:
		order.ShippedAt = TimePtr(created.Add(2 * time.Hour))
		fallthrough
	case OrderStatusConfirmed:
		order.ConfirmedAt = TimePtr(created.Add(time.Hour))
	}
	if status == OrderStatusCancelled {
		order.CancelledAt = TimePtr(created.Add(time.Hour))
	}
	order.Status = status
	return order
}

func TestPlanOrderTransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		status  OrderStatus
		flags   OrderFlags
		want    OrderStatus
		applied []OrderTransition
		reason  string
	}{
		{name: "confirm pending", status: OrderStatusPending, flags: OrderFlags{Confirm: true}, want: OrderStatusConfirmed, applied: []OrderTransition{TransitionConfirm}},
		{name: "ship confirmed", status: OrderStatusConfirmed, flags: OrderFlags{Ship: true}, want: OrderStatusShipped, applied: []OrderTransition{TransitionShip}},
		{name: "deliver shipped", status: OrderStatusShipped, flags: OrderFlags{Deliver: true}, want: OrderStatusDelivered, applied: []OrderTransition{TransitionDeliver}},
		{name: "confirm and ship together", status: OrderStatusPending, flags: OrderFlags{Confirm: true, Ship: true}, want: OrderStatusShipped, applied: []OrderTransition{TransitionConfirm, TransitionShip}},
		{name: "cancel shipped", status: OrderStatusShipped, flags: OrderFlags{Cancel: true}, want: OrderStatusCancelled, applied: []OrderTransition{TransitionCancel}},
		{name: "confirm is idempotent", status: OrderStatusConfirmed, flags: OrderFlags{Confirm: true}, want: OrderStatusConfirmed},
		{name: "confirm after ship is idempotent", status: OrderStatusShipped, flags: OrderFlags{Confirm: true}, want: OrderStatusShipped},
		{name: "cancel twice is idempotent", status: OrderStatusCancelled, flags: OrderFlags{Cancel: true}, want: OrderStatusCancelled},
		{name: "ship before confirm", status: OrderStatusPending, flags: OrderFlags{Ship: true}, reason: "order must be confirmed before it can be shipped"},
		{name: "deliver before ship", status: OrderStatusConfirmed, flags: OrderFlags{Deliver: true}, reason: "order must be shipped before it can be delivered"},
		{name: "cancel after deliver", status: OrderStatusDelivered, flags: OrderFlags{Cancel: true}, reason: "delivered orders cannot be cancelled"},
		{name: "confirm cancelled", status: OrderStatusCancelled, flags: OrderFlags{Confirm: true}, reason: "order is cancelled"},
		{name: "deliver then cancel in one request", status: OrderStatusShipped, flags: OrderFlags{Deliver: true, Cancel: true}, reason: "delivered orders cannot be cancelled"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := PlanOrderTransition(orderInStatus(tc.status), tc.flags, testNow)
			if tc.reason != "" {
				var transitionErr *TransitionError
				require.True(t, errors.As(err, &transitionErr), "expected TransitionError, got %v", err)
				assert.Equal(t, tc.reason, transitionErr.Reason)
				assert.Equal(t, tc.status, transitionErr.From)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, plan.Status)
			assert.Equal(t, tc.applied, plan.Applied)
		})
	}
}

func TestPlanApplyKeepsMilestoneOrdering(t *testing.T) {
	order := orderInStatus(OrderStatusPending)
	plan, err := PlanOrderTransition(order, OrderFlags{Confirm: true, Ship: true, Deliver: true}, testNow)
	require.NoError(t, err)

	updated := plan.Apply(order, testNow)
	assert.Equal(t, OrderStatusDelivered, updated.Status)
	assert.True(t, updated.IsConfirmed())
	assert.True(t, updated.IsShipped())
	assert.True(t, updated.IsDelivered())
	assert.False(t, updated.IsCancelled())
	assert.True(t, updated.IsPaid(), "pay on delivery is settled at delivery")
	assert.Equal(t, order.Version+1, updated.Version)
	assert.Nil(t, order.ConfirmedAt, "input order must not be mutated")
}

func TestPlanApplyNoopLeavesOrderUntouched(t *testing.T) {
	order := orderInStatus(OrderStatusConfirmed)
	plan, err := PlanOrderTransition(order, OrderFlags{Confirm: true}, testNow)
	require.NoError(t, err)
	assert.True(t, plan.Noop())

	updated := plan.Apply(order, testNow)
	assert.Equal(t, order, updated)
}

func TestDeliverOnlinePaymentDoesNotSetPaid(t *testing.T) {
	order := orderInStatus(OrderStatusShipped)
	order.PaymentMethod = PaymentOnline
	plan, err := PlanOrderTransition(order, OrderFlags{Deliver: true}, testNow)
	require.NoError(t, err)
	assert.Nil(t, plan.PaidAt)
}

func TestCancelKeepsEarlierMilestones(t *testing.T) {
	order := orderInStatus(OrderStatusShipped)
	plan, err := PlanOrderTransition(order, OrderFlags{Cancel: true, CancelReason: "  courier lost parcel "}, testNow)
	require.NoError(t, err)

	updated := plan.Apply(order, testNow)
	assert.True(t, updated.IsCancelled())
	assert.True(t, updated.IsShipped())
	assert.True(t, updated.IsConfirmed())
	assert.False(t, updated.IsDelivered())
	assert.Equal(t, "courier lost parcel", updated.CancelReason)
}
