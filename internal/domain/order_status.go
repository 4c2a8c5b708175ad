package domain

import (
	"fmt"
	"strings"
	"time"
)

// OrderStatus is the single tagged lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether the status is one of the lifecycle states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// OrderTransition names an admin-driven move between order states.
type OrderTransition string

const (
	TransitionConfirm OrderTransition = "confirm"
	TransitionShip    OrderTransition = "ship"
	TransitionDeliver OrderTransition = "deliver"
	TransitionCancel  OrderTransition = "cancel"
)

// orderStateTransitions lists the states each transition may start from.
var orderStateTransitions = map[OrderTransition]struct {
	from   []OrderStatus
	target OrderStatus
}{
	TransitionConfirm: {from: []OrderStatus{OrderStatusPending}, target: OrderStatusConfirmed},
	TransitionShip:    {from: []OrderStatus{OrderStatusConfirmed}, target: OrderStatusShipped},
	TransitionDeliver: {from: []OrderStatus{OrderStatusShipped}, target: OrderStatusDelivered},
	TransitionCancel:  {from: []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped}, target: OrderStatusCancelled},
}

// OrderFlags is the set of milestones an admin asks to raise in one request.
type OrderFlags struct {
	Confirm      bool
	Ship         bool
	Deliver      bool
	Cancel       bool
	CancelReason string
}

// Empty reports whether no milestone was requested.
func (f OrderFlags) Empty() bool {
	return !f.Confirm && !f.Ship && !f.Deliver && !f.Cancel
}

// Transitions returns the requested transitions in lifecycle order.
func (f OrderFlags) Transitions() []OrderTransition {
	var out []OrderTransition
	if f.Confirm {
		out = append(out, TransitionConfirm)
	}
	if f.Ship {
		out = append(out, TransitionShip)
	}
	if f.Deliver {
		out = append(out, TransitionDeliver)
	}
	if f.Cancel {
		out = append(out, TransitionCancel)
	}
	return out
}

// TransitionError reports a transition whose precondition does not hold.
type TransitionError struct {
	Transition OrderTransition
	From       OrderStatus
	Reason     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s order in status %s: %s", e.Transition, e.From, e.Reason)
}

// TransitionPlan is the outcome of planning a flag update against one order snapshot.
// Only milestones newly reached carry a timestamp.
type TransitionPlan struct {
	From         OrderStatus
	Status       OrderStatus
	Applied      []OrderTransition
	PaidAt       *time.Time
	ConfirmedAt  *time.Time
	ShippedAt    *time.Time
	DeliveredAt  *time.Time
	CancelledAt  *time.Time
	CancelReason string
}

// Noop reports whether every requested milestone was already reached.
func (p TransitionPlan) Noop() bool {
	return len(p.Applied) == 0
}

// PlanOrderTransition plans raising the requested flags on order. Milestones already reached are skipped,
// the rest are checked against the transition table in lifecycle order so a single request may
// confirm and ship. Any illegal step fails the whole plan.
func PlanOrderTransition(order Order, flags OrderFlags, now time.Time) (TransitionPlan, error) {
	now = now.UTC()
	plan := TransitionPlan{From: order.Status, Status: order.Status}
	reached := map[OrderTransition]bool{
		TransitionConfirm: order.ConfirmedAt != nil,
		TransitionShip:    order.ShippedAt != nil,
		TransitionDeliver: order.DeliveredAt != nil,
		TransitionCancel:  order.Status == OrderStatusCancelled,
	}

	for _, transition := range flags.Transitions() {
		if reached[transition] {
			continue
		}
		rule := orderStateTransitions[transition]
		if !statusIn(plan.Status, rule.from) {
			return TransitionPlan{}, &TransitionError{
				Transition: transition,
				From:       order.Status,
				Reason:     missingPrecondition(transition, plan.Status),
			}
		}
		plan.Status = rule.target
		plan.Applied = append(plan.Applied, transition)
		reached[transition] = true

		stamp := now
		switch transition {
		case TransitionConfirm:
			plan.ConfirmedAt = &stamp
		case TransitionShip:
			plan.ShippedAt = &stamp
		case TransitionDeliver:
			plan.DeliveredAt = &stamp
			if order.PaymentMethod == PaymentPayOnDelivery && order.PaidAt == nil {
				plan.PaidAt = &stamp
			}
		case TransitionCancel:
			plan.CancelledAt = &stamp
			plan.CancelReason = strings.TrimSpace(flags.CancelReason)
		}
	}
	return plan, nil
}

// Apply returns a copy of order with the plan's milestones set. It never clears a timestamp.
func (p TransitionPlan) Apply(order Order, now time.Time) Order {
	if p.Noop() {
		return order
	}
	out := order.Clone()
	out.Status = p.Status
	if p.PaidAt != nil {
		out.PaidAt = cloneTime(p.PaidAt)
	}
	if p.ConfirmedAt != nil {
		out.ConfirmedAt = cloneTime(p.ConfirmedAt)
	}
	if p.ShippedAt != nil {
		out.ShippedAt = cloneTime(p.ShippedAt)
	}
	if p.DeliveredAt != nil {
		out.DeliveredAt = cloneTime(p.DeliveredAt)
	}
	if p.CancelledAt != nil {
		out.CancelledAt = cloneTime(p.CancelledAt)
		out.CancelReason = p.CancelReason
	}
	out.Version++
	out.UpdatedAt = now.UTC()
	return out
}

func statusIn(status OrderStatus, allowed []OrderStatus) bool {
	for _, candidate := range allowed {
		if candidate == status {
			return true
		}
	}
	return false
}

func missingPrecondition(transition OrderTransition, current OrderStatus) string {
	if current == OrderStatusCancelled {
		return "order is cancelled"
	}
	switch transition {
	case TransitionShip:
		return "order must be confirmed before it can be shipped"
	case TransitionDeliver:
		return "order must be shipped before it can be delivered"
	case TransitionCancel:
		return "delivered orders cannot be cancelled"
	default:
		return fmt.Sprintf("transition not allowed from %s", current)
	}
}
