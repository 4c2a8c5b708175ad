package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ItemStatus is the per-line status, independent of the order status.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusConfirmed ItemStatus = "confirmed"
	ItemStatusCancelled ItemStatus = "cancelled"
)

// Valid reports whether the status is a known item status.
func (s ItemStatus) Valid() bool {
	return s == ItemStatusPending || s == ItemStatusConfirmed || s == ItemStatusCancelled
}

var itemStateTransitions = map[ItemStatus]map[ItemStatus]bool{
	ItemStatusPending:   {ItemStatusConfirmed: true, ItemStatusCancelled: true},
	ItemStatusConfirmed: {ItemStatusCancelled: true},
	ItemStatusCancelled: {},
}

// Item transition failure codes reported per item in batch results.
const (
	ItemErrorNotFound      = "item_not_found"
	ItemErrorInvalidStatus = "invalid_status"
	ItemErrorIllegal       = "illegal_transition"
	ItemErrorOrderClosed   = "order_closed"
)

// ItemTransitionError reports why a single item could not move to the requested status.
type ItemTransitionError struct {
	ItemID string
	Code   string
	Reason string
}

func (e *ItemTransitionError) Error() string {
	return fmt.Sprintf("item %s: %s", e.ItemID, e.Reason)
}

// ItemChange is a planned update of one item. PriceDelta is the amount itemsPrice and totalPrice
// move by, negative when the item is cancelled.
type ItemChange struct {
	ItemID       string
	From         ItemStatus
	Status       ItemStatus
	ConfirmedAt  *time.Time
	CancelledAt  *time.Time
	CancelReason string
	PriceDelta   decimal.Decimal
}

// PlanItemTransition checks moving itemID to target against the item transition table.
// changed is false when the item already has the requested status.
func PlanItemTransition(order Order, itemID string, target ItemStatus, reason string, now time.Time) (change ItemChange, changed bool, err error) {
	item, _, ok := order.Item(itemID)
	if !ok {
		return ItemChange{}, false, &ItemTransitionError{ItemID: itemID, Code: ItemErrorNotFound, Reason: "item not found in order"}
	}
	if !target.Valid() || target == ItemStatusPending {
		return ItemChange{}, false, &ItemTransitionError{ItemID: itemID, Code: ItemErrorInvalidStatus, Reason: fmt.Sprintf("unsupported item status %q", target)}
	}
	if item.Status == target {
		return ItemChange{ItemID: itemID, From: item.Status, Status: target}, false, nil
	}
	if order.Status == OrderStatusDelivered || order.Status == OrderStatusCancelled {
		return ItemChange{}, false, &ItemTransitionError{ItemID: itemID, Code: ItemErrorOrderClosed, Reason: fmt.Sprintf("order is %s", order.Status)}
	}
	if !itemStateTransitions[item.Status][target] {
		return ItemChange{}, false, &ItemTransitionError{
			ItemID: itemID,
			Code:   ItemErrorIllegal,
			Reason: fmt.Sprintf("item cannot move from %s to %s", item.Status, target),
		}
	}

	stamp := now.UTC()
	change = ItemChange{ItemID: itemID, From: item.Status, Status: target, PriceDelta: decimal.Zero}
	switch target {
	case ItemStatusConfirmed:
		change.ConfirmedAt = &stamp
	case ItemStatusCancelled:
		change.CancelledAt = &stamp
		change.CancelReason = strings.TrimSpace(reason)
		change.PriceDelta = item.LineTotal().Neg()
	}
	return change, true, nil
}

// ApplyItemChange returns a copy of order with the change applied and prices recalculated.
func ApplyItemChange(order Order, change ItemChange, now time.Time) Order {
	out := order.Clone()
	_, idx, ok := out.Item(change.ItemID)
	if !ok {
		return out
	}
	item := out.Items[idx]
	item.Status = change.Status
	if change.ConfirmedAt != nil {
		item.ConfirmedAt = cloneTime(change.ConfirmedAt)
	}
	if change.CancelledAt != nil {
		item.CancelledAt = cloneTime(change.CancelledAt)
		item.CancelReason = change.CancelReason
	}
	out.Items[idx] = item
	out = RecalculateItemsPrice(out)
	out.Version++
	out.UpdatedAt = now.UTC()
	return out
}
