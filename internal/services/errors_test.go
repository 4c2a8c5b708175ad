package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/repositories"
)

type fakeRepoError struct {
	notFound bool
	conflict bool
}

func (e fakeRepoError) Error() string       { return "repo failure" }
func (e fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e fakeRepoError) IsConflict() bool    { return e.conflict }
func (e fakeRepoError) IsUnavailable() bool { return false }

func TestMapRepositoryError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "cancelled", err: fmt.Errorf("wrapped: %w", context.Canceled), want: context.Canceled},
		{name: "transition", err: &domain.TransitionError{Transition: domain.TransitionShip, From: domain.OrderStatusPending, Reason: "order is not confirmed"}, want: ErrConflict},
		{name: "shortage", err: repositories.NewShortageError("reserve", []domain.Shortage{{ProductID: "p1", Requested: 2}}), want: ErrStockInsufficient},
		{name: "wrapped guard conflict", err: fmt.Errorf("tx: %w", &ConflictError{Reason: "item shipped"}), want: ErrConflict},
		{name: "wrapped guard authorization", err: fmt.Errorf("tx: %w", &AuthorizationError{}), want: ErrForbidden},
		{name: "not found", err: fakeRepoError{notFound: true}, want: ErrNotFound},
		{name: "version conflict", err: fakeRepoError{conflict: true}, want: ErrConflict},
		{name: "other", err: errors.New("socket closed"), want: ErrPersistence},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := mapRepositoryError("op", "order", "ord_1", tc.err)
			if !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestMapRepositoryErrorKeepsItemTransitionErrors(t *testing.T) {
	source := &domain.ItemTransitionError{ItemID: "itm_1", Code: domain.ItemErrorIllegal, Reason: "cancelled is terminal"}

	got := mapRepositoryError("op", "order", "ord_1", fmt.Errorf("tx: %w", source))

	var itemErr *domain.ItemTransitionError
	if !errors.As(got, &itemErr) || itemErr.Code != domain.ItemErrorIllegal {
		t.Fatalf("expected item transition error, got %v", got)
	}
}

func TestValidationErrorListsFieldsInOrder(t *testing.T) {
	verr := &ValidationError{}
	verr.add("shipping_address.phone", "is not a valid phone number")
	verr.add("items", "cart is empty")
	verr.add("items", "ignored duplicate")

	want := "validation failed: items: cart is empty; shipping_address.phone: is not a valid phone number"
	if verr.Error() != want {
		t.Fatalf("unexpected message %q", verr.Error())
	}
	if (&ValidationError{}).orNil() != nil {
		t.Fatal("expected empty validation error to collapse to nil")
	}
}
