package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/repositories"
)

var (
	// ErrValidation marks input rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrStockInsufficient marks a checkout whose reservation could not be satisfied.
	ErrStockInsufficient = errors.New("insufficient stock")
	// ErrPaymentMethodUnavailable marks a checkout with a payment method that is not enabled.
	ErrPaymentMethodUnavailable = errors.New("payment method unavailable")
	// ErrNotFound marks a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks a caller that may not access the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict marks a request that is incompatible with the current state.
	ErrConflict = errors.New("conflict")
	// ErrPersistence marks a storage failure.
	ErrPersistence = errors.New("persistence failure")
	// ErrFeatureDisabled marks an operation switched off by configuration.
	ErrFeatureDisabled = errors.New("feature disabled")
)

// ValidationError lists the offending fields with a message each.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+e.Fields[key])
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// StockInsufficientError names every product the ledger could not reserve.
type StockInsufficientError struct {
	Shortages []domain.Shortage
}

func (e *StockInsufficientError) Error() string {
	ids := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		ids = append(ids, s.ProductID)
	}
	return fmt.Sprintf("%s: %s", ErrStockInsufficient, strings.Join(ids, ", "))
}

func (e *StockInsufficientError) Is(target error) bool { return target == ErrStockInsufficient }

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AuthorizationError reports a caller acting outside their role or ownership.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	if e.Reason == "" {
		return ErrForbidden.Error()
	}
	return fmt.Sprintf("%s: %s", ErrForbidden, e.Reason)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrForbidden }

// ConflictError carries the precondition that was not met.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConflict, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// PersistenceError wraps a storage failure. Err is never shown to clients.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// mapRepositoryError converts driver and domain errors into service errors.
func mapRepositoryError(op, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var transitionErr *domain.TransitionError
	if errors.As(err, &transitionErr) {
		return &ConflictError{Reason: transitionErr.Reason}
	}
	var itemErr *domain.ItemTransitionError
	if errors.As(err, &itemErr) {
		return itemErr
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) && invErr.Code == repositories.InventoryErrorInsufficientStock {
		return &StockInsufficientError{Shortages: invErr.Shortages}
	}
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		return conflictErr
	}
	var authErr *AuthorizationError
	if errors.As(err, &authErr) {
		return authErr
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return &NotFoundError{Resource: resource, ID: id}
		case repoErr.IsConflict():
			return &ConflictError{Reason: fmt.Sprintf("%s %s was modified concurrently", resource, id)}
		}
	}
	return &PersistenceError{Op: op, Err: err}
}
