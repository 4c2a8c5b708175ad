package repositories

import (
	"fmt"
	"strings"

	domain "github.com/tailorline/storefront/internal/domain"
)

// InventoryErrorCode enumerates repository error causes for inventory operations.
type InventoryErrorCode string

const (
	// InventoryErrorRollbackFailed means stock taken for a failed reservation was not fully returned.
	InventoryErrorRollbackFailed InventoryErrorCode = "inventory_rollback_failed"
	// InventoryErrorInsufficientStock indicates requested quantity exceeds availability.
	InventoryErrorInsufficientStock InventoryErrorCode = "insufficient_stock"
)

// InventoryError wraps inventory-specific failures with machine readable codes.
type InventoryError struct {
	Op        string
	Code      InventoryErrorCode
	Message   string
	Shortages []domain.Shortage
	Err       error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(op string, code InventoryErrorCode, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewShortageError reports every product that could not be reserved.
func NewShortageError(op string, shortages []domain.Shortage) *InventoryError {
	ids := make([]string, 0, len(shortages))
	for _, s := range shortages {
		ids = append(ids, s.ProductID)
	}
	return &InventoryError{
		Op:        op,
		Code:      InventoryErrorInsufficientStock,
		Message:   "insufficient stock for " + strings.Join(ids, ", "),
		Shortages: append([]domain.Shortage(nil), shortages...),
	}
}

// RollbackFailure finds a rollback failure anywhere in err, including inside joined errors.
func RollbackFailure(err error) (*InventoryError, bool) {
	switch e := err.(type) {
	case nil:
		return nil, false
	case *InventoryError:
		if e.Code == InventoryErrorRollbackFailed {
			return e, true
		}
		return RollbackFailure(e.Err)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if found, ok := RollbackFailure(inner); ok {
				return found, true
			}
		}
		return nil, false
	case interface{ Unwrap() error }:
		return RollbackFailure(e.Unwrap())
	default:
		return nil, false
	}
}
