package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tailorline/storefront/internal/platform/mongostore"
	"github.com/tailorline/storefront/internal/repositories"
)

// Error classifies driver failures for the service layer.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

var _ repositories.RepositoryError = (*Error)(nil)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mongo %s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

func (e *Error) IsNotFound() bool    { return e != nil && e.notFound }
func (e *Error) IsConflict() bool    { return e != nil && e.conflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// wrapError annotates err with its category. Context errors pass through unchanged.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{
		op:          op,
		err:         err,
		notFound:    errors.Is(err, mongo.ErrNoDocuments),
		conflict:    mongo.IsDuplicateKeyError(err),
		unavailable: mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongostore.ErrNotConnected),
	}
}

func notFoundError(op, id string) error {
	return &Error{op: op, err: fmt.Errorf("%s not found", id), notFound: true}
}

func conflictError(op, id string) error {
	return &Error{op: op, err: fmt.Errorf("%s was modified concurrently", id), conflict: true}
}
