// Package memory keeps orders, products and audit entries in process. It backs local
// development and the service tests.
package memory

import (
	"context"
	"fmt"

	"github.com/tailorline/storefront/internal/repositories"
)

// Registry bundles the in-memory repositories.
type Registry struct {
	orders  *OrderRepository
	catalog *Catalog
	audit   *AuditLogRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		orders:  NewOrderRepository(),
		catalog: NewCatalog(),
		audit:   NewAuditLogRepository(),
	}
}

func (r *Registry) Close(context.Context) error { return nil }
func (r *Registry) Ping(context.Context) error  { return nil }

func (r *Registry) Orders() repositories.OrderRepository       { return r.orders }
func (r *Registry) Catalog() repositories.ProductCatalog       { return r.catalog }
func (r *Registry) Inventory() repositories.InventoryLedger    { return r.catalog }
func (r *Registry) AuditLogs() repositories.AuditLogRepository { return r.audit }

// Products exposes the catalog for seeding.
func (r *Registry) Products() *Catalog { return r.catalog }

// AuditEntries exposes the concrete audit repository.
func (r *Registry) AuditEntries() *AuditLogRepository { return r.audit }

type storeError struct {
	op       string
	notFound bool
	conflict bool
	err      error
}

func (e *storeError) Error() string       { return fmt.Sprintf("memory %s: %v", e.op, e.err) }
func (e *storeError) Unwrap() error       { return e.err }
func (e *storeError) IsNotFound() bool    { return e.notFound }
func (e *storeError) IsConflict() bool    { return e.conflict }
func (e *storeError) IsUnavailable() bool { return false }

var _ repositories.RepositoryError = (*storeError)(nil)

func notFound(op, id string) error {
	return &storeError{op: op, notFound: true, err: fmt.Errorf("%s not found", id)}
}

func conflict(op, id string) error {
	return &storeError{op: op, conflict: true, err: fmt.Errorf("%s already exists", id)}
}
