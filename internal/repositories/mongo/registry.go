// Package mongo implements the storefront repositories on MongoDB.
package mongo

import (
	"context"
	"fmt"

	"github.com/tailorline/storefront/internal/platform/mongostore"
	"github.com/tailorline/storefront/internal/repositories"
)

// Registry wires the MongoDB repositories to one connection pool.
type Registry struct {
	pool      *mongostore.Pool
	orders    *OrderRepository
	inventory *InventoryRepository
	audit     *AuditLogRepository
}

var _ repositories.Registry = (*Registry)(nil)

func NewRegistry(pool *mongostore.Pool) (*Registry, error) {
	orders, err := NewOrderRepository(pool)
	if err != nil {
		return nil, fmt.Errorf("mongo registry: %w", err)
	}
	inventory, err := NewInventoryRepository(pool)
	if err != nil {
		return nil, fmt.Errorf("mongo registry: %w", err)
	}
	audit, err := NewAuditLogRepository(pool)
	if err != nil {
		return nil, fmt.Errorf("mongo registry: %w", err)
	}
	return &Registry{pool: pool, orders: orders, inventory: inventory, audit: audit}, nil
}

// EnsureIndexes prepares the collections for queries.
func (r *Registry) EnsureIndexes(ctx context.Context) error {
	return r.orders.EnsureIndexes(ctx)
}

func (r *Registry) Close(ctx context.Context) error { return r.pool.Close(ctx) }
func (r *Registry) Ping(ctx context.Context) error  { return r.pool.Ping(ctx) }

func (r *Registry) Orders() repositories.OrderRepository       { return r.orders }
func (r *Registry) Catalog() repositories.ProductCatalog       { return r.inventory }
func (r *Registry) Inventory() repositories.InventoryLedger    { return r.inventory }
func (r *Registry) AuditLogs() repositories.AuditLogRepository { return r.audit }

// Products exposes the inventory repository for seeding.
func (r *Registry) Products() *InventoryRepository { return r.inventory }
