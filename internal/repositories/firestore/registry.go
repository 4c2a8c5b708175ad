// Package firestore implements the storefront repositories on Cloud Firestore.
package firestore

import (
	"context"
	"fmt"

	pfirestore "github.com/tailorline/storefront/internal/platform/firestore"
	"github.com/tailorline/storefront/internal/repositories"
)

// Registry wires the Firestore repositories to one provider.
type Registry struct {
	provider  *pfirestore.Provider
	orders    *OrderRepository
	inventory *InventoryRepository
	audit     *AuditLogRepository
}

var _ repositories.Registry = (*Registry)(nil)

func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	inventory, err := NewInventoryRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	audit, err := NewAuditLogRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	return &Registry{provider: provider, orders: orders, inventory: inventory, audit: audit}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }
func (r *Registry) Ping(ctx context.Context) error  { return r.provider.Ping(ctx) }

func (r *Registry) Orders() repositories.OrderRepository       { return r.orders }
func (r *Registry) Catalog() repositories.ProductCatalog       { return r.inventory }
func (r *Registry) Inventory() repositories.InventoryLedger    { return r.inventory }
func (r *Registry) AuditLogs() repositories.AuditLogRepository { return r.audit }

// Products exposes the inventory repository for seeding.
func (r *Registry) Products() *InventoryRepository { return r.inventory }
