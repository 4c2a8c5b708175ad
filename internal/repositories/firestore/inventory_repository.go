package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	domain "github.com/tailorline/storefront/internal/domain"
	pfirestore "github.com/tailorline/storefront/internal/platform/firestore"
	"github.com/tailorline/storefront/internal/repositories"
)

const (
	productsCollection = "products"
	// Checkouts racing for the same product contend on one document.
	reserveTxAttempts = 10
)

// InventoryRepository reads catalog products and reserves their stock. Stock lives on the product
// document so the catalog and the ledger share one source of truth.
type InventoryRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

var (
	_ repositories.ProductCatalog  = (*InventoryRepository)(nil)
	_ repositories.InventoryLedger = (*InventoryRepository)(nil)
)

func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	products := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &InventoryRepository{provider: provider, products: products}, nil
}

// PutProduct upserts a catalog product. Used for seeding.
func (r *InventoryRepository) PutProduct(ctx context.Context, product domain.Product) error {
	return r.products.Set(ctx, product.ID, productDocument{
		Name:  product.Name,
		Image: product.Image,
		Price: product.Price.String(),
		Stock: product.Stock,
	})
}

func (r *InventoryRepository) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	if len(ids) == 0 {
		return map[string]domain.Product{}, nil
	}
	refs, err := r.refs(ctx, ids)
	if err != nil {
		return nil, err
	}
	// Read-only transaction so every product comes from one snapshot.
	out := make(map[string]domain.Product, len(refs))
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		clear(out)
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		for _, snap := range snaps {
			if !snap.Exists() {
				continue
			}
			doc, err := r.products.Decode(snap)
			if err != nil {
				return err
			}
			product, err := doc.Data.toDomain(doc.ID)
			if err != nil {
				return err
			}
			out[doc.ID] = product
		}
		return nil
	}, pfirestore.WithReadOnly())
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reserve reads every product in one transaction and only writes when all lines fit, so a shortage
// commits nothing. Concurrent reservations of the same product conflict and are retried by Firestore.
func (r *InventoryRepository) Reserve(ctx context.Context, lines []domain.ReservationLine) error {
	if len(lines) == 0 {
		return nil
	}
	refs, err := r.refs(ctx, lineProductIDs(lines))
	if err != nil {
		return err
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}

		var shortages []domain.Shortage
		for i, line := range lines {
			var available int64
			if snaps[i].Exists() {
				doc, err := r.products.Decode(snaps[i])
				if err != nil {
					return err
				}
				available = doc.Data.Stock
			}
			if available < line.Quantity {
				shortages = append(shortages, domain.Shortage{
					ProductID: line.ProductID,
					Requested: line.Quantity,
					Available: available,
				})
			}
		}
		if len(shortages) > 0 {
			return repositories.NewShortageError("firestore.inventory.reserve", shortages)
		}

		for i, line := range lines {
			if err := tx.Update(refs[i], []firestore.Update{{Path: "stock", Value: firestore.Increment(-line.Quantity)}}); err != nil {
				return err
			}
		}
		return nil
	}, pfirestore.WithTxAttempts(reserveTxAttempts))
}

func (r *InventoryRepository) Release(ctx context.Context, lines []domain.ReservationLine) error {
	if len(lines) == 0 {
		return nil
	}
	refs, err := r.refs(ctx, lineProductIDs(lines))
	if err != nil {
		return err
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		for i, line := range lines {
			if !snaps[i].Exists() {
				continue
			}
			if err := tx.Update(refs[i], []firestore.Update{{Path: "stock", Value: firestore.Increment(line.Quantity)}}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *InventoryRepository) refs(ctx context.Context, ids []string) ([]*firestore.DocumentRef, error) {
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		ref, err := r.products.DocumentRef(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func lineProductIDs(lines []domain.ReservationLine) []string {
	ids := make([]string, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	return ids
}

type productDocument struct {
	Name  string `firestore:"name"`
	Image string `firestore:"image,omitempty"`
	Price string `firestore:"price"`
	Stock int64  `firestore:"stock"`
}

func (d productDocument) toDomain(id string) (domain.Product, error) {
	price, err := parseMoney(d.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("decode product %s price: %w", id, err)
	}
	return domain.Product{
		ID:    id,
		Name:  d.Name,
		Image: d.Image,
		Price: price,
		Stock: d.Stock,
	}, nil
}
