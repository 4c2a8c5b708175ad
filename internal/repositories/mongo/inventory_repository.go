package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/platform/mongostore"
	"github.com/tailorline/storefront/internal/repositories"
)

const productsCollection = "products"

// InventoryRepository reads products and reserves stock with conditional decrements. Each line is
// decremented only while stock covers it; a failed line rolls back the lines already taken.
type InventoryRepository struct {
	pool *mongostore.Pool
}

var (
	_ repositories.ProductCatalog  = (*InventoryRepository)(nil)
	_ repositories.InventoryLedger = (*InventoryRepository)(nil)
)

func NewInventoryRepository(pool *mongostore.Pool) (*InventoryRepository, error) {
	if pool == nil {
		return nil, errors.New("inventory repository requires mongo pool")
	}
	return &InventoryRepository{pool: pool}, nil
}

// PutProduct upserts a catalog product. Used for seeding.
func (r *InventoryRepository) PutProduct(ctx context.Context, product domain.Product) error {
	coll, err := r.collection()
	if err != nil {
		return err
	}
	price, err := toDecimal128(product.Price)
	if err != nil {
		return wrapError("products.encode", err)
	}
	_, err = coll.ReplaceOne(ctx, bson.M{"_id": product.ID}, productDocument{
		ID:    product.ID,
		Name:  product.Name,
		Image: product.Image,
		Price: price,
		Stock: product.Stock,
	}, options.Replace().SetUpsert(true))
	return wrapError("products.put", err)
}

func (r *InventoryRepository) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	if len(ids) == 0 {
		return map[string]domain.Product{}, nil
	}
	coll, err := r.collection()
	if err != nil {
		return nil, err
	}
	cursor, err := coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, wrapError("products.find", err)
	}
	defer cursor.Close(ctx)

	out := make(map[string]domain.Product, len(ids))
	for cursor.Next(ctx) {
		var doc productDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, wrapError("products.decode", err)
		}
		price, err := fromDecimal128(doc.Price)
		if err != nil {
			return nil, wrapError("products.decode", err)
		}
		out[doc.ID] = domain.Product{ID: doc.ID, Name: doc.Name, Image: doc.Image, Price: price, Stock: doc.Stock}
	}
	if err := cursor.Err(); err != nil {
		return nil, wrapError("products.find", err)
	}
	return out, nil
}

func (r *InventoryRepository) Reserve(ctx context.Context, lines []domain.ReservationLine) error {
	coll, err := r.collection()
	if err != nil {
		return err
	}

	var (
		taken     []domain.ReservationLine
		shortages []domain.Shortage
	)
	for _, line := range lines {
		result, err := coll.UpdateOne(ctx,
			bson.M{"_id": line.ProductID, "stock": bson.M{"$gte": line.Quantity}},
			bson.M{"$inc": bson.M{"stock": -line.Quantity}},
		)
		if err != nil {
			return errors.Join(wrapError("products.reserve", err), rollback(ctx, coll, taken))
		}
		if result.MatchedCount == 1 {
			taken = append(taken, line)
			continue
		}
		available, err := r.stock(ctx, coll, line.ProductID)
		if err != nil {
			return errors.Join(err, rollback(ctx, coll, taken))
		}
		shortages = append(shortages, domain.Shortage{ProductID: line.ProductID, Requested: line.Quantity, Available: available})
	}
	if len(shortages) > 0 {
		shortage := repositories.NewShortageError("mongo.inventory.reserve", shortages)
		if err := rollback(ctx, coll, taken); err != nil {
			return errors.Join(shortage, err)
		}
		return shortage
	}
	return nil
}

func (r *InventoryRepository) Release(ctx context.Context, lines []domain.ReservationLine) error {
	coll, err := r.collection()
	if err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := coll.UpdateOne(ctx, bson.M{"_id": line.ProductID}, bson.M{"$inc": bson.M{"stock": line.Quantity}}); err != nil {
			return wrapError("products.release", err)
		}
	}
	return nil
}

// stockWriter is the subset of *mongo.Collection used to return stock.
type stockWriter interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// rollback returns already decremented lines. It ignores the caller's cancellation so a
// cancelled request cannot strand stock, and attempts every line even after a failure.
func rollback(ctx context.Context, coll stockWriter, taken []domain.ReservationLine) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, line := range taken {
		if _, err := coll.UpdateOne(ctx, bson.M{"_id": line.ProductID}, bson.M{"$inc": bson.M{"stock": line.Quantity}}); err != nil {
			errs = append(errs, fmt.Errorf("return %d of %s: %w", line.Quantity, line.ProductID, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return repositories.NewInventoryError("mongo.inventory.rollback", repositories.InventoryErrorRollbackFailed,
		fmt.Sprintf("stock rollback incomplete for %d of %d lines", len(errs), len(taken)), errors.Join(errs...))
}

func (r *InventoryRepository) stock(ctx context.Context, coll *mongo.Collection, productID string) (int64, error) {
	var doc productDocument
	err := coll.FindOne(ctx, bson.M{"_id": productID}, options.FindOne().SetProjection(bson.M{"stock": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapError("products.stock", err)
	}
	return doc.Stock, nil
}

func (r *InventoryRepository) collection() (*mongo.Collection, error) {
	coll, err := r.pool.Collection(productsCollection)
	if err != nil {
		return nil, wrapError("products.collection", err)
	}
	return coll, nil
}

type productDocument struct {
	ID    string               `bson:"_id"`
	Name  string               `bson:"name"`
	Image string               `bson:"image,omitempty"`
	Price primitive.Decimal128 `bson:"price"`
	Stock int64                `bson:"stock"`
}
