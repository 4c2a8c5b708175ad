package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/platform/mongostore"
	"github.com/tailorline/storefront/internal/repositories"
)

const (
	ordersCollection      = "orders"
	maxTransitionAttempts = 5
)

// OrderRepository stores orders as single documents. Updates replace the document only when its
// version still matches the one that was read, re-planning on contention.
type OrderRepository struct {
	pool *mongostore.Pool
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository(pool *mongostore.Pool) (*OrderRepository, error) {
	if pool == nil {
		return nil, errors.New("order repository requires mongo pool")
	}
	return &OrderRepository{pool: pool}, nil
}

// EnsureIndexes creates the indexes used by listings and search.
func (r *OrderRepository) EnsureIndexes(ctx context.Context) error {
	coll, err := r.collection()
	if err != nil {
		return err
	}
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "search_tokens", Value: 1}}},
		{Keys: bson.D{{Key: "total_price", Value: -1}}},
		{Keys: bson.D{{Key: "updated_at", Value: -1}}},
	})
	return wrapError("orders.ensureIndexes", err)
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	coll, err := r.collection()
	if err != nil {
		return err
	}
	doc, err := encodeOrder(order)
	if err != nil {
		return err
	}
	_, err = coll.InsertOne(ctx, doc)
	return wrapError("orders.insert", err)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	coll, err := r.collection()
	if err != nil {
		return domain.Order{}, err
	}
	return r.find(ctx, coll, orderID)
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	coll, err := r.collection()
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	filter = filter.Normalized()

	query := bson.M{}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	created := bson.M{}
	if filter.CreatedAfter != nil {
		created["$gte"] = filter.CreatedAfter.UTC()
	}
	if filter.CreatedBefore != nil {
		created["$lt"] = filter.CreatedBefore.UTC()
	}
	if len(created) > 0 {
		query["created_at"] = created
	}
	if len(filter.SearchTerms) > 0 {
		query["search_tokens"] = bson.M{"$all": filter.SearchTerms}
	}

	total, err := coll.CountDocuments(ctx, query)
	if err != nil {
		return domain.Page[domain.Order]{}, wrapError("orders.count", err)
	}

	direction := -1
	if filter.Order == domain.SortAsc {
		direction = 1
	}
	findOptions := options.Find().
		SetSort(bson.D{{Key: sortField(filter.Sort), Value: direction}, {Key: "_id", Value: direction}}).
		SetSkip(int64(filter.Offset())).
		SetLimit(int64(filter.Limit))

	cursor, err := coll.Find(ctx, query, findOptions)
	if err != nil {
		return domain.Page[domain.Order]{}, wrapError("orders.list", err)
	}
	defer cursor.Close(ctx)

	orders := make([]domain.Order, 0, filter.Limit)
	for cursor.Next(ctx) {
		var doc orderDocument
		if err := cursor.Decode(&doc); err != nil {
			return domain.Page[domain.Order]{}, wrapError("orders.decode", err)
		}
		order, err := decodeOrder(doc)
		if err != nil {
			return domain.Page[domain.Order]{}, err
		}
		orders = append(orders, order)
	}
	if err := cursor.Err(); err != nil {
		return domain.Page[domain.Order]{}, wrapError("orders.list", err)
	}
	return domain.NewPage(orders, filter.Page, filter.Limit, total), nil
}

func (r *OrderRepository) TransitionOrder(ctx context.Context, orderID string, flags domain.OrderFlags, now time.Time) (repositories.OrderTransitionResult, error) {
	coll, err := r.collection()
	if err != nil {
		return repositories.OrderTransitionResult{}, err
	}
	now = now.UTC()

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		order, err := r.find(ctx, coll, orderID)
		if err != nil {
			return repositories.OrderTransitionResult{}, err
		}
		plan, err := domain.PlanOrderTransition(order, flags, now)
		if err != nil {
			return repositories.OrderTransitionResult{}, err
		}
		if plan.Noop() {
			return repositories.OrderTransitionResult{Order: order, Plan: plan}, nil
		}
		updated := plan.Apply(order, now)
		swapped, err := r.compareAndSwap(ctx, coll, order.Version, updated)
		if err != nil {
			return repositories.OrderTransitionResult{}, err
		}
		if swapped {
			return repositories.OrderTransitionResult{Order: updated, Plan: plan}, nil
		}
	}
	return repositories.OrderTransitionResult{}, conflictError("orders.transition", orderID)
}

func (r *OrderRepository) UpdateItemStatus(ctx context.Context, orderID string, update repositories.ItemStatusUpdate, now time.Time) (repositories.ItemUpdateResult, error) {
	coll, err := r.collection()
	if err != nil {
		return repositories.ItemUpdateResult{}, err
	}
	now = now.UTC()

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		order, err := r.find(ctx, coll, orderID)
		if err != nil {
			return repositories.ItemUpdateResult{}, err
		}
		if update.Guard != nil {
			if item, _, found := order.Item(update.ItemID); found {
				if err := update.Guard(order, item); err != nil {
					return repositories.ItemUpdateResult{}, err
				}
			}
		}
		change, changed, err := domain.PlanItemTransition(order, update.ItemID, update.Status, update.CancelReason, now)
		if err != nil {
			return repositories.ItemUpdateResult{}, err
		}
		if !changed {
			return repositories.ItemUpdateResult{Order: order, Change: change}, nil
		}
		updated := domain.ApplyItemChange(order, change, now)
		swapped, err := r.compareAndSwap(ctx, coll, order.Version, updated)
		if err != nil {
			return repositories.ItemUpdateResult{}, err
		}
		if swapped {
			return repositories.ItemUpdateResult{Order: updated, Change: change, Changed: true}, nil
		}
	}
	return repositories.ItemUpdateResult{}, conflictError("orders.updateItem", orderID)
}

func (r *OrderRepository) Count(ctx context.Context) (int64, error) {
	coll, err := r.collection()
	if err != nil {
		return 0, err
	}
	count, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, wrapError("orders.count", err)
	}
	return count, nil
}

func (r *OrderRepository) DeleteAll(ctx context.Context) (int64, error) {
	coll, err := r.collection()
	if err != nil {
		return 0, err
	}
	result, err := coll.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, wrapError("orders.deleteAll", err)
	}
	return result.DeletedCount, nil
}

func (r *OrderRepository) find(ctx context.Context, coll *mongo.Collection, orderID string) (domain.Order, error) {
	var doc orderDocument
	err := coll.FindOne(ctx, bson.M{"_id": orderID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Order{}, notFoundError("orders.get", orderID)
	}
	if err != nil {
		return domain.Order{}, wrapError("orders.get", err)
	}
	return decodeOrder(doc)
}

// compareAndSwap replaces the stored order when its version is still expected.
func (r *OrderRepository) compareAndSwap(ctx context.Context, coll *mongo.Collection, expected int64, updated domain.Order) (bool, error) {
	doc, err := encodeOrder(updated)
	if err != nil {
		return false, err
	}
	result, err := coll.ReplaceOne(ctx, bson.M{"_id": updated.ID, "version": expected}, doc)
	if err != nil {
		return false, wrapError("orders.replace", err)
	}
	return result.MatchedCount == 1, nil
}

func (r *OrderRepository) collection() (*mongo.Collection, error) {
	coll, err := r.pool.Collection(ordersCollection)
	if err != nil {
		return nil, wrapError("orders.collection", err)
	}
	return coll, nil
}

func sortField(sort domain.OrderSort) string {
	switch sort {
	case domain.OrderSortUpdatedAt:
		return "updated_at"
	case domain.OrderSortTotalPrice:
		return "total_price"
	default:
		return "created_at"
	}
}

type orderDocument struct {
	ID              string                  `bson:"_id"`
	UserID          string                  `bson:"user_id"`
	Items           []orderItemDocument     `bson:"items"`
	ShippingAddress shippingAddressDocument `bson:"shipping_address"`
	PaymentMethod   string                  `bson:"payment_method"`
	ItemsPrice      primitive.Decimal128    `bson:"items_price"`
	ShippingPrice   primitive.Decimal128    `bson:"shipping_price"`
	TaxPrice        primitive.Decimal128    `bson:"tax_price"`
	TotalPrice      primitive.Decimal128    `bson:"total_price"`
	Status          string                  `bson:"status"`
	PaidAt          *time.Time              `bson:"paid_at,omitempty"`
	ConfirmedAt     *time.Time              `bson:"confirmed_at,omitempty"`
	ShippedAt       *time.Time              `bson:"shipped_at,omitempty"`
	DeliveredAt     *time.Time              `bson:"delivered_at,omitempty"`
	CancelledAt     *time.Time              `bson:"cancelled_at,omitempty"`
	CancelReason    string                  `bson:"cancel_reason,omitempty"`
	Version         int64                   `bson:"version"`
	SearchTokens    []string                `bson:"search_tokens"`
	CreatedAt       time.Time               `bson:"created_at"`
	UpdatedAt       time.Time               `bson:"updated_at"`
}

type orderItemDocument struct {
	ID           string               `bson:"id"`
	ProductID    string               `bson:"product_id"`
	Name         string               `bson:"name"`
	Image        string               `bson:"image,omitempty"`
	Price        primitive.Decimal128 `bson:"price"`
	Quantity     int64                `bson:"quantity"`
	Size         string               `bson:"size,omitempty"`
	Color        string               `bson:"color,omitempty"`
	Status       string               `bson:"status"`
	ConfirmedAt  *time.Time           `bson:"confirmed_at,omitempty"`
	CancelledAt  *time.Time           `bson:"cancelled_at,omitempty"`
	CancelReason string               `bson:"cancel_reason,omitempty"`
}

type shippingAddressDocument struct {
	Address string `bson:"address"`
	State   string `bson:"state"`
	Phone   string `bson:"phone"`
}

func encodeOrder(order domain.Order) (orderDocument, error) {
	var encodeErr error
	dec := func(value decimal.Decimal) primitive.Decimal128 {
		d, err := toDecimal128(value)
		if err != nil && encodeErr == nil {
			encodeErr = err
		}
		return d
	}

	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ID:           item.ID,
			ProductID:    item.ProductID,
			Name:         item.Name,
			Image:        item.Image,
			Price:        dec(item.Price),
			Quantity:     item.Quantity,
			Size:         item.Size,
			Color:        item.Color,
			Status:       string(item.Status),
			ConfirmedAt:  item.ConfirmedAt,
			CancelledAt:  item.CancelledAt,
			CancelReason: item.CancelReason,
		})
	}
	doc := orderDocument{
		ID:     order.ID,
		UserID: order.UserID,
		Items:  items,
		ShippingAddress: shippingAddressDocument{
			Address: order.ShippingAddress.Address,
			State:   order.ShippingAddress.State,
			Phone:   order.ShippingAddress.Phone,
		},
		PaymentMethod: string(order.PaymentMethod),
		ItemsPrice:    dec(order.ItemsPrice),
		ShippingPrice: dec(order.ShippingPrice),
		TaxPrice:      dec(order.TaxPrice),
		TotalPrice:    dec(order.TotalPrice),
		Status:        string(order.Status),
		PaidAt:        order.PaidAt,
		ConfirmedAt:   order.ConfirmedAt,
		ShippedAt:     order.ShippedAt,
		DeliveredAt:   order.DeliveredAt,
		CancelledAt:   order.CancelledAt,
		CancelReason:  order.CancelReason,
		Version:       order.Version,
		SearchTokens:  repositories.OrderSearchTokens(order),
		CreatedAt:     order.CreatedAt.UTC(),
		UpdatedAt:     order.UpdatedAt.UTC(),
	}
	if encodeErr != nil {
		return orderDocument{}, wrapError("orders.encode", encodeErr)
	}
	return doc, nil
}

func decodeOrder(doc orderDocument) (domain.Order, error) {
	var decodeErr error
	dec := func(value primitive.Decimal128) decimal.Decimal {
		d, err := fromDecimal128(value)
		if err != nil && decodeErr == nil {
			decodeErr = err
		}
		return d
	}

	items := make([]domain.OrderItem, 0, len(doc.Items))
	for i, item := range doc.Items {
		items = append(items, domain.OrderItem{
			ID:           item.ID,
			ProductID:    item.ProductID,
			Name:         item.Name,
			Image:        item.Image,
			Price:        dec(item.Price),
			Quantity:     item.Quantity,
			Size:         item.Size,
			Color:        item.Color,
			Status:       domain.ItemStatus(item.Status),
			ConfirmedAt:  utcPtr(item.ConfirmedAt),
			CancelledAt:  utcPtr(item.CancelledAt),
			CancelReason: item.CancelReason,
			Position:     i,
		})
	}
	order := domain.Order{
		ID:     doc.ID,
		UserID: doc.UserID,
		Items:  items,
		ShippingAddress: domain.ShippingAddress{
			Address: doc.ShippingAddress.Address,
			State:   doc.ShippingAddress.State,
			Phone:   doc.ShippingAddress.Phone,
		},
		PaymentMethod: domain.PaymentMethod(doc.PaymentMethod),
		ItemsPrice:    dec(doc.ItemsPrice),
		ShippingPrice: dec(doc.ShippingPrice),
		TaxPrice:      dec(doc.TaxPrice),
		TotalPrice:    dec(doc.TotalPrice),
		Status:        domain.OrderStatus(doc.Status),
		PaidAt:        utcPtr(doc.PaidAt),
		ConfirmedAt:   utcPtr(doc.ConfirmedAt),
		ShippedAt:     utcPtr(doc.ShippedAt),
		DeliveredAt:   utcPtr(doc.DeliveredAt),
		CancelledAt:   utcPtr(doc.CancelledAt),
		CancelReason:  doc.CancelReason,
		Version:       doc.Version,
		CreatedAt:     doc.CreatedAt.UTC(),
		UpdatedAt:     doc.UpdatedAt.UTC(),
	}
	if decodeErr != nil {
		return domain.Order{}, wrapError("orders.decode", decodeErr)
	}
	return order, nil
}

func toDecimal128(value decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(value.String())
}

func fromDecimal128(value primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(value.String())
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
