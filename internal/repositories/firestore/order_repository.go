package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	domain "github.com/tailorline/storefront/internal/domain"
	pfirestore "github.com/tailorline/storefront/internal/platform/firestore"
	"github.com/tailorline/storefront/internal/platform/textutil"
	"github.com/tailorline/storefront/internal/repositories"
)

const (
	ordersCollection = "orders"
	deleteBatchSize  = 400
	// Order updates touch one document; a longer wait means the backend is unhealthy.
	orderTxTimeout = 5 * time.Second
)

// OrderRepository persists orders in the orders collection. Items are stored as a map keyed by
// item id so a single item can be updated through a field path.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{provider: provider, base: base}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if order.ID == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.Create(ctx, order.ID, encodeOrder(order))
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data)
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	filter = filter.Normalized()
	// Firestore allows one array-contains per query; the longest term is the most selective and
	// the remaining terms are matched against the stored tokens.
	primary := textutil.LongestTerm(filter.SearchTerms)
	rest := remainingTerms(filter.SearchTerms, primary)

	where := func(q firestore.Query) firestore.Query {
		if filter.UserID != "" {
			q = q.Where("userId", "==", filter.UserID)
		}
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		if filter.CreatedAfter != nil {
			q = q.Where("createdAt", ">=", filter.CreatedAfter.UTC())
		}
		if filter.CreatedBefore != nil {
			q = q.Where("createdAt", "<", filter.CreatedBefore.UTC())
		}
		if primary != "" {
			q = q.Where("searchTokens", "array-contains", primary)
		}
		return q
	}

	direction := firestore.Desc
	if filter.Order == domain.SortAsc {
		direction = firestore.Asc
	}
	ordered := func(q firestore.Query) firestore.Query {
		return where(q).
			OrderBy(sortField(filter.Sort), direction).
			OrderBy(firestore.DocumentID, direction)
	}

	var (
		docs  []pfirestore.Document[orderDocument]
		total int64
		err   error
	)
	if len(rest) == 0 {
		if total, err = r.base.Count(ctx, where); err != nil {
			return domain.Page[domain.Order]{}, err
		}
		docs, err = r.base.Query(ctx, func(q firestore.Query) firestore.Query {
			return ordered(q).Offset(filter.Offset()).Limit(filter.Limit)
		})
		if err != nil {
			return domain.Page[domain.Order]{}, err
		}
	} else {
		candidates, err := r.base.Query(ctx, ordered)
		if err != nil {
			return domain.Page[domain.Order]{}, err
		}
		matched := candidates[:0]
		for _, doc := range candidates {
			if containsAll(doc.Data.SearchTokens, rest) {
				matched = append(matched, doc)
			}
		}
		total = int64(len(matched))
		start := filter.Offset()
		if start > len(matched) {
			start = len(matched)
		}
		end := start + filter.Limit
		if end > len(matched) {
			end = len(matched)
		}
		docs = matched[start:end]
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := decodeOrder(doc.ID, doc.Data)
		if err != nil {
			return domain.Page[domain.Order]{}, err
		}
		orders = append(orders, order)
	}
	return domain.NewPage(orders, filter.Page, filter.Limit, total), nil
}

func (r *OrderRepository) TransitionOrder(ctx context.Context, orderID string, flags domain.OrderFlags, now time.Time) (repositories.OrderTransitionResult, error) {
	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return repositories.OrderTransitionResult{}, err
	}
	now = now.UTC()

	var result repositories.OrderTransitionResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		order, err := r.readOrder(tx, ref)
		if err != nil {
			return err
		}
		plan, err := domain.PlanOrderTransition(order, flags, now)
		if err != nil {
			return err
		}
		result = repositories.OrderTransitionResult{Order: order, Plan: plan}
		if plan.Noop() {
			return nil
		}

		updates := []firestore.Update{
			{Path: "status", Value: string(plan.Status)},
			{Path: "version", Value: firestore.Increment(1)},
			{Path: "updatedAt", Value: now},
		}
		for path, value := range map[string]*time.Time{
			"paidAt":      plan.PaidAt,
			"confirmedAt": plan.ConfirmedAt,
			"shippedAt":   plan.ShippedAt,
			"deliveredAt": plan.DeliveredAt,
			"cancelledAt": plan.CancelledAt,
		} {
			if value != nil {
				updates = append(updates, firestore.Update{Path: path, Value: value.UTC()})
			}
		}
		if plan.CancelReason != "" {
			updates = append(updates, firestore.Update{Path: "cancelReason", Value: plan.CancelReason})
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}
		result.Order = plan.Apply(order, now)
		return nil
	}, pfirestore.WithTxTimeout(orderTxTimeout))
	if err != nil {
		return repositories.OrderTransitionResult{}, err
	}
	return result, nil
}

func (r *OrderRepository) UpdateItemStatus(ctx context.Context, orderID string, update repositories.ItemStatusUpdate, now time.Time) (repositories.ItemUpdateResult, error) {
	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return repositories.ItemUpdateResult{}, err
	}
	now = now.UTC()

	var result repositories.ItemUpdateResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		order, err := r.readOrder(tx, ref)
		if err != nil {
			return err
		}
		if update.Guard != nil {
			if item, _, found := order.Item(update.ItemID); found {
				if err := update.Guard(order, item); err != nil {
					return err
				}
			}
		}
		change, changed, err := domain.PlanItemTransition(order, update.ItemID, update.Status, update.CancelReason, now)
		if err != nil {
			return err
		}
		result = repositories.ItemUpdateResult{Order: order, Change: change}
		if !changed {
			return nil
		}

		updated := domain.ApplyItemChange(order, change, now)
		itemPath := func(field string) firestore.FieldPath {
			return firestore.FieldPath{"items", change.ItemID, field}
		}
		updates := []firestore.Update{
			{FieldPath: itemPath("status"), Value: string(change.Status)},
			{Path: "itemsPrice", Value: updated.ItemsPrice.String()},
			{Path: "totalPrice", Value: updated.TotalPrice.String()},
			{Path: "totalPriceSort", Value: updated.TotalPrice.InexactFloat64()},
			{Path: "version", Value: firestore.Increment(1)},
			{Path: "updatedAt", Value: now},
		}
		if change.ConfirmedAt != nil {
			updates = append(updates, firestore.Update{FieldPath: itemPath("confirmedAt"), Value: change.ConfirmedAt.UTC()})
		}
		if change.CancelledAt != nil {
			updates = append(updates, firestore.Update{FieldPath: itemPath("cancelledAt"), Value: change.CancelledAt.UTC()})
		}
		if change.CancelReason != "" {
			updates = append(updates, firestore.Update{FieldPath: itemPath("cancelReason"), Value: change.CancelReason})
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}
		result.Order = updated
		result.Changed = true
		return nil
	}, pfirestore.WithTxTimeout(orderTxTimeout))
	if err != nil {
		return repositories.ItemUpdateResult{}, err
	}
	return result, nil
}

func (r *OrderRepository) Count(ctx context.Context) (int64, error) {
	return r.base.Count(ctx, nil)
}

// DeleteAll removes every order document in batches through a BulkWriter.
func (r *OrderRepository) DeleteAll(ctx context.Context) (int64, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	coll, err := r.base.Collection(ctx)
	if err != nil {
		return 0, err
	}

	var deleted int64
	for {
		iter := coll.Limit(deleteBatchSize).Select().Documents(ctx)
		bw := client.BulkWriter(ctx)
		var jobs []*firestore.BulkWriterJob
		for {
			snap, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				iter.Stop()
				bw.End()
				return deleted, pfirestore.WrapError("orders.deleteAll", err)
			}
			job, err := bw.Delete(snap.Ref)
			if err != nil {
				iter.Stop()
				bw.End()
				return deleted, pfirestore.WrapError("orders.deleteAll", err)
			}
			jobs = append(jobs, job)
		}
		iter.Stop()
		bw.End()

		for _, job := range jobs {
			if _, err := job.Results(); err != nil {
				return deleted, pfirestore.WrapError("orders.deleteAll", err)
			}
			deleted++
		}
		if len(jobs) < deleteBatchSize {
			return deleted, nil
		}
	}
}

func (r *OrderRepository) readOrder(tx *firestore.Transaction, ref *firestore.DocumentRef) (domain.Order, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.get", err)
	}
	doc, err := r.base.Decode(snap)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data)
}

func remainingTerms(terms []string, primary string) []string {
	var rest []string
	skipped := false
	for _, term := range terms {
		if term == primary && !skipped {
			skipped = true
			continue
		}
		rest = append(rest, term)
	}
	return rest
}

func containsAll(tokens, terms []string) bool {
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	for _, term := range terms {
		if _, ok := set[term]; !ok {
			return false
		}
	}
	return true
}

func sortField(sort domain.OrderSort) string {
	switch sort {
	case domain.OrderSortUpdatedAt:
		return "updatedAt"
	case domain.OrderSortTotalPrice:
		return "totalPriceSort"
	default:
		return "createdAt"
	}
}

type orderDocument struct {
	UserID          string                       `firestore:"userId"`
	Items           map[string]orderItemDocument `firestore:"items"`
	ShippingAddress shippingAddressDocument      `firestore:"shippingAddress"`
	PaymentMethod   string                       `firestore:"paymentMethod"`
	ItemsPrice      string                       `firestore:"itemsPrice"`
	ShippingPrice   string                       `firestore:"shippingPrice"`
	TaxPrice        string                       `firestore:"taxPrice"`
	TotalPrice      string                       `firestore:"totalPrice"`
	TotalPriceSort  float64                      `firestore:"totalPriceSort"` // ordering only
	Status          string                       `firestore:"status"`
	PaidAt          *time.Time                   `firestore:"paidAt,omitempty"`
	ConfirmedAt     *time.Time                   `firestore:"confirmedAt,omitempty"`
	ShippedAt       *time.Time                   `firestore:"shippedAt,omitempty"`
	DeliveredAt     *time.Time                   `firestore:"deliveredAt,omitempty"`
	CancelledAt     *time.Time                   `firestore:"cancelledAt,omitempty"`
	CancelReason    string                       `firestore:"cancelReason,omitempty"`
	Version         int64                        `firestore:"version"`
	SearchTokens    []string                     `firestore:"searchTokens"`
	CreatedAt       time.Time                    `firestore:"createdAt"`
	UpdatedAt       time.Time                    `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID    string     `firestore:"productId"`
	Name         string     `firestore:"name"`
	Image        string     `firestore:"image,omitempty"`
	Price        string     `firestore:"price"`
	Quantity     int64      `firestore:"quantity"`
	Size         string     `firestore:"size,omitempty"`
	Color        string     `firestore:"color,omitempty"`
	Status       string     `firestore:"status"`
	ConfirmedAt  *time.Time `firestore:"confirmedAt,omitempty"`
	CancelledAt  *time.Time `firestore:"cancelledAt,omitempty"`
	CancelReason string     `firestore:"cancelReason,omitempty"`
	Position     int        `firestore:"position"`
}

type shippingAddressDocument struct {
	Address string `firestore:"address"`
	State   string `firestore:"state"`
	Phone   string `firestore:"phone"`
}

func encodeOrder(order domain.Order) orderDocument {
	items := make(map[string]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[item.ID] = orderItemDocument{
			ProductID:    item.ProductID,
			Name:         item.Name,
			Image:        item.Image,
			Price:        item.Price.String(),
			Quantity:     item.Quantity,
			Size:         item.Size,
			Color:        item.Color,
			Status:       string(item.Status),
			ConfirmedAt:  utcPtr(item.ConfirmedAt),
			CancelledAt:  utcPtr(item.CancelledAt),
			CancelReason: item.CancelReason,
			Position:     i,
		}
	}
	return orderDocument{
		UserID: order.UserID,
		Items:  items,
		ShippingAddress: shippingAddressDocument{
			Address: order.ShippingAddress.Address,
			State:   order.ShippingAddress.State,
			Phone:   order.ShippingAddress.Phone,
		},
		PaymentMethod:  string(order.PaymentMethod),
		ItemsPrice:     order.ItemsPrice.String(),
		ShippingPrice:  order.ShippingPrice.String(),
		TaxPrice:       order.TaxPrice.String(),
		TotalPrice:     order.TotalPrice.String(),
		TotalPriceSort: order.TotalPrice.InexactFloat64(),
		Status:         string(order.Status),
		PaidAt:         utcPtr(order.PaidAt),
		ConfirmedAt:    utcPtr(order.ConfirmedAt),
		ShippedAt:      utcPtr(order.ShippedAt),
		DeliveredAt:    utcPtr(order.DeliveredAt),
		CancelledAt:    utcPtr(order.CancelledAt),
		CancelReason:   order.CancelReason,
		Version:        order.Version,
		SearchTokens:   repositories.OrderSearchTokens(order),
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
	}
}

func decodeOrder(id string, doc orderDocument) (domain.Order, error) {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for itemID, item := range doc.Items {
		price, err := parseMoney(item.Price)
		if err != nil {
			return domain.Order{}, fmt.Errorf("decode order %s item %s price: %w", id, itemID, err)
		}
		items = append(items, domain.OrderItem{
			ID:           itemID,
			ProductID:    item.ProductID,
			Name:         item.Name,
			Image:        item.Image,
			Price:        price,
			Quantity:     item.Quantity,
			Size:         item.Size,
			Color:        item.Color,
			Status:       domain.ItemStatus(item.Status),
			ConfirmedAt:  utcPtr(item.ConfirmedAt),
			CancelledAt:  utcPtr(item.CancelledAt),
			CancelReason: item.CancelReason,
			Position:     item.Position,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Position == items[j].Position {
			return items[i].ID < items[j].ID
		}
		return items[i].Position < items[j].Position
	})

	var totals [4]decimal.Decimal
	for i, raw := range []string{doc.ItemsPrice, doc.ShippingPrice, doc.TaxPrice, doc.TotalPrice} {
		value, err := parseMoney(raw)
		if err != nil {
			return domain.Order{}, fmt.Errorf("decode order %s totals: %w", id, err)
		}
		totals[i] = value
	}

	return domain.Order{
		ID:     id,
		UserID: doc.UserID,
		Items:  items,
		ShippingAddress: domain.ShippingAddress{
			Address: doc.ShippingAddress.Address,
			State:   doc.ShippingAddress.State,
			Phone:   doc.ShippingAddress.Phone,
		},
		PaymentMethod: domain.PaymentMethod(doc.PaymentMethod),
		ItemsPrice:    totals[0],
		ShippingPrice: totals[1],
		TaxPrice:      totals[2],
		TotalPrice:    totals[3],
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
	}, nil
}

// parseMoney decodes an amount stored as an exact decimal string. Empty means zero.
func parseMoney(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
