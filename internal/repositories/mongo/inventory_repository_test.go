package mongo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/repositories"
)

type failingStockWriter struct {
	failFor  map[string]bool
	returned []string
}

func (w *failingStockWriter) UpdateOne(ctx context.Context, filter interface{}, update interface{}, _ ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, _ := filter.(bson.M)["_id"].(string)
	if w.failFor[id] {
		return nil, errors.New("write concern timeout")
	}
	w.returned = append(w.returned, id)
	return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func TestRollbackReportsFailedLines(t *testing.T) {
	writer := &failingStockWriter{failFor: map[string]bool{"shirt": true}}
	taken := []domain.ReservationLine{{ProductID: "shirt", Quantity: 2}, {ProductID: "scarf", Quantity: 1}}

	err := rollback(context.Background(), writer, taken)

	var invErr *repositories.InventoryError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, repositories.InventoryErrorRollbackFailed, invErr.Code)
	assert.Contains(t, err.Error(), "1 of 2 lines")
	assert.Contains(t, errors.Unwrap(err).Error(), "return 2 of shirt")
	assert.Equal(t, []string{"scarf"}, writer.returned, "remaining lines are still returned")
}

func TestRollbackIgnoresCallerCancellation(t *testing.T) {
	writer := &failingStockWriter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, rollback(ctx, writer, []domain.ReservationLine{{ProductID: "shirt", Quantity: 1}}))
	assert.Equal(t, []string{"shirt"}, writer.returned)
}

func TestRollbackWithoutLines(t *testing.T) {
	require.NoError(t, rollback(context.Background(), &failingStockWriter{}, nil))
}
