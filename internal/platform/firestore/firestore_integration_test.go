//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pfirestore "github.com/tailorline/storefront/internal/platform/firestore"
	"github.com/tailorline/storefront/internal/platform/firestore/firestoretest"
)

type counterDoc struct {
	Name  string `firestore:"name"`
	Count int    `firestore:"count"`
}

func TestProviderAndRepositoryIntegration(t *testing.T) {
	provider := firestoretest.NewProvider(t, "storefront-test")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, provider.Ping(ctx))

	repo := pfirestore.NewBaseRepository[counterDoc](provider, "counters", nil, nil)
	require.NoError(t, repo.Create(ctx, "c-1", counterDoc{Name: "alpha", Count: 1}))

	err := repo.Create(ctx, "c-1", counterDoc{Name: "dup"})
	var classified interface{ IsConflict() bool }
	require.ErrorAs(t, err, &classified)
	assert.True(t, classified.IsConflict())

	doc, err := repo.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", doc.Data.Name)
	assert.False(t, doc.UpdateTime.IsZero())

	_, err = repo.Get(ctx, "missing")
	var notFound interface{ IsNotFound() bool }
	require.ErrorAs(t, err, &notFound)
	assert.True(t, notFound.IsNotFound())

	require.NoError(t, provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := repo.DocumentRef(ctx, "c-1")
		if err != nil {
			return err
		}
		return tx.Update(ref, []firestore.Update{{Path: "count", Value: firestore.Increment(2)}})
	}))

	doc, err = repo.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Data.Count)

	require.NoError(t, repo.Set(ctx, "c-2", counterDoc{Name: "beta", Count: 7}))
	total, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	docs, err := repo.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("count", ">", 5)
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "c-2", docs[0].ID)

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	err = provider.RunTransaction(cancelled, func(context.Context, *firestore.Transaction) error { return nil })
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}
