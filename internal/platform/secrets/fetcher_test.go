package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const confirmResource = "projects/shop/secrets/admin_confirmation/versions/latest"

func writeFallback(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[confirmResource] = "remote-secret"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("shop"), WithFallbackFile(""))
	require.NoError(t, err)
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://admin_confirmation")
		require.NoError(t, err)
		assert.Equal(t, "remote-secret", got)
	}
	assert.Equal(t, 1, client.callCount(confirmResource))
}

func TestResolveRefetchesAfterCacheTTL(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[confirmResource] = "v1"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("shop"),
		WithFallbackFile(""), WithCacheTTL(time.Minute))
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fetcher.now = func() time.Time { return now }

	got, err := fetcher.Resolve(ctx, "secret://admin_confirmation")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	client.values[confirmResource] = "v2"
	now = now.Add(2 * time.Minute)
	got, err = fetcher.Resolve(ctx, "secret://admin_confirmation")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
	assert.Equal(t, 2, client.callCount(confirmResource))
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.errors[confirmResource] = status.Error(codes.Unavailable, "down")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("shop"),
		WithFallbackFile(writeFallback(t, "# local\nsm://admin_confirmation=local-secret\n")),
	)
	require.NoError(t, err)

	got, err := fetcher.Resolve(ctx, "secret://admin_confirmation")
	require.NoError(t, err)
	assert.Equal(t, "local-secret", got)
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("shop"),
		WithFallbackFile(writeFallback(t, "secret://admin_confirmation=local-secret\n")),
	)
	require.NoError(t, err)

	_, err = fetcher.Resolve(ctx, "secret://admin_confirmation")
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(errors.Unwrap(err)))
}

func TestResolveUsesVersionPinsAndProjectMap(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	pinned := "projects/shop-prod/secrets/redis_password/versions/5"
	client.values[pinned] = "pinned"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithEnvironment("PROD"),
		WithDefaultProject("shop"),
		WithProjectMap(map[string]string{"prod": "shop-prod"}),
		WithVersionPins(map[string]string{"sm://redis_password": "5"}),
		WithFallbackFile(""),
	)
	require.NoError(t, err)

	got, err := fetcher.Resolve(ctx, "secret://redis_password")
	require.NoError(t, err)
	assert.Equal(t, "pinned", got)
	assert.Equal(t, 1, client.callCount(pinned))
}

func TestInvalidateForcesRefetch(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[confirmResource] = "first"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("shop"), WithFallbackFile(""))
	require.NoError(t, err)

	_, err = fetcher.Resolve(ctx, "secret://admin_confirmation")
	require.NoError(t, err)
	client.values[confirmResource] = "second"
	fetcher.Invalidate("sm://admin_confirmation")

	got, err := fetcher.Resolve(ctx, "secret://admin_confirmation")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	ctx := context.Background()
	original := secretManagerClientFactory
	secretManagerClientFactory = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { secretManagerClientFactory = original })

	fetcher, err := NewFetcher(ctx, WithFallbackFile(writeFallback(t, "secret://mongo_uri=mongodb://local\n")))
	require.NoError(t, err)
	defer fetcher.Close()

	got, err := fetcher.ResolveSecret(ctx, "secret://mongo_uri?version=3")
	require.NoError(t, err)
	assert.Equal(t, "mongodb://local", got)

	_, err = fetcher.Resolve(ctx, "secret://unknown")
	assert.Error(t, err)
}

func TestParseReferenceRejectsOtherSchemes(t *testing.T) {
	_, err := parseReference("https://example.com/secret")
	assert.Error(t, err)
	_, err = parseReference("  ")
	assert.Error(t, err)
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetName()
	f.counter[name]++
	if err := f.errors[name]; err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
