package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/platform/config"
	pfirestore "github.com/tailorline/storefront/internal/platform/firestore"
	"github.com/tailorline/storefront/internal/platform/idempotency"
	"github.com/tailorline/storefront/internal/platform/mongostore"
	"github.com/tailorline/storefront/internal/platform/secrets"
	"github.com/tailorline/storefront/internal/repositories"
	firestoreRepo "github.com/tailorline/storefront/internal/repositories/firestore"
	"github.com/tailorline/storefront/internal/repositories/memory"
	mongoRepo "github.com/tailorline/storefront/internal/repositories/mongo"
	"github.com/tailorline/storefront/internal/services"
)

const idempotencyCollection = "idempotency_keys"

func openRegistry(ctx context.Context, cfg config.Config, provider *pfirestore.Provider) (repositories.Registry, error) {
	switch cfg.Database.Driver {
	case config.DriverFirestore:
		registry, err := firestoreRepo.NewRegistry(provider)
		if err != nil {
			return nil, fmt.Errorf("initialise firestore registry: %w", err)
		}
		return registry, nil
	case config.DriverMongo:
		pool := mongostore.NewPool(cfg.Mongo)
		if err := pool.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		registry, err := mongoRepo.NewRegistry(pool)
		if err != nil {
			_ = pool.Close(ctx)
			return nil, fmt.Errorf("initialise mongo registry: %w", err)
		}
		if err := registry.EnsureIndexes(ctx); err != nil {
			_ = pool.Close(ctx)
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		return registry, nil
	case config.DriverMemory:
		return memory.NewRegistry(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func newIdempotencyStore(cfg config.Config, provider *pfirestore.Provider, rdb *redis.Client) idempotency.Store {
	switch cfg.Idempotency.Backend {
	case "redis":
		if rdb != nil {
			return idempotency.NewRedisStore(rdb)
		}
	case "firestore":
		if provider != nil {
			return idempotency.NewFirestoreStore(provider, idempotencyCollection)
		}
	}
	return idempotency.NewMemoryStore()
}

// pricingPolicy copies the loaded shipping rule. config.Load already applies defaults, so a zero
// fee or threshold is an explicit setting.
func pricingPolicy(cfg config.Config) *domain.PricingPolicy {
	return &domain.PricingPolicy{
		FreeShippingOver: cfg.Pricing.FreeShippingOver,
		ShippingFee:      cfg.Pricing.ShippingFee,
	}
}

func newSystemService(registry repositories.Registry, rdb *redis.Client, fetcher *secrets.Fetcher, build services.BuildInfo) (services.SystemService, error) {
	checks := []repositories.DependencyCheck{{
		Name:    "database",
		Timeout: 1500 * time.Millisecond,
		Check:   registry.Ping,
	}}
	if rdb != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
		Build:            build,
	})
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectMap := secretProjectMapFromEnv(env); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if pins := secretVersionPinsFromEnv(env); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secret-backed fields that must resolve for the selected backends.
func requiredSecretNames(env map[string]string) []string {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(env[key]))
	}

	var required []string
	if lookup("API_DATABASE_DRIVER") == config.DriverMongo {
		required = append(required, "Mongo.URI")
	}
	switch lookup("API_ADMIN_BULK_CLEAR_ENABLED") {
	case "1", "true", "yes", "on":
		required = append(required, "Admin.ConfirmationSecret")
	}
	return uniqueStrings(required)
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	projects := make(map[string]string)
	for label, project := range parseKeyValueList(env["API_SECRET_PROJECT_IDS"]) {
		projects[strings.ToLower(label)] = project
	}
	return projects
}

func secretVersionPinsFromEnv(env map[string]string) map[string]string {
	pins := make(map[string]string)
	for ref, version := range parseKeyValueList(env["API_SECRET_VERSION_PINS"]) {
		var prefix string
		if idx := strings.Index(ref, ":"); idx > 0 {
			schemeSplit := strings.Index(ref, "://")
			if schemeSplit == -1 || idx < schemeSplit {
				prefix = strings.ToLower(strings.TrimSpace(ref[:idx])) + ":"
				ref = strings.TrimSpace(ref[idx+1:])
			}
		}
		switch {
		case strings.HasPrefix(ref, "sm://"):
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		case !strings.HasPrefix(ref, "secret://"):
			ref = "secret://" + ref
		}
		pins[prefix+ref] = version
	}
	return pins
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
