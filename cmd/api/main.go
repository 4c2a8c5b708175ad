package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tailorline/storefront/internal/handlers"
	"github.com/tailorline/storefront/internal/platform/auth"
	"github.com/tailorline/storefront/internal/platform/config"
	"github.com/tailorline/storefront/internal/platform/events"
	pfirestore "github.com/tailorline/storefront/internal/platform/firestore"
	"github.com/tailorline/storefront/internal/platform/idempotency"
	"github.com/tailorline/storefront/internal/platform/observability"
	"github.com/tailorline/storefront/internal/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "storefront api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		return fmt.Errorf("read environment values: %w", err)
	}

	baseLogger, err := observability.NewLogger(
		observability.WithLevel(envValues["LOG_LEVEL"]),
		observability.WithService(envValues["API_SERVICE_NAME"], envValues["API_SERVICE_VERSION"]),
	)
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		return fmt.Errorf("initialise secret fetcher: %w", err)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Error("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		return fmt.Errorf("load configuration: %w", err)
	}
	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	// Shared by the Firestore registry and idempotency store; the client connects on first use.
	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := openRegistry(ctx, cfg, firestoreProvider)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("registry close error", zap.Error(err))
		}
	}()
	logger.Info("order storage ready", zap.String("driver", cfg.Database.Driver))

	var redisClient *redis.Client
	if cfg.Idempotency.Backend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
	}
	idempotencyStore := newIdempotencyStore(cfg, firestoreProvider, redisClient)

	publisher, err := events.New(ctx, cfg.Notifications, logger.Named("notifications"))
	if err != nil {
		return fmt.Errorf("initialise notification publisher: %w", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("notification publisher close error", zap.Error(err))
		}
	}()

	metrics := observability.NewMetrics()
	serviceLogger := observability.ServiceLogger(logger.Named("services"))

	auditService, err := services.NewAuditLogService(services.AuditLogServiceDeps{
		Repository:  registry.AuditLogs(),
		Clock:       time.Now,
		IDGenerator: uuid.NewString,
		Logger:      serviceLogger,
		HashSalt:    cfg.Admin.ConfirmationSecret,
	})
	if err != nil {
		return fmt.Errorf("initialise audit log service: %w", err)
	}

	var confirmations *services.ConfirmationIssuer
	if cfg.Admin.BulkClearEnabled {
		confirmations, err = services.NewConfirmationIssuer(cfg.Admin.ConfirmationSecret, cfg.Admin.ConfirmationTTL, time.Now)
		if err != nil {
			return fmt.Errorf("initialise bulk clear confirmations: %w", err)
		}
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:              registry.Orders(),
		Catalog:             registry.Catalog(),
		Inventory:           registry.Inventory(),
		Pricing:             pricingPolicy(cfg),
		Notifications:       publisher,
		NotificationTimeout: cfg.Notifications.PublishTimeout,
		Audit:               auditService,
		Confirmations:       confirmations,
		Metrics:             metrics,
		Features: services.OrderFeatures{
			OwnerItemCancel: cfg.Features.OwnerItemCancel,
			OnlinePayments:  cfg.Features.OnlinePayments,
			BulkClear:       cfg.Admin.BulkClearEnabled,
		},
		Clock:            time.Now,
		IDGenerator:      func() string { return ulid.Make().String() },
		EventIDGenerator: uuid.NewString,
		Logger:           serviceLogger,
	})
	if err != nil {
		return fmt.Errorf("initialise order service: %w", err)
	}

	systemService, err := newSystemService(registry, redisClient, fetcher, buildInfo)
	if err != nil {
		return fmt.Errorf("initialise system service: %w", err)
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		return fmt.Errorf("initialise firebase verifier: %w", err)
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithIdentityHook(observability.CaptureUser))

	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService,
		handlers.WithOrderIdempotency(idempotency.Middleware(idempotencyStore,
			idempotency.WithHeader(cfg.Idempotency.Header),
			idempotency.WithTTL(cfg.Idempotency.TTL),
			idempotency.WithOptional(),
		)),
		handlers.WithCheckoutRateLimit(cfg.RateLimits.CheckoutPerMinute, time.Minute, time.Now),
		handlers.WithOrderRateLimit(cfg.RateLimits.AuthenticatedPerMinute, time.Minute, time.Now),
	)
	adminHandlers := handlers.NewAdminOrderHandlers(authenticator, orderService)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
	)

	projectID := traceProjectID(cfg)
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(projectID),
			metrics.Middleware,
			handlers.RateLimitMiddleware(cfg.RateLimits.DefaultPerMinute, time.Minute, time.Now),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(metrics.Handler()),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, cfg.Observability.ServiceName),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	group.Go(func() error {
		serverLogger.Info("storefront api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return idempotency.RunCleanup(groupCtx, idempotencyStore, cfg.Idempotency.CleanupInterval,
			cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received; draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	return group.Wait()
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(cfg.Observability.Version)
	if version == "" {
		version = "dev"
	}
	environment := strings.TrimSpace(env["API_ENVIRONMENT"])
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
