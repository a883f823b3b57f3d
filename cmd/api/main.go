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

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	domain "github.com/loomline/api/internal/domain"
	"github.com/loomline/api/internal/handlers"
	"github.com/loomline/api/internal/payments"
	"github.com/loomline/api/internal/platform/auth"
	"github.com/loomline/api/internal/platform/config"
	pfirestore "github.com/loomline/api/internal/platform/firestore"
	"github.com/loomline/api/internal/platform/idempotency"
	"github.com/loomline/api/internal/platform/jobs"
	"github.com/loomline/api/internal/platform/observability"
	"github.com/loomline/api/internal/platform/secrets"
	platformstorage "github.com/loomline/api/internal/platform/storage"
	firestoreRepo "github.com/loomline/api/internal/repositories/firestore"
	"github.com/loomline/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
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
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	location, err := time.LoadLocation(cfg.Business.Timezone)
	if err != nil {
		logger.Fatal("invalid business timezone",
			zap.String("timezone", cfg.Business.Timezone), zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}
	taxonomyRepo, err := firestoreRepo.NewTaxonomyRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise taxonomy repository", zap.Error(err))
	}

	var eventPublisher services.OrderEventPublisher
	if cfg.Events.ProjectID != "" && cfg.Events.Topic != "" {
		var pubsubOpts []option.ClientOption
		if cfg.Firestore.CredentialsFile != "" {
			pubsubOpts = append(pubsubOpts, option.WithCredentialsFile(cfg.Firestore.CredentialsFile))
		}
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID, pubsubOpts...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(cfg.Events.Topic)
		defer topic.Stop()
		publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		eventPublisher = publisher
	} else {
		logger.Warn("order event publishing disabled: no pubsub project or topic configured")
	}

	var imageSigner services.ImageURLSigner
	if cfg.Storage.ProductImagesBucket != "" && cfg.Firestore.CredentialsFile != "" {
		saSigner, err := platformstorage.NewServiceAccountSignerFromFile(cfg.Firestore.CredentialsFile)
		if err != nil {
			logger.Fatal("failed to load storage signer key", zap.Error(err))
		}
		urlSigner, err := platformstorage.NewImageURLSigner(saSigner, cfg.Storage.ProductImagesBucket)
		if err != nil {
			logger.Fatal("failed to initialise image url signer", zap.Error(err))
		}
		imageSigner = urlSigner
	} else {
		logger.Warn("signed image urls disabled: bucket or credentials file not configured")
	}

	authenticator, err := auth.NewAuthenticator(cfg.Admin.JWTSecret, auth.WithTokenTTL(cfg.Admin.TokenTTL))
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   orderRepo,
		Products: productRepo,
		Events:   eventPublisher,
		Location: location,
		Shipping: services.ShippingPolicy{
			FreeFrom: domain.Money(cfg.Business.FreeShippingThreshold),
			Flat:     domain.Money(cfg.Business.FlatShippingCost),
		},
		Logger: serviceLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: productRepo,
		Taxonomy: taxonomyRepo,
		Images:   imageSigner,
		Logger:   serviceLogger(logger.Named("catalog")),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	analyticsService, err := services.NewAnalyticsService(services.AnalyticsServiceDeps{
		Orders:   orderRepo,
		Products: productRepo,
		Taxonomy: taxonomyRepo,
		Location: location,
		Logger:   serviceLogger(logger.Named("analytics")),
	})
	if err != nil {
		logger.Fatal("failed to initialise analytics service", zap.Error(err))
	}

	var paymentService services.PaymentService
	if strings.TrimSpace(cfg.PSP.StripeAPIKey) != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:        cfg.PSP.StripeAPIKey,
			WebhookSecret: cfg.PSP.StripeWebhookSecret,
			Logger:        payments.StripeLogger(serviceLogger(logger.Named("stripe"))),
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe provider", zap.Error(err))
		}
		paymentService, err = services.NewPaymentService(services.PaymentServiceDeps{
			Orders:   orderService,
			Provider: stripeProvider,
			Webhooks: stripeProvider,
			Logger:   serviceLogger(logger.Named("payments")),
		})
		if err != nil {
			logger.Fatal("failed to initialise payment service", zap.Error(err))
		}
	} else {
		logger.Warn("stripe disabled: payment endpoints will report unavailable")
	}

	idemStore := idempotency.NewFirestoreStore(firestoreClient)
	idemMiddleware := idempotency.Middleware(idemStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)
	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	defer cancelCleanup()
	go runIdempotencyCleanup(cleanupCtx, logger.Named("idempotency"), idemStore, cfg.Idempotency)

	orderHandlers := handlers.NewOrderHandlers(orderService, paymentService)
	adminOrderHandlers := handlers.NewAdminOrderHandlers(orderService)
	catalogHandlers := handlers.NewCatalogHandlers(catalogService)
	adminCatalogHandlers := handlers.NewAdminCatalogHandlers(catalogService)
	dashboardHandlers := handlers.NewDashboardHandlers(analyticsService)
	webhookHandlers := handlers.NewWebhookHandlers(paymentService)
	authHandlers := handlers.NewAuthHandlers(authenticator, cfg.Admin.Username, cfg.Admin.PasswordHash)
	healthHandlers := handlers.NewHealthHandlers(firestoreReadiness(firestoreClient))

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger),
		observability.TraceMiddleware(cfg.Firestore.ProjectID),
		observability.RecoveryMiddleware(logger),
		observability.RequestLoggerMiddleware(),
		handlers.ThrottleMiddleware(cfg.RateLimits.DefaultPerMinute, time.Minute),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAuthRoutes(authHandlers.Routes),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithOrderMiddlewares(idemMiddleware),
		handlers.WithAdminRoutes(func(r chi.Router) {
			r.Route("/orders", adminOrderHandlers.Routes)
			r.Route("/dashboard", dashboardHandlers.Routes)
			adminCatalogHandlers.Routes(r)
		}),
		handlers.WithAdminMiddlewares(
			authenticator.RequireAdmin(),
			handlers.ThrottleMiddleware(cfg.RateLimits.AdminPerMinute, time.Minute),
		),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithWebhookMiddlewares(
			handlers.ThrottleMiddleware(cfg.RateLimits.WebhookBurst, time.Second),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverLogger := logger.Named("server")
	serverErr := make(chan error, 1)
	go func() {
		serverLogger.Info("api listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		serverLogger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErr:
		serverLogger.Error("server error", zap.Error(err))
	}

	cancelCleanup()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		serverLogger.Error("graceful shutdown failed", zap.Error(err))
	}
	serverLogger.Info("server stopped")
}

// serviceLogger adapts a zap logger to the map-based event logger the services expect.
func serviceLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zFields = append(zFields, zap.Any(key, value))
		}
		logger.Debug(event, zFields...)
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRET_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if credentialsFile := lookup("API_FIRESTORE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets that must resolve before the server
// starts. Stripe credentials become mandatory once an API key is configured.
func requiredSecretNames(env map[string]string) []string {
	required := []string{"Admin.JWTSecret"}
	if strings.TrimSpace(env["API_PSP_STRIPE_API_KEY"]) != "" {
		required = append(required, "PSP.StripeAPIKey", "PSP.StripeWebhookSecret")
	}
	return required
}

// firestoreReadiness probes the datastore by listing a single collection.
func firestoreReadiness(client *firestore.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		it := client.Collections(ctx)
		if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
			return err
		}
		return nil
	}
}

func runIdempotencyCleanup(ctx context.Context, logger *zap.Logger, store *idempotency.FirestoreStore, cfg config.IdempotencyConfig) {
	if cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := store.CleanupExpired(ctx, now.UTC(), cfg.CleanupBatchSize)
			if err != nil {
				logger.Warn("idempotency cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("expired idempotency records purged", zap.Int("count", removed))
			}
		}
	}
}
