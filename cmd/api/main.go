package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docufy/payment-core/internal/alert"
	"github.com/docufy/payment-core/internal/catalog"
	"github.com/docufy/payment-core/internal/checkout"
	"github.com/docufy/payment-core/internal/common"
	"github.com/docufy/payment-core/internal/config"
	"github.com/docufy/payment-core/internal/health"
	"github.com/docufy/payment-core/internal/ledger"
	"github.com/docufy/payment-core/internal/obs"
	"github.com/docufy/payment-core/internal/order"
	"github.com/docufy/payment-core/internal/payment"
	"github.com/docufy/payment-core/internal/pricing"
	"github.com/docufy/payment-core/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "docufy")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegisterMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "payment-core-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := runMigrations(cfg); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "payment-core-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	entries, err := catalog.LoadEntries(ctx, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("load price catalog")
	}
	priceCatalog := catalog.New(entries, cfg.CurrencyCode)
	logger.Info().Int("entries", priceCatalog.Len()).Msg("price catalog loaded")

	signer, err := payment.NewSigner(cfg.IPCPrivateKeyPEM)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse gateway private key")
	}
	verifier, err := payment.NewVerifier(cfg.IPCGatewayCertPEM)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse gateway certificate")
	}

	outbound := resilience.HTTPClient{
		Client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.OutboundTimeout,
		},
		Breaker:     resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRatio, cfg.CircuitOpenFor).WithLogger(logger),
		BaseBackoff: cfg.RetryBase,
		MaxAttempts: cfg.RetryMaxAttempts,
		Jitter:      cfg.RetryJitterPercent,
		Timeout:     cfg.OutboundTimeout,
	}

	callbackBase := cfg.IPCCallbackBaseURL
	if callbackBase == "" {
		callbackBase = cfg.PublicBaseURL
	}
	ipc := payment.IPC{
		BaseURL:         cfg.IPCBaseURL,
		MerchantSID:     cfg.IPCMerchantSID,
		WalletNumber:    cfg.IPCWalletNumber,
		KeyIndex:        cfg.IPCKeyIndex,
		Version:         cfg.IPCVersion,
		CallbackBaseURL: callbackBase,
		Signer:          signer,
		Verifier:        verifier,
		HTTP:            outbound,
		Logger:          logger,
	}
	stripe := payment.Stripe{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		BaseURL:       cfg.StripeBaseURL,
		SigTolerance:  cfg.StripeSigTolerance,
		HTTP:          outbound,
	}

	repo := order.Repo{Pool: pool}
	eventLedger := ledger.Ledger{Pool: pool}
	taskClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisOpts.Addr,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	})
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()
	alerts := alert.Enqueuer{Client: taskClient}

	checkoutSvc := &checkout.Service{
		Catalog: priceCatalog,
		Fees: pricing.Schedule{
			BaseFee:            cfg.TMBaseFee,
			ClassFee:           cfg.TMClassFee,
			PriorityFee:        cfg.TMPriorityFee,
			CollectiveBaseFee:  cfg.TMCollectiveBaseFee,
			CollectiveClassFee: cfg.TMCollectiveClassFee,
			IncludedClasses:    cfg.TMIncludedClasses,
		},
		Orders:      repo,
		IPC:         ipc,
		IPCBaseURL:  cfg.IPCBaseURL,
		Stripe:      stripe,
		PublicBase:  cfg.PublicBaseURL,
		VATRateBps:  cfg.VATRateBps,
		Tolerance:   cfg.ToleranceFor,
		Logger:      logger,
		ProductName: "Docufy order",
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc, Validate: validator.New(), Logger: logger}

	paymentHandler := &payment.Handler{Store: repo, Legacy: ipc, Logger: logger}
	ipcWebhook := payment.IPCWebhook{
		Verifier:  ipc,
		Store:     repo,
		Tolerance: cfg.ToleranceFor,
		Alerts:    alerts,
		Logger:    logger,
	}
	stripeWebhook := payment.StripeWebhook{
		Gateway:   stripe,
		Store:     repo,
		Ledger:    eventLedger,
		Tolerance: cfg.ToleranceFor,
		Alerts:    alerts,
		Logger:    logger,
	}

	orderAdmin := &order.AdminHandler{Store: repo, Logger: logger}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	rate, err := limiter.NewRateFromFormatted(cfg.CreateOrderRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse rate limit")
	}
	limiterStore, err := limiterredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
		Prefix: "ratelimit:orders",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limit store")
	}
	rateLimit := limiterstdlib.NewMiddleware(limiter.New(limiterStore, rate))

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Group(func(g chi.Router) {
			g.Use(rateLimit.Handler)
			g.Use(idem.Middleware)
			g.Post("/orders", checkoutHandler.CreateDocumentOrder)
			g.Post("/trademark-orders", checkoutHandler.CreateTrademarkOrder)
		})

		v.Get("/payments/{orderID}/status", paymentHandler.Status)

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(common.BearerAuth(cfg.AdminAPIToken))
			admin.Mount("/orders", orderAdmin.Routes())
			admin.Post("/payments/{orderID}/refund", paymentHandler.Refund)
			admin.Get("/payments/{orderID}/gateway-status", paymentHandler.GatewayStatus)
		})
	})

	// Gateway callbacks sit outside /api/v1; their ack contracts differ from
	// the JSON API surface.
	r.Post("/webhooks/payment/ipc", ipcWebhook.Handle)
	r.Post("/webhooks/payment/stripe", stripeWebhook.Handle)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-shutdownCtx.Done()
		graceCtx, graceCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer graceCancel()
		if err := srv.Shutdown(graceCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server shutdown complete")
}

func runMigrations(cfg *config.Config) error {
	m, err := migrate.New("file://"+cfg.MigrationsPath, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDurationMillis(key string, fallback int) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return time.Duration(fallback) * time.Millisecond
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return time.Duration(fallback) * time.Millisecond
	}
	return time.Duration(parsed) * time.Millisecond
}
