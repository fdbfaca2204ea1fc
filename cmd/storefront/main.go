package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/storefront/internal/audit"
	catalogapp "github.com/dmehra2102/storefront/internal/catalog/application"
	cataloghttp "github.com/dmehra2102/storefront/internal/catalog/infrastructure/http"
	catalogpg "github.com/dmehra2102/storefront/internal/catalog/infrastructure/postgres"
	"github.com/dmehra2102/storefront/internal/database"
	identityapp "github.com/dmehra2102/storefront/internal/identity/application"
	identityhttp "github.com/dmehra2102/storefront/internal/identity/infrastructure/http"
	identitypg "github.com/dmehra2102/storefront/internal/identity/infrastructure/postgres"
	orderapp "github.com/dmehra2102/storefront/internal/order/application"
	orderhttp "github.com/dmehra2102/storefront/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/storefront/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/storefront/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/storefront/internal/payment/infrastructure/sandbox"
	"github.com/dmehra2102/storefront/internal/payment/infrastructure/stripe"
	"github.com/dmehra2102/storefront/internal/uploads"
	"github.com/dmehra2102/storefront/pkg/config"
	"github.com/dmehra2102/storefront/pkg/httpx"
	"github.com/dmehra2102/storefront/pkg/idempotency"
	"github.com/dmehra2102/storefront/pkg/logging"
	"github.com/dmehra2102/storefront/pkg/metrics"
	"github.com/dmehra2102/storefront/pkg/outbox"
	"github.com/dmehra2102/storefront/pkg/shutdown"
	"github.com/dmehra2102/storefront/pkg/tracing"
)

const outboxMaxRetries = 10

func main() {
	cfg, err := config.Load(os.Getenv("STOREFRONT_CONFIG"))
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// Postgres
	pool, err := database.Connect(ctx, cfg.Postgres.URL, cfg.Postgres.MaxConns)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	if cfg.Postgres.Migrate {
		if err := database.Migrate(ctx, log, pool); err != nil {
			log.Error("migration failed", "err", err)
			os.Exit(1)
		}
	}

	// Identity
	users := identitypg.NewRepository(log, pool)
	registry := identityapp.NewService(log, users)
	gate := identityapp.NewGate(users)
	if err := registry.Promote(ctx, cfg.Auth.AdminUserIDs); err != nil {
		log.Error("admin promotion failed", "err", err)
		os.Exit(1)
	}
	auth := identityhttp.NewAuthenticator(log, cfg.Auth.JWTSecret, registry)
	requireUser := identityhttp.RequireUser(log)
	requireAdmin := identityhttp.RequireAdmin(log, gate)

	// Catalog
	products := catalogpg.NewRepository(log, pool)
	catalog := catalogapp.NewService(log, products)
	if cfg.Orders.SeedCatalog {
		if n, err := catalog.SeedIfEmpty(ctx); err != nil {
			log.Warn("catalog seed failed", "err", err)
		} else if n > 0 {
			log.Info("catalog seeded", "products", n)
		}
	}

	// Audit trail
	var auditLog audit.Logger = audit.Nop{}
	if cfg.Mongo.URI != "" {
		ml, err := audit.NewMongoLogger(ctx, log, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection, cfg.Tracing.ServiceName)
		if err != nil {
			log.Error("mongo connect failed", "err", err)
			os.Exit(1)
		}
		defer func() { _ = ml.Close(context.Background()) }()
		auditLog = ml
	}

	// Payments
	var provider orderapp.PaymentProvider
	var sandboxProvider *sandbox.Provider
	switch cfg.Payment.Provider {
	case config.ProviderStripe:
		provider = stripe.NewClient(log, cfg.Payment.BaseURL, cfg.Payment.SecretKey, cfg.Payment.Timeout)
	default:
		sandboxProvider = sandbox.NewProvider(cfg.Payment.Currency)
		provider = sandboxProvider
		log.Warn("using sandbox payment provider")
	}

	// Orders
	orders := orderpg.NewRepository(log, pool)
	svc := orderapp.NewService(log, orders, products, provider, gate, cfg.Payment.Currency).WithAudit(auditLog)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, idempotency keys may be ignored", "err", err)
		}
		svc = svc.WithIdempotency(idempotency.NewStore(rdb, cfg.Redis.IdempotencyTTL))
	}
	expirer := orderapp.NewExpirer(log, orders, provider, auditLog, cfg.Orders.PendingTTL, cfg.Orders.ExpiryInterval)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewServerMetrics(reg, "api")

	// Outbox relay to kafka, and the order metrics projection fed back from it
	var relay *outbox.Relay
	var projector *orderkafka.Projector
	if len(cfg.Kafka.Brokers) > 0 {
		writer := orderkafka.NewWriter(log, cfg.Kafka.Brokers)
		defer writer.Close()
		store := outbox.NewPostgresStore(log, pool, outboxMaxRetries)
		dispatch := outbox.NewDispatcher(log, writer, cfg.Kafka.Topic)
		relay = outbox.NewRelay(log, store, dispatch, "storefront-relay-"+uuid.NewString())
		projector = orderkafka.NewProjector(log, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ConsumerGroup, metrics.NewOrderMetrics(reg))
	} else {
		log.Info("kafka brokers not configured, order events stay in the outbox")
	}

	// Uploads
	objects, err := uploads.NewStore(log, cfg.Uploads.Dir, cfg.Uploads.MaxBytes)
	if err != nil {
		log.Error("upload store init failed", "err", err)
		os.Exit(1)
	}
	uploadHandler := uploads.NewHandler(log, objects)

	// HTTP
	orderHandler := orderhttp.NewHandler(log, svc)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(httpx.AccessLog(log), m.Middleware)
	r.Get("/health", health(pool))
	r.Handle("/metrics", m.Handler())
	r.Mount("/objects/uploads", uploadHandler.ObjectRoutes())
	if sandboxProvider != nil {
		r.Mount("/sandbox", sandbox.NewHandler(log, sandboxProvider, "").Routes())
	}
	r.Route("/api", func(api chi.Router) {
		api.Use(auth.Middleware)
		api.Mount("/products", cataloghttp.NewHandler(log, catalog).Routes(requireAdmin))
		api.Mount("/orders", orderHandler.Routes(requireUser, requireAdmin))
		api.With(requireUser).Post("/create-payment-intent", orderHandler.CreatePaymentIntentByBody)
		api.Mount("/user", identityhttp.NewHandler(log, gate).Routes())
		api.Mount("/uploads", uploadHandler.Routes(requireAdmin))
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// Run relay
	if relay != nil {
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped with error", "err", err)
			}
		}()
	}

	// Run projector
	if projector != nil {
		go func() {
			if err := projector.Run(ctx); err != nil {
				log.Error("order events consumer stopped with error", "err", err)
			}
		}()
	}

	// Run expirer
	go func() {
		if err := expirer.Run(ctx); err != nil {
			log.Error("expirer stopped with error", "err", err)
		}
	}()

	// Run HTTP
	go func() {
		log.Info("http listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info("storefront shutdown complete")
}

func health(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
