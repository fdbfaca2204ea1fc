package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/dmehra2102/storefront/internal/payment/infrastructure/sandbox"
	"github.com/dmehra2102/storefront/pkg/httpx"
	"github.com/dmehra2102/storefront/pkg/logging"
	"github.com/dmehra2102/storefront/pkg/shutdown"
	"github.com/dmehra2102/storefront/pkg/tracing"
)

// payment-sandbox serves the Stripe-shaped test provider on its own port, so the storefront
// can run with payment.provider=stripe and payment.base_url pointed here.
func main() {
	_ = godotenv.Load()
	log := logging.New(env("LOG_LEVEL", "info"))

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	httpAddr := env("HTTP_ADDR", ":8090")
	secretKey := env("SANDBOX_SECRET_KEY", "sk_test_sandbox")
	currency := env("SANDBOX_CURRENCY", "usd")

	tp, err := tracing.Init(ctx, "payment-sandbox", os.Getenv("OTLP_ENDPOINT"), log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	provider := sandbox.NewProvider(currency)
	handler := sandbox.NewHandler(log, provider, secretKey)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, httpx.AccessLog(log))
	r.Mount("/", handler.Routes())
	srv := &http.Server{
		Addr:         httpAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http listening", "addr", httpAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info("payment-sandbox shutdown complete")
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
