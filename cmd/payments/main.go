package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/feastly/feastly/internal/auth"
	"github.com/feastly/feastly/internal/messaging"
	"github.com/feastly/feastly/internal/payments"
	"github.com/feastly/feastly/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	postgresURL := requireEnv(logger, "POSTGRES_URL")
	authSecret := requireEnv(logger, "AUTH_SECRET")

	cfg := payments.Config{
		ProviderAPIURL:  requireEnv(logger, "PROVIDER_API_URL"),
		ProviderAPIKey:  requireEnv(logger, "PROVIDER_API_KEY"),
		WebhookSecret:   requireEnv(logger, "WEBHOOK_SECRET"),
		FrontendBaseURL: requireEnv(logger, "FRONTEND_BASE_URL"),
		Currency:        envOr("CURRENCY", "usd"),
		ProviderName:    envOr("PROVIDER_NAME", "stripe"),
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "payments", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("payments", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenDBForSchema("postgres", postgresURL, "payments")
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var producer *messaging.Producer
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		producer = messaging.NewProducer(strings.Split(kafkaBrokers, ","), messaging.TopicPaymentRecorded)
		defer func() { _ = producer.Close() }()
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	checkout := payments.NewCheckoutClient(cfg, httpClient)
	ledger := payments.NewTransactionLedger(db)

	// Producer is passed as an interface; a typed-nil *Producer inside
	// a non-nil interface would defeat the handler's nil check.
	var publisher payments.Publisher
	if producer != nil {
		publisher = producer
	}

	handler, err := payments.NewHandler(cfg, checkout, ledger, publisher, logger)
	if err != nil {
		logger.Error("failed to create handler", "error", err)
		os.Exit(1)
	}

	authed := auth.Middleware([]byte(authSecret), logger)

	// The webhook route stays outside the auth middleware: trust comes
	// from the provider signature over the raw body.
	mux := http.NewServeMux()
	mux.HandleFunc("POST /payments/initiate", telemetry.WithHTTPRoute(authed(handler.HandleInitiate)))
	mux.HandleFunc("POST /payments/webhook", telemetry.WithHTTPRoute(handler.HandleWebhook))
	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8083"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "payments",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting payments service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func requireEnv(logger *slog.Logger, name string) string {
	value := os.Getenv(name)
	if value == "" {
		logger.Error(name + " environment variable is required")
		os.Exit(1)
	}
	return value
}

func envOr(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}
