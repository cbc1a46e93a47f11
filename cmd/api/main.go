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

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/quenchlabs/beverage-api/internal/auth"
	"github.com/quenchlabs/beverage-api/internal/messaging"
	"github.com/quenchlabs/beverage-api/internal/notify"
	"github.com/quenchlabs/beverage-api/internal/orders"
	"github.com/quenchlabs/beverage-api/internal/payments"
	"github.com/quenchlabs/beverage-api/internal/products"
	"github.com/quenchlabs/beverage-api/internal/realtime"
	"github.com/quenchlabs/beverage-api/internal/telemetry"
	"github.com/quenchlabs/beverage-api/internal/validation"
)

const (
	serviceName    = "beverage-api"
	serviceVersion = "0.1.0"
)

func main() {
	ctx := context.Background()
	logger := telemetry.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	sessionTTL := time.Hour
	if v := os.Getenv("SESSION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			logger.Error("invalid SESSION_TTL", "error", err)
			os.Exit(1)
		}
		sessionTTL = ttl
	}

	var sessions auth.SessionStore
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		store := auth.NewRedisSessionStore(redisAddr)
		if err := store.Ping(ctx); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		sessions = store
		logger.Info("using redis session store", "addr", redisAddr)
	} else {
		sessions = auth.NewMemorySessionStore()
		logger.Warn("REDIS_ADDR not set, sessions are in-memory and per-replica")
	}

	tokens := auth.NewTokenIssuer(jwtSecret, sessionTTL)
	validate := validation.New()

	hub := realtime.NewHub()
	defer hub.Close()

	var createdProducer, statusProducer notify.Producer
	var bridgeConsumer notify.Consumer
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")

		created := messaging.NewProducer(brokers, messaging.TopicOrderCreated)
		defer func() { _ = created.Close() }()
		createdProducer = created

		status := messaging.NewProducer(brokers, messaging.TopicOrderStatus)
		defer func() { _ = status.Close() }()
		statusProducer = status

		// Unique group per replica so every hub hears every status event.
		group := "api-bridge-" + uuid.New().String()
		consumer := messaging.NewConsumer(brokers, messaging.TopicOrderStatus, group)
		defer func() { _ = consumer.Close() }()
		bridgeConsumer = consumer
	}

	notifier := notify.NewNotifier(createdProducer, statusProducer, hub, logger)

	if bridgeConsumer != nil {
		go func() {
			if err := notifier.Bridge(ctx, bridgeConsumer); err != nil && ctx.Err() == nil {
				logger.Error("status bridge stopped", "error", err)
			}
		}()
	}

	userRepo := auth.NewUserRepository(db)
	productRepo := products.NewProductRepository(db)

	var orderOpts []orders.Option
	if os.Getenv("RESTOCK_ON_CANCEL") == "true" {
		orderOpts = append(orderOpts, orders.WithRestockOnCancel(true))
	}
	orderRepo := orders.NewOrderRepository(db, orderOpts...)

	authHandler := auth.NewHandler(userRepo, sessions, tokens, sessionTTL, validate, logger)
	productsHandler := products.NewHandler(productRepo, validate, logger)
	ordersHandler, err := orders.NewHandler(orderRepo, notifier, validate, logger)
	if err != nil {
		logger.Error("failed to create orders handler", "error", err)
		os.Exit(1)
	}

	paystackSecret := os.Getenv("PAYSTACK_SECRET_KEY")
	if paystackSecret == "" {
		logger.Warn("PAYSTACK_SECRET_KEY not set, payment endpoints will fail")
	}
	gateway := payments.NewClient(paystackSecret, payments.WithHTTPClient(&http.Client{
		Timeout:   15 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}))
	paymentsHandler := payments.NewHandler(gateway, orderRepo, userRepo, notifier,
		paystackSecret, os.Getenv("PAYSTACK_CALLBACK_URL"), logger)

	wsHandler := realtime.NewHandler(hub, logger)
	mw := auth.NewMiddleware(sessions, tokens, logger)

	route := telemetry.WithHTTPRoute

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", route(authHandler.HandleRegister))
	mux.HandleFunc("POST /api/auth/login", route(authHandler.HandleLogin))
	mux.HandleFunc("POST /api/auth/logout", route(authHandler.HandleLogout))
	mux.HandleFunc("GET /api/user/profile", route(mw.Authenticate(authHandler.HandleProfile)))

	mux.HandleFunc("GET /api/products", route(productsHandler.HandleList))
	mux.HandleFunc("GET /api/products/low-stock", route(mw.RequireRole("admin", productsHandler.HandleLowStock)))
	mux.HandleFunc("GET /api/products/{id}", route(productsHandler.HandleGet))
	mux.HandleFunc("POST /api/products", route(mw.RequireRole("admin", productsHandler.HandleCreate)))
	mux.HandleFunc("PUT /api/products/{id}", route(mw.RequireRole("admin", productsHandler.HandleUpdate)))
	mux.HandleFunc("DELETE /api/products/{id}", route(mw.RequireRole("admin", productsHandler.HandleDelete)))

	mux.HandleFunc("POST /api/orders", route(mw.Authenticate(ordersHandler.HandleCreate)))
	mux.HandleFunc("GET /api/orders", route(mw.Authenticate(ordersHandler.HandleList)))
	mux.HandleFunc("GET /api/orders/{id}", route(mw.Authenticate(ordersHandler.HandleGet)))
	mux.HandleFunc("PUT /api/orders/{id}", route(mw.Authenticate(ordersHandler.HandleUpdate)))
	mux.HandleFunc("POST /api/orders/{id}/cancel", route(mw.Authenticate(ordersHandler.HandleCancel)))

	mux.HandleFunc("POST /api/payment/initialize/{orderID}", route(mw.Authenticate(paymentsHandler.HandleInitialize)))
	mux.HandleFunc("GET /api/payment/verify", route(paymentsHandler.HandleVerify))
	mux.HandleFunc("POST /api/payment/webhook", route(paymentsHandler.HandleWebhook))

	mux.HandleFunc("GET /ws", route(mw.Authenticate(wsHandler.HandleWS)))

	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout: 10 * time.Second,
		// WebSocket connections outlive the usual write window.
		WriteTimeout: 0,
	}

	go func() {
		logger.Info("starting api", "port", port)
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
