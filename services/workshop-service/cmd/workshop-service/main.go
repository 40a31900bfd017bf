package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Victorya2/auto-repair-system-sub004/libs/config"
	"github.com/Victorya2/auto-repair-system-sub004/libs/db"
	"github.com/Victorya2/auto-repair-system-sub004/libs/httpx"
	"github.com/Victorya2/auto-repair-system-sub004/libs/kafkax"
	otelx "github.com/Victorya2/auto-repair-system-sub004/libs/otel"
	"github.com/Victorya2/auto-repair-system-sub004/libs/runtime"
	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/handlers"
	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/inventory"
	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/outbox"
	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/parts"
	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/storage"
	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/workorder"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "workshop-service")
	port, err := config.Port("PORT", "8081")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	// Inventory lookups come from the local table by default; a remote
	// inventory system takes over when its gRPC address is configured.
	var lookup inventory.Lookup = inventory.NewRepository(pool)
	if addr := strings.TrimSpace(config.String("INVENTORY_GRPC_ADDR", "")); addr != "" {
		remote, err := inventory.NewRemoteLookup(addr)
		if err != nil {
			logger.Error("remote inventory init failed; using local table", "err", err)
		} else if remote != nil {
			lookup = remote
			logger.Info("remote inventory lookup enabled", "addr", addr)
		}
	}
	resolver := parts.NewResolver(lookup)

	outboxRepo := outbox.NewRepository(pool)
	workOrderRepo := storage.NewWorkOrderRepository(pool, outboxRepo)
	appointmentRepo := storage.NewAppointmentRepository(pool)
	vehicleRepo := storage.NewVehicleRepository(pool)

	svc := workorder.NewService(workOrderRepo, resolver, logger)
	materializer := workorder.NewMaterializer(appointmentRepo, vehicleRepo, workOrderRepo, resolver, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	workOrderHandler := handlers.NewWorkOrderHandler(svc, materializer, resolver, workOrderRepo, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}

	var rdb *redis.Client
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		defer func() { _ = rdb.Close() }()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/work-orders", workOrderHandler.List)
	mux.HandleFunc("/api/v1/work-orders/start", workOrderHandler.Start)
	mux.HandleFunc("/api/v1/work-orders/progress", workOrderHandler.Progress)
	mux.HandleFunc("/api/v1/work-orders/complete", workOrderHandler.Complete)
	mux.HandleFunc("/api/v1/work-orders/status", workOrderHandler.Status)
	mux.HandleFunc("/api/v1/work-orders/recheck-parts", workOrderHandler.RecheckParts)
	mux.HandleFunc("/api/v1/appointments/materialize", workOrderHandler.Materialize)
	mux.HandleFunc("/api/v1/parts/check", workOrderHandler.CheckParts)

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if limitPerMinute < 1 {
		limitPerMinute = 120
	}
	var rateLimitMW httpx.Middleware
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:workshop"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
		rateLimitMW,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "workshop")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
