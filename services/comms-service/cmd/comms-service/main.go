package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Victorya2/auto-repair-system-sub004/libs/config"
	"github.com/Victorya2/auto-repair-system-sub004/libs/db"
	"github.com/Victorya2/auto-repair-system-sub004/libs/httpx"
	"github.com/Victorya2/auto-repair-system-sub004/libs/kafkax"
	otelx "github.com/Victorya2/auto-repair-system-sub004/libs/otel"
	"github.com/Victorya2/auto-repair-system-sub004/libs/runtime"
	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/consumer"
	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/dispatch"
	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/email"
	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/generator"
	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/handlers"
	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/inbox"
	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/outbox"
	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/scheduler"
	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/sms"
	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/storage"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "comms-service")
	port, err := config.Port("PORT", "8082")
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

	emailSender := email.NewSMTPSender(
		config.String("SMTP_HOST", "localhost"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", ""),
	)

	var smsSender sms.Sender
	switch {
	case config.String("TWILIO_ACCOUNT_SID", "") != "":
		smsSender = sms.NewTwilioSender(
			config.String("TWILIO_ACCOUNT_SID", ""),
			config.String("TWILIO_AUTH_TOKEN", ""),
			config.String("TWILIO_PHONE_NUMBER", ""),
		)
		logger.Info("sms provider: twilio")
	case config.String("SMS_WEBHOOK_URL", "") != "":
		smsSender = sms.NewWebhookSender(
			config.String("SMS_WEBHOOK_URL", ""),
			config.String("SMS_WEBHOOK_TOKEN", ""),
		)
		logger.Info("sms provider: webhook")
	default:
		smsSender = sms.NewNoopSender()
		logger.Warn("sms provider: noop (no twilio or webhook configured)")
	}

	outboxRepo := outbox.NewRepository(pool)
	repo := storage.NewRepository(pool, outboxRepo)
	dispatcher := dispatch.New(emailSender, smsSender, logger)
	sched := scheduler.New(repo, dispatcher, logger).
		WithParallelism(config.Int("REMINDER_PARALLELISM", 8))
	gen := generator.New(repo, logger)

	outboxPublisher := outbox.NewPublisher(pool, logger, config.String("KAFKA_BROKERS", ""))
	go outboxPublisher.Run(ctx)

	// Pickup notices ride the work-order completed events; inbox dedup means
	// a redelivered event never texts the customer twice.
	inboxRepo := inbox.NewRepository(pool)
	if topic := strings.TrimSpace(config.String("KAFKA_COMPLETED_TOPIC", "workshop.workorder.completed.v1")); topic != "" {
		eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "comms-service"),
			Topic:   topic,
		}, func(ctx context.Context, msg kafka.Message) error {
			var payload struct {
				WorkOrderID   string `json:"work_order_id"`
				CustomerID    string `json:"customer_id"`
				AppointmentID string `json:"appointment_id"`
				Vehicle       string `json:"vehicle"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if payload.CustomerID == "" || payload.AppointmentID == "" {
				// Direct work orders have no appointment to log against.
				return nil
			}

			rcpt, err := repo.CustomerContact(ctx, payload.CustomerID)
			if err != nil {
				return err
			}
			outcomes := dispatcher.Dispatch(ctx, dispatch.KindPickupReady, rcpt, dispatch.Context{
				Vehicle: payload.Vehicle,
			})
			return repo.AppendCommunications(ctx, payload.AppointmentID, outcomes)
		})
		go eventConsumer.Run(ctx)
	}

	c := cron.New()
	if _, err := c.AddFunc(config.String("REMINDER_CRON", "*/15 * * * *"), func() {
		if _, err := sched.RunPass(ctx); err != nil && ctx.Err() == nil {
			logger.Error("reminder pass failed", "err", err)
		}
	}); err != nil {
		logger.Error("reminder cron setup failed", "err", err)
	}
	if _, err := c.AddFunc(config.String("GENERATOR_CRON", "0 8 * * *"), func() {
		gen.RunAll(ctx)
	}); err != nil {
		logger.Error("generator cron setup failed", "err", err)
	}
	c.Start()
	defer c.Stop()

	adminHandler := handlers.NewAdminHandler(sched, gen, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/admin/reminders/run", adminHandler.RunReminders)
	mux.HandleFunc("/api/v1/admin/notifications/generate", adminHandler.GenerateNotifications)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(60*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "comms")
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
