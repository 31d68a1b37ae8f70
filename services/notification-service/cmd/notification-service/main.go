package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tabletopreserve/tabletop/libs/auth"
	"github.com/tabletopreserve/tabletop/libs/config"
	"github.com/tabletopreserve/tabletop/libs/db"
	"github.com/tabletopreserve/tabletop/libs/httpx"
	"github.com/tabletopreserve/tabletop/libs/kafkax"
	otelx "github.com/tabletopreserve/tabletop/libs/otel"
	"github.com/tabletopreserve/tabletop/libs/runtime"
	"github.com/tabletopreserve/tabletop/services/notification-service/internal/consumer"
	"github.com/tabletopreserve/tabletop/services/notification-service/internal/dispatch"
	"github.com/tabletopreserve/tabletop/services/notification-service/internal/email"
	"github.com/tabletopreserve/tabletop/services/notification-service/internal/handlers"
	"github.com/tabletopreserve/tabletop/services/notification-service/internal/inbox"
	"github.com/tabletopreserve/tabletop/services/notification-service/internal/sms"
	"github.com/tabletopreserve/tabletop/services/notification-service/internal/storage"
	"github.com/tabletopreserve/tabletop/services/notification-service/migrations"
)

func main() {
	if err := runtime.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 5, 1))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, migrations.FS, migrations.LockID); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}

	emailSender := email.NewSMTPSender(email.SMTPConfig{
		Host:     config.String("SMTP_HOST", "mailpit"),
		Port:     config.String("SMTP_PORT", "1025"),
		From:     config.String("SMTP_FROM", "no-reply@tabletop.local"),
		Username: config.String("SMTP_USERNAME", ""),
		Password: config.String("SMTP_PASSWORD", ""),
	})
	smsSender := sms.New(
		config.String("SMS_PROVIDER", "noop"),
		config.String("SMS_WEBHOOK_URL", ""),
		config.String("SMS_WEBHOOK_TOKEN", ""),
	)
	notifications := storage.NewRepository(pool)
	dispatcher := dispatch.New(emailSender, smsSender, notifications, logger)
	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	brokers := config.String("KAFKA_BROKERS", "")
	if strings.TrimSpace(brokers) == "" {
		logger.Warn("KAFKA_BROKERS not set; consumer disabled")
	} else {
		eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
			Brokers:     brokers,
			GroupID:     config.String("KAFKA_GROUP_ID", "notification-service"),
			Topic:       config.String("KAFKA_STATUS_TOPIC", "booking.status.changed.v1"),
			MaxAttempts: config.Int("CONSUMER_MAX_ATTEMPTS", 3, 1),
			Backoff:     config.Duration("CONSUMER_BACKOFF_MS", time.Second, time.Millisecond),
		}, dispatcher.Handle)
		go eventConsumer.Run(ctx)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewNotificationHandler(notifications, logger).Register(mux)

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	handler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(16<<10),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT_SECONDS", 15*time.Second, time.Second)),
		auth.Authenticate(jwtSecret),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.ServeHTTP(ctx, logger, srv, 10*time.Second)
}
