package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tabletopreserve/tabletop/libs/auth"
	"github.com/tabletopreserve/tabletop/libs/config"
	"github.com/tabletopreserve/tabletop/libs/db"
	"github.com/tabletopreserve/tabletop/libs/grpcx"
	"github.com/tabletopreserve/tabletop/libs/httpx"
	"github.com/tabletopreserve/tabletop/libs/kafkax"
	otelx "github.com/tabletopreserve/tabletop/libs/otel"
	"github.com/tabletopreserve/tabletop/libs/runtime"
	"github.com/tabletopreserve/tabletop/services/booking-service/internal/booking"
	"github.com/tabletopreserve/tabletop/services/booking-service/internal/clock"
	"github.com/tabletopreserve/tabletop/services/booking-service/internal/handlers"
	"github.com/tabletopreserve/tabletop/services/booking-service/internal/notify"
	"github.com/tabletopreserve/tabletop/services/booking-service/internal/storage"
	"github.com/tabletopreserve/tabletop/services/booking-service/migrations"
)

func main() {
	if err := runtime.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9083")
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
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10, 1))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, migrations.FS, migrations.LockID); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var notifier booking.Notifier = notify.LogNotifier{Logger: logger}
	if brokers := config.String("KAFKA_BROKERS", ""); strings.TrimSpace(brokers) != "" {
		writer := notify.NewWriter(kafkax.SplitBrokers(brokers))
		defer func() { _ = writer.Close() }()
		notifier = notify.NewKafkaNotifier(writer,
			config.String("KAFKA_STATUS_TOPIC", notify.TopicStatusChanged),
			config.Duration("NOTIFY_TIMEOUT_MS", 2*time.Second, time.Millisecond),
		)
		// Notifications are best effort, so a broker outage does not make the
		// service unready.
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Optional: true, Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("KAFKA_BROKERS not set; status changes are only logged")
	}

	rateLimit := rateLimitMiddleware(logger, &checks)

	svc := booking.NewService(storage.NewBookingRepository(pool), clock.NewSystem(),
		booking.WithNotifier(notifier),
		booking.WithLogger(logger),
	)

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewBookingHandler(svc, logger).Register(mux)

	jwtSecret := config.String("JWT_SECRET", "")
	if jwtSecret == "" {
		logger.Warn("JWT_SECRET not set; all callers are anonymous")
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		rateLimit,
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT_SECONDS", 15*time.Second, time.Second)),
		authenticate(jwtSecret),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpcx.NewServer(logger)
	grpcServer.SetServing("", true)
	grpcServer.SetServing("tabletop.booking", true)
	go func() {
		if err := grpcServer.Serve(ctx, ":"+grpcPort); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	runtime.ServeHTTP(ctx, logger, srv, 10*time.Second)
}

func authenticate(secret string) httpx.Middleware {
	if secret == "" {
		return nil
	}
	return auth.Authenticate(secret)
}

// rateLimitMiddleware prefers the shared Redis limiter and falls back to the
// in-process one when REDIS_ADDR is unset.
func rateLimitMiddleware(logger *slog.Logger, checks *[]runtime.ReadyCheck) httpx.Middleware {
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120, 0)
	if limitPerMinute == 0 {
		return nil
	}

	addr := strings.TrimSpace(config.String("REDIS_ADDR", ""))
	if addr == "" {
		logger.Info("rate limiting enabled (memory)", "per_minute", limitPerMinute)
		return httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0, 0),
	})
	failOpen := config.Bool("RATE_LIMIT_FAIL_OPEN", true)
	*checks = append(*checks, runtime.ReadyCheck{
		Name:     "redis",
		Optional: failOpen,
		Check:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
	return rl.Middleware(logger, failOpen)
}
