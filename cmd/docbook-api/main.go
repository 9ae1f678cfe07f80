package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docbookhq/docbook/internal/handlers"
	"github.com/docbookhq/docbook/internal/inbox"
	"github.com/docbookhq/docbook/internal/outbox"
	"github.com/docbookhq/docbook/internal/storage"
	"github.com/docbookhq/docbook/libs/db"
	"github.com/docbookhq/docbook/libs/httpx"
	"github.com/docbookhq/docbook/libs/kafkax"
	otelx "github.com/docbookhq/docbook/libs/otel"
	"github.com/docbookhq/docbook/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isTruthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func main() {
	service := runtime.Env("SERVICE_NAME", "docbook-api")
	port, err := runtime.EnvPort("PORT", "8080")
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

	dbURL, err := runtime.RequiredEnv("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	jwtSecret, err := runtime.RequiredEnv("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, int32(runtime.EnvInt("DB_MAX_CONNS", 10)))
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	users := storage.NewUserRepository(pool)
	doctors := storage.NewDoctorRepository(pool)
	schedules := storage.NewScheduleRepository(pool)
	bookings := storage.NewBookingRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)

	kafkaBrokers := runtime.Env("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	tokenTTL := time.Duration(runtime.EnvInt("JWT_TTL_MINUTES", 24*60)) * time.Minute
	authHandler := handlers.NewAuthHandler(pool, users, doctors, jwtSecret, tokenTTL)
	doctorHandler := handlers.NewDoctorHandler(doctors)
	scheduleHandler := handlers.NewScheduleHandler(schedules, doctors, outboxRepo)
	bookingHandler := handlers.NewBookingHandler(bookings, schedules, doctors, outboxRepo)
	paymentHandler := handlers.NewPaymentHandler(bookings, schedules, outboxRepo, inboxRepo, logger, handlers.PaymentConfig{
		StripeSecretKey:    runtime.Env("STRIPE_SECRET_KEY", ""),
		DepositCurrency:    runtime.Env("DEPOSIT_CURRENCY", "bdt"),
		CheckoutSuccessURL: runtime.Env("CHECKOUT_SUCCESS_URL", ""),
		CheckoutCancelURL:  runtime.Env("CHECKOUT_CANCEL_URL", ""),
	})

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	}
	mux := runtime.NewBaseMux(readyChecks...)

	asDoctor := func(h http.HandlerFunc) http.Handler {
		return handlers.RequireDoctor(jwtSecret, h)
	}

	mux.HandleFunc("/api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("/api/v1/auth/login", authHandler.Login)
	mux.Handle("/api/v1/auth/me", handlers.RequireAuth(jwtSecret, http.HandlerFunc(authHandler.Me)))

	mux.HandleFunc("/api/v1/public/doctors", doctorHandler.Search)
	mux.HandleFunc("/api/v1/public/doctors/availability", bookingHandler.Availability)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Book)
	mux.HandleFunc("/api/v1/public/deposit/checkout", paymentHandler.DepositCheckout)
	mux.HandleFunc("/api/v1/public/deposit/webhook", paymentHandler.DepositWebhook)

	mux.Handle("/api/v1/doctors/me", asDoctor(doctorHandler.Profile))
	mux.Handle("/api/v1/locations", asDoctor(doctorHandler.Locations))
	mux.Handle("/api/v1/schedules", asDoctor(scheduleHandler.Schedules))
	mux.Handle("/api/v1/schedules/", asDoctor(scheduleHandler.DeleteSlot))
	mux.Handle("/api/v1/appointments", asDoctor(bookingHandler.Appointments))
	mux.Handle("/api/v1/appointments/", asDoctor(bookingHandler.Cancel))

	limitPerMinute := runtime.EnvInt("RATE_LIMIT_PER_MINUTE", 60)
	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(runtime.Env("REDIS_ADDR", "")); addr != "" {
		redisDB := 0
		if v, err := strconv.Atoi(runtime.Env("REDIS_DB", "0")); err == nil && v >= 0 {
			redisDB = v
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: runtime.Env("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, runtime.Env("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, isTruthy(runtime.Env("RATE_LIMIT_FAIL_OPEN", "true")))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	bodyLimit := int64(runtime.EnvInt("MAX_BODY_BYTES", 1<<20))
	requestTimeout := time.Duration(runtime.EnvInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   parseList(runtime.Env("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods:   parseList(runtime.Env("CORS_ALLOWED_METHODS", "GET,POST,PUT,PATCH,DELETE,OPTIONS")),
			AllowedHeaders:   parseList(runtime.Env("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key")),
			AllowCredentials: isTruthy(runtime.Env("CORS_ALLOW_CREDENTIALS", "false")),
			MaxAge:           time.Duration(runtime.EnvInt("CORS_MAX_AGE_SECONDS", 600)) * time.Second,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(bodyLimit),
		httpx.WithTimeout(requestTimeout),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "docbook-api")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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
