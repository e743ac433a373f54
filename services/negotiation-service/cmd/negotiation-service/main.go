package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptnegotiate/libs/auth"
	"github.com/md-rashed-zaman/apptnegotiate/libs/config"
	"github.com/md-rashed-zaman/apptnegotiate/libs/db"
	"github.com/md-rashed-zaman/apptnegotiate/libs/httpx"
	"github.com/md-rashed-zaman/apptnegotiate/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptnegotiate/libs/otel"
	"github.com/md-rashed-zaman/apptnegotiate/libs/runtime"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/consumer"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/directory"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/email"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/handlers"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/inbox"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/negotiation"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/notify"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/outbox"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "negotiation-service")
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

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository(pool)
	repo := storage.NewConversationRepository(pool, outboxRepo)

	verifier := buildVerifier(logger)
	svc := negotiation.NewService(repo, verifier, logger)

	dirProvider, err := directory.NewProvider(
		config.String("DIRECTORY_GRPC_ADDR", ""),
		config.String("DIRECTORY_HTTP_URL", ""),
	)
	if err != nil {
		logger.Error("directory provider init failed; notifications degrade", "err", err)
		dirProvider = nil
	}

	var emailSender email.Sender = email.NewNoopSender()
	if host := strings.TrimSpace(config.String("SMTP_HOST", "")); host != "" {
		emailSender = email.NewSMTPSender(host, config.String("SMTP_PORT", "1025"), config.String("SMTP_FROM", ""))
	} else {
		logger.Warn("SMTP not configured; notification emails disabled")
	}

	dispatcher := notify.NewDispatcher(dirProvider, emailSender, repo, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}

	brokers := config.String("KAFKA_BROKERS", "")
	if strings.TrimSpace(brokers) != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go outboxPublisher.Run(ctx)

		inboxRepo := inbox.NewRepository(pool)
		startConsumer := func(topic string) {
			if strings.TrimSpace(topic) == "" {
				return
			}
			eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
				Brokers: brokers,
				GroupID: config.String("KAFKA_GROUP_ID", "negotiation-service"),
				Topic:   topic,
			}, func(ctx context.Context, msg kafka.Message) error {
				meta := kafkax.ExtractEventMeta(msg)
				dispatcher.Handle(ctx, meta.EventType, msg.Value)
				return nil
			})
			go eventConsumer.Run(ctx)
		}
		startConsumer(config.String("KAFKA_CONSUME_TOPIC", notify.EventRescheduleAccepted))
		startConsumer(config.String("KAFKA_CONSUME_TOPIC_2", notify.EventAppointmentCanceled))
	} else {
		// No brokers: drain the outbox in-process so notifications still go out.
		worker := notify.NewWorker(pool, outboxRepo, dispatcher, logger, notify.WorkerConfig{
			Interval:  2 * time.Second,
			BatchSize: 50,
		})
		go worker.Run(ctx)
		logger.Info("kafka not configured; using local notification worker")
	}

	negotiationHandler := handlers.NewNegotiationHandler(svc, logger)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/appointments/transition", negotiationHandler.Transition)
	mux.HandleFunc("/api/v1/appointments/state", negotiationHandler.State)

	bodyLimit := int64(1 << 20) // 1MB
	if v, err := strconv.Atoi(config.String("REQUEST_BODY_LIMIT_BYTES", "1048576")); err == nil && v > 0 {
		bodyLimit = int64(v)
	}
	requestTimeout := 10 * time.Second
	if v, err := strconv.Atoi(config.String("REQUEST_TIMEOUT_SECONDS", "10")); err == nil && v > 0 {
		requestTimeout = time.Duration(v) * time.Second
	}

	limitPerMinute := 60
	if v, err := strconv.Atoi(config.String("RATE_LIMIT_PER_MINUTE", "60")); err == nil && v > 0 {
		limitPerMinute = v
	}
	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		redisDB := 0
		if v, err := strconv.Atoi(config.String("REDIS_DB", "0")); err == nil && v >= 0 {
			redisDB = v
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, isTruthy(config.String("RATE_LIMIT_FAIL_OPEN", "true")))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods:   parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders:   parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id")),
			AllowCredentials: isTruthy(config.String("CORS_ALLOW_CREDENTIALS", "false")),
			MaxAge:           time.Duration(corsMaxAgeSeconds()) * time.Second,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(bodyLimit),
		httpx.WithTimeout(requestTimeout),
		rateLimitMW,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "negotiation")
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

func buildVerifier(logger *slog.Logger) auth.Verifier {
	if jwksURL := strings.TrimSpace(config.String("JWKS_URL", "")); jwksURL != "" {
		jwksTTL := 300
		if v, err := strconv.Atoi(config.String("JWKS_CACHE_SECONDS", "300")); err == nil && v > 0 {
			jwksTTL = v
		}
		logger.Info("token verification via JWKS", "url", jwksURL)
		return auth.NewJWKSVerifier(auth.NewJWKSClient(jwksURL, time.Duration(jwksTTL)*time.Second))
	}
	return auth.NewHS256Verifier(config.String("JWT_SECRET", "dev-secret"))
}

func isTruthy(s string) bool {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func corsMaxAgeSeconds() int {
	value := 600
	if v, err := strconv.Atoi(config.String("CORS_MAX_AGE_SECONDS", "600")); err == nil && v > 0 {
		value = v
	}
	return value
}
