package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/otp-auth/config"
	"github.com/ErlanBelekov/otp-auth/internal/admission"
	"github.com/ErlanBelekov/otp-auth/internal/email"
	"github.com/ErlanBelekov/otp-auth/internal/health"
	"github.com/ErlanBelekov/otp-auth/internal/infrastructure/postgres"
	redisstore "github.com/ErlanBelekov/otp-auth/internal/infrastructure/redis"
	ctxlog "github.com/ErlanBelekov/otp-auth/internal/log"
	"github.com/ErlanBelekov/otp-auth/internal/metrics"
	"github.com/ErlanBelekov/otp-auth/internal/otpcode"
	"github.com/ErlanBelekov/otp-auth/internal/repository"
	"github.com/ErlanBelekov/otp-auth/internal/sessioncookie"
	httptransport "github.com/ErlanBelekov/otp-auth/internal/transport/http"
	"github.com/ErlanBelekov/otp-auth/internal/transport/http/handler"
	"github.com/ErlanBelekov/otp-auth/internal/transport/http/middleware"
	"github.com/ErlanBelekov/otp-auth/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Fail fast on a bad pattern or step before touching any backing service.
	matcher, err := admission.Compile(cfg.MailSuffix)
	if err != nil {
		log.Fatalf("MAIL_SUFFIX: %v", err)
	}
	engine, err := otpcode.NewEngine(cfg.OTPValidity())
	if err != nil {
		log.Fatalf("OTP_EXPIRY: %v", err)
	}
	cookies, err := sessioncookie.NewCodec(sessioncookie.Options{
		Name:   cfg.ProjectName,
		Secret: []byte(cfg.SessionSecret),
		Secure: cfg.SecureCookies(),
	})
	if err != nil {
		log.Fatalf("session cookie: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(pool); err != nil {
		stop()
		log.Fatalf("migrate: %v", err)
	}
	logger.Info("db connected and migrated")

	rdb, err := redisstore.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		stop()
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	var ledger repository.CodeLedger
	if cfg.OTPSingleUse {
		ledger = redisstore.NewCodeLedger(rdb)
	}
	attempts, err := redisstore.NewAttemptLimiter(rdb, engine.Validity())
	if err != nil {
		stop()
		log.Fatalf("attempt limiter: %v", err)
	}

	userRepo := postgres.NewUserRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)

	sessions := usecase.NewSessionIssuer(sessionRepo, cfg.SessionMaxAge())
	authUsecase := usecase.NewAuthUsecase(
		userRepo,
		ledger,
		attempts,
		email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger),
		sessions,
		usecase.AuthConfig{
			Matcher:           matcher,
			Engine:            engine,
			Secret:            []byte(cfg.OTPSecret),
			AppHost:           cfg.AppHost,
			MaxFailedAttempts: cfg.OTPMaxFailedAttempts,
		},
		logger,
	)
	authHandler := handler.NewAuthHandler(authUsecase, cookies, handler.AuthHandlerOptions{
		SessionMaxAge:   cfg.SessionMaxAge(),
		ResponseFloor:   cfg.ResponseFloor(),
		DeliveryTimeout: cfg.MailDeliveryTimeout(),
	}, logger)

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer,
		health.Dependency{Name: "postgres", Pinger: pool},
		health.Dependency{Name: "redis", Pinger: health.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})},
	)

	router, err := httptransport.NewRouter(httptransport.RouterDeps{
		Logger:         logger,
		Auth:           authHandler,
		Session:        middleware.Session(authUsecase, cookies, logger),
		RateLimiter:    middleware.NewIPRateLimiter(cfg.RateLimitPerMinute),
		TrustedProxies: cfg.ProxiesToTrust(),
	})
	if err != nil {
		stop()
		log.Fatalf("router: %v", err)
	}

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port, "mail_suffix", matcher.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := authHandler.Wait(shutdownCtx); err != nil {
		logger.Error("pending otp deliveries", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
