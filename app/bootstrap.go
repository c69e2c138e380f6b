package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"freelatracker/internal/auth"
	"freelatracker/internal/db"
	"freelatracker/internal/maintenance"
	"freelatracker/internal/observability"
	"freelatracker/internal/proposal"
)

type Options struct {
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Logger  *observability.Logger
	Close   func() error
}

func Build(ctx context.Context, cfg Config, options Options) (*Runtime, error) {
	logger := observability.NewLogger()

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Env); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		applied, err := db.RunMigrations(ctx, database)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("migrations_applied", map[string]any{"versions": applied})
		}
	}

	authRepo := auth.NewRepository(database)
	closers := []func() error{database.Close}

	var revocations auth.RevocationStore = authRepo
	if cfg.RevocationBackend == RevocationBackendRedis {
		redisStore, redisClient, err := openRedisRevocations(ctx, cfg.RedisURL)
		if err != nil {
			_ = database.Close()
			return nil, err
		}
		revocations = redisStore
		closers = append(closers, redisClient.Close)
	}

	throttle := auth.NewLoginThrottle(cfg.LoginMaxAttempts, cfg.LoginWindow, cfg.LoginThrottleKeys)
	authService := auth.NewService(
		authRepo,
		revocations,
		auth.NewPasswordHasher(cfg.BcryptCost, cfg.HashConcurrency),
		auth.NewTokenCodec(cfg.SecretKey, cfg.AccessTokenTTL),
		throttle,
		logger,
		cfg.AccessTokenTTL,
	)

	clientID := observability.RemoteHost
	if cfg.TrustProxyHeaders {
		clientID = observability.ClientIP
	}

	registerLimiter := auth.NewRequestLimiter(cfg.RegisterPerMinute, cfg.RegisterBurst, 0)

	handler := NewRouter(Routes{
		Logger:        logger,
		CORSOrigins:   cfg.CORSOrigins,
		Health:        healthHandler(database),
		AuthService:   authService,
		Auth:          auth.NewHandler(authService, logger, clientID),
		RegisterLimit: registerLimiter.Middleware(clientID),
		Proposals:     proposal.NewHandler(proposal.NewRepository(database), logger),
		Cleanup: maintenance.NewCleanupHandler(
			revocations,
			logger,
			cfg.CronSecret,
			cfg.RevocationRetention,
			cfg.CleanupBatchSize,
			throttle,
			registerLimiter,
		),
	})

	return &Runtime{
		Handler: handler,
		Logger:  logger,
		Close: func() error {
			observability.FlushSentry()
			var errs []error
			for i := len(closers) - 1; i >= 0; i-- {
				errs = append(errs, closers[i]())
			}
			return errors.Join(errs...)
		},
	}, nil
}

func openRedisRevocations(ctx context.Context, rawURL string) (*auth.RedisRevocationStore, *redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	return auth.NewRedisRevocationStore(client, "freelatracker:revoked"), client, nil
}

// Routes collects the handlers NewRouter mounts.
type Routes struct {
	Logger        *observability.Logger
	CORSOrigins   []string
	Health        http.HandlerFunc
	AuthService   *auth.Service
	Auth          *auth.Handler
	RegisterLimit func(http.Handler) http.Handler
	Proposals     *proposal.Handler
	Cleanup       *maintenance.CleanupHandler
}

func NewRouter(routes Routes) http.Handler {
	requireUser := auth.Middleware(routes.AuthService, routes.Logger)

	r := chi.NewRouter()
	r.Use(
		observability.RecoverMiddleware(routes.Logger),
		observability.RequestLoggingMiddleware(routes.Logger),
		observability.CORSMiddleware(routes.CORSOrigins),
	)

	if routes.Health != nil {
		r.Get("/health", routes.Health)
	}

	r.Route("/auth", func(r chi.Router) {
		if routes.RegisterLimit != nil {
			r.With(routes.RegisterLimit).Post("/register", routes.Auth.Register)
		} else {
			r.Post("/register", routes.Auth.Register)
		}
		r.Post("/login", routes.Auth.Login)
		r.Post("/logout", routes.Auth.Logout)
		r.With(requireUser).Get("/me", routes.Auth.Me)
	})

	if routes.Proposals != nil {
		r.Route("/proposals", func(r chi.Router) {
			r.Use(requireUser)
			routes.Proposals.Routes(r)
		})
	}

	if routes.Cleanup != nil {
		r.Get("/internal/maintenance/cleanup", routes.Cleanup.Handle)
		r.Post("/internal/maintenance/cleanup", routes.Cleanup.Handle)
	}

	return r
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
