package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	redisclient "github.com/redis/go-redis/v9"

	"github.com/nourx/mailer/internal/adapters/db"
	"github.com/nourx/mailer/internal/adapters/redis"
	"github.com/nourx/mailer/internal/adapters/smtp"
	"github.com/nourx/mailer/internal/app"
	"github.com/nourx/mailer/internal/config"
	"github.com/nourx/mailer/internal/infra/cache"
	"github.com/nourx/mailer/internal/infra/database"
	"github.com/nourx/mailer/internal/infra/handlers"
	"github.com/nourx/mailer/internal/infra/middleware"
	"github.com/nourx/mailer/internal/telemetry"
)

type App struct {
	config *config.Config
	db     *db.Client
	redis  *redisclient.Client
	tracer *telemetry.TracerProvider
	worker *app.Worker
	server *http.Server
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))

	application, err := NewApp()
	if err != nil {
		slog.Error("failed to create app", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- application.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	case sig := <-quit:
		slog.Info("Shutdown signal received", "signal", sig.String())
	}

	application.Stop()
}

func NewApp() (*App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("Starting application", "name", cfg.App.Name, "port", cfg.App.Port)

	application := &App{config: cfg}

	if err := application.initTelemetry(); err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if err := application.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := application.initRedis(); err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	if err := application.initWorker(); err != nil {
		return nil, fmt.Errorf("failed to initialize worker: %w", err)
	}

	return application, nil
}

// Start boots the worker before the HTTP listener. A failed mail transport
// self-test is fatal here: the process exits instead of queuing mail it can
// never deliver.
func (a *App) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.worker.Start(ctx); err != nil {
		return fmt.Errorf("email worker failed to start: %w", err)
	}

	slog.Info("Server starting", "port", a.config.App.Port)
	return a.server.ListenAndServe()
}

func (a *App) Stop() {
	slog.Info("Starting graceful shutdown...")

	a.server.SetKeepAlivesEnabled(false)

	a.worker.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			slog.Error("Forced shutdown failed", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server gracefully stopped")
}

func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Warn("failed to close database connection", "error", err)
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("failed to close redis connection", "error", err)
		}
	}

	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			slog.Warn("failed to shut down tracer provider", "error", err)
		}
	}
}

func (a *App) initTelemetry() error {
	if !a.config.Telemetry.Enabled {
		return nil
	}

	tracer, err := telemetry.NewTracerProvider(
		a.config.App.Name,
		a.config.Telemetry.OTLPEndpoint,
		a.config.Telemetry.SampleRate,
	)
	if err != nil {
		return err
	}
	a.tracer = tracer
	slog.Info("Telemetry initialized", "endpoint", a.config.Telemetry.OTLPEndpoint)
	return nil
}

func (a *App) initDatabase() error {
	dbClient, err := db.NewDB(a.config.Database.DSN)
	if err != nil {
		return err
	}
	a.db = dbClient
	slog.Info("Database connection established")
	return nil
}

func (a *App) initRedis() error {
	redisClient, err := redis.New(a.config)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.redis = redisClient
	slog.Info("Redis connection established")
	return nil
}

func (a *App) initWorker() error {
	sender, err := smtp.NewClient(a.config.SMTP)
	if err != nil {
		return err
	}

	emailRepo := database.NewEmailRepository(a.db)
	templateRepo := database.NewTemplateRepository(a.db)
	lockCache := cache.New(a.redis, slog.Default())

	outbox := a.config.Outbox
	service := app.NewEmailService(
		emailRepo,
		templateRepo,
		sender,
		lockCache,
		app.EmailServiceConfig{
			MaxRetries: outbox.MaxRetries,
			LockTTL:    time.Duration(outbox.LockTTLSec) * time.Second,
			ResultTTL:  time.Duration(outbox.ResultTTLHours) * time.Hour,
		},
		slog.Default(),
	)

	a.worker = app.NewWorker(service, sender, app.WorkerConfig{
		ProcessInterval: time.Duration(outbox.ProcessIntervalMS) * time.Millisecond,
		CleanupInterval: time.Duration(outbox.CleanupIntervalMS) * time.Millisecond,
		BatchSize:       uint(outbox.BatchSize),
		RetentionDays:   outbox.RetentionDays,
	}, slog.Default())

	a.initServer(service)
	return nil
}

func (a *App) initServer(service *app.EmailService) {
	mux := http.NewServeMux()
	handlers.RegisterHealthHandler(mux)
	handlers.RegisterEmailHandler(mux, service)
	handlers.RegisterWorkerHandler(mux, a.worker)

	var handler http.Handler = mux
	if a.config.Telemetry.Enabled {
		handler = middleware.Tracing(a.config.App.Name)(handler)
	}
	handler = middleware.Recovery(handler)

	a.server = a.setupHTTPServer(handler)
}

func (a *App) setupHTTPServer(handler http.Handler) *http.Server {
	readTimeout := getTimeoutValue(a.config.App.ReadTimeout, 30)
	writeTimeout := getTimeoutValue(a.config.App.WriteTimeout, 30)
	idleTimeout := getTimeoutValue(a.config.App.IdleTimeout, 120)
	maxHeaderBytes := getHeaderSize(a.config.App.MaxHeaderMB)

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.App.Port),
		ReadTimeout:       time.Duration(readTimeout) * time.Second,
		WriteTimeout:      time.Duration(writeTimeout) * time.Second,
		IdleTimeout:       time.Duration(idleTimeout) * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    maxHeaderBytes,
		Handler:           handler,
	}
}

func loadConfig() (*config.Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(".config", fmt.Sprintf("%s.yaml", env))
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if dbIndex := os.Getenv("REDIS_DB"); dbIndex != "" {
		if d, err := strconv.Atoi(dbIndex); err == nil {
			cfg.Redis.DB = d
		}
	}

	if host := os.Getenv("SMTP_HOST"); host != "" {
		cfg.SMTP.Host = host
	}
	if username := os.Getenv("SMTP_USERNAME"); username != "" {
		cfg.SMTP.Username = username
	}
	if password := os.Getenv("SMTP_PASSWORD"); password != "" {
		cfg.SMTP.Password = password
	}

	return cfg, nil
}

func getTimeoutValue(configValue, defaultValue int) int {
	if configValue > 0 {
		return configValue
	}
	return defaultValue
}

func getHeaderSize(maxHeaderMB int) int {
	if maxHeaderMB > 0 {
		return maxHeaderMB << 20
	}
	return 1 << 20 // 1 MB default
}
