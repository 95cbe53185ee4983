package app

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sundayezeilo/linkusage/internal/config"
	"github.com/sundayezeilo/linkusage/internal/server"
	"github.com/sundayezeilo/linkusage/internal/shorten"
	"github.com/sundayezeilo/linkusage/internal/shortener"
	"github.com/sundayezeilo/linkusage/internal/storage/memory"
	"github.com/sundayezeilo/linkusage/internal/storage/postgres"
)

// store is what the app needs from a storage backend.
type store interface {
	Mappings() shortener.MappingRepository
	Usages() shortener.UsageRepository
	Ping(ctx context.Context) error
}

// App holds the application dependencies and configuration.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Server  *server.Server
	Handler *shortener.Handler

	closeStore func()
}

// New initializes and returns a new App instance with all dependencies wired up.
func New(ctx context.Context) (*App, error) {
	loadEnv()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := setupLogger(cfg.App)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	logger.Info("starting application",
		zap.String("env", cfg.App.Environment),
		zap.String("version", cfg.Service.Version),
		zap.String("storage", cfg.App.StorageBackend),
		zap.String("provider", cfg.Shortener.Provider),
	)

	provider := newProvider(cfg)

	st, closeStore, err := openStore(ctx, cfg, provider, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.App.StorageBackend, err)
	}

	svc := shortener.NewService(st.Mappings(), st.Usages(), &shortener.ServiceConfig{Pinger: st})
	handler := shortener.NewHandler(shortener.HandlerConfig{
		Service: svc,
		Logger:  logger,
		BaseURL: cfg.Server.BaseURL,
	})

	srv := server.New(cfg, logger, handler)

	logger.Info("application initialized",
		zap.String("port", cfg.Server.Port),
		zap.String("base_url", cfg.Server.BaseURL),
	)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Server:     srv,
		Handler:    handler,
		closeStore: closeStore,
	}, nil
}

// Start starts the application server.
func (a *App) Start(ctx context.Context) error {
	if err := a.Server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown releases the store and flushes the logger.
func (a *App) Shutdown() error {
	a.Logger.Info("shutting down application")

	if a.closeStore != nil {
		a.closeStore()
		a.Logger.Info("store closed")
	}

	// Sync fails on stdout/stderr on some platforms; nothing useful to do about it.
	_ = a.Logger.Sync()
	return nil
}

// loadEnv loads .env only in development and test.
func loadEnv() {
	env := os.Getenv("APP_ENV")
	if env == "development" || env == "test" {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintln(os.Stderr, "no .env file found")
		}
	}
}

// setupLogger builds a JSON production logger, or a console development
// logger when APP_ENV is development.
func setupLogger(cfg config.AppConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Environment == "development" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func newProvider(cfg *config.Config) shorten.Provider {
	if cfg.Shortener.Provider == config.ProviderTinyURL {
		return shorten.NewTinyURL(&shorten.TinyURLConfig{
			Endpoint: cfg.Shortener.TinyURLEndpoint,
			Timeout:  cfg.Shortener.Timeout,
		})
	}
	return shorten.NewLocal(cfg.Server.BaseURL, &shorten.LocalConfig{
		SlugLength: cfg.Shortener.SlugLength,
	})
}

func openStore(ctx context.Context, cfg *config.Config, provider shorten.Provider, logger *zap.Logger) (store, func(), error) {
	if cfg.App.StorageBackend == config.StorageMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.New(provider), func() {}, nil
	}

	dsn := cfg.Database.ConnectionString()

	if cfg.Database.MigrateOnStart {
		logger.Info("applying database migrations")
		if err := postgres.Migrate(dsn); err != nil {
			return nil, nil, err
		}
	}

	logger.Info("connecting to database",
		zap.String("host", cfg.Database.Host),
		zap.String("port", cfg.Database.Port),
		zap.String("database", cfg.Database.Name),
	)
	pool, err := postgres.Connect(ctx, dsn, postgres.PoolConfig{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("database connection established")

	pg := postgres.New(pool, provider)
	return pg, pg.Close, nil
}
