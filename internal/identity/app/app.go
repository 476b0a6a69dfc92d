package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hightide-labs/identity/internal/identity/cache"
	cacheredis "github.com/hightide-labs/identity/internal/identity/cache/drivers/redis"
	"github.com/hightide-labs/identity/internal/identity/provider"
	"github.com/hightide-labs/identity/internal/identity/service"
	"github.com/hightide-labs/identity/internal/identity/store"
	"github.com/hightide-labs/identity/internal/identity/store/drivers/sqlite"
	"github.com/hightide-labs/identity/pkg/cryptox"
	"github.com/hightide-labs/identity/pkg/slogx"
	"github.com/hightide-labs/identity/pkg/tokenx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application wires the engines to their storage and cache and owns their
// lifecycle. The transport embedding this (gRPC, HTTP, in-process calls)
// reaches the engines through the exported service fields.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db    store.Store
	cache cache.Cache

	Auth     *service.AuthService
	Sessions *service.SessionService
	MFA      *service.MFAService
	OAuth2   *service.OAuth2Service
	Failed   *service.FailedAuthService

	housekeeping *service.HousekeepingService
}

// New builds a fully wired Application: migrations applied, cache reachable,
// providers loaded.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initCache(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	return app, nil
}

// Run starts the background workers and blocks until a shutdown signal
// arrives.
func (app *Application) Run() error {
	app.housekeeping.Start()
	app.logger.Info("identity service started", "version", BuildVersion)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	app.logger.Info("shutdown signal received", "signal", sig)

	return app.Shutdown()
}

// Shutdown stops the workers and releases storage and cache connections.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	app.housekeeping.Stop()

	if closer, ok := app.cache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			app.logger.Error("error closing cache", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("identity service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initCache(ctx context.Context) error {
	c, err := cacheredis.Open(ctx, app.cfg.RedisAddr, app.cfg.RedisPassword, app.cfg.RedisDB)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.cache = c
	return nil
}

func (app *Application) initServices() error {
	codec, err := tokenx.NewCodec([]byte(app.cfg.TokenKey), app.cfg.Issuer)
	if err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}

	access := &service.AccessTokenIssuer{
		Codec:     codec,
		Cache:     app.cache,
		AccessTTL: app.cfg.AccessTokenTTL,
	}

	app.Auth = &service.AuthService{
		Store:         app.db,
		AccessTokens:  access,
		RefreshTokens: &service.RefreshTokenIssuer{},
		RefreshTTL:    app.cfg.RefreshTokenTTL,
	}
	app.Sessions = &service.SessionService{
		Store: app.db,
		Auth:  app.Auth,
	}
	app.MFA = &service.MFAService{
		Store:  app.db,
		Cache:  app.cache,
		Issuer: app.cfg.Issuer,
	}
	app.Failed = &service.FailedAuthService{
		Cache:            app.cache,
		CaptchaThreshold: app.cfg.CaptchaThreshold,
	}

	providers, err := app.cfg.LoadProviders()
	if err != nil {
		return err
	}
	app.OAuth2 = &service.OAuth2Service{
		Store:           app.db,
		Cache:           app.cache,
		Sessions:        app.Sessions,
		Provider:        provider.NewClient(nil),
		Providers:       providers,
		RegistrationTTL: app.cfg.RegistrationTTL,
	}

	app.housekeeping = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.RefreshTokenTTL,
	)

	return nil
}
