package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/mailtmpl/internal/assist"
	"github.com/mailtmpl/internal/auth"
	"github.com/mailtmpl/internal/config"
	"github.com/mailtmpl/internal/crypto"
	"github.com/mailtmpl/internal/db"
	"github.com/mailtmpl/internal/events"
	"github.com/mailtmpl/internal/mailer"
	"github.com/mailtmpl/internal/store"
)

const sessionSweepInterval = 15 * time.Minute

type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redis         *redis.Client
	templateStore *store.TemplateStore
	userStore     *store.UserStore
	sessionStore  *store.SessionStore
	settingsStore *store.SettingsStore
	mailer        *mailer.Mailer
	queue         *mailer.Queue
	hub           *events.Hub
	broker        *events.RedisBroker
	publisher     events.Publisher
	assist        *assist.Enhancer
}

func (app *App) Close() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn("closing redis", "err", err)
		}
	}
	app.db.Close()
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg)

	if err := db.Up(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	crypter, err := crypto.FromSecret(cfg.SettingsEncryptionKey)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("settings crypter: %w", err)
	}

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            pool,
		templateStore: store.NewTemplateStore(pool),
		userStore:     store.NewUserStore(pool),
		sessionStore:  store.NewSessionStore(pool),
		settingsStore: store.NewSettingsStore(pool, crypter, cfg.DefaultSettings()),
		hub:           events.NewHub(),
		assist: assist.New(assist.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		}),
	}
	app.publisher = app.hub

	if err := auth.SeedFirstAdmin(ctx, app.userStore, cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
		app.Close()
		return nil, err
	}

	settings, err := app.settingsStore.Load(ctx)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("load settings: %w", err)
	}
	app.mailer = mailer.New(mailer.NewConfigFromSettings(settings))
	app.queue = mailer.NewQueue(app.mailer, cfg.MailSendInterval, cfg.MailQueueSize, cfg.MailMaxRetry)

	if cfg.RedisURL != "" {
		if err := app.connectRedis(ctx); err != nil {
			app.Close()
			return nil, err
		}
	}

	if !app.assist.Enabled() {
		logger.Info("content assist disabled, OPENAI_API_KEY not set")
	}

	return app, nil
}

// connectRedis switches event publishing to Redis so every instance sees
// every change.
func (app *App) connectRedis(ctx context.Context) error {
	opts, err := redis.ParseURL(app.config.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("ping redis: %w", err)
	}
	app.redis = rdb
	app.broker = events.NewRedisBroker(rdb, app.hub)
	app.publisher = app.broker
	return nil
}

func (app *App) Start(ctx context.Context) error {
	// Create an errgroup derived from the parent context
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", app.config.Port),
		Handler:      app.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelError),
	}
	srv.RegisterOnShutdown(app.hub.Close)

	g.Go(func() error {
		app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	// Start shutdown listener
	g.Go(func() error {
		<-gctx.Done() // Wait for OS signal or parent context to fail

		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		app.queue.Start(gctx)
		return nil
	})

	if app.broker != nil {
		g.Go(func() error {
			return app.broker.Run(gctx)
		})
	}

	g.Go(func() error {
		app.sweepSessions(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	app.logger.Info("stopped server")
	return nil
}

type expiredSessionDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

func (app *App) sweepSessions(ctx context.Context) {
	sweepExpired(ctx, app.logger, app.sessionStore, sessionSweepInterval)
}

// sweepExpired removes expired sessions every interval until ctx is done.
func sweepExpired(ctx context.Context, logger *slog.Logger, sessions expiredSessionDeleter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("sessions: sweep failed", "err", err)
				}
				continue
			}
			if n > 0 {
				logger.Debug("sessions: removed expired", "count", n)
			}
		}
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	logLevel := slog.LevelInfo

	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	slog.SetDefault(logger)
	return logger
}
