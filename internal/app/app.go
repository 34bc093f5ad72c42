// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/question-sync/internal/api"
	"github.com/JakeFAU/question-sync/internal/blocks"
	"github.com/JakeFAU/question-sync/internal/clock/system"
	"github.com/JakeFAU/question-sync/internal/config"
	"github.com/JakeFAU/question-sync/internal/extract"
	collyfetcher "github.com/JakeFAU/question-sync/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/question-sync/internal/fetcher/headless"
	"github.com/JakeFAU/question-sync/internal/id/uuid"
	"github.com/JakeFAU/question-sync/internal/metrics"
	"github.com/JakeFAU/question-sync/internal/publisher"
	"github.com/JakeFAU/question-sync/internal/publisher/notion"
	"github.com/JakeFAU/question-sync/internal/question"
	"github.com/JakeFAU/question-sync/internal/storage/memory"
	"github.com/JakeFAU/question-sync/internal/storage/postgres"
	"github.com/JakeFAU/question-sync/internal/syncer"
	"github.com/JakeFAU/question-sync/internal/telemetry"
)

// Store is the record store surface the commands rely on.
type Store interface {
	question.Store
	Get(ctx context.Context, id int) (question.Record, bool, error)
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
	Close()
}

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and handed to the commands that need it.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     Store
	publisher *publisher.Publisher
	extractor *extract.Extractor
	chunker   *blocks.Chunker
	clock     *system.Clock
	ids       *uuid.Generator
	tracer    *sdktrace.TracerProvider
}

// New creates and initializes an App from configuration. It fails fast when the
// store cannot be reached or prepared, or when the workspace client cannot be built.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{GCPProjectID: cfg.Tracing.GCPProjectID})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	store, err := openStore(ctx, cfg.DB, logger)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	pub, err := newPublisher(cfg.Notion, logger)
	if err != nil {
		store.Close()
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		publisher: pub,
		extractor: extract.New(extract.Config{
			TitleSelector:   cfg.Extract.TitleSelector,
			ContentSelector: cfg.Extract.ContentSelector,
			LinksMarker:     cfg.Extract.LinksMarker,
		}),
		chunker: blocks.New(blocks.Options{LinksHeading: cfg.Extract.LinksMarker}),
		clock:   system.New(),
		ids:     uuid.New(),
		tracer:  tp,
	}, nil
}

func openStore(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Info("using in-memory record store; nothing will be persisted")
		return memory.NewRecordStore(), nil
	case config.DriverPostgres, "":
		pgCfg := postgres.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			Database: cfg.Name,
			SSLMode:  cfg.SSLMode,
			Table:    cfg.Table,
			MaxConns: cfg.MaxConns,
		}
		if err := postgres.EnsureDatabase(ctx, pgCfg); err != nil {
			return nil, fmt.Errorf("ensure database: %w", err)
		}
		store, err := postgres.NewRecordStore(ctx, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("open record store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		logger.Info("connected to postgres",
			zap.String("host", cfg.Host),
			zap.String("database", cfg.Name),
			zap.String("table", cfg.Table),
		)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown db driver: %s", cfg.Driver)
	}
}

func newPublisher(cfg config.NotionConfig, logger *zap.Logger) (*publisher.Publisher, error) {
	pubCfg := publisher.Config{
		MaxConcurrent:     cfg.MaxConcurrent,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
	named := logger.Named("publisher")
	if !cfg.Enabled() {
		logger.Info("notion token or database id missing; publishing disabled")
		return publisher.New(nil, pubCfg, named), nil
	}
	ws, err := notion.New(notion.Config{
		Token:         cfg.Token,
		DatabaseID:    cfg.DatabaseID,
		TitleProperty: cfg.TitleProperty,
		IDProperty:    cfg.IDProperty,
	})
	if err != nil {
		return nil, fmt.Errorf("init notion workspace: %w", err)
	}
	return publisher.New(ws, pubCfg, named), nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Store exposes the record store.
func (a *App) Store() Store {
	return a.store
}

// Publisher exposes the workspace publisher.
func (a *App) Publisher() *publisher.Publisher {
	return a.publisher
}

// NewFetcher builds the page fetcher selected by fetcher.mode. The caller owns it and
// must Close it; the headless variant holds a browser process.
func (a *App) NewFetcher() (question.Fetcher, error) {
	fc := a.cfg.Fetcher
	switch fc.Mode {
	case config.FetcherStatic:
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:          fc.UserAgent,
			Timeout:            fc.NavigationTimeout,
			InsecureSkipVerify: fc.InsecureTLS,
		}), nil
	case config.FetcherHeadless, "":
		f, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			UserAgent:         fc.UserAgent,
			NavigationTimeout: fc.NavigationTimeout,
			SettleDelay:       fc.SettleDelay,
			ExecPath:          fc.ChromePath,
		})
		if err != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown fetcher mode: %s", fc.Mode)
	}
}

// Orchestrator wires a SyncOrchestrator around fetcher, which may be nil for batch runs.
func (a *App) Orchestrator(fetcher question.Fetcher) *syncer.Orchestrator {
	return syncer.New(syncer.Deps{
		Fetcher:   fetcher,
		Extractor: a.extractor,
		Store:     a.store,
		Chunker:   a.chunker,
		Publisher: a.publisher,
		Clock:     a.clock,
		IDs:       a.ids,
	}, syncer.Config{
		BaseURL:        a.cfg.Source.BaseURL,
		PacingDelay:    a.cfg.Source.PacingDelay,
		FetchAttempts:  a.cfg.Fetcher.MaxAttempts,
		RetryBaseDelay: a.cfg.Fetcher.RetryBaseDelay,
	}, a.logger)
}

// StartOps runs the ops HTTP server in the background when metrics.addr is set.
// The returned func stops it and waits for shutdown.
func (a *App) StartOps(ctx context.Context) func() {
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	server := api.NewServer(a.store, a.store.Ping, a.logger)
	go func() {
		defer close(done)
		if err := server.ListenAndServe(ctx, addr); err != nil {
			a.logger.Error("ops server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Close releases the store, flushes pending spans and flushes the logger.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	a.store.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("tracer shutdown failed", zap.Error(err))
	}
	// Sync on a console sink reports EINVAL; nothing useful can be done about it.
	_ = a.logger.Sync()
}
