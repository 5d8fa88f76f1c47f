package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/faultline/internal/audit"
	"github.com/vietddude/faultline/internal/core/config"
	"github.com/vietddude/faultline/internal/core/session"
	"github.com/vietddude/faultline/internal/core/worker"
	"github.com/vietddude/faultline/internal/errhandler"
	"github.com/vietddude/faultline/internal/health"
	redisclient "github.com/vietddude/faultline/internal/infra/redis"
	"github.com/vietddude/faultline/internal/infra/storage"
	"github.com/vietddude/faultline/internal/infra/storage/memory"
	"github.com/vietddude/faultline/internal/infra/storage/postgres"
	"github.com/vietddude/faultline/internal/infra/storage/sqlite"
	"github.com/vietddude/faultline/internal/notify"
	"github.com/vietddude/faultline/internal/resilience/breaker"
	"github.com/vietddude/faultline/internal/resilience/recovery"
	"github.com/vietddude/faultline/internal/validation"
)

// App owns every service of one process. Construct it once and pass the
// pieces to call sites.
type App struct {
	cfg config.AppConfig

	Store     storage.KV
	Session   session.Provider
	Audit     *audit.Logger
	Breakers  *breaker.Registry
	Recovery  *recovery.Manager
	Validator *validation.Validator
	Handler   *errhandler.Handler

	pruner       *worker.Pruner
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	stopped bool
}

// NewApp creates an App with all dependencies initialized. The audit chain
// persisted by a previous run is loaded so new entries continue it.
func NewApp(ctx context.Context, cfg config.AppConfig) (*App, error) {
	// 1. Initialize Storage
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// 2. Audit log
	sp := session.NewStatic(cfg.Identity.ActorID)
	logger := audit.NewLogger(cfg.Audit, store, sp)
	if err := logger.Load(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load audit log: %w", err)
	}

	// 3. Recovery and error handling
	breakers := breaker.NewRegistry(cfg.Breaker)
	manager := recovery.NewManager(cfg.Recovery, breakers, notify.NewLogEscalator(nil), logger)
	validator := validation.NewValidator(cfg.Validation, logger)
	handler := errhandler.New(cfg.ErrorHandler, manager, logger, notify.NewLogNotifier(nil), sp)

	// 4. Health
	healthMon := health.NewMonitor(breakers, logger, manager.Queue())
	healthServer := health.NewServer(healthMon, logger, handler, cfg.Server.Port)

	return &App{
		cfg:          cfg,
		Store:        store,
		Session:      sp,
		Audit:        logger,
		Breakers:     breakers,
		Recovery:     manager,
		Validator:    validator,
		Handler:      handler,
		pruner:       worker.NewPruner(cfg.Audit.Retention, logger),
		healthMon:    healthMon,
		healthServer: healthServer,
		log:          slog.Default(),
	}, nil
}

// OpenStore connects the configured KV backend.
func OpenStore(ctx context.Context, cfg config.AppConfig) (storage.KV, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		slog.Info("Using Memory storage", "quota", cfg.Storage.Quota)
		return memory.NewStorage(cfg.Storage.Quota), nil

	case config.DriverRedis:
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		slog.Info("Using Redis storage", "prefix", cfg.Redis.Prefix)
		return redisclient.NewStore(client, cfg.Redis.Prefix), nil

	case config.DriverPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		slog.Info("Using PostgreSQL storage", "namespace", cfg.Storage.Namespace)
		return postgres.NewKVRepo(db, cfg.Storage.Namespace), nil

	case config.DriverSQLite, "":
		store, err := sqlite.Open(cfg.Storage.SQLite)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		slog.Info("Using SQLite storage", "path", cfg.Storage.SQLite.Path)
		return store, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// Start launches the background workers and the health server. It returns
// immediately.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.group != nil {
		return errors.New("app already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	a.cancel = cancel
	a.group = g

	a.Audit.Start(ctx)
	a.Recovery.Start(ctx)

	// Start Health Server
	g.Go(func() error {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
			return err
		}
		return nil
	})

	// Start Retention Pruner
	g.Go(func() error {
		a.pruner.Start(gctx)
		return nil
	})

	a.log.Info("Faultline started",
		"port", a.cfg.Server.Port,
		"storage", a.cfg.Storage.Driver,
		"session", a.Session.SessionID(),
	)
	return nil
}

// Stop stops the workers, flushes the audit log and closes storage. It is
// safe to call without Start and more than once.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return nil
	}
	a.stopped = true
	a.log.Info("Stopping Faultline...")

	var errs []error
	if a.group != nil {
		if err := a.healthServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("health server: %w", err))
		}
		a.cancel()
		if err := a.group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}

	a.Recovery.Stop()
	a.Audit.Stop()
	a.Handler.Wait()

	if err := a.Audit.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("audit flush: %w", err))
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}

// Health returns the current health report.
func (a *App) Health(ctx context.Context) health.HealthReport {
	return a.healthMon.CheckHealth(ctx)
}

// Submit validates a parameter and, when it is rejected, routes the failure
// through the error handler. The outcome is nil for accepted values.
func (a *App) Submit(ctx context.Context, name string, value any) (validation.Result, *errhandler.Outcome) {
	res, err := a.Validator.Validate(ctx, name, value)
	if err == nil {
		return res, nil
	}
	out := a.Handler.HandleError(ctx, err, errhandler.ContextData{
		Module:    "validation",
		Operation: "submit",
		Inputs:    map[string]any{name: value},
	})
	return res, &out
}
