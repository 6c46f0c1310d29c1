package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/semmidev/sitekeep/internal/adapter/archive"
	"github.com/semmidev/sitekeep/internal/adapter/compressor"
	"github.com/semmidev/sitekeep/internal/adapter/database"
	"github.com/semmidev/sitekeep/internal/adapter/kv"
	"github.com/semmidev/sitekeep/internal/adapter/notify"
	"github.com/semmidev/sitekeep/internal/adapter/storage"
	"github.com/semmidev/sitekeep/internal/config"
	"github.com/semmidev/sitekeep/internal/domain"
	"github.com/semmidev/sitekeep/internal/infrastructure/logger"
	"github.com/semmidev/sitekeep/internal/infrastructure/metrics"
	"github.com/semmidev/sitekeep/internal/infrastructure/scheduler"
	"github.com/semmidev/sitekeep/internal/usecase"
)

type App struct {
	config   *config.Config
	logger   *logger.Logger
	metrics  *metrics.Metrics
	location *time.Location
	catalog  *usecase.Catalog

	// Opened by Run and RunOnce only.
	scheduler  *scheduler.Scheduler
	jobs       *usecase.Jobs
	backup     *usecase.Backup
	recurrence *usecase.Recurrence
	api        *API
	server     *http.Server
	closers    []func() error
}

// New prepares the parts every command needs. The job store and the database
// connection are opened later by Run and RunOnce: a badger store admits one
// process at a time, and list, verify and next must work next to a running
// server.
func New(cfg *config.Config) (*App, error) {
	// Initialize logger
	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Infof("Starting %s %s", cfg.App.Name, config.Version)

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone: %w", err)
	}

	a := &App{
		config:   cfg,
		logger:   log,
		metrics:  metrics.New(),
		location: loc,
	}
	a.catalog = usecase.NewCatalog(storage.Factory, archive.Check, compressor.NewGzip(), log.Named("catalog"), loc)
	return a, nil
}

// startEngine wires the job engine, the schedule and the HTTP API.
func (a *App) startEngine() error {
	if a.jobs != nil {
		return nil
	}
	cfg, log := a.config, a.logger

	store, locker, err := a.initializeStore()
	if err != nil {
		return err
	}

	dumper, err := a.initializeDumper(compressor.NewGzipLevel(cfg.Database.CompressionLevel))
	if err != nil {
		return err
	}

	notifier := initializeNotifier(cfg, log)

	repo := usecase.NewJobRepository(store, cfg.Backup.JobTTL)
	cleanup := usecase.NewCleanup(storage.Factory, a.metrics, log.Named("retention"))

	a.jobs = usecase.NewJobs(
		repo,
		dumper,
		archive.Opener,
		storage.Factory,
		cleanup,
		notifier,
		a.metrics,
		log.Named("jobs"),
		usecase.JobsConfig{BatchSize: cfg.Backup.BatchSize, Location: a.location},
	)
	a.backup = usecase.NewBackup(a.jobs, log.Named("runner"))

	a.scheduler = scheduler.New(a.location)
	a.recurrence = usecase.NewRecurrence(
		a.scheduler,
		locker,
		a.backup,
		cfg.Settings,
		a.metrics,
		log.Named("scheduler"),
		cfg.Backup.LockTTL,
	)

	a.api = NewAPI(a.jobs, a.catalog, a.recurrence, cfg.Settings, a.metrics, log.Named("http"))
	return nil
}

func (a *App) initializeStore() (domain.KeyValueStore, domain.Locker, error) {
	switch a.config.Store.Type {
	case "redis":
		client, err := kv.NewRedisClient(context.Background(), a.config.Store.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.logger.Infof("✓ Job store: redis")
		return kv.NewRedisStore(client), kv.NewRedisLocker(client), nil

	default:
		db, err := kv.OpenBadger(a.config.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open job store: %w", err)
		}
		a.closers = append(a.closers, db.Close)

		if interval := a.config.Store.GCInterval; interval > 0 {
			ctx, stop := context.WithCancel(context.Background())
			done := kv.StartGC(ctx, db, interval, func(err error) {
				a.logger.Warnf("Job store GC failed: %v", err)
			})
			a.closers = append(a.closers, func() error {
				stop()
				<-done
				return nil
			})
		}

		a.logger.Infof("✓ Job store: badger (%s)", a.config.Store.Path)
		return kv.NewBadgerStore(db), kv.NewBadgerLocker(db), nil
	}
}

func (a *App) initializeDumper(gz domain.Compressor) (domain.Dumper, error) {
	dbCfg := &a.config.Database

	db, dialect, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	// Test connection. The dump tool does not need it, so a failure is not fatal.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		a.logger.Warnf("Database %s not reachable yet: %v", dialect.Name(), err)
	} else {
		a.logger.Infof("✓ Connected to %s (%s)", dbCfg.Name, dialect.Name())
	}

	return database.NewDumper(dbCfg, db, dialect, gz, a.logger.Named("dumper")), nil
}

func initializeNotifier(cfg *config.Config, log *logger.Logger) domain.Notifier {
	if !cfg.Notify.Telegram.Enabled {
		return notify.Nop{}
	}
	n, err := notify.NewTelegram(&cfg.Notify.Telegram, cfg.Site.Name)
	if err != nil {
		log.Errorf("Failed to initialize Telegram: %v", err)
		return notify.Nop{}
	}
	log.Infof("✓ Telegram notifications enabled")
	return n
}

// Run arms the schedule, serves the HTTP API and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if err := a.startEngine(); err != nil {
		return err
	}
	if err := a.recurrence.Reschedule(ctx, a.config.ScheduleSettings()); err != nil {
		return fmt.Errorf("failed to schedule backups: %w", err)
	}

	a.scheduler.Start()
	a.logger.Infof("Scheduler started successfully")

	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	a.server = &http.Server{
		Addr:              a.config.HTTP.Addr,
		Handler:           a.api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("HTTP API listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Keep running until context is cancelled
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	a.logger.Infof("HTTP API stopped")
	return nil
}

// RunOnce performs one synchronous backup with the configured settings. With
// a badger store it fails while a server holds the same store.
func (a *App) RunOnce(ctx context.Context) (*domain.Job, error) {
	if err := a.startEngine(); err != nil {
		return nil, err
	}
	return a.backup.Run(ctx, a.config.Settings())
}

func (a *App) List(ctx context.Context) ([]domain.BackupSet, error) {
	return a.catalog.List(ctx, a.config.Settings().Destination)
}

func (a *App) Verify(ctx context.Context, name string) (domain.VerifyResult, error) {
	return a.catalog.Verify(ctx, a.config.Settings().Destination, name)
}

// NextRun computes the next scheduled activation without arming anything.
func (a *App) NextRun() (time.Time, bool, error) {
	s := a.config.ScheduleSettings()
	if !s.Enabled {
		return time.Time{}, false, nil
	}
	next, err := usecase.NextTimestamp(s, time.Now())
	if err != nil {
		return time.Time{}, false, err
	}
	return next, true, nil
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")
	if a.recurrence != nil {
		a.recurrence.UnscheduleAll()
		a.scheduler.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warnf("Close failed: %v", err)
		}
	}
	a.logger.Close()
}
