package bootstrap

import (
	"context"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"morcore/internal/bootstrap/config"
	"morcore/internal/bootstrap/database"
	"morcore/internal/bootstrap/logging"
	"morcore/internal/errs"
	"morcore/internal/infrastructure/applications"
	cacheinfra "morcore/internal/infrastructure/cache"
	"morcore/internal/infrastructure/messaging"
	"morcore/internal/infrastructure/metrics"
	"morcore/internal/infrastructure/persistence/gormstore/repository"
	"morcore/internal/infrastructure/persistence/gormstore/uow"
	"morcore/internal/infrastructure/storage"
	"morcore/internal/infrastructure/subjects"
	"morcore/internal/ports"
	"morcore/internal/usecase/dispatch"
	"morcore/internal/usecase/jobs"
	"morcore/internal/usecase/lifecycle"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(provideRegistry),
	fx.Provide(provideCollectors),
	fx.Provide(provideReportRepository),
	fx.Provide(provideTaskRepository),
	fx.Provide(provideJobRepository),
	fx.Provide(
		fx.Annotate(
			uow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(provideCache),
	fx.Provide(
		fx.Annotate(
			provideGateway,
			fx.As(new(ports.ApplicationGateway)),
		),
	),
	fx.Provide(
		fx.Annotate(
			provideCatalog,
			fx.As(new(ports.SubjectCatalog)),
		),
	),
	fx.Provide(
		fx.Annotate(
			provideFileStore,
			fx.As(new(ports.FileStore)),
		),
	),
	fx.Provide(providePublisher),
	fx.Provide(provideDispatcher),
	fx.Provide(provideLifecycle),
	fx.Provide(provideRunner),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

// provideRegistry keeps collectors off the global registerer so every fx
// application gets its own.
func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideCollectors(reg *prometheus.Registry) *metrics.Collectors {
	return metrics.New(reg)
}

func provideReportRepository(db *gorm.DB, c *metrics.Collectors) ports.ReportRepository {
	repo := repository.NewReportRepository(db)
	repo.ObserveLockFailures(c.LockFailed)
	return repo
}

func provideTaskRepository(db *gorm.DB, c *metrics.Collectors) ports.TaskRepository {
	repo := repository.NewTaskRepository(db)
	repo.ObserveLockFailures(c.LockFailed)
	return repo
}

type jobStoreResult struct {
	fx.Out

	Store ports.JobStore
	Queue ports.JobQueue
}

func provideJobRepository(db *gorm.DB, cfg config.Config) jobStoreResult {
	repo := repository.NewJobRepository(db, cfg.Jobs.MaxAttempts, cfg.Jobs.LeaseTimeout)
	return jobStoreResult{Store: repo, Queue: repo}
}

func provideCache(lc fx.Lifecycle, ctx context.Context, cfg config.Config, db *gorm.DB) (ports.Cache, error) {
	switch strings.ToLower(cfg.Cache.Driver) {
	case "redis":
		redisCache, err := cacheinfra.NewRedisCache(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, errs.Wrap(err, "open redis cache")
		}
		lc.Append(fx.Hook{
			OnStop: func(_ context.Context) error { return redisCache.Close() },
		})
		return redisCache, nil
	default:
		return cacheinfra.NewDBCache(db), nil
	}
}

func provideGateway(cache ports.Cache, cfg config.Config) *applications.Gateway {
	tokenTTL := cfg.Applications.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = cfg.Cache.DefaultTTL
	}
	return applications.NewGateway(cache, applications.Config{
		TokenPath:  cfg.Applications.TokenPath,
		NotifyPath: cfg.Applications.NotifyPath,
		Timeout:    cfg.Applications.Timeout,
		TokenTTL:   tokenTTL,
	})
}

func provideCatalog(cache ports.Cache, cfg config.Config) *subjects.Catalog {
	cacheTTL := cfg.Subjects.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = cfg.Cache.DefaultTTL
	}
	return subjects.NewCatalog(cache, subjects.Config{
		BaseURL:  cfg.Subjects.BaseURL,
		CacheTTL: cacheTTL,
		Timeout:  cfg.Subjects.Timeout,
	})
}

func provideFileStore(cfg config.Config) (*storage.MediaStore, error) {
	return storage.NewMediaStore(cfg.Storage.MediaRoot)
}

// providePublisher returns a publisher without a connection when
// messaging.nats_url is empty; it then publishes nothing.
func providePublisher(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*messaging.Publisher, error) {
	if strings.TrimSpace(cfg.Messaging.NatsURL) == "" {
		return messaging.NewPublisher(nil, cfg.Messaging.SubjectPrefix), nil
	}
	conn, err := messaging.Connect(ctx, cfg.Messaging.NatsURL, cfg.App.Name)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error { return conn.Drain() },
	})
	return messaging.NewPublisher(conn, cfg.Messaging.SubjectPrefix), nil
}

func provideDispatcher(queue ports.JobQueue, publisher *messaging.Publisher, c *metrics.Collectors, cfg config.Config) ports.Dispatcher {
	fanout := dispatch.NewFanout(
		dispatch.NewJobDispatcher(queue, cfg.App.BaseURL),
		publisher,
	)
	return metrics.NewDispatcher(fanout, c)
}

type lifecycleParams struct {
	fx.In

	Config     config.Config
	Reports    ports.ReportRepository
	Tasks      ports.TaskRepository
	UnitOfWork ports.UnitOfWork
	Dispatcher ports.Dispatcher
	Subjects   ports.SubjectCatalog
	Gateway    ports.ApplicationGateway
}

func provideLifecycle(p lifecycleParams) *lifecycle.Service {
	return lifecycle.NewService(p.Reports, p.Tasks, p.UnitOfWork, LifecycleConfig(p.Config),
		lifecycle.WithDispatcher(p.Dispatcher),
		lifecycle.WithSubjectCatalog(p.Subjects),
		lifecycle.WithApplicationGateway(p.Gateway),
	)
}

// LifecycleConfig maps the lifecycle and dedup settings.
func LifecycleConfig(cfg config.Config) lifecycle.Config {
	return lifecycle.Config{
		BaseURL:               cfg.App.BaseURL,
		DefaultUrgency:        cfg.Lifecycle.DefaultUrgency,
		HighPriorityName:      cfg.Lifecycle.HighPriorityName,
		HighPriorityUrgency:   cfg.Lifecycle.HighPriorityUrgency,
		InitialLocationWeight: cfg.Lifecycle.InitialLocationWeight,
		DedupEnabled:          cfg.Dedup.Enabled,
		DedupMaxDistance:      cfg.Dedup.MaxDistanceMeters,
		DedupWindow:           cfg.Dedup.Window,
	}
}

type runnerParams struct {
	fx.In

	Config     config.Config
	Store      ports.JobStore
	Queue      ports.JobQueue
	Lifecycle  *lifecycle.Service
	Gateway    ports.ApplicationGateway
	Files      ports.FileStore
	Collectors *metrics.Collectors
}

func provideRunner(p runnerParams) *jobs.Runner {
	runner := jobs.NewRunner(p.Store, jobs.Config{
		PollInterval:    p.Config.Jobs.PollInterval,
		BatchSize:       p.Config.Jobs.BatchSize,
		InitialInterval: p.Config.Jobs.InitialInterval,
		MaxInterval:     p.Config.Jobs.MaxInterval,
	}, jobs.WithObserver(p.Collectors))
	jobs.NewHandlers(p.Lifecycle, p.Gateway, p.Files, p.Queue).RegisterAll(runner)
	return runner
}
