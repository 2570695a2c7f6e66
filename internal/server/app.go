// Package server provides the application wiring and process lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Moxx-Company/validator-pro/internal/api"
	"github.com/Moxx-Company/validator-pro/internal/batch"
	"github.com/Moxx-Company/validator-pro/internal/cache"
	"github.com/Moxx-Company/validator-pro/internal/clock/system"
	"github.com/Moxx-Company/validator-pro/internal/config"
	"github.com/Moxx-Company/validator-pro/internal/dispatcher"
	"github.com/Moxx-Company/validator-pro/internal/email"
	"github.com/Moxx-Company/validator-pro/internal/governor"
	"github.com/Moxx-Company/validator-pro/internal/hash/xxh3"
	"github.com/Moxx-Company/validator-pro/internal/id/uuid"
	"github.com/Moxx-Company/validator-pro/internal/logging"
	"github.com/Moxx-Company/validator-pro/internal/metrics"
	"github.com/Moxx-Company/validator-pro/internal/phone"
	"github.com/Moxx-Company/validator-pro/internal/policy/ratelimit"
	"github.com/Moxx-Company/validator-pro/internal/progress"
	progresssinks "github.com/Moxx-Company/validator-pro/internal/progress/sinks"
	memorypublisher "github.com/Moxx-Company/validator-pro/internal/publisher/memory"
	gcppublisher "github.com/Moxx-Company/validator-pro/internal/publisher/pubsub"
	queueMemory "github.com/Moxx-Company/validator-pro/internal/queue/memory"
	"github.com/Moxx-Company/validator-pro/internal/resolver"
	"github.com/Moxx-Company/validator-pro/internal/service"
	"github.com/Moxx-Company/validator-pro/internal/smtpprobe"
	"github.com/Moxx-Company/validator-pro/internal/storage/archive"
	gcsstorage "github.com/Moxx-Company/validator-pro/internal/storage/gcs"
	localstorage "github.com/Moxx-Company/validator-pro/internal/storage/local"
	memoryStorage "github.com/Moxx-Company/validator-pro/internal/storage/memory"
	pgstore "github.com/Moxx-Company/validator-pro/internal/storage/postgres"
	"github.com/Moxx-Company/validator-pro/internal/validation"
	"github.com/Moxx-Company/validator-pro/internal/worker"
)

const (
	shutdownTimeout   = 10 * time.Second
	janitorInterval   = time.Minute
	limiterIdleExpiry = 10 * time.Minute
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	apiServer     *api.Server
	service       *service.Service
	dispatch      *dispatcher.Dispatcher
	queue         *queueMemory.Queue
	governor      *governor.Governor
	progressHub   *progress.Hub
	tracker       *progress.Tracker
	pools         []*worker.Pool
	submitLimiter *ratelimit.Limiter
	smtpLimiter   *ratelimit.Limiter
	ids           *uuid.Generator

	dbPool          *pgxpool.Pool
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client

	restoreLogger func()
	closeOnce     sync.Once
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	return build(ctx, cfg, prometheus.DefaultRegisterer)
}

func build(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*App, error) {
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	app := &App{
		cfg:           cfg,
		logger:        logger,
		restoreLogger: logging.Install(logger),
		ids:           uuid.New(),
	}
	metrics.Init()
	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("postgres", cfg.Database.DSN != ""),
		zap.Bool("pubsub", cfg.PubSub.ProjectID != ""),
	)

	if err := app.wire(ctx, reg); err != nil {
		app.Close(context.Background())
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context, reg prometheus.Registerer) error {
	jobStore, err := a.setupDatabase(ctx)
	if err != nil {
		return err
	}
	blobStore, err := a.setupStorage(ctx)
	if err != nil {
		return err
	}
	persister, err := archive.New(blobStore, a.cfg.Storage.Prefix, a.logger)
	if err != nil {
		return fmt.Errorf("archive init failed: %w", err)
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}
	if err := a.setupProgress(ctx, reg, publisher); err != nil {
		return err
	}

	a.tracker = progress.NewTracker(progress.TrackerConfig{
		Retention: a.cfg.Progress.Retention,
		Logger:    a.logger.Named("tracker"),
	})
	a.governor = governor.New(a.cfg.Jobs.MaxConcurrent)
	emailPool := worker.NewPool(a.cfg.Email.Workers, a.logger.Named("email_pool"))
	phonePool := worker.NewPool(a.cfg.Phone.Workers, a.logger.Named("phone_pool"))
	a.pools = []*worker.Pool{emailPool, phonePool}

	a.queue = queueMemory.NewQueue(a.cfg.Jobs.MaxActive)
	a.dispatch = dispatcher.New(a.queue, nil)

	deps := service.Deps{
		Governor: a.governor,
		Store:    jobStore,
		Archive:  persister,
		Factory:  a.setupFactory(),
		Pools: map[validation.Kind]batch.Pool{
			validation.KindEmail: emailPool,
			validation.KindPhone: phonePool,
		},
		Tracker:  a.tracker,
		Admitter: a.dispatch,
		IDs:      a.ids,
		Clock:    system.New(),
		Logger:   a.logger,
	}
	if a.progressHub != nil {
		deps.Hub = a.progressHub
	}
	if a.cfg.Cache.Enabled {
		deps.Cache = cache.New(cache.Config{
			TTL:        a.cfg.Cache.TTL,
			MaxEntries: a.cfg.Cache.MaxEntries,
			Hasher:     xxh3.New(),
			Logger:     a.logger.Named("cache"),
		})
	}
	a.service, err = service.New(service.Config{
		Email:      service.KindConfig{BatchSize: a.cfg.Email.BatchSize, BatchTimeout: a.cfg.Email.BatchTimeout},
		Phone:      service.KindConfig{BatchSize: a.cfg.Phone.BatchSize, BatchTimeout: a.cfg.Phone.BatchTimeout},
		BatchPause: a.cfg.Jobs.BatchPause,
	}, deps)
	if err != nil {
		return fmt.Errorf("service init failed: %w", err)
	}
	for i := 0; i < runnerCount(a.cfg.Jobs); i++ {
		a.dispatch.AddWorker(worker.New(a.queue, a.service, a.logger.Named("runner")))
	}
	a.logger.Info("job runners configured",
		zap.Int("runners", a.dispatch.Workers()),
		zap.Int("governor_capacity", a.governor.Capacity()),
		zap.Int("queue_depth", a.queue.Cap()),
	)

	a.submitLimiter = ratelimit.New(ratelimit.PerMinute(a.cfg.RateLimit.SubmitPerMinute, "submit"))
	a.apiServer = api.NewServer(a.service, a.submitLimiter, a.ids, api.Options{
		AuthEnabled: a.cfg.Auth.Enabled,
		APIKey:      a.cfg.Auth.APIKey,
		Ready:       a.ready,
	}, a.logger)
	return nil
}

// runnerCount never starts fewer runners than governor slots, so the
// governor stays the process-wide job bound. Runners above that number
// wait in Acquire and show up as governor waiters.
func runnerCount(cfg config.JobsConfig) int {
	return max(cfg.Runners, cfg.MaxConcurrent)
}

func (a *App) setupFactory() *service.Factory {
	a.smtpLimiter = ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.SMTP.HostRPS,
		DefaultBurst: a.cfg.SMTP.HostBurst,
		Scope:        "smtp",
	})
	prober := smtpprobe.New(smtpprobe.Config{
		Port:           a.cfg.SMTP.Port,
		ConnectTimeout: a.cfg.SMTP.ConnectTimeout,
		DialogTimeout:  a.cfg.SMTP.DialogTimeout,
		HeloDomain:     a.cfg.SMTP.HeloDomain,
		MailFrom:       a.cfg.SMTP.MailFrom,
		Limiter:        a.smtpLimiter,
		Logger:         a.logger.Named("smtp"),
	})
	phoneResolver := phone.New(phone.Config{
		DefaultRegion: a.cfg.Phone.DefaultRegion,
		Timeout:       a.cfg.Phone.ItemTimeout,
		Logger:        a.logger.Named("phone"),
	})
	return &service.Factory{
		DNS:    resolver.Config{Timeout: a.cfg.DNS.Timeout},
		Prober: prober,
		Email:  email.Config{ItemTimeout: a.cfg.Email.ItemTimeout},
		Phone:  phoneResolver,
		Logger: a.logger.Named("email"),
	}
}

func (a *App) setupDatabase(ctx context.Context) (validation.JobStore, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database DSN configured, using in-memory job store")
		return memoryStorage.NewJobStore(), nil
	}
	pool, err := pgstore.NewPool(ctx, pgstore.Config{
		DSN:             a.cfg.Database.DSN,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres init failed: %w", err)
	}
	a.dbPool = pool
	if a.cfg.Database.Migrate {
		if err := pgstore.Migrate(ctx, pool, a.logger.Named("migrate")); err != nil {
			return nil, fmt.Errorf("postgres migrate failed: %w", err)
		}
	}
	store, err := pgstore.NewJobStore(pool)
	if err != nil {
		return nil, fmt.Errorf("job store init failed: %w", err)
	}
	a.logger.Info("postgres job store initialized", zap.Int32("max_conns", a.cfg.Database.MaxConns))
	return store, nil
}

func (a *App) setupStorage(ctx context.Context) (validation.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket:   a.cfg.Storage.Bucket,
			Metadata: map[string]string{"service": logging.ServiceName},
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobStore, nil
	case config.BackendLocal:
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.Local.BaseDir))
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobStore, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memoryStorage.NewBlobStore(), nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (validation.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub project configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.pubsubPublisher, err = gcppublisher.New(gcppublisher.ClientTopics(client), a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.pubsubPublisher, nil
}

func (a *App) setupProgress(ctx context.Context, reg prometheus.Registerer, publisher validation.Publisher) error {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("prometheus progress sink init failed: %w", err)
	}
	sinkList := []progress.Sink{
		promSink,
		progresssinks.NewPublisherSink(publisher, a.cfg.PubSub.TopicName, a.logger.Named("progress_publisher")),
	}
	if a.cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.Batch.MaxEvents,
		MaxBatchWait:   a.cfg.Progress.MaxWait(),
		SinkTimeout:    a.cfg.Progress.SinkTimeout(),
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Service returns the job service.
func (a *App) Service() *service.Service {
	return a.service
}

// NewJobID returns a fresh job identifier.
func (a *App) NewJobID() (string, error) {
	id, err := a.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	return id, nil
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

func (a *App) ready(ctx context.Context) error {
	if a.dbPool != nil {
		if err := a.dbPool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping: %w", err)
		}
	}
	return nil
}

// Run serves HTTP and drains the admission queue until the context is
// canceled or the process receives SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := a.StartRunners(ctx)
	go a.janitor(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("job runners did not stop before shutdown deadline")
	}

	a.Close(shutdownCtx)
	return nil
}

// StartRunners launches the job runners and returns a channel closed once
// they have all stopped.
func (a *App) StartRunners(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.logger.Info("dispatcher started", zap.Int("runners", a.dispatch.Workers()))
		a.dispatch.Run(ctx)
		a.logger.Info("dispatcher stopped")
	}()
	return done
}

func (a *App) janitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned := a.submitLimiter.Prune(limiterIdleExpiry) + a.smtpLimiter.Prune(limiterIdleExpiry)
			swept := a.tracker.Sweep()
			if pruned > 0 || swept > 0 {
				a.logger.Debug("janitor pass", zap.Int("limiters_pruned", pruned), zap.Int("jobs_swept", swept))
			}
		}
	}
}

// Close gracefully shuts down the application. It is safe to call more than
// once.
func (a *App) Close(ctx context.Context) {
	a.closeOnce.Do(func() {
		a.closeRuntime()
		a.closeInfrastructure(ctx)
		a.logger.Info("shutdown complete")
		if a.restoreLogger != nil {
			a.restoreLogger()
		}
	})
}

func (a *App) closeRuntime() {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.governor != nil {
		a.governor.Close()
	}
	for _, p := range a.pools {
		p.Close()
	}
	if a.tracker != nil {
		a.tracker.Close()
	}
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}
