// Package server builds the ingestion service from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/recall-ingest/internal/api"
	"github.com/JakeFAU/recall-ingest/internal/archive"
	"github.com/JakeFAU/recall-ingest/internal/clock/system"
	"github.com/JakeFAU/recall-ingest/internal/config"
	"github.com/JakeFAU/recall-ingest/internal/extract/firecrawl"
	collyfetcher "github.com/JakeFAU/recall-ingest/internal/fetcher/colly"
	"github.com/JakeFAU/recall-ingest/internal/hash/sha256"
	"github.com/JakeFAU/recall-ingest/internal/id/uuid"
	"github.com/JakeFAU/recall-ingest/internal/ingest"
	"github.com/JakeFAU/recall-ingest/internal/logging"
	"github.com/JakeFAU/recall-ingest/internal/metrics"
	"github.com/JakeFAU/recall-ingest/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/recall-ingest/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/recall-ingest/internal/publisher/pubsub"
	"github.com/JakeFAU/recall-ingest/internal/recall"
	"github.com/JakeFAU/recall-ingest/internal/retry"
	"github.com/JakeFAU/recall-ingest/internal/source/cpsc"
	"github.com/JakeFAU/recall-ingest/internal/source/fda"
	"github.com/JakeFAU/recall-ingest/internal/source/nhtsa"
	gcsstorage "github.com/JakeFAU/recall-ingest/internal/storage/gcs"
	localstorage "github.com/JakeFAU/recall-ingest/internal/storage/local"
	memorystorage "github.com/JakeFAU/recall-ingest/internal/storage/memory"
	pgstore "github.com/JakeFAU/recall-ingest/internal/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

// Options adjusts how Build wires collaborators.
type Options struct {
	// DryRun replaces the database and the event publisher with in-memory
	// implementations so a run touches only the upstream agencies.
	DryRun bool
}

// App holds the wired service and the resources it must release.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	recalls recall.Store
	alerts  recall.AlertStore
	// storeErr records a store that could not be constructed; runs report it.
	storeErr error

	pgStore  *pgstore.Store
	gcsStore *gcsstorage.BlobStore
	pubsub   *gcppublisher.Publisher

	service   *ingest.Service
	apiServer *api.Server
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.Bool("dry_run", opts.DryRun),
		zap.Bool("parallel", cfg.Ingest.Parallel),
		zap.String("archive_backend", cfg.Archive.Backend),
	)

	app.setupStore(ctx, opts)

	blobs, err := app.setupArchive(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	publisher, err := app.setupPublisher(ctx, opts)
	if err != nil {
		app.Close()
		return nil, err
	}

	adapters := app.setupSources(blobs)
	orchestrator := ingest.NewOrchestrator(adapters, ingest.OrchestratorOptions{
		Parallel:    cfg.Ingest.Parallel,
		SourcePause: cfg.Ingest.SourcePause(),
	}, logger)
	writer := ingest.NewWriter(app.recalls, publisher, cfg.PubSub.TopicName, logger)

	checkConfig := app.configCheck
	if opts.DryRun {
		checkConfig = nil
	}
	app.service = ingest.NewService(ingest.ServiceDeps{
		ConfigCheck:  checkConfig,
		Store:        app.recalls,
		Orchestrator: orchestrator,
		Writer:       writer,
		IDs:          uuid.New(),
		Logger:       logger,
		RunTimeout:   cfg.Ingest.RunTimeout(),
	})

	app.apiServer = api.NewServer(
		app.service,
		app.recalls,
		app.alerts,
		api.Options{APIKey: cfg.Server.APIKey, RequestTimeout: cfg.HTTP.Timeout()},
		logger.Named("api"),
	)
	return app, nil
}

// Service returns the ingestion service for one-shot runs.
func (a *App) Service() *ingest.Service {
	return a.service
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run serves HTTP until the context is canceled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close()
	return serveErr
}

// Close releases the store pool and the cloud clients.
func (a *App) Close() {
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsub = nil
	}
	if a.gcsStore != nil {
		if err := a.gcsStore.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcsStore = nil
	}
	if a.pgStore != nil {
		a.pgStore.Close()
		a.pgStore = nil
	}
	// Sync fails on non-file sinks such as stderr on some platforms.
	_ = a.logger.Sync()
}

// configCheck reports missing or unusable store configuration to each run.
func (a *App) configCheck() error {
	if err := a.cfg.StoreError(); err != nil {
		return err
	}
	if a.storeErr != nil {
		return fmt.Errorf("%w: %w", recall.ErrFatalConfiguration, a.storeErr)
	}
	return nil
}

// setupStore never fails Build. Missing configuration surfaces on each run as
// a structured failure so the trigger can still answer.
func (a *App) setupStore(ctx context.Context, opts Options) {
	if opts.DryRun {
		a.logger.Info("dry run, using in-memory recall store")
		mem := memorystorage.NewRecallStore()
		a.recalls, a.alerts = mem, mem
		return
	}
	if err := a.cfg.StoreError(); err != nil {
		a.logger.Warn("recall store not configured", zap.Error(err))
		return
	}
	store, err := pgstore.New(ctx, pgstore.Config{
		DSN:             a.cfg.Store.URL,
		Password:        a.cfg.Store.Credential,
		MaxConns:        a.cfg.Store.MaxConns,
		MinConns:        a.cfg.Store.MinConns,
		MaxConnLifetime: a.cfg.Store.MaxConnLifetime,
	})
	if err != nil {
		a.storeErr = err
		a.logger.Error("recall store init failed", zap.Error(err))
		return
	}
	a.pgStore = store
	a.recalls, a.alerts = store, store
	if a.cfg.Store.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			a.logger.Error("schema bootstrap failed", zap.Error(err))
		} else {
			a.logger.Info("schema ensured")
		}
	}
	a.logger.Info("postgres recall store initialized")
}

func (a *App) setupArchive(ctx context.Context) (recall.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case config.ArchiveGCS:
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.gcsStore = store
		a.logger.Info("archiving raw payloads to GCS", zap.String("bucket", a.cfg.Archive.Bucket))
		return store, nil
	case config.ArchiveLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("archiving raw payloads locally", zap.String("path", a.cfg.Archive.Local.BaseDir))
		return store, nil
	case config.ArchiveMemory:
		a.logger.Info("archiving raw payloads in memory")
		return memorystorage.NewBlobStore(), nil
	default:
		a.logger.Debug("raw payload archive disabled")
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context, opts Options) (recall.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Debug("no Pub/Sub topic configured, insert events disabled")
		return nil, nil
	}
	if opts.DryRun || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("using in-memory publisher", zap.String("topic", a.cfg.PubSub.TopicName))
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsub = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, nil
}

func (a *App) setupSources(blobs recall.BlobStore) []recall.Adapter {
	clock := system.New()
	hasher := sha256.New()
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.HTTP.RequestsPerSecond,
		DefaultBurst: a.cfg.HTTP.Burst,
	})
	base := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.HTTP.UserAgent,
		Timeout:   a.cfg.HTTP.Timeout(),
	}, limiter)
	fetcherFor := func(source recall.Source) recall.Fetcher {
		return archive.Wrap(base, archive.Options{
			Store:  blobs,
			Hasher: hasher,
			Source: source,
			Prefix: a.cfg.Archive.Prefix,
			Logger: a.logger,
		})
	}

	policy := retry.New(
		retry.WithMaxAttempts(a.cfg.Retry.MaxAttempts),
		retry.WithBaseDelay(a.cfg.Retry.BaseDelay()),
		retry.WithOnRetry(func(attempt int, err error) {
			metrics.ObserveRetry("firecrawl")
			a.logger.Debug("retrying extraction", zap.Int("attempt", attempt), zap.Error(err))
		}),
	)
	extractor := firecrawl.New(firecrawl.Config{
		APIKey:  a.cfg.Extract.APIKey,
		BaseURL: a.cfg.Extract.BaseURL,
	}, fetcherFor(recall.SourceNHTSA), policy, a.logger)
	if !extractor.Enabled() {
		a.logger.Warn("extraction API key missing, NHTSA scrape tier disabled")
	}

	return []recall.Adapter{
		fda.New(fda.Config{
			BaseURL: a.cfg.Sources.FDA.BaseURL,
			Limit:   a.cfg.Sources.FDA.Limit,
		}, fetcherFor(recall.SourceFDA), clock, a.logger),
		cpsc.New(cpsc.Config{
			FeedURL:  a.cfg.Sources.CPSC.FeedURL,
			MaxItems: a.cfg.Sources.CPSC.MaxItems,
		}, fetcherFor(recall.SourceCPSC), clock, a.logger),
		nhtsa.New(nhtsa.Config{
			APIURL:       a.cfg.Sources.NHTSA.APIURL,
			VPICURL:      a.cfg.Sources.NHTSA.VPICURL,
			Manufacturer: a.cfg.Sources.NHTSA.Manufacturer,
			PageURL:      a.cfg.Sources.NHTSA.PageURL,
		}, fetcherFor(recall.SourceNHTSA), extractor, clock, a.logger),
	}
}
