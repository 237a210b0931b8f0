// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/config"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/delivery"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/delivery/email"
	deliverypostgres "github.com/Johnpaul5084/ai-for-learning-bharat/internal/delivery/postgres"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/delivery/push"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/delivery/sms"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/ingest"
	ingestpostgres "github.com/Johnpaul5084/ai-for-learning-bharat/internal/ingest/postgres"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/match"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/pipeline"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/pkg/ctxlog"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/pkg/httputil"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/pkg/metrics"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/pkg/postgres"
	preferencespostgres "github.com/Johnpaul5084/ai-for-learning-bharat/internal/preferences/postgres"
	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/version"
)

// App represents the application instance.
type App struct {
	config           *config.Config
	logger           *slog.Logger
	db               *pgxpool.Pool
	server           *http.Server
	metricsServer    *http.Server
	backgroundCancel context.CancelFunc
	deliveryWorker   *delivery.Worker
	deliveryRepo     delivery.Repository
}

// New creates a new application instance. The whole pipeline is wired
// here once and torn down in Shutdown.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := postgres.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())

	app := &App{
		config:           cfg,
		logger:           logger,
		db:               db,
		backgroundCancel: backgroundCancel,
	}

	router, err := app.setupPipeline(backgroundCtx)
	if err != nil {
		backgroundCancel()
		db.Close()
		return nil, fmt.Errorf("setup pipeline: %w", err)
	}

	go app.collectDBMetrics(backgroundCtx)
	go app.collectDeliveryMetrics(backgroundCtx)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// setupPipeline builds the matching and delivery pipeline and returns
// the HTTP router exposing its boundaries.
func (a *App) setupPipeline(ctx context.Context) (*chi.Mux, error) {
	cfg := a.config

	emailAdapter, err := email.NewAdapter(email.Config{
		Enabled:      cfg.Channels.Email.Enabled,
		SMTPHost:     cfg.Channels.Email.SMTPHost,
		SMTPPort:     cfg.Channels.Email.SMTPPort,
		SMTPUser:     cfg.Channels.Email.SMTPUser,
		SMTPPassword: cfg.Channels.Email.SMTPPassword,
		FromAddress:  cfg.Channels.Email.FromAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("create email adapter: %w", err)
	}

	if !cfg.Channels.Email.Enabled {
		slog.Warn("email adapter is disabled: email notifications will be dropped as delivered")
	}

	smsAdapter, err := sms.NewAdapter(sms.Config{
		Enabled:     cfg.Channels.SMS.Enabled,
		ProviderURL: cfg.Channels.SMS.ProviderURL,
		APIKey:      cfg.Channels.SMS.APIKey,
		RateLimit:   cfg.Channels.SMS.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("create sms adapter: %w", err)
	}

	pushAdapter, err := push.NewAdapter(push.Config{
		Enabled:     cfg.Channels.Push.Enabled,
		ProviderURL: cfg.Channels.Push.ProviderURL,
		APIKey:      cfg.Channels.Push.APIKey,
		RateLimit:   cfg.Channels.Push.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("create push adapter: %w", err)
	}

	deliveryRepo := deliverypostgres.NewRepository(a.db)
	a.deliveryRepo = deliveryRepo

	cache := delivery.NewIntentCache(cfg.Dedup.TTL)
	go cache.RunEviction(ctx, cfg.Dedup.SweepInterval)

	limiter := delivery.NewWindowLimiter(delivery.LimiterDefaults{
		MaxPerWindow:       cfg.Limits.MaxPerWindow,
		Window:             cfg.Limits.Window,
		OverridesPerWindow: cfg.Limits.PriorityOverridesPerWindow,
	})

	channels := []domain.Channel{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush}
	dispatcher := delivery.NewDispatcher(deliveryRepo, cache, limiter, channels, cfg.Dispatch.QueueSize, cfg.Retry.MaxAttempts)

	workerConfig := delivery.WorkerConfig{
		WorkersPerChannel: cfg.Dispatch.WorkersPerChannel,
		AdapterTimeout:    cfg.Dispatch.AdapterTimeout,
		BaseBackoff:       cfg.Retry.BaseBackoff,
		MaxBackoff:        cfg.Retry.MaxBackoff,
		JitterFraction:    cfg.Retry.JitterFraction,
	}
	a.deliveryWorker = delivery.NewWorker(workerConfig, deliveryRepo, dispatcher, &logDeadLetterReporter{},
		emailAdapter, smsAdapter, pushAdapter)
	a.deliveryWorker.Start(ctx)

	scheduler := delivery.NewScheduler(delivery.SchedulerConfig{
		PollInterval: cfg.Retry.PollInterval,
		BatchSize:    cfg.Retry.BatchSize,
	}, deliveryRepo, dispatcher)
	go scheduler.Run(ctx)

	matcher := match.NewMatcher(match.Config{
		Workers:           cfg.Match.Workers,
		DefaultLeadTime:   cfg.Match.DefaultLeadTime,
		ImminentThreshold: cfg.Match.ImminentThreshold,
	})

	preferencesRepo := preferencespostgres.NewRepository(a.db)
	pipe := pipeline.New(preferencesRepo, matcher, dispatcher, cfg.Match.PreferencePageSize)

	ingestRepo := ingestpostgres.NewRepository(a.db)
	ingestService := ingest.NewService(ingestRepo, pipe)
	go ingestService.RunRetentionSweep(ctx, cfg.Ingest.Retention, cfg.Ingest.SweepInterval)

	ingestHandler := ingest.NewHandler(ingestService)
	deliveryHandler := delivery.NewHandler(deliveryRepo)

	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Route("/api/v1", func(r chi.Router) {
		ingestHandler.RegisterRoutes(r)
		deliveryHandler.RegisterRoutes(r)
	})

	return r, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Start main server
	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application: stop accepting new
// events, let in-flight delivery attempts finish, then stop the pollers.
// Retry state is durable in delivery records, so anything still queued
// is picked up again on restart.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	// Intake is stopped; drain channel workers, then cancel pollers.
	if a.deliveryWorker != nil {
		a.deliveryWorker.Stop()
	}
	a.backgroundCancel()

	a.db.Close()

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// DeliveryWorker returns the channel worker instance.
// Used in tests to access worker state.
func (a *App) DeliveryWorker() *delivery.Worker {
	return a.deliveryWorker
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectDeliveryMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := a.deliveryRepo.GetQueueStats(ctx)
			if err != nil {
				slog.Error("failed to get queue stats", "error", err)
				continue
			}
			delivery.RecordQueueStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

// logDeadLetterReporter hands dead-lettered records to the analytics
// collaborator through structured logs, which the log shipper forwards.
type logDeadLetterReporter struct{}

func (r *logDeadLetterReporter) ReportDeadLetter(_ context.Context, record *domain.DeliveryRecord) {
	slog.Warn("delivery dead-lettered",
		"record_id", record.ID,
		"user_id", record.UserID,
		"channel", record.Channel,
		"intent_key", record.IntentKey,
		"attempts", record.Attempts,
		"last_error", record.LastError,
	)
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
