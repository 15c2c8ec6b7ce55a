// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/bissquit/pnw-deals/internal/billing"
	billingpostgres "github.com/bissquit/pnw-deals/internal/billing/postgres"
	"github.com/bissquit/pnw-deals/internal/billing/stripe"
	"github.com/bissquit/pnw-deals/internal/config"
	"github.com/bissquit/pnw-deals/internal/newsletter"
	"github.com/bissquit/pnw-deals/internal/pkg/ctxlog"
	"github.com/bissquit/pnw-deals/internal/pkg/httputil"
	"github.com/bissquit/pnw-deals/internal/pkg/metrics"
	"github.com/bissquit/pnw-deals/internal/pkg/postgres"
	"github.com/bissquit/pnw-deals/internal/version"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redis         *redis.Client
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	scheduler     *newsletter.Scheduler
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	info := version.Get()
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit).Set(1)

	db, err := connectDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	redisClient, err := newRedisClient(metricsCtx, cfg.Redis)
	if err != nil {
		metricsCancel()
		db.Close()
		return nil, err
	}

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		redis:         redisClient,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	router, err := app.setupRouter(metricsCtx)
	if err != nil {
		app.closeStores()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

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

func connectDatabase(cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.URL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnectAttempts: cfg.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// Run starts the HTTP servers and the newsletter scheduler, if enabled.
func (a *App) Run(ctx context.Context) error {
	if a.scheduler != nil {
		a.scheduler.Start(ctx)
	}

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

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	// Wait for an in-flight scheduled run before closing the pool
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

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

	a.closeStores()

	return errors.Join(errs...)
}

func (a *App) closeStores() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
	}
	a.db.Close()
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

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>PNW Deals API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	sender, err := newSender(ctx, a.config)
	if err != nil {
		return nil, fmt.Errorf("create newsletter sender: %w", err)
	}

	nl, err := buildNewsletter(a.config, a.db, a.redis, sender)
	if err != nil {
		return nil, fmt.Errorf("setup newsletter: %w", err)
	}
	newsletterHandler := newsletter.NewHandler(nl.dispatcher, nl.locks, nl.signer, nl.repo)

	slog.Info("newsletter configured",
		"provider", sender.Provider(),
		"window_days", a.config.Newsletter.WindowDays,
		"concurrency", a.config.Newsletter.Concurrency,
		"schedule_enabled", a.config.Newsletter.Schedule.Enabled,
		"lock_backend", lockBackend(a.redis),
	)

	if a.config.Newsletter.Schedule.Enabled {
		schedule, err := newSchedule(a.config.Newsletter.Schedule)
		if err != nil {
			return nil, fmt.Errorf("parse newsletter schedule: %w", err)
		}
		a.scheduler = newsletter.NewScheduler(schedule, nl.dispatcher, nl.locks)
	}

	var billingHandler *billing.Handler
	if a.config.BillingEnabled() {
		provider, err := stripe.NewProvider(stripe.Config{
			SecretKey:     a.config.Stripe.SecretKey,
			WebhookSecret: a.config.Stripe.WebhookSecret,
			APIURL:        a.config.Stripe.APIURL,
		})
		if err != nil {
			return nil, fmt.Errorf("create stripe provider: %w", err)
		}
		billingService := billing.NewService(provider, billingpostgres.NewRepository(a.db))
		billingHandler = billing.NewHandler(billingService)
	} else {
		slog.Warn("stripe is not configured: billing routes are disabled")
	}

	r.Route("/api/v1", func(r chi.Router) {
		newsletterHandler.RegisterPublicRoutes(r)

		if billingHandler != nil {
			billingHandler.RegisterRoutes(r)
		}

		if a.config.Admin.Token != "" {
			r.Group(func(r chi.Router) {
				r.Use(httputil.AdminTokenMiddleware(a.config.Admin.Token))
				newsletterHandler.RegisterAdminRoutes(r)
			})
		} else {
			slog.Warn("admin.token not set: manual dispatch endpoint is disabled")
		}
	})

	return r, nil
}

func lockBackend(client *redis.Client) string {
	if client != nil {
		return "redis"
	}
	return "postgres"
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

	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Redis unavailable")
			return
		}
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
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
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
