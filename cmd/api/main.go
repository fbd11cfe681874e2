// Package main is the entrypoint for the smart links server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/smartlinks/smartlinks/internal/analytics"
	"github.com/smartlinks/smartlinks/internal/cache"
	"github.com/smartlinks/smartlinks/internal/config"
	"github.com/smartlinks/smartlinks/internal/device"
	"github.com/smartlinks/smartlinks/internal/eventsink"
	"github.com/smartlinks/smartlinks/internal/geo"
	"github.com/smartlinks/smartlinks/internal/handler"
	"github.com/smartlinks/smartlinks/internal/metrics"
	"github.com/smartlinks/smartlinks/internal/model"
	"github.com/smartlinks/smartlinks/internal/query"
	"github.com/smartlinks/smartlinks/internal/repository"
	"github.com/smartlinks/smartlinks/internal/retention"
	"github.com/smartlinks/smartlinks/internal/server"
	"github.com/smartlinks/smartlinks/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	if cfg.MigrateOnStart {
		if err := repository.Migrate(cfg.DatabaseURL); err != nil {
			logger.Error("failed to run migrations", slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	stored, err := repo.LoadSettingsJSON(ctx)
	if err != nil {
		logger.Error("failed to load settings", "error", err)
		os.Exit(1)
	}
	settings, err := config.ResolveSettings(stored, nil)
	if err != nil {
		logger.Error("invalid settings", "error", err)
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid timezone", "error", err)
		os.Exit(1)
	}

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	var recorder metrics.Recorder = metrics.NewNoop()
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		prom := metrics.NewPrometheus()
		recorder = prom
		metricsHandler = prom.Handler()
	}

	detector := device.NewCachedDetector(device.NewDetector(), cacheClient, settings.DeviceCacheTTL(), recorder, logger)

	srv := server.New(nil, server.Options{
		Addr:            ":" + strconv.Itoa(cfg.AppPort),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
	})

	storeOpts := analytics.StoreOptions{
		Purger:   repo,
		Settings: settings,
		Metrics:  recorder,
		Logger:   logger,
	}
	if settings.EnableGeoDetection {
		storeOpts.Locator = newLocator(cfg, settings, cacheClient, recorder, logger, srv)
	}
	if cfg.EventSinkURL != "" {
		storeOpts.Sink = eventsink.New(eventsink.Options{
			URL:     cfg.EventSinkURL,
			Secret:  cfg.EventSinkSecret,
			Timeout: cfg.EventSinkTimeout,
			Metrics: recorder,
			Logger:  logger,
		})
	}

	if cfg.AnalyticsAsync {
		storeOpts.Writer = analytics.NewStreamWriter(cacheClient.Client(), logger)

		worker := analytics.NewWorker(analytics.WorkerOptions{
			Client:     cacheClient.Client(),
			Repo:       repo,
			ConsumerID: analytics.NewConsumerID(),
			Rejected:   repository.IsRejected,
			Metrics:    recorder,
			Logger:     logger,
		})
		workerCtx, cancelWorker := context.WithCancel(ctx)
		go func() {
			if err := worker.Run(workerCtx); err != nil {
				logger.Error("analytics worker stopped", "error", err)
			}
		}()
		srv.OnShutdown("analytics-worker", func(ctx context.Context) error {
			defer cancelWorker()
			return worker.Shutdown(ctx)
		})
	} else {
		storeOpts.Writer = analytics.NewDirectWriter(repo)
	}
	store := analytics.NewStore(storeOpts)

	redirects := service.NewRedirectService(service.RedirectOptions{
		Links:    repo,
		Cache:    cacheClient,
		Detector: detector,
		Recorder: store,
		Settings: settings,
		Metrics:  recorder,
		Logger:   logger,
	})

	engine := query.NewEngine(query.Options{
		Source:   repo,
		Settings: settings,
		BaseURL:  cfg.BaseURL,
		Location: loc,
		Logger:   logger,
	})

	var trigger handler.RetentionTrigger
	if settings.RetentionEnabled() {
		job := retention.NewJob(store, settings.AnalyticsRetention, logger)
		scheduler, err := retention.NewScheduler(job, cacheClient, cfg.RetentionSchedule, logger)
		if err != nil {
			logger.Error("invalid retention schedule", "schedule", cfg.RetentionSchedule, "error", err)
			os.Exit(1)
		}
		scheduler.Start()
		srv.OnShutdown("retention", scheduler.Shutdown)
		trigger = scheduler
	}

	router := handler.NewRouter(handler.RouterConfig{
		Logger: logger,
		Health: handler.NewHealthHandler(
			handler.Dependency{Name: "database", Checker: repo},
			handler.Dependency{Name: "redis", Checker: cacheClient, Optional: true},
		),
		Redirect:           handler.NewRedirectHandler(redirects, cfg.DefaultSiteID, logger),
		Analytics:          handler.NewAnalyticsHandler(engine, redirects, trigger, logger),
		Metrics:            metricsHandler,
		Limiter:            cacheClient,
		RateLimitEnabled:   cfg.RateLimitEnabled,
		RedirectRPS:        cfg.RedirectRPS,
		RedirectBurst:      cfg.RedirectBurst,
		AnalyticsRPS:       cfg.AnalyticsRPS,
		AnalyticsBurst:     cfg.AnalyticsBurst,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		IsDevelopment:      cfg.IsDevelopment(),
	})
	srv.SetHandler(router)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"analytics_async", cfg.AnalyticsAsync,
		"geo_detection", settings.EnableGeoDetection,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// newLocator builds the geo provider chain: a local MaxMind database first when
// configured, then the rate-limited ip-api.com lookup.
func newLocator(cfg *config.Config, settings config.Settings, c *cache.Cache, recorder metrics.Recorder, logger *slog.Logger, srv *server.Server) *geo.Locator {
	var providers []geo.Provider
	if cfg.GeoMaxMindDBPath != "" {
		mm, err := geo.NewMaxMindProvider(cfg.GeoMaxMindDBPath)
		if err != nil {
			logger.Warn("maxmind database unavailable", "path", cfg.GeoMaxMindDBPath, "error", err)
		} else {
			providers = append(providers, mm)
			srv.OnShutdown("maxmind", func(context.Context) error { return mm.Close() })
		}
	}
	providers = append(providers, geo.NewIPAPIProvider(geo.IPAPIOptions{
		BaseURL:       cfg.GeoAPIBaseURL,
		Timeout:       cfg.GeoTimeout,
		RatePerMinute: cfg.GeoRatePerMinute,
		Logger:        logger,
	}))

	return geo.NewLocator(geo.Options{
		Providers: providers,
		Cache:     c,
		CacheTTL:  cfg.GeoCacheTTL,
		Fallback: model.GeoResult{
			CountryCode: settings.DefaultGeoCountryCode,
			Country:     settings.DefaultGeoCountry,
			City:        settings.DefaultGeoCity,
			Region:      settings.DefaultGeoRegion,
			Timezone:    settings.DefaultGeoTimezone,
			Latitude:    settings.DefaultGeoLat,
			Longitude:   settings.DefaultGeoLon,
		},
		Metrics: recorder,
		Logger:  logger,
	})
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
