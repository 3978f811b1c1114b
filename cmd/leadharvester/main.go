package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/leaddev/leadharvester/internal/api"
	"github.com/leaddev/leadharvester/internal/browser"
	"github.com/leaddev/leadharvester/internal/config"
	"github.com/leaddev/leadharvester/internal/database"
	"github.com/leaddev/leadharvester/internal/models"
	"github.com/leaddev/leadharvester/internal/orchestrator"
	"github.com/leaddev/leadharvester/internal/proxy"
	"github.com/leaddev/leadharvester/internal/quota"
	"github.com/leaddev/leadharvester/internal/ratelimit"
	"github.com/leaddev/leadharvester/internal/selftest"
	"github.com/leaddev/leadharvester/internal/sources"
)

func main() {
	// Setup logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	// Redis backs the rolling quota window
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// Proxy pool: restore from the database, merge the static list,
	// start polling-API refresh timers.
	pool := proxy.NewPool(proxy.PoolOptions{
		BlockThreshold:  cfg.Proxy.BlockThreshold,
		SelectionPolicy: proxy.SelectionPolicy(cfg.Proxy.SelectionPolicy),
		HealthBatchSize: cfg.Proxy.HealthBatchSize,
		HealthTargetURL: cfg.Proxy.HealthTargetURL,
		HealthTimeout:   cfg.Proxy.HealthTimeout,
	}, database.NewProxyRepo(db), logger)

	if err := pool.Load(ctx); err != nil {
		logger.Error("failed to load proxy pool", "error", err)
		os.Exit(1)
	}
	pool.Add(proxy.ParseStaticList(cfg.Proxy.StaticList)...)

	if cfg.Proxy.APIEndpoint != "" {
		src := proxy.NewAPISource(models.ProxySource{
			ID:           "provider_api",
			Kind:         models.SourcePollingAPI,
			Endpoint:     cfg.Proxy.APIEndpoint,
			APIKey:       cfg.Proxy.APIKey,
			RefreshEvery: cfg.Proxy.RefreshInterval,
			Status:       models.ProxySourceActive,
		}, cfg.Proxy.HealthTimeout)
		pool.RefreshLoop(ctx, []*proxy.APISource{src})
	}

	// Browser session factory
	sessionFactory := browser.NewManager(&browser.Options{
		Headless:       cfg.Browser.Headless,
		NavTimeout:     cfg.Browser.NavTimeout,
		SelectorWait:   cfg.Browser.SelectorWait,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
		UserAgents:     cfg.Scraper.UserAgents,
	}, logger)

	// Shared scraping plumbing
	fetcher := sources.NewFetcher(pool, cfg.Scraper.UserAgents, cfg.Scraper.RequestTimeout, logger)
	limiter := ratelimit.NewAdaptiveLimiter(cfg.Scraper.MinDelay, cfg.Scraper.MaxDelay)
	enricher := sources.NewEnricher(fetcher, cfg.Scraper.MaxContactPages, cfg.Scraper.SyntheticContacts, logger)

	quotaGuard := quota.NewGuard(redisClient, cfg.Places.DailyLimit, logger)

	// Adapter chain in priority order; the orchestrator gates the
	// industry directory and the places API guards its own quota.
	adapters := []sources.Adapter{
		sources.NewIndustryAdapter(fetcher, sessionFactory, pool, limiter, enricher, logger),
		sources.NewMapsAdapter(fetcher, sessionFactory, pool, limiter, enricher, logger),
		sources.NewReviewAdapter(fetcher, sessionFactory, pool, limiter, enricher, logger),
		sources.NewPlacesAdapter(cfg.Places.APIKey, cfg.Places.BaseURL, quotaGuard, cfg.Scraper.RequestTimeout, logger),
	}

	businessRepo := database.NewBusinessRepo(db)
	historyRepo := database.NewHistoryRepo(db, businessRepo)

	orc := orchestrator.New(adapters, historyRepo, orchestrator.Options{
		MaxAttempts: cfg.Scraper.MaxRetries,
	}, logger)

	selfTest := selftest.NewRunner(orc, selftest.DefaultCases(), cfg.SelfTest.RetryOnFail, logger)
	if cfg.SelfTest.Interval > 0 {
		go selfTest.RunLoop(ctx, cfg.SelfTest.Interval)
	}

	handlers := api.NewHandlers(orc, pool, selfTest, historyRepo, logger)

	// Setup Chi router
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.WriteTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		stats := pool.Stats(false)
		fmt.Fprintf(w, `{"status":"ok","proxies_active":%d,"proxies_blocked":%d}`, stats.Active, stats.Blocked)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", handlers.Search)
		r.Get("/search/history", handlers.ListHistory)
		r.Get("/search/history/{executionID}", handlers.GetExecutionLog)

		r.Route("/proxies", func(r chi.Router) {
			r.Get("/stats", handlers.GetProxyStats)
			r.Post("/health-check", handlers.CheckProxyHealth)
			r.Post("/reset", handlers.ResetBlockedProxies)
		})

		r.Post("/selftest", handlers.RunSelfTest)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		persistCtx, persistCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer persistCancel()
		if err := pool.Persist(persistCtx); err != nil {
			logger.Error("failed to persist proxy pool", "error", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
