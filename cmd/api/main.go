package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shopsy-inventory-api/internal/cache"
	"shopsy-inventory-api/internal/config"
	"shopsy-inventory-api/internal/feed"
	"shopsy-inventory-api/internal/handler"
	"shopsy-inventory-api/internal/logger"
	"shopsy-inventory-api/internal/metrics"
	"shopsy-inventory-api/internal/middleware"
	"shopsy-inventory-api/internal/notify"
	"shopsy-inventory-api/internal/repository"
	"shopsy-inventory-api/internal/router"
	"shopsy-inventory-api/internal/service"
)

func main() {
	cfg := config.MustLoad()

	log, err := logger.New(&cfg.App, &cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("starting",
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stock database
	store, err := repository.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open %s database: %w", cfg.Database.Type, err)
	}
	defer store.Close()
	log.Info("stock database ready", zap.String("dialect", store.Dialect()))

	// Redis (only when the cache or the notifier asks for it)
	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("redis unavailable, falling back to in-process cache and notifier",
				zap.String("addr", cfg.Cache.RedisAddress()), zap.Error(err))
			redisClient.Close()
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.Info("redis client initialized", zap.String("addr", cfg.Cache.RedisAddress()))
		}
	}

	// Snapshot cache
	var byteCache cache.Cache
	cacheType := "memory"
	if cfg.Cache.Type == "redis" && redisClient != nil {
		byteCache = cache.NewRedisCache(redisClient)
		cacheType = "redis"
	} else {
		byteCache = cache.NewMemoryCache(time.Minute)
	}
	defer byteCache.Close()
	stockCache := cache.NewStockCache(byteCache, cfg.Cache.RedisKeyPrefix, cfg.Cache.TTL)

	// Feed notifier
	var notifier notify.Notifier
	notifierType := "local"
	if cfg.Feed.Notifier == "redis" && redisClient != nil {
		rn, err := notify.NewRedisNotifier(ctx, redisClient, cfg.Cache.RedisKeyPrefix, log)
		if err != nil {
			log.Warn("redis notifier unavailable, using local notifier", zap.Error(err))
			notifier = notify.NewLocalNotifier()
		} else {
			notifier = rn
			notifierType = "redis"
		}
	} else {
		notifier = notify.NewLocalNotifier()
	}
	defer notifier.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNewMetrics(registry)

	// Services
	stockService := service.NewStockService(store, store, service.Options{
		Cache:    stockCache,
		Notifier: notifier,
		Metrics:  m,
		Logger:   log,
	})
	changeFeed := feed.New(store, store, notifier, m, feed.Config{
		PollInterval:      cfg.Feed.PollInterval,
		HeartbeatInterval: cfg.Feed.HeartbeatInterval,
		BatchSize:         cfg.Feed.BatchSize,
		RecentPerProduct:  cfg.Feed.RecentPerProduct,
		RecentGlobal:      cfg.Feed.RecentGlobal,
		PollWindow:        cfg.Feed.PollWindow,
		CommitGrace:       cfg.Feed.CommitGrace,
	}, log)
	sweeper := service.NewSubscriptionSweeper(store, service.SweeperConfig{
		StaleAfter: cfg.Subscriptions.StaleAfter,
		Interval:   cfg.Subscriptions.SweepInterval,
	}, log)

	// Handlers
	checks := []handler.ReadinessCheck{{Name: "database", Check: store.Ping}}
	if redisClient != nil {
		checks = append(checks, handler.ReadinessCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	if len(cfg.Auth.APIKeys) == 0 {
		log.Warn("API_KEYS is empty; administrative endpoints will reject every request")
	}

	r := router.New(router.Config{
		Handler:          handler.New(cfg.App.Name, cfg.App.Version, checks...),
		InventoryHandler: handler.NewInventoryHandler(stockService, log),
		FeedHandler:      handler.NewFeedHandler(changeFeed, log),
		AdminHandler:     handler.NewAdminHandler(store, cacheType, notifierType),
		MetricsHandler:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AuthMiddleware:   middleware.NewAuthMiddleware(middleware.AuthConfig{APIKeys: cfg.Auth.APIKeys, Logger: log}),
		Logger:           log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	sweeper.Start()
	defer sweeper.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		// Push streams derive from ctx and end as soon as it is cancelled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
