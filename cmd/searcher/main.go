package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/holder"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"index_source", cfg.Index.Source,
		"project", cfg.Index.Project,
	)
	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}
	checker := health.NewChecker()

	var store indexstore.Store
	switch cfg.Index.Source {
	case config.SourcePostgres:
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pg.Close()
		checker.Register("postgres", health.PingCheck(pg, true))
		store = indexstore.NewPostgresStore(pg, cfg.Index.Project, 0)
	default:
		store = indexstore.NewFileStore(cfg.Index.Path, cfg.Index.Project)
	}

	h := holder.New()
	reloader := holder.NewReloader(indexstore.NewLoader(store, cfg.Index.ExpectedEnvVersion), h)
	checker.Register("index", func(context.Context) health.ComponentHealth {
		snap := h.Current()
		if snap.Index() == nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no index loaded"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, fingerprint %s", snap.Index().Len(), snap.Fingerprint()),
		}
	})

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			checker.Register("redis", health.PingCheck(redisClient, false))
			breaker := resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     10 * time.Second,
				IsFailure:        func(err error) bool { return !pkgredis.IsMiss(err) },
				OnStateChange: func(name string, _, to resilience.State) {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				},
			})
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, cache.WithBreaker(breaker), cache.WithMetrics(m))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	aggregator := analytics.NewAggregator()
	reloader.OnSwap(func(ctx context.Context, snap *holder.Snapshot) {
		stats := snap.Index().Stats()
		m.SetIndexSize(stats.Documents, stats.Terms, stats.TitleTerms, stats.Objects)
		aggregator.RecordReload(snap.Fingerprint())
		if queryCache != nil {
			if _, err := queryCache.Invalidate(ctx); err != nil {
				slog.Warn("failed to invalidate cache after reload", "error", err)
			}
		}
	})

	if _, _, err := reloader.Reload(ctx); err != nil {
		m.IndexReloadsTotal.WithLabelValues("startup", "error").Inc()
		return fmt.Errorf("loading search index from %s: %w", store, err)
	}
	m.IndexReloadsTotal.WithLabelValues("startup", "ok").Inc()

	opts := []handler.Option{
		handler.WithReloader(reloader),
		handler.WithMetrics(m),
		handler.WithTracing(cfg.Tracing.Enabled),
	}
	if queryCache != nil {
		opts = append(opts, handler.WithCache(queryCache))
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		collector := analytics.NewCollector(producer, 10000,
			analytics.WithDropHook(m.AnalyticsDropped.Inc))
		collector.Start(ctx)
		defer func() {
			collector.Close()
			producer.Close()
		}()
		opts = append(opts, handler.WithAnalytics(aggregator, collector))
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

		// Every instance must see every announcement, so each one joins its
		// own consumer group.
		groupID := cfg.Kafka.ConsumerGroup + "-" + uuid.NewString()
		reload := &triggeredReloader{reloader: reloader, trigger: "kafka", metrics: m}
		kc := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexBuilt, groupID,
			consumer.HandleIndexBuilt(cfg.Index.Project, h, reload))
		defer kc.Close()
		indexConsumer := consumer.New(kc)
		go func() {
			if err := indexConsumer.Start(ctx); err != nil {
				slog.Error("index consumer stopped", "error", err)
			}
		}()
	} else {
		opts = append(opts, handler.WithAnalytics(aggregator, nil))
	}

	searchHandler := handler.New(h, executor.New(), cfg.Search, opts...)

	mux := http.NewServeMux()
	searchHandler.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	if len(cfg.Server.AdminTokens) == 0 {
		slog.Warn("no admin tokens configured, reload and cache invalidation are open")
	}
	limiter := middleware.NewRateLimiter(cfg.Search.RateLimit, cfg.Search.RateBurst)
	go sweep(ctx, limiter)

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.RequestID,
			middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowOrigins)),
			middleware.Metrics(m),
			middleware.RateLimit(limiter),
			middleware.Admin(cfg.Server.AdminTokens),
			middleware.Timeout(cfg.Server.WriteTimeout),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr, "fingerprint", h.Current().Fingerprint())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	// In-flight requests may still track events until Shutdown returns.
	<-drained
	return nil
}

// triggeredReloader counts reloads by what caused them.
type triggeredReloader struct {
	reloader *holder.Reloader
	trigger  string
	metrics  *metrics.Metrics
}

func (t *triggeredReloader) Reload(ctx context.Context) (*holder.Snapshot, bool, error) {
	snap, changed, err := t.reloader.Reload(ctx)
	status := "ok"
	if err != nil {
		status = "error"
	}
	t.metrics.IndexReloadsTotal.WithLabelValues(t.trigger, status).Inc()
	return snap, changed, err
}

func sweep(ctx context.Context, l *middleware.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				slog.Debug("rate limiter swept idle clients", "removed", n)
			}
		}
	}
}
