package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/concierge/internal/cache"
	"github.com/MrSnakeDoc/concierge/internal/config"
	"github.com/MrSnakeDoc/concierge/internal/dashboard"
	"github.com/MrSnakeDoc/concierge/internal/downstream"
	"github.com/MrSnakeDoc/concierge/internal/httpserver"
	"github.com/MrSnakeDoc/concierge/internal/httpserver/deps"
	"github.com/MrSnakeDoc/concierge/internal/logger"
	"github.com/MrSnakeDoc/concierge/internal/redis"
	"github.com/MrSnakeDoc/concierge/internal/scheduler"
	"github.com/MrSnakeDoc/concierge/internal/sources/registry"
	redisstore "github.com/MrSnakeDoc/concierge/internal/store/redis"
	"github.com/MrSnakeDoc/concierge/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	sweeper     *scheduler.CacheSweeper
	prober      *scheduler.HealthProber
}

// New wires configuration, cache backend, downstream client, aggregator and HTTP server.
func New() (*App, error) {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	services, err := registry.Resolve(
		registry.NewLoader(cfg.ServicesFile),
		cfg.ServiceURLOverrides,
		dashboard.RequiredServices(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve downstream services: %w", err)
	}
	loggerClient.Info("downstream services resolved",
		logger.Strings("services", services.Names()),
		logger.String("file", cfg.ServicesFile))

	a := &App{cfg: cfg, logger: loggerClient}

	var (
		dashCache cache.Cache
		pinger    deps.Pinger
	)
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		// Fail fast if Redis is unavailable
		loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		redisClient, err := redis.New(redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store := redisstore.NewStore(redisClient, cfg.RedisKeyPrefix)
		a.redisClient = redisClient
		dashCache = store
		pinger = store
		loggerClient.Info("dashboard cache backed by redis")
	default:
		mem := cache.NewMemory()
		a.sweeper = scheduler.NewCacheSweeper(mem, loggerClient, cfg.CacheSweepInterval)
		dashCache = mem
		loggerClient.Info("dashboard cache held in memory")
	}

	client := downstream.NewClient(services, downstream.Options{
		Timeout:   cfg.DownstreamTimeout,
		UserAgent: version.UserAgent(),
	})
	aggregator := dashboard.NewAggregator(dashCache, client, loggerClient)

	var (
		probes       deps.ProbeResults
		probeTrigger chan struct{}
	)
	if cfg.ProbeInterval > 0 {
		probeTrigger = make(chan struct{}, 1)
		a.prober = scheduler.NewHealthProber(
			client,
			services.Names(),
			loggerClient,
			cfg.ProbeInterval,
			cfg.ProbeTimeout,
			probeTrigger,
		)
		probes = a.prober
	}

	d := deps.Deps{
		Logger:       loggerClient,
		StartTime:    time.Now(),
		Version:      version.Version,
		Commit:       version.Commit,
		BuildDate:    version.BuildDate,
		GoVersion:    version.GoVersion,
		TimeNow:      time.Now,
		AllowedCIDRS: cfg.AllowedCIDRS,
		TrustProxy:   cfg.TrustProxy,
		RoutePrefix:  cfg.RoutePrefix,
		JWTSecret:    []byte(cfg.JWTSecret),
		CORSOrigins:  cfg.CORSOrigins,
		Dashboards:   aggregator,
		CacheBackend: cfg.CacheBackend,
		CachePinger:  pinger,
		Probes:       probes,
		ProbeTrigger: probeTrigger,
	}

	a.server = httpserver.New(cfg, loggerClient, d)
	return a, nil
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting Concierge v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("Concierge %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.sweeper != nil {
		if err := a.sweeper.Start(ctx); err != nil {
			return fmt.Errorf("failed to start cache sweeper: %w", err)
		}
		a.logger.Info("cache sweeper started",
			logger.Duration("interval", a.cfg.CacheSweepInterval))
	}

	if a.prober != nil {
		if err := a.prober.Start(ctx); err != nil {
			return fmt.Errorf("failed to start health prober: %w", err)
		}
		a.logger.Info("health prober started",
			logger.Duration("interval", a.cfg.ProbeInterval))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
		a.logger.Error("server stopped unexpectedly", logger.Error(runErr))
	}

	if a.prober != nil {
		a.prober.Stop()
	}
	if a.sweeper != nil {
		a.sweeper.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown failed", logger.Error(err))
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis client", logger.Error(err))
		}
	}

	a.logger.Info("✅ Shutdown complete")
	_ = a.logger.Sync()
	return runErr
}
