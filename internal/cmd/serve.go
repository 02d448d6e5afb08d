package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/threatwatch/gateway/internal/admission"
	"github.com/threatwatch/gateway/internal/auth"
	"github.com/threatwatch/gateway/internal/cache"
	"github.com/threatwatch/gateway/internal/config"
	"github.com/threatwatch/gateway/internal/observability"
	"github.com/threatwatch/gateway/internal/proxy"
	"github.com/threatwatch/gateway/internal/registry"
	"github.com/threatwatch/gateway/internal/server"
	"github.com/threatwatch/gateway/internal/server/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway HTTP server",
	Long: `Start the gateway HTTP server with graceful shutdown support.

SIGINT and SIGTERM drain in-flight requests before the process exits. The
health sweeper and rate limiter janitor run for the lifetime of the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}

		logLevel := cfg.Logging.Level
		if verbose {
			logLevel = "debug"
		}
		logger, err := observability.NewServerLogger(logLevel)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		var metrics *observability.Metrics
		if cfg.Metrics.Enabled {
			metrics = observability.NewMetrics()
		}

		logger.Info("initializing gateway",
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("services", len(cfg.Services)))

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reg := registry.New(cfg.Services,
			registry.WithProbeTimeout(cfg.Health.ProbeTimeout),
			registry.WithInterval(cfg.Health.Interval),
			registry.WithGrace(cfg.Health.Grace),
			registry.WithHealthPath(cfg.Health.Path),
			registry.WithLogger(logger),
			registry.WithMetrics(metrics),
		)
		go reg.Run(ctx)

		policies := make(map[auth.Tier]admission.TierPolicy, len(cfg.RateLimit.Tiers))
		for name, limit := range cfg.RateLimit.Tiers {
			policies[auth.Tier(name)] = admission.TierPolicy{
				Limit:  limit.Limit,
				Window: limit.Window,
			}
		}
		limiter := admission.NewLimiter(policies,
			admission.WithLogger(logger),
			admission.WithIdleTTL(cfg.RateLimit.IdleTTL),
		)
		limiter.StartJanitor(ctx, 5*time.Minute)

		stats, err := buildStatsStore(ctx, cfg, logger)
		if err != nil {
			return err
		}

		respCache, err := cache.New(cfg.Cache.TTLs, cfg.Cache.MaxEntries)
		if err != nil {
			return err
		}

		resolver := auth.NewResolver(cfg.Auth.Secret, logger)

		engine := proxy.NewEngine(reg, respCache,
			proxy.WithDefaultTimeout(cfg.Proxy.Timeout),
			proxy.WithLogger(logger),
			proxy.WithMetrics(metrics),
		)

		gw := server.NewGateway(resolver, limiter, stats, engine, logger, metrics)

		srv := server.New(cfg.Server, server.Deps{
			Gateway:  gw,
			Registry: reg,
			Limiter:  limiter,
			Stats:    stats,
			Cache:    respCache,
			Metrics:  metrics,
			Logger:   logger,
			Version: handlers.VersionInfo{
				Version:   versionInfo.Version,
				Commit:    versionInfo.Commit,
				BuildDate: versionInfo.BuildDate,
			},
		})

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		select {
		case err := <-errChan:
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
		}

		logger.Info("shutdown signal received")

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}

		logger.Info("gateway stopped")
		return nil
	},
}

// buildStatsStore picks the admission statistics backend. Redis failures at
// startup are fatal; a half-connected stats backend would silently drop
// counters otherwise.
func buildStatsStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (admission.StatsStore, error) {
	if cfg.Stats.Backend != "redis" {
		return admission.NewMemoryStatsStore(), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Stats.Redis.Addr,
		Password: cfg.Stats.Redis.Password,
		DB:       cfg.Stats.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Stats.Redis.Addr, err)
	}

	logger.Info("using redis admission stats backend",
		zap.String("addr", cfg.Stats.Redis.Addr))

	opts := []admission.RedisStatsOption{}
	if cfg.Stats.Redis.Prefix != "" {
		opts = append(opts, admission.WithStatsPrefix(cfg.Stats.Redis.Prefix))
	}
	if cfg.Stats.Redis.TTL > 0 {
		opts = append(opts, admission.WithStatsTTL(cfg.Stats.Redis.TTL))
	}
	return admission.NewRedisStatsStore(rdb, opts...), nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "server host (overrides config)")
	serveCmd.Flags().IntP("port", "p", 0, "server port (overrides config)")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
