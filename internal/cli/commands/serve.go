package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pagecraft/pagecraft/internal/cli/config"
	"github.com/pagecraft/pagecraft/internal/runtime/render"
	"github.com/pagecraft/pagecraft/internal/web/api"
	"github.com/pagecraft/pagecraft/internal/web/auth"
	"github.com/pagecraft/pagecraft/internal/web/cache"
	"github.com/pagecraft/pagecraft/internal/web/live"
	"github.com/pagecraft/pagecraft/internal/web/ratelimit"
	"github.com/pagecraft/pagecraft/internal/web/server"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	var (
		port      int
		bootstrap bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the editor, runtime and API server",
		Long: `Start the HTTP server: the REST API under /api, runtime pages under /p and
the live editor and runtime sessions under /ws.

SIGINT or SIGTERM drains in-flight requests before the cache and database
connections are closed.`,
		Example: `  # Serve with pagecraft.yaml from the working directory
  pagecraft serve

  # Create the metadata tables first and listen on another port
  pagecraft serve --bootstrap --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = env.logger.Sync() }()
			if cmd.Flags().Changed("port") {
				env.cfg.Server.Port = port
				if err := env.cfg.Validate(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, env, bootstrap)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 3000, "Port to listen on (overrides server.port)")
	cmd.Flags().BoolVar(&bootstrap, "bootstrap", false, "Create the metadata and migration tables before serving")
	return cmd
}

func serve(ctx context.Context, env *environment, bootstrap bool) error {
	cfg := env.cfg
	logger := env.logger

	s, err := openStores(ctx, env)
	if err != nil {
		return err
	}
	if bootstrap {
		if err := s.initialize(ctx); err != nil {
			s.Close()
			return err
		}
	}

	rowCache, err := cache.New(cache.Options{
		Backend: cfg.Cache.Backend,
		Config:  cache.Config{DefaultTTL: cfg.Cache.TTL, Prefix: cfg.Cache.Prefix},
		Redis: cache.RedisOptions{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		},
	})
	if err != nil {
		s.Close()
		return err
	}
	rows := cache.NewCachedSource(s.relational, rowCache, cfg.Cache.TTL, logger.Named("cache"))

	limiter, closeLimiter, err := publishLimiter(cfg)
	if err != nil {
		rowCache.Close()
		s.Close()
		return err
	}

	var provider *auth.Provider
	if cfg.Auth.JWTSecret != "" {
		provider = auth.NewProvider(cfg.Auth.JWTSecret)
	} else {
		logger.Warn("auth.jwt_secret is not set; editor and API routes will reject every request")
	}

	handler := api.NewRouter(api.Deps{
		Pages:          s.pages,
		Models:         s.models,
		Publisher:      s.publisher,
		Data:           s.relational,
		Rows:           rows,
		Auth:           provider,
		Live:           live.NewUpgrader(ctx, live.DefaultConfig(), logger.Named("live")),
		LoginURL:       cfg.Auth.LoginURL,
		Mode:           render.Mode(cfg.Runtime.Mode),
		PublishLimiter: limiter,
		Profiling:      cfg.Server.PProf,
		Logger:         logger,
	})

	srvConfig := server.DefaultConfig(handler)
	srvConfig.Address = cfg.Server.Address()
	srv, err := server.New(srvConfig)
	if err != nil {
		closeLimiter()
		rowCache.Close()
		s.Close()
		return err
	}

	gs := server.NewGracefulShutdown(srv, cfg.Server.ShutdownTimeout, logger)
	gs.RegisterHook(func(context.Context) error {
		closeLimiter()
		if err := rowCache.Close(); err != nil {
			return fmt.Errorf("failed to close cache: %w", err)
		}
		return nil
	})
	gs.RegisterHook(func(context.Context) error {
		if err := s.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
		return nil
	})

	logger.Info("server starting",
		zap.String("address", srvConfig.Address),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("mode", cfg.Runtime.Mode),
		zap.String("metadata_driver", cfg.Metadata.Driver),
	)
	env.printer.Success("Listening on http://%s", srvConfig.Address)

	return gs.Run(ctx)
}

// publishLimiter builds the per-user publish limiter: redis backed when the
// cache is, so every server process shares the counters
func publishLimiter(cfg *config.Config) (ratelimit.Limiter, func(), error) {
	perMinute := cfg.RateLimit.PublishPerMinute
	if perMinute == 0 {
		return nil, func() {}, nil
	}
	if cfg.Cache.Backend == cache.BackendRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		l, err := ratelimit.NewRedisLimiter(client, ratelimit.RedisConfig{
			Limit:  perMinute,
			Window: time.Minute,
			Prefix: cfg.Cache.Prefix + "ratelimit:",
		})
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return l, func() { _ = client.Close() }, nil
	}
	tb := ratelimit.NewTokenBucket(ratelimit.BucketConfig{
		Capacity:        perMinute,
		Period:          time.Minute,
		CleanupInterval: 5 * time.Minute,
	})
	return tb, func() { _ = tb.Close() }, nil
}
