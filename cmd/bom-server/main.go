// Command bom-server hosts a BOM enrichment session over HTTP and proxies part
// lookups to the JLCPCB component search API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Sternrassler/bom-enricher/internal/api"
	"github.com/Sternrassler/bom-enricher/internal/config"
	"github.com/Sternrassler/bom-enricher/pkg/cache"
	"github.com/Sternrassler/bom-enricher/pkg/catalog"
	"github.com/Sternrassler/bom-enricher/pkg/client"
	"github.com/Sternrassler/bom-enricher/pkg/fetch"
	"github.com/Sternrassler/bom-enricher/pkg/logging"
	"github.com/Sternrassler/bom-enricher/pkg/ratelimit"
	"github.com/Sternrassler/bom-enricher/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (default: $BOM_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		var err error
		rdb, err = newRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to Redis: %w", err)
		}
		logger.Info().Str("redis", rdb.Options().Addr).Msg("Connected to Redis")
	} else {
		logger.Info().Msg("Redis not configured, part cache disabled")
	}

	srv, orch, err := buildServer(ctx, cfg, logger, rdb)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", httpSrv.Addr).
			Str("user_agent", cfg.Catalog.UserAgent).
			Msg("Starting BOM server")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	orch.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	orch.Wait()
	return nil
}

// newRedisClient accepts either host:port or a redis:// URL.
func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if strings.Contains(cfg.URL, "://") {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse Redis URL: %w", err)
		}
		if cfg.Password != "" {
			opts.Password = cfg.Password
		}
		return redis.NewClient(opts), nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
	}), nil
}

// buildServer wires the session. rdb may be nil to run without a cache.
func buildServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger, rdb *redis.Client) (*api.Server, *fetch.Orchestrator, error) {
	upstream := catalog.NewJLCPCB(cfg.JLCPCB(), logging.NewLogger("catalog"))

	// Only /api/lcsc is served from the cache.
	var proxy catalog.Source = upstream
	var cachePinger api.Pinger
	if rdb != nil {
		mgr := cache.NewManager(rdb, cfg.Redis.CacheTTL)
		proxy = cache.NewSource(upstream, mgr, "jlcpcb", logging.NewLogger("cache"))
		cachePinger = mgr
	}

	// The session either looks parts up in-process or through another
	// deployment's proxy endpoint.
	var lookups catalog.Source = upstream
	if cfg.Catalog.RemoteURL != "" {
		lookups = catalog.NewRemote(cfg.Catalog.RemoteURL, cfg.Catalog.Timeout)
		logger.Info().Str("remote", cfg.Catalog.RemoteURL).Msg("Using remote catalog proxy")
	}

	limiter := ratelimit.New(cfg.RateLimit(), logging.NewLogger("ratelimit"))

	partClient, err := client.New(lookups, limiter, logger)
	if err != nil {
		return nil, nil, err
	}

	rows := store.New(logger)

	orch, err := fetch.New(fetch.Config{
		Rows:    rows,
		Fetcher: partClient,
		Queue:   limiter,
		Logger:  logger,
		OnProgress: func(p fetch.Progress) {
			logger.Debug().
				Int("current", p.Current).
				Int("total", p.Total).
				Str("part_number", p.PartNumber).
				Msg("Fetch progress")
		},
	})
	if err != nil {
		return nil, nil, err
	}

	srv, err := api.NewServer(api.Deps{
		Config:       cfg,
		Logger:       logger,
		Store:        rows,
		Orchestrator: orch,
		Proxy:        proxy,
		Cache:        cachePinger,
		RunContext:   ctx,
	})
	if err != nil {
		return nil, nil, err
	}
	return srv, orch, nil
}
