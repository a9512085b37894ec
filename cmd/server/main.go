package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"tokenticker/internal/config"
	"tokenticker/internal/database"
	"tokenticker/internal/feed"
	"tokenticker/internal/httpx"
	"tokenticker/internal/logging"
	"tokenticker/internal/market/cache"
	"tokenticker/internal/sources"
	redisstore "tokenticker/internal/store/redis"
	"tokenticker/internal/stream"
	"tokenticker/internal/version"
	"tokenticker/internal/waitlist"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; the environment may be set another way.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := logging.New(os.Stderr, cfg.Server.LogLevel)
	logger.Info("starting token ticker", "version", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	requestTimeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	hc := httpx.New(cfg.Token.FetchTimeout())

	var poller *feed.Poller
	hub := stream.NewHub(stream.Config{AllowedOrigins: cfg.Server.AllowedOrigins},
		func() feed.Snapshot { return poller.Snapshot() }, logger)

	opts := []feed.Option{feed.WithLogger(logger), feed.WithSink(hub)}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		mirror := redisstore.NewMirror(rdb, redisstore.Options{
			TokenAddress: cfg.Token.Address,
			KeyPrefix:    cfg.Redis.KeyPrefix,
			Channel:      cfg.Redis.Channel,
			TTL:          time.Duration(cfg.Redis.SnapshotTTLSec) * time.Second,
		}, logger)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		status := mirror.Ping(pingCtx)
		cancel()
		logger.Info("redis snapshot mirror enabled", "addr", cfg.Redis.Addr, "status", status)
		opts = append(opts, feed.WithSink(mirror))

		restoreCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if snap, ok := mirror.Restore(restoreCtx); ok {
			opts = append(opts, feed.WithInitial(snap))
		}
		cancel()
	}

	src := sources.Build(cfg.Token, hc)
	poller = feed.New(feed.Config{
		TokenAddress: cfg.Token.Address,
		Interval:     cfg.Token.PollInterval(),
		FetchTimeout: cfg.Token.FetchTimeout(),
	}, src, opts...)

	var joinSvc *waitlist.Service
	var pool *pgxpool.Pool
	if cfg.Waitlist.Enabled {
		joinSvc, pool, err = buildWaitlist(ctx, cfg, hc, logger)
		if err != nil {
			return err
		}
		if pool != nil {
			defer pool.Close()
		}
	}

	a := &api{
		feed:           poller,
		stream:         hub,
		status:         statusCounters{token: cfg.Token.Address, clients: hub},
		logger:         logger,
		defaultSource:  cfg.Waitlist.Source,
		refreshTimeout: requestTimeout,
	}
	if joinSvc != nil {
		a.waitlist = joinSvc
		a.status.signups = joinSvc
	}
	if c, ok := src.(*cache.Source); ok {
		a.status.cacheLen = c.Len
	}

	if err := poller.Start(ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           a.routes(cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      requestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	// graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	if err := poller.Stop(shutdownCtx); err != nil {
		logger.Warn("poller shutdown", "err", err)
	}
	return nil
}

// buildWaitlist picks the signup store and the upstream forwarder. Without a
// database, signups are deduplicated in memory only.
func buildWaitlist(ctx context.Context, cfg config.Config, hc *httpx.Client, logger *slog.Logger) (*waitlist.Service, *pgxpool.Pool, error) {
	var store waitlist.Store = waitlist.NewMemoryStore()
	var pool *pgxpool.Pool
	if cfg.Database.Enabled {
		var err error
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		pg := waitlist.NewPostgresStore(pool, logger)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		store = pg
	}

	var fwd waitlist.Forwarder
	if cfg.Waitlist.UpstreamURL != "" {
		client, err := waitlist.NewClient(cfg.Waitlist.UpstreamURL,
			waitlist.WithPaths(cfg.Waitlist.CSRFPath, cfg.Waitlist.SignupPath),
			waitlist.WithHTTPClient(hc.HTTP),
			waitlist.WithHeader("User-Agent", hc.UserAgent),
		)
		if err != nil {
			if pool != nil {
				pool.Close()
			}
			return nil, nil, fmt.Errorf("waitlist client: %w", err)
		}
		fwd = client
	} else {
		logger.Warn("waitlist.upstream_url not set; signups are stored locally only")
	}

	logger.Info("waitlist enabled", "database", cfg.Database.Enabled, "upstream", cfg.Waitlist.UpstreamURL != "")
	return waitlist.NewService(store, fwd, logger), pool, nil
}
