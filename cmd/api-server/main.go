package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hackgods/care-scheduling/internal/api"
	"github.com/hackgods/care-scheduling/internal/appointment"
	"github.com/hackgods/care-scheduling/internal/config"
	"github.com/hackgods/care-scheduling/internal/db"
	"github.com/hackgods/care-scheduling/internal/events"
	"github.com/hackgods/care-scheduling/internal/logging"
	"github.com/hackgods/care-scheduling/internal/metrics"
	redisclient "github.com/hackgods/care-scheduling/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", "dev")
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "api-server").Logger()
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("clinic_tz", cfg.ClinicLocation.String()).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConn)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.ClientOptions{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: cfg.RedisPoolSize,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewSchedulingMetrics(reg)

	publisher := events.NewAsyncPublisher(
		redisclient.NewStreamSink(rdb, cfg.EventStream, 100_000),
		cfg.EventBuffer,
		logger,
	).WithMetrics(m)
	publisher.Start()

	repo := appointment.NewPgRepository(pgPool)
	svc := appointment.NewService(
		repo,
		redisclient.NewProviderDayLocker(rdb, cfg.LockTTL, cfg.LockWait),
		redisclient.NewNumberSequence(rdb),
		publisher,
		logger,
	).
		WithLookups(repo, repo).
		WithMetrics(m).
		WithLocation(cfg.ClinicLocation)

	router := api.NewRouter(api.RouterConfig{
		Service:  svc,
		Logger:   logger,
		Postgres: pgPool,
		Redis: api.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}),
		Metrics:     reg,
		Env:         cfg.Env,
		Version:     version,
		UpcomingMax: cfg.UpcomingMax,
	})

	srv := newHTTPServer(cfg.HTTPPort, router)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	if err := publisher.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("event queue not fully drained")
	}

	logger.Info().Msg("api-server stopped")
}

func newHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
