package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/care-scheduling/internal/appointment"
	"github.com/hackgods/care-scheduling/internal/config"
	"github.com/hackgods/care-scheduling/internal/db"
	"github.com/hackgods/care-scheduling/internal/events"
	"github.com/hackgods/care-scheduling/internal/logging"
	redisclient "github.com/hackgods/care-scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", "dev")
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "noshow-worker").Logger()
	logger.Info().
		Dur("interval", cfg.WorkerInterval).
		Dur("grace", cfg.NoShowGrace).
		Msg("noshow-worker starting up")

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

	publisher := events.NewAsyncPublisher(redisclient.NewStreamSink(rdb, cfg.EventStream, 100_000), cfg.EventBuffer, logger)
	publisher.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := publisher.Close(ctx); err != nil {
			logger.Warn().Err(err).Msg("event queue not fully drained")
		}
	}()

	svc := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		redisclient.NewProviderDayLocker(rdb, cfg.LockTTL, cfg.LockWait),
		redisclient.NewNumberSequence(rdb),
		publisher,
		logger,
	).WithLocation(cfg.ClinicLocation)

	// Run once at startup
	runOnce(rootCtx, svc, cfg.NoShowGrace, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping noshow worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.NoShowGrace, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, grace time.Duration, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	marked, err := svc.SweepNoShows(runCtx, grace)
	if err != nil {
		logger.Error().Err(err).Msg("no-show sweep error")
		return
	}
	logger.Info().Int("marked", marked).Dur("took", time.Since(start)).Msg("no-show sweep complete")
}
