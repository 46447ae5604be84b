package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cliniqly/clinic-scheduling/internal/api"
	"github.com/cliniqly/clinic-scheduling/internal/booking"
	"github.com/cliniqly/clinic-scheduling/internal/config"
	"github.com/cliniqly/clinic-scheduling/internal/db"
	"github.com/cliniqly/clinic-scheduling/internal/directory"
	"github.com/cliniqly/clinic-scheduling/internal/logging"
	redisclient "github.com/cliniqly/clinic-scheduling/internal/redis"
	"github.com/cliniqly/clinic-scheduling/internal/schedule"
)

const version = "1.2.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PGMaxConns)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisPoolSize)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	scheduleRepo := schedule.NewPgRepository(pgPool)
	scheduleSvc := schedule.NewService(scheduleRepo, logger)

	dir := directory.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)

	bookingRepo := booking.NewPgRepository(pgPool)
	bookingSvc := booking.NewService(bookingRepo, scheduleRepo, dir, locker, logger)

	router := api.NewRouter(api.RouterConfig{
		Schedule:    scheduleSvc,
		Booking:     bookingSvc,
		Directory:   dir,
		PgPool:      pgPool,
		Redis:       rdb,
		Logger:      logger,
		JWTSecret:   cfg.JWTSecret,
		Env:         cfg.Env,
		Version:     version,
		BookingRPM:  cfg.BookingRPM,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}

	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
