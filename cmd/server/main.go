package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldops/livetrack/internal/api"
	"github.com/fieldops/livetrack/internal/core/service"
	mongodb "github.com/fieldops/livetrack/internal/infrastructure/db/mongo"
	redisdb "github.com/fieldops/livetrack/internal/infrastructure/db/redis"
	"github.com/fieldops/livetrack/internal/pkg/config"
	"github.com/fieldops/livetrack/internal/realtime/bus"
	"github.com/fieldops/livetrack/internal/realtime/stream"
	"github.com/fieldops/livetrack/pkg/logger"
)

func main() {
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connection failed")
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer func() {
		_ = rdb.Close()
	}()

	locationRepo := mongodb.NewLocationRepository(db)
	bookingRepo := mongodb.NewBookingRepository(client, db)
	if err := locationRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("index creation failed")
	}
	if err := bookingRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("index creation failed")
	}

	registry := bus.Default(log)
	locationSvc := service.NewLocationService(locationRepo, redisdb.NewFixDedup(rdb), log)
	statusSvc := service.NewStatusService(bookingRepo, registry, log)
	streamSrv := stream.NewServer(locationSvc, registry, cfg.Stream.Interval, cfg.Stream.Limit, log)

	e := api.NewRouter(api.Deps{
		Mongo:     db,
		Redis:     rdb,
		Locations: locationSvc,
		Statuses:  statusSvc,
		Stream:    streamSrv,
		JWTSecret: cfg.JWTSecret,
		Logger:    log,
	})

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	streamSrv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
