package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/appointment-pipeline/internal/api"
	"github.com/hackgods/appointment-pipeline/internal/appointment"
	"github.com/hackgods/appointment-pipeline/internal/config"
	"github.com/hackgods/appointment-pipeline/internal/db"
	"github.com/hackgods/appointment-pipeline/internal/logging"
	"github.com/hackgods/appointment-pipeline/internal/pipeline"
	"github.com/hackgods/appointment-pipeline/internal/rabbitmq"
	redisclient "github.com/hackgods/appointment-pipeline/internal/redis"
	"github.com/hackgods/appointment-pipeline/internal/regional"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("dev", "api-server", "")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, "api-server", cfg.Version)
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisOptions())
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")

	// Connect RabbitMQ
	mq, err := rabbitmq.Dial(cfg.RabbitMQ.URL, cfg.Topology(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("rabbitmq connection error")
	}
	defer mq.Close()
	if err := mq.DeclareTopology(appointment.Countries); err != nil {
		logger.Fatal().Err(err).Msg("rabbitmq topology error")
	}
	logger.Info().Msg("connected to RabbitMQ")

	// Regional pools are only pinged by the readiness check. A region that
	// fails to open leaves the API up and shows as not_opened there.
	regions, err := regional.NewRouter(db.Default(db.WithLogger(logger)), cfg.RegionalConfigs(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("regional config error")
	}
	defer regions.Close()
	for country, err := range regions.Open(rootCtx) {
		logger.Warn().Err(err).Str("country", country).Msg("regional pool unavailable")
	}

	store := redisclient.NewRepository(rdb, cfg.Redis.Prefix, logger)
	fanout := rabbitmq.NewFanoutPublisher(mq.Channel(), cfg.RabbitMQ.FanoutExchange, logger)

	handler := api.NewRouter(api.RouterConfig{
		Creator: pipeline.NewCreateStage(store, fanout, logger),
		Querier: pipeline.NewQueryStage(store),
		Store:   store,
		Regions: regions,
		Logger:  logger,
		Env:     cfg.Env,
		Version: cfg.Version,
	})

	srv := newServer(cfg, handler)

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
}

func newServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
