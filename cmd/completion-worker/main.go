package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hackgods/appointment-pipeline/internal/appointment"
	"github.com/hackgods/appointment-pipeline/internal/config"
	"github.com/hackgods/appointment-pipeline/internal/logging"
	"github.com/hackgods/appointment-pipeline/internal/pipeline"
	"github.com/hackgods/appointment-pipeline/internal/rabbitmq"
	redisclient "github.com/hackgods/appointment-pipeline/internal/redis"
)

// completion-worker consumes broadcast events and marks the appointments
// COMPLETED in the primary store.
func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("dev", "completion-worker", "")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, "completion-worker", cfg.Version)
	logger.Info().Str("env", cfg.Env).Msg("completion-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisOptions())
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()

	mq, err := rabbitmq.Dial(cfg.RabbitMQ.URL, cfg.Topology(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("rabbitmq connection error")
	}
	defer mq.Close()
	if err := mq.DeclareTopology(appointment.Countries); err != nil {
		logger.Fatal().Err(err).Msg("rabbitmq topology error")
	}
	if err := mq.SetPrefetch(cfg.RabbitMQ.Prefetch); err != nil {
		logger.Fatal().Err(err).Msg("rabbitmq prefetch error")
	}

	store := redisclient.NewRepository(rdb, cfg.Redis.Prefix, logger)
	stage := pipeline.NewCompleteStage(store, logger)

	consumer := rabbitmq.NewConsumer(mq.Channel(), consumerOptions(cfg), logger)

	if err := consumer.Run(rootCtx, stage.HandleBatch); err != nil {
		logger.Error().Err(err).Msg("consumer stopped")
		return
	}
	logger.Info().Msg("shutdown signal received, stopping completion-worker")
}

func consumerOptions(cfg config.Config) rabbitmq.ConsumerOptions {
	return rabbitmq.ConsumerOptions{
		Queue:         cfg.RabbitMQ.CompletionQueue,
		Name:          "completion-worker",
		BatchSize:     cfg.RabbitMQ.BatchSize,
		BatchWait:     cfg.RabbitMQ.BatchWait,
		MaxDeliveries: cfg.RabbitMQ.DeliveryLimit,
	}
}
