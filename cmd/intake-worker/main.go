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

// intake-worker books queued create requests the same way POST /appointments
// does: primary store first, then fan-out to the region.
func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("dev", "intake-worker", "")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, "intake-worker", cfg.Version)
	logger.Info().Str("env", cfg.Env).Msg("intake-worker starting up")

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

	stage := pipeline.NewCreateStage(
		redisclient.NewRepository(rdb, cfg.Redis.Prefix, logger),
		rabbitmq.NewFanoutPublisher(mq.Channel(), cfg.RabbitMQ.FanoutExchange, logger),
		logger,
	)

	consumer := rabbitmq.NewConsumer(mq.Channel(), consumerOptions(cfg), logger)

	if err := consumer.Run(rootCtx, stage.HandleBatch); err != nil {
		logger.Error().Err(err).Msg("consumer stopped")
		return
	}
	logger.Info().Msg("shutdown signal received, stopping intake-worker")
}

func consumerOptions(cfg config.Config) rabbitmq.ConsumerOptions {
	return rabbitmq.ConsumerOptions{
		Queue:         cfg.RabbitMQ.IntakeQueue,
		Name:          "intake-worker",
		BatchSize:     cfg.RabbitMQ.BatchSize,
		BatchWait:     cfg.RabbitMQ.BatchWait,
		MaxDeliveries: cfg.RabbitMQ.DeliveryLimit,
	}
}
