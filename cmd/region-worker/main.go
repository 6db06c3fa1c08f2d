package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hackgods/appointment-pipeline/internal/appointment"
	"github.com/hackgods/appointment-pipeline/internal/config"
	"github.com/hackgods/appointment-pipeline/internal/db"
	"github.com/hackgods/appointment-pipeline/internal/logging"
	"github.com/hackgods/appointment-pipeline/internal/pipeline"
	"github.com/hackgods/appointment-pipeline/internal/rabbitmq"
	"github.com/hackgods/appointment-pipeline/internal/regional"
)

// region-worker consumes the fan-out queue of one country, stores each
// appointment in that country's database and broadcasts it as processed.
func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("dev", "region-worker", "")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	country := appointment.Country(cfg.WorkerCountry)
	logger := logging.New(cfg.Env, "region-worker", cfg.Version).With().Str("country", string(country)).Logger()
	logger.Info().Str("env", cfg.Env).Msg("region-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	regions, err := regional.NewRouter(db.Default(db.WithLogger(logger)), cfg.RegionalConfigs(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("regional config error")
	}
	defer regions.Close()

	repo, err := regions.Repository(string(country))
	if err != nil {
		logger.Fatal().Err(err).Msg("no regional store for worker country")
	}

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

	bus := rabbitmq.NewEventBusPublisher(mq.Channel(), cfg.RabbitMQ.EventExchange, logger)
	stage := pipeline.NewProcessStage(country, repo, bus, logger)

	consumer := rabbitmq.NewConsumer(mq.Channel(), consumerOptions(cfg, country), logger)

	if err := consumer.Run(rootCtx, stage.HandleBatch); err != nil {
		logger.Error().Err(err).Msg("consumer stopped")
		return
	}
	logger.Info().Msg("shutdown signal received, stopping region-worker")
}

func consumerOptions(cfg config.Config, country appointment.Country) rabbitmq.ConsumerOptions {
	return rabbitmq.ConsumerOptions{
		Queue:         cfg.Topology().RegionQueue(country),
		Name:          "region-worker-" + string(country),
		BatchSize:     cfg.RabbitMQ.BatchSize,
		BatchWait:     cfg.RabbitMQ.BatchWait,
		MaxDeliveries: cfg.RabbitMQ.DeliveryLimit,
	}
}
