package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"

	"github.com/hackgods/appointment-pipeline/internal/appointment"
	"github.com/hackgods/appointment-pipeline/internal/config"
	"github.com/hackgods/appointment-pipeline/internal/logging"
	"github.com/hackgods/appointment-pipeline/internal/pipeline"
	"github.com/hackgods/appointment-pipeline/internal/rabbitmq"
	redisclient "github.com/hackgods/appointment-pipeline/internal/redis"
)

// bookFunc books one appointment, either directly through the create stage or
// by queueing the request for the intake worker.
type bookFunc func(ctx context.Context, in pipeline.CreateInput) error

// seedCmd books fake appointments. Without --intake every record goes through
// the create stage here; with it the requests are queued for intake-worker.
func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Book fake appointments through the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			insured, _ := cmd.Flags().GetInt("insured")
			viaIntake, _ := cmd.Flags().GetBool("intake")
			if count <= 0 || insured <= 0 {
				return fmt.Errorf("--count and --insured must be > 0")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Env, "appointmentctl", cfg.Version)

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			mq, err := rabbitmq.Dial(cfg.RabbitMQ.URL, cfg.Topology(), logger)
			if err != nil {
				return err
			}
			defer mq.Close()
			if err := mq.DeclareTopology(appointment.Countries); err != nil {
				return err
			}

			if viaIntake {
				intake := rabbitmq.NewIntakePublisher(mq.Channel(), cfg.RabbitMQ.IntakeQueue, logger)
				return seedAppointments(ctx, intake.PublishCreateRequest, gofakeit.New(0), count, insured)
			}

			rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisOptions())
			if err != nil {
				return err
			}
			defer rdb.Close()

			stage := pipeline.NewCreateStage(
				redisclient.NewRepository(rdb, cfg.Redis.Prefix, logger),
				rabbitmq.NewFanoutPublisher(mq.Channel(), cfg.RabbitMQ.FanoutExchange, logger),
				logger,
			)
			book := func(ctx context.Context, in pipeline.CreateInput) error {
				_, err := stage.Execute(ctx, in)
				return err
			}
			return seedAppointments(ctx, book, gofakeit.New(0), count, insured)
		},
	}
	cmd.Flags().Int("count", 100, "Number of appointments to book")
	cmd.Flags().Int("insured", 20, "Number of distinct insured people")
	cmd.Flags().Bool("intake", false, "Queue requests for intake-worker instead of booking directly")
	return cmd
}

func seedAppointments(ctx context.Context, book bookFunc, faker *gofakeit.Faker, count, insured int) error {
	fmt.Printf("seeding %d appointments for %d insured people\n", count, insured)

	ids := make([]string, insured)
	for i := range ids {
		ids[i] = faker.Numerify("#####")
	}

	countries := make([]string, len(appointment.Countries))
	for i, c := range appointment.Countries {
		countries[i] = string(c)
	}

	for i := 0; i < count; i++ {
		in := pipeline.CreateInput{
			InsuredID:  ids[faker.Number(0, len(ids)-1)],
			ScheduleID: int64(faker.Number(1, 5000)),
			CountryISO: appointment.Country(faker.RandomString(countries)),
		}
		if err := book(ctx, in); err != nil {
			return fmt.Errorf("seed appointment %d: %w", i+1, err)
		}
		if (i+1)%50 == 0 {
			fmt.Printf("appointments seeded: %d/%d\n", i+1, count)
		}
	}

	fmt.Printf("seed complete, sample insured id: %s\n", ids[0])
	return nil
}
