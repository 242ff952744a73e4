package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/careloop/careloop/pkg/actions"
	"github.com/careloop/careloop/pkg/cmd"
	"github.com/careloop/careloop/pkg/engine"
	"github.com/careloop/careloop/pkg/events"
	"github.com/careloop/careloop/pkg/log"
	"github.com/careloop/careloop/pkg/notify"
	"github.com/careloop/careloop/pkg/otelhelper"
)

func main() {
	command := &cli.Command{
		Name:                  "careloop-worker",
		EnableShellCompletion: true,
		Usage:                 "React to clinic domain events by running matching workflows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka broker addresses",
				Value:   []string{"localhost:9092"},
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:     "subject-store-url",
				Usage:    "Base URL of the clinic record system API",
				Required: true,
				Sources:  cli.EnvVars("SUBJECT_STORE_URL"),
			},
			&cli.StringFlag{
				Name:    "subject-store-api-key",
				Usage:   "Bearer token for the clinic record system API",
				Sources: cli.EnvVars("SUBJECT_STORE_API_KEY"),
			},
			&cli.StringFlag{
				Name:     "notify-url",
				Usage:    "Notification gateway endpoint",
				Required: true,
				Sources:  cli.EnvVars("NOTIFY_URL"),
			},
			&cli.StringFlag{
				Name:    "notify-api-key",
				Usage:   "Bearer token for the notification gateway",
				Sources: cli.EnvVars("NOTIFY_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the subject read cache (optional)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("careloop-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Careloop Worker")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			provider := command.String("event-bus")
			brokers := command.StringSlice("kafka-brokers")

			domainBus, err := cmd.NewEventBus(provider, events.DomainTopic, "careloop-worker", brokers, logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := domainBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close domain event bus", "error", err)
				}
			}()

			lifecycleBus, err := cmd.NewEventBus(provider, events.LifecycleTopic, "careloop-worker", brokers, logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := lifecycleBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close lifecycle event bus", "error", err)
				}
			}()

			subjectStore, err := cmd.NewSubjectStore(
				logger,
				command.String("subject-store-url"),
				command.String("subject-store-api-key"),
				command.String("redis-url"),
			)
			if err != nil {
				return err
			}

			channel := notify.NewHTTPChannel(
				command.String("notify-url"),
				command.String("notify-api-key"),
				notify.DefaultSendTimeout,
				logger,
			)

			registry := cmd.NewRegistry(logger, channel, subjectStore)
			executor := actions.NewExecutor(registry, persistence, nil, logger)

			tracer, err := otelhelper.NewTracer(ctx, "careloop-worker")
			if err != nil {
				logger.WarnContext(ctx, "Tracing disabled", "error", err)
			}

			eng := engine.New(engine.Config{
				Persistence: persistence,
				Subjects:    subjectStore,
				Executor:    executor,
				Lifecycle:   lifecycleBus,
				Tracer:      tracer,
				Logger:      logger,
			})

			worker := NewWorker(workerID, eng, domainBus, logger)

			if err := worker.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
