// Package main provides the Careloop poller, which sweeps due scheduled
// actions and fires time-based triggers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/careloop/careloop/pkg/actions"
	"github.com/careloop/careloop/pkg/cmd"
	"github.com/careloop/careloop/pkg/engine"
	"github.com/careloop/careloop/pkg/events"
	"github.com/careloop/careloop/pkg/log"
	"github.com/careloop/careloop/pkg/notify"
	"github.com/careloop/careloop/pkg/poller"
)

func main() {
	command := &cli.Command{
		Name:                  "careloop-poller",
		EnableShellCompletion: true,
		Usage:                 "Run due scheduled actions and time-based trigger sweeps",
		Flags: []cli.Flag{
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
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "How often to sweep for due work",
				Value:   poller.DefaultInterval,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Usage:   "Maximum scheduled actions processed per sweep",
				Value:   poller.DefaultBatchSize,
				Sources: cli.EnvVars("POLL_BATCH_SIZE"),
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

			logger := log.WithModule("careloop-poller")

			logger.InfoContext(ctx, "Initializing Careloop Poller")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			lifecycleBus, err := cmd.NewEventBus(
				command.String("event-bus"),
				events.LifecycleTopic,
				"careloop-poller",
				command.StringSlice("kafka-brokers"),
				logger,
			)
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

			eng := engine.New(engine.Config{
				Persistence: persistence,
				Subjects:    subjectStore,
				Executor:    executor,
				Lifecycle:   lifecycleBus,
				Logger:      logger,
			})

			p := poller.New(poller.Config{
				Persistence: persistence,
				Subjects:    subjectStore,
				Executor:    executor,
				Engine:      eng,
				Lifecycle:   lifecycleBus,
				Logger:      logger,
				Interval:    command.Duration("interval"),
				BatchSize:   command.Int("batch-size"),
			})

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			go func() {
				sigChan := make(chan os.Signal, 1)
				signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

				<-sigChan
				logger.Info("Shutting down poller...")
				cancel()
			}()

			if err := p.Start(runCtx); err != nil && err != context.Canceled {
				logger.ErrorContext(ctx, "Poller stopped", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
