package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/careloop/careloop/pkg/actions"
	"github.com/careloop/careloop/pkg/cmd"
	"github.com/careloop/careloop/pkg/engine"
	"github.com/careloop/careloop/pkg/log"
	"github.com/careloop/careloop/pkg/notify"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "careloop-api",
		Usage:                 "Create and manage patient-lifecycle workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
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

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Careloop API")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
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
				Logger:      logger,
			})

			api := NewAPI(logger, persistence, registry, eng)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
