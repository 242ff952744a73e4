// Package main provides the Careloop worker, which reacts to domain events
// by running matching workflows.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/careloop/careloop/pkg/engine"
	"github.com/careloop/careloop/pkg/eventbus"
	"github.com/careloop/careloop/pkg/events"
)

type Worker struct {
	id     string
	logger *slog.Logger
	engine *engine.Engine
	domain eventbus.EventBus
}

func NewWorker(id string, eng *engine.Engine, domain eventbus.EventBus, logger *slog.Logger) *Worker {
	return &Worker{
		id:     id,
		logger: logger.With("worker_id", id),
		engine: eng,
		domain: domain,
	}
}

// Start subscribes to the domain event stream and blocks until SIGINT or
// SIGTERM.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker")

	if err := w.domain.Handle(events.TriggerEventReceived, w.handleTriggerEvent); err != nil {
		return err
	}

	if err := w.domain.Subscribe(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *Worker) handleTriggerEvent(ctx context.Context, event any) error {
	triggerEvent, ok := event.(*events.TriggerEvent)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for trigger event")

		return nil
	}

	logger := w.logger.With(
		"event_id", triggerEvent.ID,
		"tenant_id", triggerEvent.TenantID,
		"trigger_type", triggerEvent.TriggerType,
	)
	logger.InfoContext(ctx, "Processing trigger event")

	started, err := w.engine.HandleTriggerEvent(ctx, triggerEvent)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to process trigger event", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Trigger event processed", "executions_started", started)

	return nil
}
