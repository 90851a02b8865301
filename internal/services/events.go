package services

import (
	"context"
	"errors"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

// EventPublisher announces committed ledger mutations. *amqp.Client
// implements it.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error
}

// publish sends event when a publisher is configured. The mutation it
// describes is already committed, so a failure is only logged.
func publish(ctx context.Context, events EventPublisher, event *amqp.LedgerEvent) {
	logger := log.FromContext(ctx)
	if events == nil {
		logger.DebugContext(ctx, "Event publisher not configured, skipping event", log.FieldEventType, event.Type)
		return
	}
	if err := events.PublishLedgerEvent(ctx, event); err != nil {
		fields := log.NewFields().
			WithOwner(event.OwnerID)
		fields[log.FieldEventType] = event.Type
		log.NewStructuredLogger(logger).LogError(ctx, "Failed to publish ledger event", err, ClassifyError, log.OpPublish, fields)
	}
}

// ClassifyError maps the ledger error taxonomy onto log error types.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, core.ErrValidation):
		return log.ErrorTypeValidation
	case errors.Is(err, core.ErrNotFound):
		return log.ErrorTypeNotFound
	case errors.Is(err, core.ErrConflict):
		return log.ErrorTypeConflict
	case errors.Is(err, core.ErrStore):
		return log.ErrorTypeStore
	case errors.Is(err, amqp.ErrCircuitOpen):
		return log.ErrorTypeNetwork
	default:
		return log.ErrorTypeInternal
	}
}
