package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"settlement-service/config"
	"settlement-service/models"
)

// TableReleaser frees a table once nothing unpaid is left on it.
type TableReleaser interface {
	ReleaseTable(ctx context.Context, tenantID, tableID string) (bool, error)
}

type TableResetScheduler interface {
	ScheduleTableReset(ctx context.Context, tenantID, tableID string, attempt int) error
}

type TableResetHandler struct {
	Releaser    TableReleaser
	Scheduler   TableResetScheduler
	MaxAttempts int
}

// StartTableResetConsumer retries table releases that failed after payment.
// Messages past MaxAttempts are rejected into the dead letter queue.
func StartTableResetConsumer(ctx context.Context, ch *amqp.Channel, cfg *config.Config, h *TableResetHandler) error {
	msgs, err := ch.Consume(
		cfg.TableResetQueue,
		"settlement-table-reset", // consumer tag
		false,                    // auto-ack
		false,                    // exclusive
		false,                    // no-local
		false,                    // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register table reset consumer: %w", err)
	}

	go func() {
		for msg := range msgs {
			h.process(ctx, msg)
		}
	}()

	dlqMsgs, err := ch.Consume(
		cfg.DeadLetterQueue,
		"settlement-dlq", // consumer tag
		false,            // auto-ack
		false,            // exclusive
		false,            // no-local
		false,            // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register dead letter consumer: %w", err)
	}

	go func() {
		for msg := range dlqMsgs {
			processDeadLetterMessage(msg)
		}
	}()
	return nil
}

func (h *TableResetHandler) process(ctx context.Context, msg amqp.Delivery) {
	logger := config.GetLogger()
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("recovered from panic in table reset")
			_ = msg.Nack(false, false)
		}
	}()

	var evt models.Event
	if err := json.Unmarshal(msg.Body, &evt); err != nil || evt.Type != models.EventTableReset || evt.TableID == "" {
		logger.WithField("body", string(msg.Body)).Warn("invalid table reset message")
		_ = msg.Nack(false, false)
		return
	}
	fields := logrus.Fields{"tenant_id": evt.TenantID, "table_id": evt.TableID, "attempt": evt.Attempt}

	released, err := h.Releaser.ReleaseTable(ctx, evt.TenantID, evt.TableID)
	switch {
	case err == nil:
		logger.WithFields(fields).WithField("released", released).Info("table reset processed")
		_ = msg.Ack(false)
	case errors.Is(err, models.ErrNotFound):
		logger.WithFields(fields).Warn("table reset for unknown table dropped")
		_ = msg.Ack(false)
	case evt.Attempt >= h.MaxAttempts:
		config.LogError(logger, "consumers", "TableResetHandler.process", "table reset attempts exhausted", fields, err)
		_ = msg.Nack(false, false)
	default:
		if serr := h.Scheduler.ScheduleTableReset(ctx, evt.TenantID, evt.TableID, evt.Attempt+1); serr != nil {
			config.LogError(logger, "consumers", "TableResetHandler.process", "reschedule table reset", fields, serr)
			_ = msg.Nack(false, false)
			return
		}
		logger.WithFields(fields).WithError(err).Warn("table reset failed, rescheduled")
		_ = msg.Ack(false)
	}
}

// processDeadLetterMessage leaves a record for operators; the table has to be reset by hand.
func processDeadLetterMessage(msg amqp.Delivery) {
	var evt models.Event
	_ = json.Unmarshal(msg.Body, &evt)
	config.GetLogger().WithFields(logrus.Fields{
		"tenant_id": evt.TenantID,
		"table_id":  evt.TableID,
		"attempt":   evt.Attempt,
	}).Error("table stuck after payment, manual reset required")
	if err := msg.Ack(false); err != nil {
		config.LogError(config.GetLogger(), "consumers", "processDeadLetterMessage", "ack", nil, err)
	}
}
