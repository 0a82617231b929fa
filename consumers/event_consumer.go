package consumers

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"settlement-service/config"
	"settlement-service/models"
)

// Deliverer hands a relayed event to local subscribers.
type Deliverer interface {
	Deliver(ctx context.Context, evt models.Event) error
}

// StartEventConsumer drains this instance's fan-out queue into the local hub.
func StartEventConsumer(ctx context.Context, ch *amqp.Channel, queue string, d Deliverer) error {
	msgs, err := ch.Consume(
		queue,
		"settlement-events", // consumer tag
		false,               // auto-ack
		true,                // exclusive
		false,               // no-local
		false,               // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register event consumer: %w", err)
	}

	go func() {
		for msg := range msgs {
			processEventMessage(ctx, msg, d)
		}
		config.GetLogger().Info("event consumer stopped")
	}()
	return nil
}

func processEventMessage(ctx context.Context, msg amqp.Delivery, d Deliverer) {
	logger := config.GetLogger()
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("recovered from panic in event processing")
			_ = msg.Nack(false, false)
		}
	}()

	var evt models.Event
	if err := json.Unmarshal(msg.Body, &evt); err != nil || evt.TenantID == "" {
		logger.WithFields(logrus.Fields{"body": string(msg.Body)}).Warn("dropping malformed event")
		_ = msg.Nack(false, false)
		return
	}

	if err := d.Deliver(ctx, evt); err != nil {
		config.LogError(logger, "consumers", "processEventMessage", "deliver event", evt.Type, err)
	}
	// events are hints; a failed local delivery is not worth redelivering
	if err := msg.Ack(false); err != nil {
		config.LogError(logger, "consumers", "processEventMessage", "ack", evt.Type, err)
	}
}
