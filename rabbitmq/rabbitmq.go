package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"settlement-service/config"
	"settlement-service/models"
)

type RabbitMQ struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	Cfg     *config.Config

	// EventQueue is this instance's exclusive queue on the fan-out exchange.
	EventQueue string

	mu      sync.Mutex
	delayed bool
}

func NewRabbitMQ(cfg *config.Config) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		if cerr := conn.Close(); cerr != nil {
			config.LogError(config.GetLogger(), "rabbitmq", "NewRabbitMQ", "close connection", nil, cerr)
		}
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &RabbitMQ{
		Conn:    conn,
		Channel: ch,
		Cfg:     cfg,
	}, nil
}

func (r *RabbitMQ) deadLetterExchange() string {
	return r.Cfg.DeadLetterQueue + "_exchange"
}

func (r *RabbitMQ) SetupQueues() error {
	logger := config.GetLogger()

	// dead letters: table resets that ran out of attempts
	if err := r.Channel.ExchangeDeclare(
		r.deadLetterExchange(),
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	if _, err := r.Channel.QueueDeclare(
		r.Cfg.DeadLetterQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-queue-type": "classic",
		},
	); err != nil {
		return err
	}

	if err := r.Channel.QueueBind(
		r.Cfg.DeadLetterQueue,
		r.Cfg.DeadLetterQueue,
		r.deadLetterExchange(),
		false,
		nil,
	); err != nil {
		return err
	}

	// real-time events fan out to every instance
	if err := r.Channel.ExchangeDeclare(
		r.Cfg.EventExchange,
		"fanout",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	q, err := r.Channel.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}
	r.EventQueue = q.Name

	if err := r.Channel.QueueBind(
		r.EventQueue,
		"",
		r.Cfg.EventExchange,
		false,
		nil,
	); err != nil {
		return err
	}

	// the delayed exchange needs the rabbitmq_delayed_message_exchange plugin
	if err := r.Channel.ExchangeDeclare(
		r.Cfg.DelayExchange,
		"x-delayed-message",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		amqp.Table{"x-delayed-type": "direct"},
	); err != nil {
		logger.WithError(err).Warn("delayed exchange not supported, table resets are retried without delay")
		// a failed declare closes the channel
		if r.Channel, err = r.Conn.Channel(); err != nil {
			return err
		}
	} else {
		r.delayed = true
	}

	if _, err := r.Channel.QueueDeclare(
		r.Cfg.TableResetQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    r.deadLetterExchange(),
			"x-dead-letter-routing-key": r.Cfg.DeadLetterQueue,
		},
	); err != nil {
		return err
	}

	if r.delayed {
		if err := r.Channel.QueueBind(
			r.Cfg.TableResetQueue,
			r.Cfg.TableResetQueue,
			r.Cfg.DelayExchange,
			false,
			nil,
		); err != nil {
			return err
		}
	}

	return nil
}

// PublishEvent sends evt to every instance's hub through the fan-out exchange.
func (r *RabbitMQ) PublishEvent(ctx context.Context, evt models.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		Timestamp:   time.Now(),
		ContentType: "application/json",
		Type:        string(evt.Type),
		Body:        body,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Channel.PublishWithContext(ctx,
		r.Cfg.EventExchange,
		"",
		false, // mandatory
		false, // immediate
		msg,
	)
}

// ScheduleTableReset queues another release attempt. The delay grows with the attempt number.
func (r *RabbitMQ) ScheduleTableReset(ctx context.Context, tenantID, tableID string, attempt int) error {
	evt := models.Event{
		Type:     models.EventTableReset,
		TenantID: tenantID,
		TableID:  tableID,
		EntityID: tableID,
		Attempt:  attempt,
		At:       time.Now().UTC(),
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		Type:         string(evt.Type),
		Body:         body,
	}

	exchange := ""
	if r.delayed {
		exchange = r.Cfg.DelayExchange
		msg.Headers = amqp.Table{
			"x-delay": (r.Cfg.TableResetDelay * time.Duration(attempt)).Milliseconds(),
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Channel.PublishWithContext(ctx,
		exchange,
		r.Cfg.TableResetQueue,
		false, // mandatory
		false, // immediate
		msg,
	)
}

func (r *RabbitMQ) Close() {
	if r.Channel != nil {
		if err := r.Channel.Close(); err != nil {
			config.LogError(config.GetLogger(), "rabbitmq", "Close", "close channel", nil, err)
		}
	}
	if r.Conn != nil {
		if err := r.Conn.Close(); err != nil {
			config.LogError(config.GetLogger(), "rabbitmq", "Close", "close connection", nil, err)
		}
	}
}
