package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suchimauz/testdrive-scheduler/internal/config"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
)

const (
	RoutingSource   = "testdrive"
	RoutingReceiver = "scheduler"

	ResourceAppointment  = "appointment"
	ResourceNotification = "notification"

	// ResourceAll with EventInvalidate asks every replica to drop all projections.
	ResourceAll     = "_all_"
	EventInvalidate = "invalidate"
)

// RoutingKey builds "<source>.<receiver>.<resource>.<status>.<type>", e.g.
// testdrive.scheduler.appointment.confirmed.status_changed
func RoutingKey(resource string, status domain.AppointmentStatus, eventType domain.AppointmentEventType) string {
	return fmt.Sprintf("%s.%s.%s.%s.%s", RoutingSource, RoutingReceiver, resource, status, eventType)
}

func Dial(cfg *config.Config, logger out.LoggerPort) (*amqp.Connection, error) {
	if !cfg.RabbitMQ.Enabled {
		logger.Info("rabbitmq.disabled", out.LogFields{
			"message": "RabbitMQ is disabled, store events will not be shared",
		})
		return nil, nil
	}

	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Error("rabbitmq.connect.failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, err
	}
	return conn, nil
}

// publishChannel is the part of *amqp.Channel the publisher uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// EventPublisher publishes committed store changes for other replicas and
// status notifications for downstream consumers to a topic exchange.
type EventPublisher struct {
	channel  publishChannel
	exchange string
	mu       sync.Mutex
	logger   out.LoggerPort
}

var (
	_ out.AppointmentEventsPort = (*EventPublisher)(nil)
	_ out.NotifierPort          = (*EventPublisher)(nil)
)

func NewEventPublisher(conn *amqp.Connection, cfg *config.Config, logger out.LoggerPort) (*EventPublisher, error) {
	channel, err := conn.Channel()
	if err != nil {
		logger.Error("rabbitmq.channel.failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, err
	}

	err = channel.ExchangeDeclare(
		cfg.RabbitMQ.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		logger.Error("rabbitmq.exchange.declare_failed", out.LogFields{
			"exchange": cfg.RabbitMQ.Exchange,
			"error":    err.Error(),
		})
		return nil, err
	}

	return newEventPublisher(channel, cfg.RabbitMQ.Exchange, logger), nil
}

func newEventPublisher(channel publishChannel, exchange string, logger out.LoggerPort) *EventPublisher {
	return &EventPublisher{
		channel:  channel,
		exchange: exchange,
		logger:   logger.WithModule("EventPublisher"),
	}
}

func (p *EventPublisher) Publish(ctx context.Context, event domain.AppointmentEvent) error {
	key := RoutingKey(ResourceAppointment, event.Appointment.Status, event.Type)
	return p.publish(ctx, key, event)
}

func (p *EventPublisher) NotifyStatus(ctx context.Context, notification domain.Notification) error {
	key := RoutingKey(ResourceNotification, notification.Appointment.Status, domain.AppointmentEventStatusChanged)
	return p.publish(ctx, key, notification)
}

func (p *EventPublisher) publish(ctx context.Context, key string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("rabbitmq.publish.encode_failed: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		p.logger.Error("rabbitmq.publish.failed", out.LogFields{
			"routingKey": key,
			"error":      err.Error(),
		})
		return fmt.Errorf("rabbitmq.publish.failed: %w", err)
	}

	p.logger.Debug("rabbitmq.publish.sent", out.LogFields{"routingKey": key})
	return nil
}

func (p *EventPublisher) Close() error {
	if p == nil || p.channel == nil {
		return nil
	}
	return p.channel.Close()
}
