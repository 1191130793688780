package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	publisher "github.com/suchimauz/testdrive-scheduler/internal/adapters/out/rabbitmq"
	"github.com/suchimauz/testdrive-scheduler/internal/config"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/in"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
)

type (
	ResourceType string
	EventType    string
)

const (
	ResourceTypeAll         = ResourceType(publisher.ResourceAll)
	ResourceTypeAppointment = ResourceType(publisher.ResourceAppointment)
)

const (
	EventTypeInvalidate = EventType(publisher.EventInvalidate)
)

type MessageRoutingKey struct {
	Source       string
	Receiver     string
	ResourceType ResourceType
	Status       string
	EventType    EventType
}

// StoreEventListener applies appointment writes made by other replicas to
// the local calendar projection.
type StoreEventListener struct {
	channel    *amqp.Channel
	useCase    in.SchedulingUseCase
	cfg        *config.Config
	instanceID string
	logger     out.LoggerPort
}

func NewStoreEventListener(conn *amqp.Connection, useCase in.SchedulingUseCase, cfg *config.Config, instanceID string, logger out.LoggerPort) (*StoreEventListener, error) {
	channel, err := conn.Channel()
	if err != nil {
		logger.Error("rabbitmq.channel.failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, err
	}

	return &StoreEventListener{
		channel:    channel,
		useCase:    useCase,
		cfg:        cfg,
		instanceID: instanceID,
		logger:     logger.WithModule("StoreEventListener"),
	}, nil
}

func (l *StoreEventListener) Start(ctx context.Context) error {
	// Every replica needs every event, so each one binds its own queue.
	queue, err := l.channel.QueueDeclare(
		fmt.Sprintf("%s.%s", l.cfg.RabbitMQ.Queue, l.instanceID),
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}
	err = l.channel.QueueBind(
		queue.Name,
		l.cfg.RabbitMQ.RoutingKey,
		l.cfg.RabbitMQ.Exchange,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	msgs, err := l.channel.Consume(
		queue.Name,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					l.logger.Warn("store_events.consumer.closed", out.LogFields{"queue": queue.Name})
					return
				}
				if err := l.handle(ctx, msg.RoutingKey, msg.Body); err != nil {
					l.logger.Error("store_events.message.rejected", out.LogFields{
						"routingKey": msg.RoutingKey,
						"error":      err.Error(),
					})
					// a malformed message stays malformed, requeueing would loop
					msg.Nack(false, false)
					continue
				}
				msg.Ack(false)
			}
		}
	}()

	l.logger.Info("store_events.queue.started", out.LogFields{
		"queue":      queue.Name,
		"routingKey": l.cfg.RabbitMQ.RoutingKey,
	})
	return nil
}

func (l *StoreEventListener) Stop() error {
	if l == nil || l.channel == nil {
		return nil
	}
	return l.channel.Close()
}

func (l *StoreEventListener) handle(ctx context.Context, routingKey string, body []byte) error {
	key, err := ParseRoutingKey(routingKey)
	if err != nil {
		return err
	}

	switch key.ResourceType {
	case ResourceTypeAll:
		if key.EventType == EventTypeInvalidate {
			l.useCase.ApplyStoreEvent(ctx, domain.AppointmentEvent{})
			l.logger.Info("store_events.all.invalidated", out.LogFields{})
		}
		return nil
	case ResourceTypeAppointment:
	default:
		return nil
	}

	var event domain.AppointmentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("store_events.decode_failed: %w", err)
	}
	if event.Source == l.instanceID {
		return nil
	}

	l.useCase.ApplyStoreEvent(ctx, event)

	l.logger.Debug("store_events.appointment.applied", out.LogFields{
		"appointmentId": event.Appointment.ID,
		"dealerId":      event.Appointment.DealerID,
		"type":          event.Type,
		"source":        event.Source,
	})
	return nil
}

// ParseRoutingKey splits keys such as
// testdrive.scheduler.appointment.confirmed.status_changed
// testdrive.scheduler._all_._all_.invalidate
func ParseRoutingKey(routingKey string) (MessageRoutingKey, error) {
	parts := strings.Split(routingKey, ".")
	if len(parts) < 5 {
		return MessageRoutingKey{}, fmt.Errorf("invalid routing key: %s", routingKey)
	}

	return MessageRoutingKey{
		Source:       parts[0],
		Receiver:     parts[1],
		ResourceType: ResourceType(parts[2]),
		Status:       parts[3],
		EventType:    EventType(parts[4]),
	}, nil
}
