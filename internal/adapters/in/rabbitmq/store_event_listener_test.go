package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suchimauz/testdrive-scheduler/internal/adapters/out/logger"
	publisher "github.com/suchimauz/testdrive-scheduler/internal/adapters/out/rabbitmq"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/in"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
)

type recordingUseCase struct {
	in.SchedulingUseCase
	applied []domain.AppointmentEvent
}

func (r *recordingUseCase) ApplyStoreEvent(ctx context.Context, event domain.AppointmentEvent) {
	r.applied = append(r.applied, event)
}

func newTestListener(useCase in.SchedulingUseCase) *StoreEventListener {
	return &StoreEventListener{
		useCase:    useCase,
		instanceID: "local",
		logger:     logger.NewWriterLogger(io.Discard, out.LogLevelError),
	}
}

func TestParseRoutingKey(t *testing.T) {
	key, err := ParseRoutingKey("testdrive.scheduler.appointment.confirmed.status_changed")
	require.NoError(t, err)
	assert.Equal(t, ResourceTypeAppointment, key.ResourceType)
	assert.Equal(t, "confirmed", key.Status)
	assert.Equal(t, EventType("status_changed"), key.EventType)

	_, err = ParseRoutingKey("testdrive.appointment")
	assert.Error(t, err)
}

func TestStoreEventListenerHandle(t *testing.T) {
	useCase := &recordingUseCase{}
	l := newTestListener(useCase)

	remote := domain.AppointmentEvent{
		Type:        domain.AppointmentEventCreated,
		Source:      "remote",
		Appointment: domain.Appointment{ID: uuid.New(), DealerID: "dealer-1"},
	}
	body, err := json.Marshal(remote)
	require.NoError(t, err)
	require.NoError(t, l.handle(context.Background(), "testdrive.scheduler.appointment.pending.created", body))

	own := remote
	own.Source = "local"
	body, err = json.Marshal(own)
	require.NoError(t, err)
	require.NoError(t, l.handle(context.Background(), "testdrive.scheduler.appointment.pending.created", body))

	require.NoError(t, l.handle(context.Background(), "testdrive.scheduler._all_._all_.invalidate", nil))

	require.Len(t, useCase.applied, 2)
	assert.Equal(t, remote.Appointment.ID, useCase.applied[0].Appointment.ID)
	assert.Empty(t, useCase.applied[1].Appointment.DealerID)

	assert.Error(t, l.handle(context.Background(), "testdrive.scheduler.appointment.pending.created", []byte("{")))
}

func TestPublishedKeysReachTheListener(t *testing.T) {
	useCase := &recordingUseCase{}
	l := newTestListener(useCase)

	for _, status := range domain.AppointmentStatuses {
		event := domain.AppointmentEvent{
			Type:        domain.AppointmentEventStatusChanged,
			Source:      "remote",
			Appointment: domain.Appointment{ID: uuid.New(), DealerID: "dealer-1", Status: status},
		}
		routingKey := publisher.RoutingKey(publisher.ResourceAppointment, status, event.Type)

		key, err := ParseRoutingKey(routingKey)
		require.NoError(t, err)
		assert.Equal(t, ResourceTypeAppointment, key.ResourceType)
		assert.Equal(t, string(status), key.Status)
		assert.Equal(t, EventType(domain.AppointmentEventStatusChanged), key.EventType)

		body, err := json.Marshal(event)
		require.NoError(t, err)
		require.NoError(t, l.handle(context.Background(), routingKey, body))
		assert.Equal(t, event.Appointment.ID, useCase.applied[len(useCase.applied)-1].Appointment.ID)
	}
	assert.Len(t, useCase.applied, len(domain.AppointmentStatuses))

	// notifications share the exchange but never touch the calendar
	notificationKey := publisher.RoutingKey(publisher.ResourceNotification, domain.AppointmentStatusConfirmed, domain.AppointmentEventStatusChanged)
	require.NoError(t, l.handle(context.Background(), notificationKey, []byte("{}")))
	assert.Len(t, useCase.applied, len(domain.AppointmentStatuses))

	invalidateAll := fmt.Sprintf("%s.%s.%s.%s.%s", publisher.RoutingSource, publisher.RoutingReceiver,
		publisher.ResourceAll, publisher.ResourceAll, publisher.EventInvalidate)
	require.NoError(t, l.handle(context.Background(), invalidateAll, nil))
	require.Len(t, useCase.applied, len(domain.AppointmentStatuses)+1)
	assert.Empty(t, useCase.applied[len(useCase.applied)-1].Appointment.DealerID)
}
