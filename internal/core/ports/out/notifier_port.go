package out

import (
	"context"

	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
)

// NotifierPort delivers "your appointment is now X" to the customer.
// Callers do not wait for or depend on delivery.
type NotifierPort interface {
	NotifyStatus(ctx context.Context, notification domain.Notification) error
}

// AppointmentEventsPort publishes committed store changes to other replicas.
type AppointmentEventsPort interface {
	Publish(ctx context.Context, event domain.AppointmentEvent) error
}
