package in

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/json_types"
)

type BookRequest struct {
	DealerID   string
	VehicleID  string
	CustomerID string
	Start      time.Time
	Note       string

	// Zero means the configured default duration.
	DurationMinutes int
}

// SchedulingUseCase is the only entry point of the presentation layer.
// All returned errors are *domain.SchedulingError.
type SchedulingUseCase interface {
	GetAvailability(ctx context.Context, dealerID, vehicleID string, date json_types.Date) ([]domain.Slot, error)
	Book(ctx context.Context, req BookRequest) (*domain.Appointment, error)

	Confirm(ctx context.Context, appointmentID uuid.UUID, actor domain.Actor) (*domain.Appointment, error)
	Complete(ctx context.Context, appointmentID uuid.UUID, actor domain.Actor) (*domain.Appointment, error)
	Cancel(ctx context.Context, appointmentID uuid.UUID, actor domain.Actor, reason string) (*domain.Appointment, error)

	GetAppointment(ctx context.Context, appointmentID uuid.UUID) (*domain.Appointment, error)
	ListForDate(ctx context.Context, dealerID string, date json_types.Date) ([]domain.Appointment, error)
	ListForCustomer(ctx context.Context, customerID string) ([]domain.Appointment, error)
	MonthOverview(ctx context.Context, dealerID string, year int, month time.Month) (*domain.MonthProjection, error)

	// ApplyStoreEvent drops calendar projections touched by a write of another replica.
	ApplyStoreEvent(ctx context.Context, event domain.AppointmentEvent)
}
