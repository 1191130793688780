package out

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
)

// AppointmentTx is the view of the store inside a serialized write.
type AppointmentTx interface {
	// Pending and confirmed appointments of the locked vehicle intersecting [from, to).
	ListActive(ctx context.Context, from, to time.Time) ([]domain.Appointment, error)
	Insert(ctx context.Context, appointment domain.Appointment) error
}

type AppointmentStorePort interface {
	// WithVehicleLock runs fn with writes for key serialized. Nothing fn
	// inserted survives if fn or ctx fails.
	WithVehicleLock(ctx context.Context, key domain.VehicleKey, fn func(tx AppointmentTx) error) error

	Get(ctx context.Context, id uuid.UUID) (*domain.Appointment, error)
	ListActive(ctx context.Context, key domain.VehicleKey, from, to time.Time) ([]domain.Appointment, error)
	ListByDealer(ctx context.Context, dealerID string, from, to time.Time) ([]domain.Appointment, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Appointment, error)

	// UpdateStatus is a compare-and-set: it succeeds only while the stored
	// status still equals change.From, otherwise it returns the current
	// appointment together with ErrStatusMismatch.
	UpdateStatus(ctx context.Context, change StatusChange) (*domain.Appointment, error)
}

type StatusChange struct {
	ID           uuid.UUID
	From         domain.AppointmentStatus
	To           domain.AppointmentStatus
	At           time.Time
	ChangedBy    string
	CancelReason string
}
