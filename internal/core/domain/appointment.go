package domain

import (
	"time"

	"github.com/google/uuid"
)

type ActorRole string

const (
	ActorRoleStaff    ActorRole = "staff"
	ActorRoleCustomer ActorRole = "customer"
	ActorRoleSystem   ActorRole = "system"
)

// Actor identifies who requested a status change.
type Actor struct {
	ID   string    `json:"id"`
	Role ActorRole `json:"role"`
}

// VehicleKey is the unit of write serialization: bookings for the same
// vehicle at the same dealer never run their conflict check concurrently.
type VehicleKey struct {
	DealerID  string
	VehicleID string
}

func (k VehicleKey) String() string {
	return k.DealerID + "/" + k.VehicleID
}

type Appointment struct {
	ID              uuid.UUID         `json:"id"`
	DealerID        string            `json:"dealerId"`
	VehicleID       string            `json:"vehicleId"`
	CustomerID      string            `json:"customerId"`
	Start           time.Time         `json:"start"`
	DurationMinutes int               `json:"durationMinutes"`
	Status          AppointmentStatus `json:"status"`
	Note            string            `json:"note,omitempty"`
	CancelReason    string            `json:"cancelReason,omitempty"`
	StatusChangedBy string            `json:"statusChangedBy,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	StatusChangedAt time.Time         `json:"statusChangedAt"`
}

func (a Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

func (a Appointment) End() time.Time {
	return a.Start.Add(a.Duration())
}

func (a Appointment) Key() VehicleKey {
	return VehicleKey{DealerID: a.DealerID, VehicleID: a.VehicleID}
}

// PaddedInterval returns [start-buffer, end+buffer).
func (a Appointment) PaddedInterval(buffer time.Duration) (time.Time, time.Time) {
	return a.Start.Add(-buffer), a.End().Add(buffer)
}

// Blocks reports whether the appointment, padded by buffer, intersects [start, end).
// Terminal appointments never block.
func (a Appointment) Blocks(start, end time.Time, buffer time.Duration) bool {
	if a.Status.IsTerminal() {
		return false
	}
	paddedStart, paddedEnd := a.PaddedInterval(buffer)
	return paddedStart.Before(end) && start.Before(paddedEnd)
}
