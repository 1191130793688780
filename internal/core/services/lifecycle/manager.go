package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
)

// Manager owns appointment status. Nothing else writes it.
type Manager struct {
	store  out.AppointmentStorePort
	logger out.LoggerPort
	now    func() time.Time
}

func NewManager(store out.AppointmentStorePort, logger out.LoggerPort, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:  store,
		logger: logger.WithModule("LifecycleManager"),
		now:    now,
	}
}

type NewAppointment struct {
	Key             domain.VehicleKey
	CustomerID      string
	Start           time.Time
	DurationMinutes int
	Note            string
}

// NewPending builds the initial state of a freshly booked appointment.
func (m *Manager) NewPending(input NewAppointment) domain.Appointment {
	now := m.now().UTC()
	return domain.Appointment{
		ID:              uuid.New(),
		DealerID:        input.Key.DealerID,
		VehicleID:       input.Key.VehicleID,
		CustomerID:      input.CustomerID,
		Start:           input.Start.UTC(),
		DurationMinutes: input.DurationMinutes,
		Status:          domain.AppointmentStatusPending,
		Note:            input.Note,
		CreatedAt:       now,
		StatusChangedAt: now,
	}
}

// Transition moves the appointment to target along the transition table.
// The slot is not re-validated: it was checked once, at booking.
func (m *Manager) Transition(ctx context.Context, id uuid.UUID, target domain.AppointmentStatus, actor domain.Actor, reason string) (*domain.Appointment, error) {
	current, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		m.logger.Error("lifecycle.transition.fetch_failed", out.LogFields{
			"appointmentId": id,
			"error":         err.Error(),
		})
		return nil, fmt.Errorf("lifecycle.transition.fetch_failed: %w", err)
	}

	// Each lost compare-and-set moves the appointment strictly forward, so
	// the loop ends after at most one pass per status.
	for attempt := 0; attempt < len(domain.AppointmentStatuses); attempt++ {
		if current.Status.IsTerminal() && attempt > 0 {
			m.logger.Warn("lifecycle.transition.conflict", out.LogFields{
				"appointmentId": id,
				"status":        current.Status,
				"target":        target,
			})
			return nil, fmt.Errorf("%w: now %s", domain.ErrConflict, current.Status)
		}
		if !domain.CanTransition(current.Status, target) {
			m.logger.Info("lifecycle.transition.rejected", out.LogFields{
				"appointmentId": id,
				"status":        current.Status,
				"target":        target,
			})
			return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, target)
		}

		change := out.StatusChange{
			ID:        id,
			From:      current.Status,
			To:        target,
			At:        m.now().UTC(),
			ChangedBy: actorLabel(actor),
		}
		if target == domain.AppointmentStatusCancelled {
			change.CancelReason = reason
		}

		updated, err := m.store.UpdateStatus(ctx, change)
		if errors.Is(err, out.ErrStatusMismatch) && updated != nil {
			current = updated
			continue
		}
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
			m.logger.Error("lifecycle.transition.update_failed", out.LogFields{
				"appointmentId": id,
				"error":         err.Error(),
			})
			return nil, fmt.Errorf("lifecycle.transition.update_failed: %w", err)
		}

		m.logger.Info("lifecycle.transition.applied", out.LogFields{
			"appointmentId": id,
			"from":          change.From,
			"to":            change.To,
			"actor":         change.ChangedBy,
		})
		return updated, nil
	}

	return nil, fmt.Errorf("%w: gave up after repeated concurrent updates", domain.ErrConflict)
}

func actorLabel(actor domain.Actor) string {
	switch {
	case actor.ID == "" && actor.Role == "":
		return string(domain.ActorRoleSystem)
	case actor.ID == "":
		return string(actor.Role)
	case actor.Role == "":
		return actor.ID
	default:
		return string(actor.Role) + ":" + actor.ID
	}
}
