package availability

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/json_types"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
)

// Query describes one (dealer, vehicle, day) availability computation.
// Duration, Buffer and Granularity come from configuration.
type Query struct {
	Key      domain.VehicleKey
	Hours    domain.OperatingHours
	Location *time.Location
	Duration time.Duration
	Buffer   time.Duration

	// Step between candidate starts; zero means Duration.
	Granularity time.Duration

	// Starts before Now are not offered.
	Now time.Time
}

type activeLister func(ctx context.Context, from, to time.Time) ([]domain.Appointment, error)

type Resolver struct {
	store  out.AppointmentStorePort
	logger out.LoggerPort
}

func NewResolver(store out.AppointmentStorePort, logger out.LoggerPort) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger.WithModule("AvailabilityResolver"),
	}
}

// Resolve reads the live appointments of the vehicle once and returns the
// bookable slots of the day in chronological order.
func (r *Resolver) Resolve(ctx context.Context, q Query) (iter.Seq[domain.Slot], error) {
	return r.resolve(ctx, q, func(ctx context.Context, from, to time.Time) ([]domain.Appointment, error) {
		return r.store.ListActive(ctx, q.Key, from, to)
	})
}

// ResolveTx is Resolve against the state visible inside a vehicle lock.
func (r *Resolver) ResolveTx(ctx context.Context, tx out.AppointmentTx, q Query) (iter.Seq[domain.Slot], error) {
	return r.resolve(ctx, q, tx.ListActive)
}

func (r *Resolver) resolve(ctx context.Context, q Query, list activeLister) (iter.Seq[domain.Slot], error) {
	if err := Validate(q); err != nil {
		return nil, err
	}

	if q.Hours.Closed || q.Hours.Window() < q.Duration {
		r.logger.Debug("availability.resolve.empty_window", out.LogFields{
			"dealerId":  q.Key.DealerID,
			"vehicleId": q.Key.VehicleID,
			"date":      q.Hours.Date.String(),
			"closed":    q.Hours.Closed,
			"reason":    q.Hours.Reason,
		})
		return Slots(q, nil), nil
	}

	from := q.Hours.Open.Add(-q.Buffer)
	to := q.Hours.Close.Add(q.Buffer)
	booked, err := list(ctx, from, to)
	if err != nil {
		r.logger.Error("availability.resolve.appointments.fetch_failed", out.LogFields{
			"dealerId":  q.Key.DealerID,
			"vehicleId": q.Key.VehicleID,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("availability.resolve.appointments.fetch_failed: %w", err)
	}

	r.logger.Debug("availability.resolve.appointments.fetched", out.LogFields{
		"dealerId":  q.Key.DealerID,
		"vehicleId": q.Key.VehicleID,
		"date":      q.Hours.Date.String(),
		"booked":    len(booked),
	})

	return Slots(q, booked), nil
}

// Validate rejects queries for past days and non-positive durations.
func Validate(q Query) error {
	if q.Duration <= 0 {
		return domain.NewValidationError("duration", "must be positive")
	}
	if q.Buffer < 0 {
		return domain.NewValidationError("buffer", "must not be negative")
	}
	if q.Granularity < 0 {
		return domain.NewValidationError("granularity", "must not be negative")
	}
	if q.Hours.Date.IsZero() {
		return domain.NewValidationError("date", "is required")
	}

	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	if !q.Now.IsZero() && q.Hours.Date.Before(json_types.DateOf(q.Now.In(loc))) {
		return domain.NewValidationError("date", "must not be in the past")
	}

	return nil
}

// Slots enumerates candidate starts from open to close-duration and keeps
// those whose [t, t+duration) misses every padded interval of booked.
// The sequence holds no state of its own and can be ranged over again.
func Slots(q Query, booked []domain.Appointment) iter.Seq[domain.Slot] {
	return func(yield func(domain.Slot) bool) {
		if q.Hours.Closed || q.Duration <= 0 {
			return
		}

		step := q.Granularity
		if step <= 0 {
			step = q.Duration
		}

		last := q.Hours.Close.Add(-q.Duration)
		for t := q.Hours.Open; !t.After(last); t = t.Add(step) {
			if !q.Now.IsZero() && t.Before(q.Now) {
				continue
			}

			end := t.Add(q.Duration)
			if isBlocked(booked, t, end, q.Buffer) {
				continue
			}

			slot := domain.Slot{
				DealerID:        q.Key.DealerID,
				VehicleID:       q.Key.VehicleID,
				StartTime:       t,
				EndTime:         end,
				DurationMinutes: int(q.Duration / time.Minute),
			}
			if !yield(slot) {
				return
			}
		}
	}
}

func isBlocked(booked []domain.Appointment, start, end time.Time, buffer time.Duration) bool {
	for _, appointment := range booked {
		if appointment.Blocks(start, end, buffer) {
			return true
		}
	}
	return false
}

// Contains reports whether slots offers exactly [start, start+duration).
func Contains(slots iter.Seq[domain.Slot], start time.Time, duration time.Duration) bool {
	for slot := range slots {
		if slot.StartTime.Equal(start) && slot.EndTime.Sub(slot.StartTime) == duration {
			return true
		}
		if slot.StartTime.After(start) {
			return false
		}
	}
	return false
}
