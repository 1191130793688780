package calendar

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/json_types"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
	"github.com/suchimauz/testdrive-scheduler/internal/utils"
	"golang.org/x/sync/singleflight"
)

const rebuildTimeout = 30 * time.Second

// Aggregator projects a dealer's appointments onto calendar days. The
// projection is rebuilt from the store on demand and is never a source of
// truth; availability does not read it.
type Aggregator struct {
	store  out.AppointmentStorePort
	hours  out.OperatingHoursPort
	cache  out.CalendarCachePort
	logger out.LoggerPort
	now    func() time.Time

	group      singleflight.Group
	generation atomic.Uint64
}

// NewAggregator accepts a nil cache, in which case every view is rebuilt.
func NewAggregator(store out.AppointmentStorePort, hours out.OperatingHoursPort, cache out.CalendarCachePort, logger out.LoggerPort, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		store:  store,
		hours:  hours,
		cache:  cache,
		logger: logger.WithModule("CalendarAggregator"),
		now:    now,
	}
}

// MonthView returns the projection of one month. The result is shared and
// must be treated as read-only.
func (a *Aggregator) MonthView(ctx context.Context, dealerID string, year int, month time.Month) (*domain.MonthProjection, error) {
	if a.cache != nil {
		if projection, ok := a.cache.GetMonth(ctx, dealerID, year, month); ok {
			a.logger.Debug("calendar.month.cache.hit", out.LogFields{
				"dealerId": dealerID,
				"month":    fmt.Sprintf("%04d-%02d", year, month),
			})
			return projection, nil
		}
	}

	// The shared rebuild outlives any single caller; each caller still
	// gives up when its own context ends.
	key := fmt.Sprintf("%s|%04d-%02d", dealerID, year, month)
	result := a.group.DoChan(key, func() (interface{}, error) {
		rebuildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rebuildTimeout)
		defer cancel()
		return a.rebuild(rebuildCtx, dealerID, year, month)
	})

	select {
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			a.logger.Debug("calendar.month.rebuild.shared", out.LogFields{"key": key})
		}
		return res.Val.(*domain.MonthProjection), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DayView returns the appointments of one dealer day ordered by start,
// every status included.
func (a *Aggregator) DayView(ctx context.Context, dealerID string, date json_types.Date) ([]domain.Appointment, error) {
	projection, err := a.MonthView(ctx, dealerID, date.Year, date.Month)
	if err != nil {
		return nil, err
	}

	day := projection.Day(date)
	appointments := make([]domain.Appointment, len(day.Appointments))
	copy(appointments, day.Appointments)
	return appointments, nil
}

func (a *Aggregator) rebuild(ctx context.Context, dealerID string, year int, month time.Month) (*domain.MonthProjection, error) {
	generation := a.generation.Load()

	loc, err := a.hours.Location(ctx, dealerID)
	if err != nil {
		return nil, fmt.Errorf("calendar.rebuild.location_failed: %w", err)
	}

	from, to := utils.MonthBounds(year, month, loc)
	appointments, err := a.store.ListByDealer(ctx, dealerID, from, to)
	if err != nil {
		a.logger.Error("calendar.rebuild.fetch_failed", out.LogFields{
			"dealerId": dealerID,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("calendar.rebuild.fetch_failed: %w", err)
	}

	projection := Project(dealerID, year, month, loc, appointments)
	projection.BuiltAt = a.now().UTC()

	// A write that landed during the rebuild makes this projection stale.
	// The second check catches an invalidation that ran between the first
	// check and the store.
	if a.cache != nil && a.generation.Load() == generation {
		a.cache.StoreMonth(ctx, projection)
		if a.generation.Load() != generation {
			a.cache.InvalidateMonth(ctx, dealerID, year, month)
		}
	}

	a.logger.Debug("calendar.rebuild.done", out.LogFields{
		"dealerId":     dealerID,
		"month":        fmt.Sprintf("%04d-%02d", year, month),
		"appointments": len(appointments),
	})

	return projection, nil
}

// Project groups appointments starting within the month by local date.
// Input order does not matter; each day ends up ordered by start.
func Project(dealerID string, year int, month time.Month, loc *time.Location, appointments []domain.Appointment) *domain.MonthProjection {
	projection := domain.NewMonthProjection(dealerID, year, month)
	from, to := utils.MonthBounds(year, month, loc)

	for _, appointment := range appointments {
		if appointment.DealerID != dealerID {
			continue
		}
		if appointment.Start.Before(from) || !appointment.Start.Before(to) {
			continue
		}

		date := json_types.DateOf(appointment.Start.In(loc))
		summary, ok := projection.Days[date]
		if !ok {
			summary = &domain.DaySummary{
				Date:     date,
				ByStatus: make(map[domain.AppointmentStatus]int),
			}
			projection.Days[date] = summary
		}
		summary.Total++
		summary.ByStatus[appointment.Status]++
		summary.Appointments = insertByStart(summary.Appointments, appointment)
	}

	return projection
}

func insertByStart(list []domain.Appointment, appointment domain.Appointment) []domain.Appointment {
	i := len(list)
	for i > 0 && list[i-1].Start.After(appointment.Start) {
		i--
	}
	list = append(list, domain.Appointment{})
	copy(list[i+1:], list[i:])
	list[i] = appointment
	return list
}

// Invalidate drops the month containing appointment.
func (a *Aggregator) Invalidate(ctx context.Context, appointment domain.Appointment) {
	a.generation.Add(1)
	if a.cache == nil {
		return
	}

	loc, err := a.hours.Location(ctx, appointment.DealerID)
	if err != nil {
		a.logger.Warn("calendar.invalidate.location_failed", out.LogFields{
			"dealerId": appointment.DealerID,
			"error":    err.Error(),
		})
		a.cache.InvalidateDealer(ctx, appointment.DealerID)
		return
	}

	local := appointment.Start.In(loc)
	a.cache.InvalidateMonth(ctx, appointment.DealerID, local.Year(), local.Month())
}

func (a *Aggregator) InvalidateAll(ctx context.Context) {
	a.generation.Add(1)
	if a.cache != nil {
		a.cache.InvalidateAll(ctx)
	}
}
