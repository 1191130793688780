package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/testdrive-scheduler/internal/config"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/json_types"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/in"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
	"github.com/suchimauz/testdrive-scheduler/internal/core/services/availability"
	"github.com/suchimauz/testdrive-scheduler/internal/core/services/calendar"
	"github.com/suchimauz/testdrive-scheduler/internal/core/services/lifecycle"
	"github.com/suchimauz/testdrive-scheduler/internal/utils"
)

const maxNoteLength = 2000

type SchedulingSettings struct {
	DefaultDuration time.Duration
	MinDuration     time.Duration
	MaxDuration     time.Duration
	Buffer          time.Duration
	Granularity     time.Duration
	NotifyTimeout   time.Duration

	// InstanceID tags published store events so a replica can skip its own.
	InstanceID string
}

func SettingsFromConfig(cfg *config.Config) SchedulingSettings {
	return SchedulingSettings{
		DefaultDuration: utils.Minutes(cfg.Scheduling.DefaultDurationMinutes),
		MinDuration:     utils.Minutes(cfg.Scheduling.MinDurationMinutes),
		MaxDuration:     utils.Minutes(cfg.Scheduling.MaxDurationMinutes),
		Buffer:          utils.Minutes(cfg.Scheduling.BufferMinutes),
		Granularity:     utils.Minutes(cfg.Scheduling.GranularityMinutes),
		NotifyTimeout:   cfg.Scheduling.NotifyTimeout,
		InstanceID:      uuid.NewString(),
	}
}

// Dependencies of the scheduling service. Directory, Notifier, Events and
// CalendarCache are optional.
type Dependencies struct {
	Store         out.AppointmentStorePort
	Hours         out.OperatingHoursPort
	Directory     out.DirectoryPort
	Notifier      out.NotifierPort
	Events        out.AppointmentEventsPort
	CalendarCache out.CalendarCachePort
	Logger        out.LoggerPort
	Now           func() time.Time
}

// SchedulingService is the boundary of test-drive scheduling. It composes
// the availability resolver, the lifecycle manager and the calendar
// aggregator, and translates their errors into *domain.SchedulingError.
type SchedulingService struct {
	resolver  *availability.Resolver
	lifecycle *lifecycle.Manager
	calendar  *calendar.Aggregator

	store     out.AppointmentStorePort
	hours     out.OperatingHoursPort
	directory out.DirectoryPort
	notifier  out.NotifierPort
	events    out.AppointmentEventsPort

	settings SchedulingSettings
	logger   out.LoggerPort
	now      func() time.Time

	background sync.WaitGroup
}

var _ in.SchedulingUseCase = (*SchedulingService)(nil)

func NewSchedulingService(deps Dependencies, settings SchedulingSettings) *SchedulingService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if settings.NotifyTimeout <= 0 {
		settings.NotifyTimeout = 15 * time.Second
	}

	return &SchedulingService{
		resolver:  availability.NewResolver(deps.Store, deps.Logger),
		lifecycle: lifecycle.NewManager(deps.Store, deps.Logger, now),
		calendar:  calendar.NewAggregator(deps.Store, deps.Hours, deps.CalendarCache, deps.Logger, now),
		store:     deps.Store,
		hours:     deps.Hours,
		directory: deps.Directory,
		notifier:  deps.Notifier,
		events:    deps.Events,
		settings:  settings,
		logger:    deps.Logger.WithModule("SchedulingService"),
		now:       now,
	}
}

func (s *SchedulingService) GetAvailability(ctx context.Context, dealerID, vehicleID string, date json_types.Date) ([]domain.Slot, error) {
	key := domain.VehicleKey{DealerID: dealerID, VehicleID: vehicleID}
	if err := validateKey(key); err != nil {
		return nil, s.fail("availability.get", err)
	}

	query, err := s.query(ctx, key, date, s.settings.DefaultDuration)
	if err != nil {
		return nil, s.fail("availability.get", err)
	}

	slots, err := s.resolver.Resolve(ctx, query)
	if err != nil {
		return nil, s.fail("availability.get", err)
	}

	result := slices.Collect(slots)
	if result == nil {
		result = []domain.Slot{}
	}

	s.logger.Debug("availability.get.done", out.LogFields{
		"dealerId":  dealerID,
		"vehicleId": vehicleID,
		"date":      date.String(),
		"slots":     len(result),
	})
	return result, nil
}

// Book re-checks the requested start against live state while holding the
// vehicle's write lock, then creates a pending appointment.
func (s *SchedulingService) Book(ctx context.Context, req in.BookRequest) (*domain.Appointment, error) {
	key := domain.VehicleKey{DealerID: req.DealerID, VehicleID: req.VehicleID}
	duration, err := s.validateBooking(key, req)
	if err != nil {
		return nil, s.fail("appointments.book", err)
	}

	loc, err := s.hours.Location(ctx, key.DealerID)
	if err != nil {
		return nil, s.fail("appointments.book", err)
	}
	date := json_types.DateOf(req.Start.In(loc))

	query, err := s.query(ctx, key, date, duration)
	if err != nil {
		return nil, s.fail("appointments.book", err)
	}

	var created domain.Appointment
	err = s.store.WithVehicleLock(ctx, key, func(tx out.AppointmentTx) error {
		slots, err := s.resolver.ResolveTx(ctx, tx, query)
		if err != nil {
			return err
		}
		if !availability.Contains(slots, req.Start, duration) {
			return fmt.Errorf("%w: %s at %s", domain.ErrSlotUnavailable, key, req.Start.In(loc).Format(time.RFC3339))
		}

		created = s.lifecycle.NewPending(lifecycle.NewAppointment{
			Key:             key,
			CustomerID:      req.CustomerID,
			Start:           req.Start,
			DurationMinutes: int(duration / time.Minute),
			Note:            strings.TrimSpace(req.Note),
		})
		return tx.Insert(ctx, created)
	})
	if err != nil {
		return nil, s.fail("appointments.book", err)
	}

	s.logger.Info("appointments.book.created", out.LogFields{
		"appointmentId": created.ID,
		"dealerId":      created.DealerID,
		"vehicleId":     created.VehicleID,
		"customerId":    created.CustomerID,
		"start":         created.Start,
	})

	s.afterWrite(ctx, domain.AppointmentEventCreated, created)
	return &created, nil
}

func (s *SchedulingService) Confirm(ctx context.Context, appointmentID uuid.UUID, actor domain.Actor) (*domain.Appointment, error) {
	return s.transition(ctx, "appointments.confirm", appointmentID, domain.AppointmentStatusConfirmed, actor, "")
}

func (s *SchedulingService) Complete(ctx context.Context, appointmentID uuid.UUID, actor domain.Actor) (*domain.Appointment, error) {
	return s.transition(ctx, "appointments.complete", appointmentID, domain.AppointmentStatusCompleted, actor, "")
}

func (s *SchedulingService) Cancel(ctx context.Context, appointmentID uuid.UUID, actor domain.Actor, reason string) (*domain.Appointment, error) {
	return s.transition(ctx, "appointments.cancel", appointmentID, domain.AppointmentStatusCancelled, actor, strings.TrimSpace(reason))
}

func (s *SchedulingService) transition(ctx context.Context, event string, id uuid.UUID, target domain.AppointmentStatus, actor domain.Actor, reason string) (*domain.Appointment, error) {
	updated, err := s.lifecycle.Transition(ctx, id, target, actor, reason)
	if err != nil {
		return nil, s.fail(event, err)
	}

	s.afterWrite(ctx, domain.AppointmentEventStatusChanged, *updated)
	return updated, nil
}

func (s *SchedulingService) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (*domain.Appointment, error) {
	appointment, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		return nil, s.fail("appointments.get", err)
	}
	return appointment, nil
}

func (s *SchedulingService) ListForDate(ctx context.Context, dealerID string, date json_types.Date) ([]domain.Appointment, error) {
	if dealerID == "" {
		return nil, s.fail("appointments.list_for_date", domain.NewValidationError("dealerId", "is required"))
	}
	if date.IsZero() {
		return nil, s.fail("appointments.list_for_date", domain.NewValidationError("date", "is required"))
	}

	appointments, err := s.calendar.DayView(ctx, dealerID, date)
	if err != nil {
		return nil, s.fail("appointments.list_for_date", err)
	}
	return appointments, nil
}

func (s *SchedulingService) ListForCustomer(ctx context.Context, customerID string) ([]domain.Appointment, error) {
	if customerID == "" {
		return nil, s.fail("appointments.list_for_customer", domain.NewValidationError("customerId", "is required"))
	}

	appointments, err := s.store.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, s.fail("appointments.list_for_customer", err)
	}
	return appointments, nil
}

func (s *SchedulingService) MonthOverview(ctx context.Context, dealerID string, year int, month time.Month) (*domain.MonthProjection, error) {
	if dealerID == "" {
		return nil, s.fail("calendar.month", domain.NewValidationError("dealerId", "is required"))
	}
	if month < time.January || month > time.December {
		return nil, s.fail("calendar.month", domain.NewValidationError("month", "must be within 1..12"))
	}

	projection, err := s.calendar.MonthView(ctx, dealerID, year, month)
	if err != nil {
		return nil, s.fail("calendar.month", err)
	}
	return projection, nil
}

func (s *SchedulingService) ApplyStoreEvent(ctx context.Context, event domain.AppointmentEvent) {
	if event.Source != "" && event.Source == s.settings.InstanceID {
		return
	}
	if event.Appointment.DealerID == "" {
		s.calendar.InvalidateAll(ctx)
		return
	}
	s.calendar.Invalidate(ctx, event.Appointment)
}

// WaitBackground blocks until in-flight notifications and event publishing
// have finished.
func (s *SchedulingService) WaitBackground() {
	s.background.Wait()
}

// afterWrite runs once per committed write. Publishing and notification are
// detached from the request and bounded by NotifyTimeout.
func (s *SchedulingService) afterWrite(ctx context.Context, eventType domain.AppointmentEventType, appointment domain.Appointment) {
	s.calendar.Invalidate(ctx, appointment)

	if s.events == nil && s.notifier == nil {
		return
	}

	event := domain.AppointmentEvent{
		Type:        eventType,
		Source:      s.settings.InstanceID,
		Appointment: appointment,
		OccurredAt:  s.now().UTC(),
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()

		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settings.NotifyTimeout)
		defer cancel()

		if s.events != nil {
			if err := s.events.Publish(bgCtx, event); err != nil {
				s.logger.Warn("appointments.event.publish_failed", out.LogFields{
					"appointmentId": appointment.ID,
					"type":          eventType,
					"error":         err.Error(),
				})
			}
		}

		if s.notifier != nil {
			s.notify(bgCtx, appointment)
		}
	}()
}

func (s *SchedulingService) notify(ctx context.Context, appointment domain.Appointment) {
	notification := s.enrich(ctx, appointment)

	if err := s.notifier.NotifyStatus(ctx, notification); err != nil {
		s.logger.Warn("appointments.notify.failed", out.LogFields{
			"appointmentId": appointment.ID,
			"status":        appointment.Status,
			"error":         err.Error(),
		})
		return
	}

	s.logger.Debug("appointments.notify.sent", out.LogFields{
		"appointmentId": appointment.ID,
		"status":        appointment.Status,
	})
}

// enrich fills directory details. Lookup failures leave the ids only.
func (s *SchedulingService) enrich(ctx context.Context, appointment domain.Appointment) domain.Notification {
	notification := domain.Notification{
		Appointment: appointment,
		Customer:    domain.Customer{ID: appointment.CustomerID},
		Vehicle:     domain.Vehicle{ID: appointment.VehicleID},
		Dealer:      domain.Dealer{ID: appointment.DealerID},
	}
	if s.directory == nil {
		return notification
	}

	if customer, err := s.directory.GetCustomer(ctx, appointment.CustomerID); err == nil {
		notification.Customer = *customer
	} else {
		s.logger.Warn("appointments.notify.customer_lookup_failed", out.LogFields{
			"customerId": appointment.CustomerID,
			"error":      err.Error(),
		})
	}
	if vehicle, err := s.directory.GetVehicle(ctx, appointment.VehicleID); err == nil {
		notification.Vehicle = *vehicle
	}
	if dealer, err := s.directory.GetDealer(ctx, appointment.DealerID); err == nil {
		notification.Dealer = *dealer
	}

	return notification
}

func (s *SchedulingService) query(ctx context.Context, key domain.VehicleKey, date json_types.Date, duration time.Duration) (availability.Query, error) {
	if date.IsZero() {
		return availability.Query{}, domain.NewValidationError("date", "is required")
	}

	loc, err := s.hours.Location(ctx, key.DealerID)
	if err != nil {
		return availability.Query{}, err
	}

	hours, err := s.hours.HoursFor(ctx, key.DealerID, date)
	if err != nil {
		return availability.Query{}, err
	}

	return availability.Query{
		Key:         key,
		Hours:       hours,
		Location:    loc,
		Duration:    duration,
		Buffer:      s.settings.Buffer,
		Granularity: s.settings.Granularity,
		Now:         s.now(),
	}, nil
}

func (s *SchedulingService) validateBooking(key domain.VehicleKey, req in.BookRequest) (time.Duration, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	if req.CustomerID == "" {
		return 0, domain.NewValidationError("customerId", "is required")
	}
	if req.Start.IsZero() {
		return 0, domain.NewValidationError("start", "is required")
	}
	if req.Start.Before(s.now()) {
		return 0, domain.NewValidationError("start", "must not be in the past")
	}
	if len(req.Note) > maxNoteLength {
		return 0, domain.NewValidationError("note", fmt.Sprintf("must not exceed %d characters", maxNoteLength))
	}

	minutes := int(s.settings.DefaultDuration / time.Minute)
	if req.DurationMinutes != 0 {
		minutes = req.DurationMinutes
	}
	// bounded as minutes before conversion so huge values cannot wrap into range
	minMinutes, maxMinutes := int(s.settings.MinDuration/time.Minute), int(s.settings.MaxDuration/time.Minute)
	if minutes < minMinutes || minutes > maxMinutes {
		return 0, domain.NewValidationError("durationMinutes", fmt.Sprintf("must be within [%d, %d]", minMinutes, maxMinutes))
	}

	return utils.Minutes(minutes), nil
}

func validateKey(key domain.VehicleKey) error {
	if key.DealerID == "" {
		return domain.NewValidationError("dealerId", "is required")
	}
	if key.VehicleID == "" {
		return domain.NewValidationError("vehicleId", "is required")
	}
	return nil
}

func (s *SchedulingService) fail(event string, err error) error {
	schedulingErr := domain.AsSchedulingError(err)

	fields := out.LogFields{
		"code":  schedulingErr.Code,
		"error": err.Error(),
	}
	if schedulingErr.Code == domain.ErrorCodeInternal && !errors.Is(err, context.Canceled) {
		s.logger.Error(event+".failed", fields)
	} else {
		s.logger.Info(event+".rejected", fields)
	}

	return schedulingErr
}
