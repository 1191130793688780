package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suchimauz/testdrive-scheduler/internal/adapters/out/cache"
	"github.com/suchimauz/testdrive-scheduler/internal/adapters/out/directory"
	"github.com/suchimauz/testdrive-scheduler/internal/adapters/out/hours"
	"github.com/suchimauz/testdrive-scheduler/internal/adapters/out/logger"
	"github.com/suchimauz/testdrive-scheduler/internal/adapters/out/store/memory"
	"github.com/suchimauz/testdrive-scheduler/internal/config"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/json_types"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/in"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
)

const (
	dealerID   = "dealer-1"
	vehicleID  = "vehicle-1"
	customerID = "customer-1"
)

var (
	staff    = domain.Actor{ID: "alice", Role: domain.ActorRoleStaff}
	testDate = json_types.Date{Year: 2030, Month: time.January, Day: 8}
)

func at(hour, minute int) time.Time {
	return time.Date(2030, 1, 8, hour, minute, 0, 0, time.UTC)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (n *recordingNotifier) NotifyStatus(ctx context.Context, notification domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return n.err
}

func (n *recordingNotifier) statuses() []domain.AppointmentStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	result := make([]domain.AppointmentStatus, 0, len(n.sent))
	for _, notification := range n.sent {
		result = append(result, notification.Appointment.Status)
	}
	return result
}

type recordingEvents struct {
	mu     sync.Mutex
	events []domain.AppointmentEvent
}

func (e *recordingEvents) Publish(ctx context.Context, event domain.AppointmentEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

type fixture struct {
	service  *SchedulingService
	store    *memory.AppointmentStore
	notifier *recordingNotifier
	events   *recordingEvents
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	quiet := logger.NewWriterLogger(io.Discard, out.LogLevelError)

	nine, err := json_types.ParseClock("09:00")
	require.NoError(t, err)
	six, err := json_types.ParseClock("18:00")
	require.NoError(t, err)
	open := hours.DayHours{Open: &nine, Close: &six}

	operatingHours, err := hours.New(hours.HoursFile{
		Default: &hours.DealerHours{
			Timezone: "UTC",
			Weekly: map[string]hours.DayHours{
				"mon": open, "tue": open, "wed": open, "thu": open, "fri": open, "sat": open, "sun": open,
			},
		},
	}, quiet)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Cache.Enabled = true
	cfg.Cache.CalendarSize = 16
	calendarCache, err := cache.NewLRUCalendarCache(cfg, quiet)
	require.NoError(t, err)

	f := &fixture{
		store:    memory.NewAppointmentStore(),
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
	}
	f.service = NewSchedulingService(Dependencies{
		Store: f.store,
		Hours: operatingHours,
		Directory: &directory.StaticDirectory{
			Customers: map[string]domain.Customer{customerID: {ID: customerID, Name: "Ann", Email: "ann@example.com"}},
		},
		Notifier:      f.notifier,
		Events:        f.events,
		CalendarCache: calendarCache,
		Logger:        quiet,
		Now: func() time.Time {
			return time.Date(2030, 1, 7, 12, 0, 0, 0, time.UTC)
		},
	}, SchedulingSettings{
		DefaultDuration: time.Hour,
		MinDuration:     15 * time.Minute,
		MaxDuration:     4 * time.Hour,
		Buffer:          10 * time.Minute,
		NotifyTimeout:   time.Second,
		InstanceID:      "replica-a",
	})
	return f
}

func (f *fixture) book(start time.Time) (*domain.Appointment, error) {
	return f.service.Book(context.Background(), in.BookRequest{
		DealerID:   dealerID,
		VehicleID:  vehicleID,
		CustomerID: customerID,
		Start:      start,
	})
}

func requireCode(t *testing.T, err error, code domain.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	var se *domain.SchedulingError
	require.True(t, errors.As(err, &se), "expected *domain.SchedulingError, got %T", err)
	assert.Equal(t, code, se.Code)
}

func TestScenarioAPaddedIntervalBlocksSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	existing, err := f.book(at(10, 0))
	require.NoError(t, err)
	_, err = f.service.Confirm(ctx, existing.ID, staff)
	require.NoError(t, err)

	slots, err := f.service.GetAvailability(ctx, dealerID, vehicleID, testDate)
	require.NoError(t, err)
	for _, slot := range slots {
		intersects := slot.StartTime.Before(at(11, 10)) && slot.EndTime.After(at(9, 50))
		assert.False(t, intersects, "slot %s intersects the padded interval", slot.StartTime)
	}
	require.NotEmpty(t, slots)
	assert.Equal(t, at(12, 0), slots[0].StartTime)

	_, err = f.book(at(10, 30))
	requireCode(t, err, domain.ErrorCodeSlotUnavailable)
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
}

func TestScenarioBConcurrentBookingsOfSameSlot(t *testing.T) {
	f := newFixture(t)

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan error, workers)
	booked := make(chan *domain.Appointment, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			appointment, err := f.book(at(14, 0))
			results <- err
			if err == nil {
				booked <- appointment
			}
		}()
	}
	wg.Wait()
	close(results)
	close(booked)

	failures := 0
	for err := range results {
		if err != nil {
			requireCode(t, err, domain.ErrorCodeSlotUnavailable)
			failures++
		}
	}
	assert.Equal(t, workers-1, failures)
	require.Len(t, booked, 1)
	assert.Equal(t, domain.AppointmentStatusPending, (<-booked).Status)

	active, err := f.store.ListActive(context.Background(), domain.VehicleKey{DealerID: dealerID, VehicleID: vehicleID}, at(9, 0), at(18, 0))
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestScenarioCFullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appointment, err := f.book(at(14, 0))
	require.NoError(t, err)

	confirmed, err := f.service.Confirm(ctx, appointment.ID, staff)
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentStatusConfirmed, confirmed.Status)

	completed, err := f.service.Complete(ctx, appointment.ID, staff)
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentStatusCompleted, completed.Status)

	_, err = f.service.Cancel(ctx, appointment.ID, staff, "")
	requireCode(t, err, domain.ErrorCodeInvalidTransition)

	f.service.WaitBackground()
	assert.Equal(t, []domain.AppointmentStatus{
		domain.AppointmentStatusPending,
		domain.AppointmentStatusConfirmed,
		domain.AppointmentStatusCompleted,
	}, orderedStatuses(f.notifier.statuses()))
}

// orderedStatuses sorts by lifecycle order; delivery order is not guaranteed.
func orderedStatuses(statuses []domain.AppointmentStatus) []domain.AppointmentStatus {
	result := make([]domain.AppointmentStatus, 0, len(statuses))
	for _, status := range domain.AppointmentStatuses {
		for _, s := range statuses {
			if s == status {
				result = append(result, s)
			}
		}
	}
	return result
}

func TestDuplicateCancelDoesNotNotifyTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appointment, err := f.book(at(14, 0))
	require.NoError(t, err)

	cancelled, err := f.service.Cancel(ctx, appointment.ID, staff, "customer called")
	require.NoError(t, err)
	assert.Equal(t, "customer called", cancelled.CancelReason)

	_, err = f.service.Cancel(ctx, appointment.ID, staff, "again")
	requireCode(t, err, domain.ErrorCodeInvalidTransition)

	f.service.WaitBackground()
	count := 0
	for _, status := range f.notifier.statuses() {
		if status == domain.AppointmentStatusCancelled {
			count++
		}
	}
	assert.Equal(t, 1, count)

	stored, err := f.service.GetAppointment(ctx, appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, "customer called", stored.CancelReason)
}

func TestCancelledSlotBecomesAvailableAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appointment, err := f.book(at(14, 0))
	require.NoError(t, err)
	_, err = f.book(at(14, 0))
	requireCode(t, err, domain.ErrorCodeSlotUnavailable)

	_, err = f.service.Cancel(ctx, appointment.ID, staff, "")
	require.NoError(t, err)

	_, err = f.book(at(14, 0))
	assert.NoError(t, err)
}

func TestEveryOfferedSlotIsBookable(t *testing.T) {
	probe := newFixture(t)
	_, err := probe.book(at(12, 0))
	require.NoError(t, err)

	slots, err := probe.service.GetAvailability(context.Background(), dealerID, vehicleID, testDate)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	for _, slot := range slots {
		f := newFixture(t)
		_, err := f.book(at(12, 0))
		require.NoError(t, err)

		_, err = f.book(slot.StartTime)
		assert.NoError(t, err, "slot %s was offered but could not be booked", slot.StartTime)
	}
}

func TestBookValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  in.BookRequest
	}{
		{"missing dealer", in.BookRequest{VehicleID: vehicleID, CustomerID: customerID, Start: at(14, 0)}},
		{"missing customer", in.BookRequest{DealerID: dealerID, VehicleID: vehicleID, Start: at(14, 0)}},
		{"past start", in.BookRequest{DealerID: dealerID, VehicleID: vehicleID, CustomerID: customerID, Start: time.Date(2030, 1, 6, 10, 0, 0, 0, time.UTC)}},
		{"too short", in.BookRequest{DealerID: dealerID, VehicleID: vehicleID, CustomerID: customerID, Start: at(14, 0), DurationMinutes: 5}},
		{"too long", in.BookRequest{DealerID: dealerID, VehicleID: vehicleID, CustomerID: customerID, Start: at(14, 0), DurationMinutes: 600}},
		{"duration overflowing into range", in.BookRequest{DealerID: dealerID, VehicleID: vehicleID, CustomerID: customerID, Start: at(14, 0), DurationMinutes: 60 + 1<<53}},
		{"negative duration", in.BookRequest{DealerID: dealerID, VehicleID: vehicleID, CustomerID: customerID, Start: at(14, 0), DurationMinutes: -60}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Book(ctx, tt.req)
			requireCode(t, err, domain.ErrorCodeValidation)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	mine, err := f.service.ListForCustomer(ctx, customerID)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestBookOffGridStartIsUnavailable(t *testing.T) {
	f := newFixture(t)

	_, err := f.book(at(14, 20))
	requireCode(t, err, domain.ErrorCodeSlotUnavailable)

	_, err = f.book(at(17, 30))
	requireCode(t, err, domain.ErrorCodeSlotUnavailable)
}

func TestBookCustomDuration(t *testing.T) {
	f := newFixture(t)

	appointment, err := f.service.Book(context.Background(), in.BookRequest{
		DealerID:        dealerID,
		VehicleID:       vehicleID,
		CustomerID:      customerID,
		Start:           at(9, 0),
		DurationMinutes: 30,
		Note:            "  wants to try the highway  ",
	})
	require.NoError(t, err)
	assert.Equal(t, 30, appointment.DurationMinutes)
	assert.Equal(t, "wants to try the highway", appointment.Note)
}

func TestGetAvailabilityRejectsPastDate(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.GetAvailability(context.Background(), dealerID, vehicleID, json_types.Date{Year: 2030, Month: time.January, Day: 6})
	requireCode(t, err, domain.ErrorCodeValidation)
}

func TestUnknownAppointment(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Confirm(context.Background(), uuid.New(), staff)
	requireCode(t, err, domain.ErrorCodeNotFound)

	_, err = f.service.GetAppointment(context.Background(), uuid.New())
	requireCode(t, err, domain.ErrorCodeNotFound)
}

func TestCalendarViewsFollowWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.book(at(10, 0))
	require.NoError(t, err)

	month, err := f.service.MonthOverview(ctx, dealerID, 2030, time.January)
	require.NoError(t, err)
	assert.Equal(t, 1, month.Day(testDate).ByStatus[domain.AppointmentStatusPending])

	_, err = f.book(at(14, 0))
	require.NoError(t, err)
	_, err = f.service.Cancel(ctx, first.ID, staff, "")
	require.NoError(t, err)

	day, err := f.service.ListForDate(ctx, dealerID, testDate)
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, domain.AppointmentStatusCancelled, day[0].Status)
	assert.Equal(t, domain.AppointmentStatusPending, day[1].Status)

	month, err = f.service.MonthOverview(ctx, dealerID, 2030, time.January)
	require.NoError(t, err)
	assert.Equal(t, 2, month.Day(testDate).Total)

	mine, err := f.service.ListForCustomer(ctx, customerID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestApplyStoreEventFromOtherReplica(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.ListForDate(ctx, dealerID, testDate)
	require.NoError(t, err)

	// another replica writes to the shared store
	remote := domain.Appointment{
		ID: uuid.New(), DealerID: dealerID, VehicleID: "vehicle-2", CustomerID: "customer-2",
		Start: at(15, 0), DurationMinutes: 60, Status: domain.AppointmentStatusPending,
	}
	require.NoError(t, f.store.WithVehicleLock(ctx, remote.Key(), func(tx out.AppointmentTx) error {
		return tx.Insert(ctx, remote)
	}))

	stale, err := f.service.ListForDate(ctx, dealerID, testDate)
	require.NoError(t, err)
	assert.Empty(t, stale)

	f.service.ApplyStoreEvent(ctx, domain.AppointmentEvent{Type: domain.AppointmentEventCreated, Source: "replica-b", Appointment: remote})

	fresh, err := f.service.ListForDate(ctx, dealerID, testDate)
	require.NoError(t, err)
	assert.Len(t, fresh, 1)
}

func TestWritesPublishEventsAndEnrichNotifications(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")

	appointment, err := f.book(at(14, 0))
	require.NoError(t, err, "delivery failures must not fail the booking")
	f.service.WaitBackground()

	require.Len(t, f.events.events, 1)
	assert.Equal(t, "replica-a", f.events.events[0].Source)
	assert.Equal(t, domain.AppointmentEventCreated, f.events.events[0].Type)
	assert.Equal(t, appointment.ID, f.events.events[0].Appointment.ID)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "ann@example.com", f.notifier.sent[0].Customer.Email)
	assert.Equal(t, vehicleID, f.notifier.sent[0].Vehicle.ID)
}
