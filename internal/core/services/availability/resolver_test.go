package availability

import (
	"context"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suchimauz/testdrive-scheduler/internal/adapters/out/logger"
	"github.com/suchimauz/testdrive-scheduler/internal/adapters/out/store/memory"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/json_types"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
)

var (
	testKey  = domain.VehicleKey{DealerID: "dealer-1", VehicleID: "vehicle-1"}
	testDate = json_types.Date{Year: 2030, Month: time.January, Day: 8}
	testNow  = time.Date(2030, 1, 7, 12, 0, 0, 0, time.UTC)
)

func at(hour, minute int) time.Time {
	return time.Date(2030, 1, 8, hour, minute, 0, 0, time.UTC)
}

func newResolver(t *testing.T) (*Resolver, *memory.AppointmentStore) {
	t.Helper()
	store := memory.NewAppointmentStore()
	return NewResolver(store, logger.NewWriterLogger(io.Discard, out.LogLevelError)), store
}

func seed(t *testing.T, store *memory.AppointmentStore, start time.Time, minutes int, status domain.AppointmentStatus) {
	t.Helper()
	err := store.WithVehicleLock(context.Background(), testKey, func(tx out.AppointmentTx) error {
		return tx.Insert(context.Background(), domain.Appointment{
			ID:              uuid.New(),
			DealerID:        testKey.DealerID,
			VehicleID:       testKey.VehicleID,
			CustomerID:      "customer-1",
			Start:           start,
			DurationMinutes: minutes,
			Status:          status,
		})
	})
	require.NoError(t, err)
}

func query(granularity time.Duration) Query {
	return Query{
		Key: testKey,
		Hours: domain.OperatingHours{
			Date:  testDate,
			Open:  at(9, 0),
			Close: at(18, 0),
		},
		Location:    time.UTC,
		Duration:    time.Hour,
		Buffer:      10 * time.Minute,
		Granularity: granularity,
		Now:         testNow,
	}
}

func starts(slots []domain.Slot) []string {
	result := make([]string, 0, len(slots))
	for _, slot := range slots {
		result = append(result, slot.StartTime.Format("15:04"))
	}
	return result
}

func TestResolveExcludesPaddedInterval(t *testing.T) {
	resolver, store := newResolver(t)
	seed(t, store, at(10, 0), 60, domain.AppointmentStatusConfirmed)

	seq, err := resolver.Resolve(context.Background(), query(0))
	require.NoError(t, err)

	slots := slices.Collect(seq)
	assert.Equal(t, []string{"12:00", "13:00", "14:00", "15:00", "16:00", "17:00"}, starts(slots))
	for _, slot := range slots {
		assert.False(t, slot.StartTime.Before(at(11, 10)) && slot.EndTime.After(at(9, 50)))
	}

	assert.False(t, Contains(seq, at(10, 30), time.Hour))
	assert.True(t, Contains(seq, at(12, 0), time.Hour))
}

func TestResolveWithGranularity(t *testing.T) {
	resolver, store := newResolver(t)
	seed(t, store, at(10, 0), 60, domain.AppointmentStatusPending)

	seq, err := resolver.Resolve(context.Background(), query(30*time.Minute))
	require.NoError(t, err)

	got := starts(slices.Collect(seq))
	require.NotEmpty(t, got)
	assert.Equal(t, "11:30", got[0])
	assert.Equal(t, "17:00", got[len(got)-1])
}

func TestResolveIgnoresTerminalAppointments(t *testing.T) {
	resolver, store := newResolver(t)
	seed(t, store, at(10, 0), 60, domain.AppointmentStatusCancelled)
	seed(t, store, at(12, 0), 60, domain.AppointmentStatusCompleted)

	seq, err := resolver.Resolve(context.Background(), query(0))
	require.NoError(t, err)
	assert.Len(t, slices.Collect(seq), 9)
}

func TestResolveIsRestartable(t *testing.T) {
	resolver, _ := newResolver(t)

	seq, err := resolver.Resolve(context.Background(), query(0))
	require.NoError(t, err)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)
}

func TestResolveEmptyWindows(t *testing.T) {
	resolver, _ := newResolver(t)

	closed := query(0)
	closed.Hours = domain.ClosedDay(testDate, "holiday")
	seq, err := resolver.Resolve(context.Background(), closed)
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(seq))

	tooLong := query(0)
	tooLong.Duration = 10 * time.Hour
	seq, err = resolver.Resolve(context.Background(), tooLong)
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(seq))
}

func TestResolveSkipsPastStartsToday(t *testing.T) {
	resolver, _ := newResolver(t)

	q := query(0)
	q.Now = at(13, 30)
	seq, err := resolver.Resolve(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"14:00", "15:00", "16:00", "17:00"}, starts(slices.Collect(seq)))
}

func TestResolveRejectsInvalidQueries(t *testing.T) {
	resolver, _ := newResolver(t)

	past := query(0)
	past.Now = time.Date(2030, 1, 9, 8, 0, 0, 0, time.UTC)
	_, err := resolver.Resolve(context.Background(), past)
	assert.ErrorIs(t, err, domain.ErrValidation)

	zero := query(0)
	zero.Duration = 0
	_, err = resolver.Resolve(context.Background(), zero)
	assert.ErrorIs(t, err, domain.ErrValidation)

	negative := query(0)
	negative.Buffer = -time.Minute
	_, err = resolver.Resolve(context.Background(), negative)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSlotsStopsWhenConsumerStops(t *testing.T) {
	var taken int
	for range Slots(query(0), nil) {
		taken++
		if taken == 2 {
			break
		}
	}
	assert.Equal(t, 2, taken)
}
