//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suchimauz/testdrive-scheduler/internal/adapters/out/logger"
	pgstore "github.com/suchimauz/testdrive-scheduler/internal/adapters/out/store/postgres"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestStore(t *testing.T) *pgstore.AppointmentStore {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres integration tests")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, pgstore.Migrate(db))
	require.NoError(t, db.Exec("TRUNCATE testdrive_appointments").Error)

	return pgstore.NewAppointmentStore(db, logger.NewWriterLogger(io.Discard, out.LogLevelError))
}

func pending(key domain.VehicleKey, start time.Time) domain.Appointment {
	now := time.Now().UTC()
	return domain.Appointment{
		ID:              uuid.New(),
		DealerID:        key.DealerID,
		VehicleID:       key.VehicleID,
		CustomerID:      "customer-1",
		Start:           start,
		DurationMinutes: 60,
		Status:          domain.AppointmentStatusPending,
		CreatedAt:       now,
		StatusChangedAt: now,
	}
}

func TestAppointmentStoreIntegration(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	key := domain.VehicleKey{DealerID: "dealer-1", VehicleID: "vehicle-1"}
	start := time.Date(2030, 3, 4, 10, 0, 0, 0, time.UTC)

	appointment := pending(key, start)
	err := store.WithVehicleLock(ctx, key, func(tx out.AppointmentTx) error {
		return tx.Insert(ctx, appointment)
	})
	require.NoError(t, err)

	fetched, err := store.Get(ctx, appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.Start, fetched.Start)
	assert.Equal(t, domain.AppointmentStatusPending, fetched.Status)

	active, err := store.ListActive(ctx, key, start.Add(-time.Hour), start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, active, 1)

	updated, err := store.UpdateStatus(ctx, out.StatusChange{
		ID:        appointment.ID,
		From:      domain.AppointmentStatusPending,
		To:        domain.AppointmentStatusCancelled,
		At:        time.Now(),
		ChangedBy: "staff:alice",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentStatusCancelled, updated.Status)

	_, err = store.UpdateStatus(ctx, out.StatusChange{
		ID:   appointment.ID,
		From: domain.AppointmentStatusPending,
		To:   domain.AppointmentStatusConfirmed,
		At:   time.Now(),
	})
	assert.ErrorIs(t, err, out.ErrStatusMismatch)

	_, err = store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAppointmentStoreRollsBackOnError(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	key := domain.VehicleKey{DealerID: "dealer-1", VehicleID: "vehicle-2"}
	appointment := pending(key, time.Date(2030, 3, 4, 10, 0, 0, 0, time.UTC))

	boom := errors.New("boom")
	err := store.WithVehicleLock(ctx, key, func(tx out.AppointmentTx) error {
		require.NoError(t, tx.Insert(ctx, appointment))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.Get(ctx, appointment.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAppointmentStoreSerializesVehicleWrites(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	key := domain.VehicleKey{DealerID: "dealer-1", VehicleID: "vehicle-3"}
	start := time.Date(2030, 3, 4, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	inserted := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.WithVehicleLock(ctx, key, func(tx out.AppointmentTx) error {
				active, err := tx.ListActive(ctx, start, start.Add(time.Hour))
				if err != nil || len(active) > 0 {
					return err
				}
				inserted <- struct{}{}
				return tx.Insert(ctx, pending(key, start))
			})
		}()
	}
	wg.Wait()
	close(inserted)

	assert.Len(t, inserted, 1)
}
