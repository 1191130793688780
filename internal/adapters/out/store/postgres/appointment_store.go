package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
	"gorm.io/gorm"
)

type appointmentRecord struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	DealerID        string    `gorm:"not null;index:idx_testdrive_vehicle,priority:1;index:idx_testdrive_dealer_start,priority:1"`
	VehicleID       string    `gorm:"not null;index:idx_testdrive_vehicle,priority:2"`
	CustomerID      string    `gorm:"not null;index"`
	StartAt         time.Time `gorm:"not null;index:idx_testdrive_vehicle,priority:3;index:idx_testdrive_dealer_start,priority:2"`
	EndAt           time.Time `gorm:"not null"`
	DurationMinutes int       `gorm:"not null"`
	Status          string    `gorm:"type:varchar(16);not null"`
	Note            string
	CancelReason    string
	StatusChangedBy string
	CreatedAt       time.Time
	StatusChangedAt time.Time
}

func (appointmentRecord) TableName() string {
	return "testdrive_appointments"
}

func toRecord(a domain.Appointment) appointmentRecord {
	return appointmentRecord{
		ID:              a.ID,
		DealerID:        a.DealerID,
		VehicleID:       a.VehicleID,
		CustomerID:      a.CustomerID,
		StartAt:         a.Start.UTC(),
		EndAt:           a.End().UTC(),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Note:            a.Note,
		CancelReason:    a.CancelReason,
		StatusChangedBy: a.StatusChangedBy,
		CreatedAt:       a.CreatedAt.UTC(),
		StatusChangedAt: a.StatusChangedAt.UTC(),
	}
}

func (r appointmentRecord) toDomain() domain.Appointment {
	return domain.Appointment{
		ID:              r.ID,
		DealerID:        r.DealerID,
		VehicleID:       r.VehicleID,
		CustomerID:      r.CustomerID,
		Start:           r.StartAt.UTC(),
		DurationMinutes: r.DurationMinutes,
		Status:          domain.AppointmentStatus(r.Status),
		Note:            r.Note,
		CancelReason:    r.CancelReason,
		StatusChangedBy: r.StatusChangedBy,
		CreatedAt:       r.CreatedAt.UTC(),
		StatusChangedAt: r.StatusChangedAt.UTC(),
	}
}

func toDomainList(records []appointmentRecord) []domain.Appointment {
	list := make([]domain.Appointment, 0, len(records))
	for _, r := range records {
		list = append(list, r.toDomain())
	}
	return list
}

var activeStatuses = []string{
	string(domain.AppointmentStatusPending),
	string(domain.AppointmentStatusConfirmed),
}

// AppointmentStore keeps appointments in postgres. Writes for one vehicle
// are serialized by a transaction-scoped advisory lock, so several replicas
// can share the database.
type AppointmentStore struct {
	db     *gorm.DB
	logger out.LoggerPort
}

var _ out.AppointmentStorePort = (*AppointmentStore)(nil)

func NewAppointmentStore(db *gorm.DB, logger out.LoggerPort) *AppointmentStore {
	return &AppointmentStore{
		db:     db,
		logger: logger.WithModule("PostgresAppointmentStore"),
	}
}

func (s *AppointmentStore) WithVehicleLock(ctx context.Context, key domain.VehicleKey, fn func(tx out.AppointmentTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key.String()).Error; err != nil {
			return fmt.Errorf("store.lock.failed: %w", err)
		}

		if err := fn(&appointmentTx{db: tx, key: key}); err != nil {
			return err
		}

		// Commit only while the caller still waits for the result.
		return ctx.Err()
	})
}

func (s *AppointmentStore) Get(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	var record appointmentRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		s.logger.Error("store.get.failed", out.LogFields{
			"appointmentId": id,
			"error":         err.Error(),
		})
		return nil, fmt.Errorf("store.get.failed: %w", err)
	}

	appointment := record.toDomain()
	return &appointment, nil
}

func (s *AppointmentStore) ListActive(ctx context.Context, key domain.VehicleKey, from, to time.Time) ([]domain.Appointment, error) {
	return listActive(s.db.WithContext(ctx), key, from, to)
}

func (s *AppointmentStore) ListByDealer(ctx context.Context, dealerID string, from, to time.Time) ([]domain.Appointment, error) {
	var records []appointmentRecord
	err := s.db.WithContext(ctx).
		Where("dealer_id = ? AND start_at < ? AND end_at > ?", dealerID, to.UTC(), from.UTC()).
		Order("start_at").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("store.list_by_dealer.failed: %w", err)
	}
	return toDomainList(records), nil
}

func (s *AppointmentStore) ListByCustomer(ctx context.Context, customerID string) ([]domain.Appointment, error) {
	var records []appointmentRecord
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("start_at").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("store.list_by_customer.failed: %w", err)
	}
	return toDomainList(records), nil
}

func (s *AppointmentStore) UpdateStatus(ctx context.Context, change out.StatusChange) (*domain.Appointment, error) {
	updates := map[string]interface{}{
		"status":            string(change.To),
		"status_changed_at": change.At.UTC(),
		"status_changed_by": change.ChangedBy,
	}
	if change.To == domain.AppointmentStatusCancelled {
		updates["cancel_reason"] = change.CancelReason
	}

	result := s.db.WithContext(ctx).
		Model(&appointmentRecord{}).
		Where("id = ? AND status = ?", change.ID, string(change.From)).
		Updates(updates)
	if result.Error != nil {
		s.logger.Error("store.update_status.failed", out.LogFields{
			"appointmentId": change.ID,
			"error":         result.Error.Error(),
		})
		return nil, fmt.Errorf("store.update_status.failed: %w", result.Error)
	}

	current, err := s.Get(ctx, change.ID)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return current, out.ErrStatusMismatch
	}
	return current, nil
}

type appointmentTx struct {
	db  *gorm.DB
	key domain.VehicleKey
}

func (tx *appointmentTx) ListActive(ctx context.Context, from, to time.Time) ([]domain.Appointment, error) {
	return listActive(tx.db.WithContext(ctx), tx.key, from, to)
}

func (tx *appointmentTx) Insert(ctx context.Context, appointment domain.Appointment) error {
	if appointment.Key() != tx.key {
		return fmt.Errorf("store.insert.foreign_key: %s is not locked", appointment.Key())
	}

	record := toRecord(appointment)
	if err := tx.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("store.insert.failed: %w", err)
	}
	return nil
}

func listActive(db *gorm.DB, key domain.VehicleKey, from, to time.Time) ([]domain.Appointment, error) {
	var records []appointmentRecord
	err := db.
		Where("dealer_id = ? AND vehicle_id = ?", key.DealerID, key.VehicleID).
		Where("status IN ?", activeStatuses).
		Where("start_at < ? AND end_at > ?", to.UTC(), from.UTC()).
		Order("start_at").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("store.list_active.failed: %w", err)
	}
	return toDomainList(records), nil
}
