package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
)

// AppointmentStore keeps appointments in process memory. Writes for one
// (dealer, vehicle) are serialized through a per-key semaphore.
type AppointmentStore struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]domain.Appointment

	locksMu sync.Mutex
	locks   map[domain.VehicleKey]chan struct{}
}

func NewAppointmentStore() *AppointmentStore {
	return &AppointmentStore{
		appointments: make(map[uuid.UUID]domain.Appointment),
		locks:        make(map[domain.VehicleKey]chan struct{}),
	}
}

func (s *AppointmentStore) lockFor(key domain.VehicleKey) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[key]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[key] = lock
	}
	return lock
}

func (s *AppointmentStore) WithVehicleLock(ctx context.Context, key domain.VehicleKey, fn func(tx out.AppointmentTx) error) error {
	lock := s.lockFor(key)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	tx := &appointmentTx{store: s, key: key}
	if err := fn(tx); err != nil {
		return err
	}
	// A caller that went away must not leave a half-made booking behind.
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, appointment := range tx.pending {
		if _, exists := s.appointments[appointment.ID]; exists {
			return fmt.Errorf("memory.appointments.insert: duplicate id %s", appointment.ID)
		}
	}
	for _, appointment := range tx.pending {
		s.appointments[appointment.ID] = appointment
	}
	return nil
}

func (s *AppointmentStore) Get(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appointment, ok := s.appointments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &appointment, nil
}

func (s *AppointmentStore) ListActive(ctx context.Context, key domain.VehicleKey, from, to time.Time) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filter(func(a domain.Appointment) bool {
		return a.Key() == key && a.Status.IsActive() && intersects(a, from, to)
	}), nil
}

func (s *AppointmentStore) ListByDealer(ctx context.Context, dealerID string, from, to time.Time) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filter(func(a domain.Appointment) bool {
		return a.DealerID == dealerID && intersects(a, from, to)
	}), nil
}

func (s *AppointmentStore) ListByCustomer(ctx context.Context, customerID string) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filter(func(a domain.Appointment) bool {
		return a.CustomerID == customerID
	}), nil
}

func (s *AppointmentStore) UpdateStatus(ctx context.Context, change out.StatusChange) (*domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appointment, ok := s.appointments[change.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if appointment.Status != change.From {
		return &appointment, out.ErrStatusMismatch
	}

	appointment.Status = change.To
	appointment.StatusChangedAt = change.At
	appointment.StatusChangedBy = change.ChangedBy
	if change.CancelReason != "" {
		appointment.CancelReason = change.CancelReason
	}
	s.appointments[change.ID] = appointment

	return &appointment, nil
}

// filter expects s.mu to be held.
func (s *AppointmentStore) filter(keep func(domain.Appointment) bool) []domain.Appointment {
	result := make([]domain.Appointment, 0)
	for _, appointment := range s.appointments {
		if keep(appointment) {
			result = append(result, appointment)
		}
	}
	sortByStart(result)
	return result
}

type appointmentTx struct {
	store   *AppointmentStore
	key     domain.VehicleKey
	pending []domain.Appointment
}

func (tx *appointmentTx) ListActive(ctx context.Context, from, to time.Time) ([]domain.Appointment, error) {
	committed, err := tx.store.ListActive(ctx, tx.key, from, to)
	if err != nil {
		return nil, err
	}
	for _, appointment := range tx.pending {
		if appointment.Status.IsActive() && intersects(appointment, from, to) {
			committed = append(committed, appointment)
		}
	}
	sortByStart(committed)
	return committed, nil
}

func (tx *appointmentTx) Insert(ctx context.Context, appointment domain.Appointment) error {
	if appointment.Key() != tx.key {
		return fmt.Errorf("memory.appointments.insert: appointment for %s inserted under lock %s", appointment.Key(), tx.key)
	}
	tx.pending = append(tx.pending, appointment)
	return nil
}

func intersects(a domain.Appointment, from, to time.Time) bool {
	return a.Start.Before(to) && a.End().After(from)
}

func sortByStart(list []domain.Appointment) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Start.Equal(list[j].Start) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].Start.Before(list[j].Start)
	})
}
