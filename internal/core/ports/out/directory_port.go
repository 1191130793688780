package out

import (
	"context"

	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
)

type DirectoryPort interface {
	GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error)
	GetVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error)
	GetDealer(ctx context.Context, dealerID string) (*domain.Dealer, error)
}
