package directory

import (
	"context"
	"fmt"

	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
)

// StaticDirectory answers from fixed maps. Used when DIRECTORY_URL is not
// configured and in tests.
type StaticDirectory struct {
	Customers map[string]domain.Customer
	Vehicles  map[string]domain.Vehicle
	Dealers   map[string]domain.Dealer
}

var _ out.DirectoryPort = (*StaticDirectory)(nil)

func (d *StaticDirectory) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	customer, ok := d.Customers[customerID]
	if !ok {
		return nil, fmt.Errorf("directory.customer.not_found: %s", customerID)
	}
	return &customer, nil
}

func (d *StaticDirectory) GetVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	vehicle, ok := d.Vehicles[vehicleID]
	if !ok {
		return nil, fmt.Errorf("directory.vehicle.not_found: %s", vehicleID)
	}
	return &vehicle, nil
}

func (d *StaticDirectory) GetDealer(ctx context.Context, dealerID string) (*domain.Dealer, error) {
	dealer, ok := d.Dealers[dealerID]
	if !ok {
		return nil, fmt.Errorf("directory.dealer.not_found: %s", dealerID)
	}
	return &dealer, nil
}
