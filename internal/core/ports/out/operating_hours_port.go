package out

import (
	"context"
	"time"

	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/json_types"
)

type OperatingHoursPort interface {
	Location(ctx context.Context, dealerID string) (*time.Location, error)
	HoursFor(ctx context.Context, dealerID string, date json_types.Date) (domain.OperatingHours, error)
}
