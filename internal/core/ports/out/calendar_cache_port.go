package out

import (
	"context"
	"time"

	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
)

type CalendarCachePort interface {
	GetMonth(ctx context.Context, dealerID string, year int, month time.Month) (*domain.MonthProjection, bool)
	StoreMonth(ctx context.Context, projection *domain.MonthProjection)
	InvalidateMonth(ctx context.Context, dealerID string, year int, month time.Month)
	InvalidateDealer(ctx context.Context, dealerID string)
	InvalidateAll(ctx context.Context)
}
