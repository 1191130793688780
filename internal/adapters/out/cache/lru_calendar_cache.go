package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/suchimauz/testdrive-scheduler/internal/config"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
)

type monthKey struct {
	dealerID string
	year     int
	month    time.Month
}

func (k monthKey) String() string {
	return fmt.Sprintf("%s|%04d-%02d", k.dealerID, k.year, k.month)
}

// LRUCalendarCache keeps the most recently used month projections.
type LRUCalendarCache struct {
	cache  *lru.Cache[monthKey, *domain.MonthProjection]
	mu     sync.RWMutex
	logger out.LoggerPort
}

var _ out.CalendarCachePort = (*LRUCalendarCache)(nil)

// NewLRUCalendarCache returns nil when the cache is disabled; the calendar
// then rebuilds every view.
func NewLRUCalendarCache(cfg *config.Config, logger out.LoggerPort) (*LRUCalendarCache, error) {
	if !cfg.Cache.Enabled {
		logger.Info("cache.disabled", out.LogFields{
			"message": "Calendar cache is disabled",
		})
		return nil, nil
	}

	cache, err := lru.New[monthKey, *domain.MonthProjection](cfg.Cache.CalendarSize)
	if err != nil {
		logger.Error("cache.init.failed", out.LogFields{
			"error": err.Error(),
			"size":  cfg.Cache.CalendarSize,
		})
		return nil, err
	}

	return &LRUCalendarCache{
		cache:  cache,
		logger: logger.WithModule("CalendarCache"),
	}, nil
}

func (c *LRUCalendarCache) GetMonth(ctx context.Context, dealerID string, year int, month time.Month) (*domain.MonthProjection, bool) {
	key := monthKey{dealerID: dealerID, year: year, month: month}

	c.mu.RLock()
	projection, exists := c.cache.Get(key)
	c.mu.RUnlock()

	if !exists {
		c.logger.Debug("cache.get.miss", out.LogFields{"key": key.String()})
		return nil, false
	}
	return projection, true
}

func (c *LRUCalendarCache) StoreMonth(ctx context.Context, projection *domain.MonthProjection) {
	if projection == nil {
		return
	}
	key := monthKey{dealerID: projection.DealerID, year: projection.Year, month: projection.Month}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Debug("cache.store", out.LogFields{"key": key.String()})
	c.cache.Add(key, projection)
}

func (c *LRUCalendarCache) InvalidateMonth(ctx context.Context, dealerID string, year int, month time.Month) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Remove(monthKey{dealerID: dealerID, year: year, month: month})
}

func (c *LRUCalendarCache) InvalidateDealer(ctx context.Context, dealerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.cache.Keys() {
		if key.dealerID == dealerID {
			c.cache.Remove(key)
			removed++
		}
	}

	c.logger.Debug("cache.invalidate.dealer", out.LogFields{
		"dealerId": dealerID,
		"removed":  removed,
	})
}

func (c *LRUCalendarCache) InvalidateAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Purge()
}

func (c *LRUCalendarCache) Len() int {
	return c.cache.Len()
}
