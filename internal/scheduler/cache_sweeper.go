package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/concierge/internal/logger"
)

const (
	// DefaultSweepInterval is used when no interval is configured.
	DefaultSweepInterval = time.Minute
)

// Sweeper drops expired entries and reports how many were removed.
type Sweeper interface {
	Sweep(now time.Time) int
}

// CacheSweeper periodically removes expired dashboards from the in-process cache.
type CacheSweeper struct {
	cache    Sweeper
	logger   logger.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCacheSweeper creates a new cache sweeper
func NewCacheSweeper(c Sweeper, log logger.Logger, interval time.Duration) *CacheSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &CacheSweeper{
		cache:    c,
		logger:   log,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep
func (cs *CacheSweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(cs.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cs.Sweep()
			case <-cs.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the sweeper. Safe to call more than once.
func (cs *CacheSweeper) Stop() {
	cs.stopOnce.Do(func() { close(cs.stopCh) })
}

// Sweep removes every expired entry now and returns how many were dropped.
func (cs *CacheSweeper) Sweep() int {
	removed := cs.cache.Sweep(cs.now())
	if removed > 0 {
		cs.logger.Debug("swept expired dashboards",
			logger.Int("removed", removed))
	}
	return removed
}
