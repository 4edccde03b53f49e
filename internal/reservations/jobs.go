package reservations

import (
	"context"
	"sync"
	"time"

	"swapstation/pkg/logger"
)

// Sweeper periodically reverts expired slot holds. Lazy reconciliation on
// every slot read stays authoritative; the sweeper keeps stored state and
// pillar stats from drifting while nobody touches a slot.
type Sweeper struct {
	service  Service
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSweeper(service Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		service:  service,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or ctx ends.
func (sw *Sweeper) Start(ctx context.Context) {
	logger.GetDefault().Info("Starting reservation sweeper", "interval", sw.interval.String())

	sw.wg.Add(1)
	go func() {
		defer sw.wg.Done()
		sw.loop(ctx)
	}()
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (sw *Sweeper) Stop() {
	sw.stopOnce.Do(func() {
		close(sw.done)
	})
	sw.wg.Wait()
	logger.GetDefault().Info("Reservation sweeper stopped")
}

func (sw *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sw.RunOnce(ctx)
		case <-sw.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs a single sweep.
func (sw *Sweeper) RunOnce(ctx context.Context) int {
	reverted, err := sw.service.SweepExpired(ctx)
	if err != nil {
		logger.GetDefault().WithError(err).ErrorContext(ctx, "Error sweeping expired reservations")
		return reverted
	}
	return reverted
}

// Status reports the sweeper settings for the health endpoint.
func (sw *Sweeper) Status() map[string]interface{} {
	return map[string]interface{}{
		"interval": sw.interval.String(),
		"status":   "running",
	}
}
