/*
scheduler.go - Automated interest accrual scheduler

PURPOSE:
  Periodically sweeps savings accounts and credits monthly interest.
  The sweep itself is idempotent per calendar month, so the scheduler
  can run at a short interval without double-crediting.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Delegates the actual sweep to savings.Service.AccrueInterest
  - Accounts already credited this month are skipped by the service

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - AnnualRate:    Interest rate in percent per annum
  - Enabled:       Whether scheduler is active (default: true)

USAGE:
  scheduler := NewInterestScheduler(svc, rate, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - savings/savings.go: AccrueInterest implementation
  - cmd/server/main.go: Scheduler startup
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lunserk/sacco-core/savings"
)

// InterestScheduler handles automated monthly interest credits.
type InterestScheduler struct {
	Savings       *savings.Service
	AnnualRate    decimal.Decimal
	CheckInterval time.Duration
	Enabled       bool

	log    *zap.Logger
	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewInterestScheduler creates a new scheduler.
func NewInterestScheduler(svc *savings.Service, annualRate decimal.Decimal, log *zap.Logger) *InterestScheduler {
	return &InterestScheduler{
		Savings:       svc,
		AnnualRate:    annualRate,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		log:           log,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (is *InterestScheduler) Start() {
	is.mu.Lock()
	defer is.mu.Unlock()

	if !is.Enabled {
		is.log.Info("interest scheduler disabled, not starting")
		return
	}

	is.ticker = time.NewTicker(is.CheckInterval)
	is.wg.Add(1)

	go is.run()

	is.log.Info("interest scheduler started",
		zap.Duration("interval", is.CheckInterval),
		zap.String("annual_rate", is.AnnualRate.String()))
}

// Stop stops the scheduler.
func (is *InterestScheduler) Stop() {
	is.mu.Lock()
	defer is.mu.Unlock()

	if is.ticker != nil {
		is.ticker.Stop()
		close(is.stop)
		is.wg.Wait()
		is.log.Info("interest scheduler stopped")
	}
}

func (is *InterestScheduler) run() {
	defer is.wg.Done()

	// Run immediately on start
	is.sweep()

	for {
		select {
		case <-is.ticker.C:
			is.sweep()
		case <-is.stop:
			return
		}
	}
}

func (is *InterestScheduler) sweep() {
	ctx := context.Background()

	credited, err := is.Savings.AccrueInterest(ctx, is.AnnualRate)
	if err != nil {
		is.log.Error("interest sweep failed", zap.Error(err))
		return
	}
	if credited > 0 {
		is.log.Info("interest sweep completed", zap.Int("credited", credited))
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (is *InterestScheduler) RunNow() {
	is.sweep()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (is *InterestScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(is.CheckInterval)
}
