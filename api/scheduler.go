/*
scheduler.go - Automated billing scheduler

PURPOSE:
  Runs the recurring billing chores without operator action:
  - After a month closes, generates invoices for every school for that
    month. Generation is idempotent: schools already invoiced fail
    individually with a conflict and are skipped.
  - Relabels sent/verified invoices past their due date as overdue.

DESIGN:
  - Single background goroutine with a configurable check interval
  - Each tick is independent; a failed tick is retried on the next one
  - Bulk generation isolates per-school failures

CONFIGURATION:
  - CheckInterval: how often to run (default: 1 hour)
  - Enabled: whether the scheduler is active (default: true)

USAGE:
  scheduler := NewBillingScheduler(invoices)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: BulkGenerate and OverdueSweep (the manual equivalents)
  - invoice/service.go: GenerateForPeriod, MarkOverdue
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stafflink/billing-engine/billing"
	"github.com/stafflink/billing-engine/invoice"
)

// BillingScheduler drives monthly generation and overdue sweeps.
type BillingScheduler struct {
	Invoices      *invoice.Service
	CheckInterval time.Duration
	Enabled       bool

	// Clock is injectable for tests.
	Clock func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewBillingScheduler creates a scheduler with default settings.
func NewBillingScheduler(invoices *invoice.Service) *BillingScheduler {
	return &BillingScheduler{
		Invoices:      invoices,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Clock:         func() time.Time { return time.Now().UTC() },
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (bs *BillingScheduler) Start() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if !bs.Enabled {
		slog.Info("billing scheduler disabled, not starting")
		return
	}

	bs.ticker = time.NewTicker(bs.CheckInterval)
	bs.wg.Add(1)
	go bs.run()

	slog.Info("billing scheduler started", "interval", bs.CheckInterval)
}

// Stop stops the scheduler and waits for the in-flight tick.
func (bs *BillingScheduler) Stop() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.ticker != nil {
		bs.ticker.Stop()
		close(bs.stop)
		bs.wg.Wait()
		slog.Info("billing scheduler stopped")
	}
}

func (bs *BillingScheduler) run() {
	defer bs.wg.Done()

	// Run immediately on start
	bs.tick()

	for {
		select {
		case <-bs.ticker.C:
			bs.tick()
		case <-bs.stop:
			return
		}
	}
}

// tick generates invoices for the just-closed month and sweeps overdue
// invoices. Both are safe to repeat.
func (bs *BillingScheduler) tick() {
	ctx := context.Background()
	now := bs.Clock()

	closed := billing.PeriodOf(now).Previous()
	result, err := bs.Invoices.GenerateForPeriod(ctx, closed, "scheduler")
	if err != nil {
		slog.Error("scheduled generation failed", "period", closed.String(), "error", err)
	} else if len(result.Successful) > 0 {
		invoicesGenerated.Add(float64(len(result.Successful)))
		slog.Info("scheduled generation complete",
			"period", closed.String(),
			"generated", len(result.Successful),
			"skipped", len(result.Failed),
		)
	}

	count, err := bs.Invoices.MarkOverdue(ctx)
	if err != nil {
		slog.Error("overdue sweep failed", "error", err)
		return
	}
	if count > 0 {
		overdueMarked.Add(float64(count))
		slog.Info("overdue sweep complete", "marked", count)
	}
}
