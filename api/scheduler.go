/*
scheduler.go - Periodic ledger audit

PURPOSE:
  Periodically replays every tenant's payment history from storage and
  reports rows the replay had to ignore: allocations that no longer decode,
  duplicate reversals, and reversals stored with an unabsorbed shortfall.
  The audit never writes. It keeps the corrupt-row metrics current even for
  tenants nobody is paying.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Replays tenants concurrently (errgroup, bounded by Workers)
  - One tenant's failure is logged and does not stop the pass

CONFIGURATION:
  - CheckInterval: How often to audit (default: 1 hour)
  - Workers: Tenants replayed concurrently (default: 4)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAuditScheduler(service, logger, metrics)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - rental/service.go: Service.Audit
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/Kakungulu256/rcms/ledger"
	"github.com/Kakungulu256/rcms/metrics"
	"github.com/Kakungulu256/rcms/rental"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AuditSummary is the outcome of one audit pass.
type AuditSummary struct {
	Tenants    int
	Failed     int
	Corrupt    int
	Duplicate  int
	Unabsorbed int
	StartedAt  time.Time
	Duration   time.Duration
}

// AuditScheduler handles the periodic ledger audit.
type AuditScheduler struct {
	Service       *rental.Service
	CheckInterval time.Duration
	Workers       int
	Enabled       bool

	logger  *zap.Logger
	metrics *metrics.Metrics

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	last   *AuditSummary
}

// NewAuditScheduler creates a new scheduler.
func NewAuditScheduler(svc *rental.Service, logger *zap.Logger, m *metrics.Metrics) *AuditScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditScheduler{
		Service:       svc,
		CheckInterval: 1 * time.Hour,
		Workers:       4,
		Enabled:       true,
		logger:        logger.With(zap.String("component", "audit")),
		metrics:       m,
	}
}

// Start begins the scheduler.
func (as *AuditScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		as.logger.Info("Scheduler disabled, not starting")
		return
	}
	if as.ticker != nil {
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.stop = make(chan struct{})
	as.wg.Add(1)

	go as.run(as.ticker, as.stop)

	as.logger.Info("Scheduler started", zap.Duration("interval", as.CheckInterval), zap.Int("workers", as.Workers))
}

// Stop stops the scheduler and waits for a running pass to finish.
func (as *AuditScheduler) Stop() {
	as.mu.Lock()
	if as.ticker == nil {
		as.mu.Unlock()
		return
	}
	as.ticker.Stop()
	close(as.stop)
	as.ticker = nil
	as.mu.Unlock()

	as.wg.Wait()
	as.logger.Info("Scheduler stopped")
}

func (as *AuditScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer as.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	as.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			as.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow performs one audit pass synchronously.
func (as *AuditScheduler) RunNow(ctx context.Context) AuditSummary {
	summary := AuditSummary{StartedAt: time.Now()}

	tenants, err := as.Service.ListTenants(ctx)
	if err != nil {
		as.logger.Error("Error listing tenants", zap.Error(err))
		return summary
	}

	workers := as.Workers
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, t := range tenants {
		tenantID := t.ID
		g.Go(func() error {
			report, err := as.Service.Audit(gctx, tenantID)

			mu.Lock()
			defer mu.Unlock()
			summary.Tenants++
			if err != nil {
				summary.Failed++
				as.logger.Error("Error auditing tenant", zap.String("tenant_id", string(tenantID)), zap.Error(err))
				return nil
			}
			for _, sp := range report.Skipped {
				switch sp.Reason {
				case ledger.SkipCorruptAllocation:
					summary.Corrupt++
				case ledger.SkipDuplicateReversal:
					summary.Duplicate++
				}
			}
			summary.Unabsorbed += len(report.Unabsorbed)
			for _, id := range report.Unabsorbed {
				as.logger.Warn("Reversal carries unabsorbed shortfall",
					zap.String("tenant_id", string(tenantID)),
					zap.String("payment_id", string(id)))
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = time.Since(summary.StartedAt)
	as.metrics.AuditCompleted(summary.Tenants, summary.StartedAt)

	as.logger.Info("Audit completed",
		zap.Int("tenants", summary.Tenants),
		zap.Int("failed", summary.Failed),
		zap.Int("corrupt", summary.Corrupt),
		zap.Int("duplicate_reversals", summary.Duplicate),
		zap.Int("unabsorbed_reversals", summary.Unabsorbed),
		zap.Duration("duration", summary.Duration))

	as.mu.Lock()
	as.last = &summary
	as.mu.Unlock()
	return summary
}

// LastRun returns the most recent pass, or nil before the first one.
func (as *AuditScheduler) LastRun() *AuditSummary {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.last == nil {
		return nil
	}
	cp := *as.last
	return &cp
}
