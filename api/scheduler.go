/*
scheduler.go - Automated recurrence expansion

PURPOSE:
  Periodically expands every active template over [today, today+horizon)
  so the calendar always shows the coming weeks and each new instance gets
  its pending payments without anyone clicking "expand".

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Acts as generic.SystemPrincipal
  - Expansion is idempotent, so overlapping horizons only add new dates
  - Stop cancels an expansion in progress; it resumes on the next start

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRecurrenceScheduler(svc)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ExpandAllTemplates endpoint (manual expansion)
  - coaching/sessions.go: ExpandAllTemplates
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/coaching-engine/coaching"
	"github.com/warp/coaching-engine/generic"
)

// RecurrenceScheduler keeps template instances materialized ahead of time.
type RecurrenceScheduler struct {
	Service       *coaching.Service
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRecurrenceScheduler creates a new scheduler.
func NewRecurrenceScheduler(svc *coaching.Service) *RecurrenceScheduler {
	return &RecurrenceScheduler{
		Service:       svc,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (rs *RecurrenceScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.stop = make(chan bool)
	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run(ctx, rs.ticker, rs.stop)

	log.Printf("[Scheduler] Started with check interval: %v", rs.CheckInterval)
}

// Stop stops the scheduler and waits for a running expansion to return.
func (rs *RecurrenceScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		rs.cancel()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		log.Println("[Scheduler] Stopped")
	}
}

func (rs *RecurrenceScheduler) run(ctx context.Context, ticker *time.Ticker, stop <-chan bool) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			rs.RunOnce(ctx)
		case <-stop:
			return
		}
	}
}

// RunOnce expands every active template from today over the service horizon
// and returns the per-template results.
func (rs *RecurrenceScheduler) RunOnce(ctx context.Context) []*coaching.ExpansionResult {
	from := rs.Service.Today()
	days := rs.Service.HorizonDays()

	results, err := rs.Service.ExpandAllTemplates(ctx, generic.SystemPrincipal, from, days)
	if err != nil {
		log.Printf("[Scheduler] Expansion from %s finished with errors: %v", generic.DateKey(from), err)
	}

	created, payments := 0, 0
	for _, res := range results {
		created += len(res.Created)
		payments += res.Payments
	}
	if created > 0 {
		log.Printf("[Scheduler] Completed: %d templates, %d instances created, %d payments created",
			len(results), created, payments)
	}
	return results
}
