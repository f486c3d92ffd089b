package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/arnegrau/duratask/internal/lib"
)

// Poller periodically asks the Store for due work, hands it to the
// PriorityWorkerPool, and waits for the batch to complete before ticking
// again. Any task still locked when the Poller stops relies on the
// Store's own lock-expiration policy for recovery.
type Poller struct {
	store     Store
	pool      *PriorityWorkerPool
	executor  *Executor
	interval  time.Duration
	readAhead int
	workerID  string
	logger    Logger

	wake *lib.Waiter
}

// NewPoller wires the collaborators a Poller needs.
func NewPoller(store Store, pool *PriorityWorkerPool, executor *Executor, interval time.Duration, readAhead int, workerID string, logger Logger) *Poller {
	return &Poller{
		store:     store,
		pool:      pool,
		executor:  executor,
		interval:  interval,
		readAhead: readAhead,
		workerID:  workerID,
		logger:    logger,
		wake:      lib.NewWaiter(),
	}
}

// Wake nudges the Poller into running a tick immediately instead of
// waiting out the rest of the current SleepInterval. Callers use this
// after Submit persists a task whose RunAt is already due.
func (p *Poller) Wake() {
	p.wake.Poke()
}

// Run ticks every interval until ctx is done, or immediately whenever Wake
// is called in between ticks.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		case <-p.wake.Wait():
			p.Tick(ctx)
		}
	}
}

// Tick runs one poll-and-dispatch cycle.
func (p *Poller) Tick(ctx context.Context) {
	batch, err := p.store.GetAndLockNextAvailable(ctx, p.readAhead, p.workerID)
	if err != nil {
		p.logger.Error("poll failed: %v", err)
		return
	}
	p.dispatch(ctx, batch)
}

// dispatch submits every task in batch to the pool and waits for all of
// them to finish. Tasks the pool could not immediately accept (backpressure
// or mid-shutdown) are treated as an overflow subset and re-dispatched —
// semantically identical to a fresh batch, per spec §4.8.
func (p *Poller) dispatch(ctx context.Context, batch []*ScheduledTask) {
	if len(batch) == 0 {
		return
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	overflow := make([]*ScheduledTask, 0)

	for _, task := range batch {
		task := task
		accepted, done := p.pool.TrySubmit(task.Priority, task.MaximumRuntime, func(runCtx context.Context) {
			if err := p.executor.Run(runCtx, task, true); err != nil {
				p.logger.Warn("attempt for task %q ended in cancellation: %v", task.Id, err)
			}
		})
		if !accepted {
			mu.Lock()
			overflow = append(overflow, task)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-done
		}()
	}

	wg.Wait()

	if len(overflow) == 0 {
		return
	}
	if ctx.Err() != nil {
		p.logger.Warn("dropping %d undeliverable task(s) during shutdown; their locks will expire", len(overflow))
		return
	}
	p.dispatch(ctx, overflow)
}
