package scheduler

import (
	"context"
	"sync"
	"time"
)

// unitFn is one submitted unit of work. It receives a context already
// carrying the per-unit deadline, if any.
type unitFn func(ctx context.Context)

type poolUnit struct {
	maxRuntime time.Duration
	fn         unitFn
	done       chan struct{}
}

// lane is the private FIFO queue for one distinct priority value.
type lane struct {
	units chan *poolUnit
}

// PriorityWorkerPool maintains one FIFO queue per distinct priority,
// dispatching submitted units to those queues while capping overall
// parallelism at a configured concurrency. Units within one lane run in
// submission order; across lanes no ordering is promised, but all lanes
// compete fairly for the shared pool of worker slots.
type PriorityWorkerPool struct {
	sem chan struct{}

	mu    sync.Mutex
	lanes map[int]*lane

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// laneBuffer bounds how many submitted-but-not-yet-running units a single
// lane may hold before TrySubmit reports backpressure.
const laneBuffer = 64

// NewPriorityWorkerPool returns a pool capping concurrency at n, deriving
// its own cancellation scope from parent. Stop (or cancellation of parent)
// unwinds every lane.
func NewPriorityWorkerPool(parent context.Context, n int) *PriorityWorkerPool {
	if n <= 0 {
		n = 1
	}
	ctx, cancel := context.WithCancel(parent)
	return &PriorityWorkerPool{
		sem:    make(chan struct{}, n),
		lanes:  map[int]*lane{},
		ctx:    ctx,
		cancel: cancel,
	}
}

// laneFor returns the lane for priority, creating it on first use. The
// creation path is guarded by a mutex so that concurrent first-use of a
// new priority only ever starts one worker goroutine for it.
func (p *PriorityWorkerPool) laneFor(priority int) *lane {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.lanes[priority]; ok {
		return l
	}

	l := &lane{units: make(chan *poolUnit, laneBuffer)}
	p.lanes[priority] = l

	p.wg.Add(1)
	go p.run(l)

	return l
}

func (p *PriorityWorkerPool) run(l *lane) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			for {
				select {
				case u := <-l.units:
					close(u.done)
				default:
					return
				}
			}
		case u, ok := <-l.units:
			if !ok {
				return
			}
			p.execute(u)
		}
	}
}

func (p *PriorityWorkerPool) execute(u *poolUnit) {
	select {
	case p.sem <- struct{}{}:
	case <-p.ctx.Done():
		close(u.done)
		return
	}
	defer func() { <-p.sem }()

	runCtx := p.ctx
	if u.maxRuntime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(p.ctx, u.maxRuntime)
		defer cancel()
	}

	u.fn(runCtx)
	close(u.done)
}

// TrySubmit enqueues fn onto priority's lane without blocking. It reports
// accepted=false if the lane is momentarily full (backpressure) or the
// pool is shutting down — the caller should treat the unit as overflow and
// retry the submission later. On success, the returned channel closes once
// fn has run to completion (or the pool shuts down before it started).
func (p *PriorityWorkerPool) TrySubmit(priority int, maxRuntime time.Duration, fn unitFn) (accepted bool, done <-chan struct{}) {
	if p.ctx.Err() != nil {
		return false, nil
	}
	l := p.laneFor(priority)
	u := &poolUnit{maxRuntime: maxRuntime, fn: fn, done: make(chan struct{})}

	select {
	case l.units <- u:
		return true, u.done
	case <-p.ctx.Done():
		return false, nil
	default:
		return false, nil
	}
}

// Stop cancels every outstanding unit's context and blocks until all lane
// goroutines have drained.
func (p *PriorityWorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
}
