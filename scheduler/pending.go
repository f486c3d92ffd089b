package scheduler

import (
	"context"
	"sync"
)

// PendingSet tracks handlers currently occupying a worker slot, so Stop
// can invoke their Halt hook. Insertion happens at execution start and
// removal on every exit path, including panics.
type PendingSet struct {
	mu      sync.Mutex
	running map[string]Handler
}

func NewPendingSet() *PendingSet {
	return &PendingSet{running: map[string]Handler{}}
}

func (p *PendingSet) add(taskID string, handler Handler) {
	p.mu.Lock()
	p.running[taskID] = handler
	p.mu.Unlock()
}

func (p *PendingSet) remove(taskID string) {
	p.mu.Lock()
	delete(p.running, taskID)
	p.mu.Unlock()
}

// haltAll invokes Halt(immediate) on every handler currently holding a
// slot that implements HaltHook, in parallel, then clears the set.
func (p *PendingSet) haltAll(ctx context.Context, immediate bool) {
	p.mu.Lock()
	handlers := make([]Handler, 0, len(p.running))
	for _, h := range p.running {
		handlers = append(handlers, h)
	}
	p.running = map[string]Handler{}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range handlers {
		h, ok := h.(HaltHook)
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Halt(ctx, immediate)
		}()
	}
	wg.Wait()
}
