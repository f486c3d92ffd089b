package scheduler

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// HandlerMethods records which optional lifecycle hooks a handler type
// implements. It is computed once per concrete type and cached for the
// process lifetime — see HookDispatcher.
type HandlerMethods struct {
	Before  bool
	After   bool
	Success bool
	Failure bool
	Error   bool
	Halt    bool
}

// HookDispatcher discovers, caches, and invokes a handler's optional
// lifecycle hooks. Go interfaces already give us structural ("duck")
// matching for free: a handler "has" a hook simply by implementing its
// single-method interface, so discovery here is a type assertion rather
// than reflection over method signatures.
type HookDispatcher struct {
	mu    sync.RWMutex
	cache map[reflect.Type]HandlerMethods
}

// NewHookDispatcher returns an empty HookDispatcher.
func NewHookDispatcher() *HookDispatcher {
	return &HookDispatcher{cache: map[reflect.Type]HandlerMethods{}}
}

// MethodsFor returns the cached HandlerMethods for handler's concrete
// type, computing and caching it on first use. Concurrent first-use is
// safe: duplicate inserts are idempotent, so the last writer wins and no
// synchronization beyond the map mutex is required.
func (d *HookDispatcher) MethodsFor(handler Handler) HandlerMethods {
	t := reflect.TypeOf(handler)

	d.mu.RLock()
	methods, ok := d.cache[t]
	d.mu.RUnlock()
	if ok {
		return methods
	}

	_, before := handler.(BeforeHook)
	_, after := handler.(AfterHook)
	_, success := handler.(SuccessHook)
	_, failure := handler.(FailureHook)
	_, errHook := handler.(ErrorHook)
	_, halt := handler.(HaltHook)
	methods = HandlerMethods{
		Before:  before,
		After:   after,
		Success: success,
		Failure: failure,
		Error:   errHook,
		Halt:    halt,
	}

	d.mu.Lock()
	d.cache[t] = methods
	d.mu.Unlock()

	return methods
}

// Dispatch runs one attempt body for handler, in the invocation order of
// spec §4.3/§4.5: Before? -> Perform (iff Before returned true or is
// absent) -> Success?/Failure? -> After?. Error? fires in place of
// Success? whenever Perform (or Before) panics or returns an error; After?
// still runs in that case, mirroring a finally block.
//
// willFail should already reflect JobWillFail(task) evaluated after the
// attempt increment — Dispatch does not mutate the task.
func (d *HookDispatcher) Dispatch(ctx context.Context, handler Handler, methods HandlerMethods, willFail bool) (success bool, raised error) {
	defer func() {
		if r := recover(); r != nil {
			raised = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	func() {
		defer func() {
			if r := recover(); r != nil {
				success, raised = false, fmt.Errorf("handler panicked: %v", r)
			}
		}()

		proceed := true
		if methods.Before {
			proceed = handler.(BeforeHook).Before(ctx)
		}

		if proceed {
			success, raised = handler.(Handler).Perform(ctx)
		}
	}()

	switch {
	case raised != nil:
		if methods.Error {
			handler.(ErrorHook).Error(ctx, raised)
		}
	case success:
		if methods.Success {
			handler.(SuccessHook).Success(ctx)
		}
	}

	// Per spec §4.3: Error? replaces the Success?/Failure? path entirely
	// when Perform raises — Failure? only fires for a terminally-failing
	// attempt that did NOT raise.
	if raised == nil && willFail && methods.Failure {
		handler.(FailureHook).Failure(ctx)
	}

	if methods.After {
		handler.(AfterHook).After(ctx)
	}

	return success, raised
}
