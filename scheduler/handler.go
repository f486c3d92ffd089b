package scheduler

import "context"

// Handler is the capability every scheduled task's resolved implementation
// must offer: Perform runs the attempt body, returning whether it
// succeeded. A non-nil error means the handler raised — the attempt is
// treated as unsuccessful and LastError is set from err.Error().
type Handler interface {
	Perform(ctx context.Context) (bool, error)
}

// The following are the optional lifecycle hooks a Handler may additionally
// implement. Detection is purely structural: a handler "has" a hook by
// implementing its interface, nothing more is required. See HookDispatcher.
type (
	// BeforeHook runs before Perform. If it returns false, Perform is
	// skipped and the attempt is treated as unsuccessful.
	BeforeHook interface {
		Before(ctx context.Context) bool
	}

	// AfterHook always runs once the attempt body has run (or been
	// skipped by Before), regardless of outcome.
	AfterHook interface {
		After(ctx context.Context)
	}

	// SuccessHook runs when Perform returned true.
	SuccessHook interface {
		Success(ctx context.Context)
	}

	// FailureHook runs when the attempt is terminally failing, i.e.
	// JobWillFail holds after the attempt increment. This can coincide
	// with a successful attempt — see DESIGN.md.
	FailureHook interface {
		Failure(ctx context.Context)
	}

	// ErrorHook runs when Perform (or a hook) raised.
	ErrorHook interface {
		Error(ctx context.Context, err error)
	}

	// HaltHook runs on shutdown for any handler currently occupying a
	// worker slot.
	HaltHook interface {
		Halt(ctx context.Context, immediate bool)
	}
)

// PayloadReceiver is implemented by handlers that accept the serialized
// instance payload carried on a HandlerReference. It is applied once, right
// after construction, before the handler is cached.
type PayloadReceiver interface {
	SetPayload(payload []byte) error
}
