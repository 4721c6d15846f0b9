package ports

import (
	"context"
	"fmt"
)

// Actor is the single stateful external automation session.
// Implementations must tolerate Initialize after Shutdown and must
// release everything on Shutdown even after a failed Initialize.
// Callers serialize all three operations; implementations need not be
// safe for concurrent use.
type Actor interface {
	// Initialize establishes the session (log in, open the target page).
	Initialize(ctx context.Context) error

	// PostMessage posts one message through the session.
	// Failures should be *ActorError so callers can see whether a retry may help.
	PostMessage(ctx context.Context, text string) error

	// Shutdown tears the session down. Safe to call repeatedly.
	Shutdown(ctx context.Context) error
}

// ActorError is an opaque actor failure with a retry hint.
type ActorError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *ActorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ActorError) Unwrap() error { return e.Err }
