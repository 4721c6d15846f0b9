package domain

import (
	"errors"
	"fmt"
)

// Domain errors, checked with errors.Is.
var (
	// ErrPermissionDenied means the location provider refused access. Fatal to tracking.
	ErrPermissionDenied = errors.New("zonecast: location permission denied")

	// ErrProviderUnavailable means tracking could not start.
	ErrProviderUnavailable = errors.New("zonecast: location provider unavailable")

	// ErrSessionUnavailable means the supervisor could not bring the actor to Ready.
	ErrSessionUnavailable = errors.New("zonecast: session unavailable")

	// ErrSessionInvalidated means a delivery failure broke the current actor session.
	ErrSessionInvalidated = errors.New("zonecast: session invalidated")

	// ErrSessionLost is returned by actor backends that know their session is gone.
	ErrSessionLost = errors.New("zonecast: actor session lost")

	// ErrDeliveryFailed matches every DeliveryError.
	ErrDeliveryFailed = errors.New("zonecast: delivery failed")

	// ErrNoSession is returned when a teardown is requested without a held session.
	ErrNoSession = errors.New("zonecast: no active session")

	// ErrClosed is returned after the supervisor or queue has been shut down.
	ErrClosed = errors.New("zonecast: closed")

	// ErrQueueFull is reported when a trigger is dropped because the queue is full.
	ErrQueueFull = errors.New("zonecast: delivery queue full")

	ErrInvalidConfig  = errors.New("zonecast: invalid configuration")
	ErrInvalidCatalog = errors.New("zonecast: invalid zone catalog")

	ErrAlreadyRunning  = errors.New("zonecast: already running")
	ErrNotRunning      = errors.New("zonecast: not running")
	ErrShutdownTimeout = errors.New("zonecast: shutdown timeout")
)

// DeliveryError is the failure result of delivering one TriggerRecord.
type DeliveryError struct {
	RecordID  string
	Attempts  int
	Retryable bool
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s: failed after %d attempt(s) (retryable=%t): %v",
		e.RecordID, e.Attempts, e.Retryable, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Is makes every DeliveryError match ErrDeliveryFailed.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDeliveryFailed
}
