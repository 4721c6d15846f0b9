// Package app wires the zonecast components into the two long-running
// roles: the Tracker (client side) and the Service (server side).
package app

import (
	"sync"
	"time"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/pkg/log"
)

// State represents the run state of a Tracker or Service.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// lifecycle guards Run against concurrent or repeated use and tracks the
// goroutines a run spawns.
type lifecycle struct {
	name   string
	logger log.Logger

	mu    sync.RWMutex
	state State
	wg    sync.WaitGroup
}

func newLifecycle(name string, logger log.Logger) *lifecycle {
	return &lifecycle{name: name, logger: logger}
}

func (l *lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// transitionTo moves to next if the move is allowed.
func (l *lifecycle) transitionTo(next State, reason string) error {
	l.mu.Lock()
	prev := l.state
	if !allowed(prev, next) {
		l.mu.Unlock()
		if prev == StateStopped || prev == StateCrashed {
			return domain.ErrNotRunning
		}
		return domain.ErrAlreadyRunning
	}
	l.state = next
	l.mu.Unlock()

	l.logger.Debug("run state transition",
		log.String("component", l.name),
		log.String("from", prev.String()),
		log.String("to", next.String()),
		log.String("reason", reason),
	)
	return nil
}

func allowed(from, to State) bool {
	switch from {
	case StateStopped, StateCrashed:
		return to == StateStarting
	case StateStarting:
		return to == StateRunning || to == StateStopping || to == StateCrashed
	case StateRunning:
		return to == StateStopping || to == StateCrashed
	case StateStopping:
		return to == StateStopped || to == StateCrashed
	}
	return false
}

// goWorker runs fn on a tracked goroutine.
func (l *lifecycle) goWorker(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
}

// waitWithTimeout waits for all workers. It returns
// domain.ErrShutdownTimeout if they are still running after timeout.
func (l *lifecycle) waitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		l.logger.Warn("workers still running after shutdown timeout",
			log.String("component", l.name),
			log.Duration("timeout", timeout),
		)
		return domain.ErrShutdownTimeout
	}
}
