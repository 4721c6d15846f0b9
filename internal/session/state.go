package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bft-labs/zonecast/pkg/log"
)

// ErrInvalidTransition is returned when a state change is not allowed.
var ErrInvalidTransition = errors.New("session: invalid state transition")

// State represents the lifecycle state of the actor session.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateDegraded
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitializing:
		return "Initializing"
	case StateReady:
		return "Ready"
	case StateDegraded:
		return "Degraded"
	default:
		return "Unknown"
	}
}

// EventEmitter is called when the session state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// machine holds the current state and validates moves.
type machine struct {
	mu      sync.RWMutex
	state   State
	logger  log.Logger
	emitter EventEmitter
}

func newMachine(logger log.Logger, emitter EventEmitter) *machine {
	return &machine{
		state:   StateUninitialized,
		logger:  logger,
		emitter: emitter,
	}
}

func (m *machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// transitionTo moves to newState or returns ErrInvalidTransition.
func (m *machine) transitionTo(newState State, reason string) error {
	m.mu.Lock()
	oldState := m.state

	valid := false
	switch oldState {
	case StateUninitialized:
		valid = newState == StateInitializing
	case StateInitializing:
		valid = newState == StateReady || newState == StateUninitialized
	case StateReady:
		valid = newState == StateDegraded || newState == StateUninitialized
	case StateDegraded:
		valid = newState == StateUninitialized
	}
	if !valid {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, oldState, newState)
	}

	m.state = newState
	m.mu.Unlock()

	// Emit event outside of lock
	if m.emitter != nil {
		m.emitter.OnStateChange(oldState, newState, reason)
	}

	m.logger.Info("session state transition",
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	)
	return nil
}
