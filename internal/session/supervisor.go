// Package session supervises the single external actor session.
//
// All access to the actor (initialize, post, teardown) goes through one
// gate, so at most one operation touches it at a time. Initialization is
// single-flight: callers that arrive while an init is running share its
// result instead of starting another. A background sweep re-initializes the
// session whenever it is not Ready.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/ports"
	"github.com/bft-labs/zonecast/pkg/log"
)

// Config bounds every actor operation and sets the sweep period.
type Config struct {
	// InitTimeout bounds one Initialize call.
	// Default: 90 seconds
	InitTimeout time.Duration

	// PostTimeout bounds one WithSession callback.
	// Default: 60 seconds
	PostTimeout time.Duration

	// ShutdownTimeout bounds one actor teardown.
	// Default: 15 seconds
	ShutdownTimeout time.Duration

	// SweepInterval is the health sweep period.
	// Default: 60 seconds
	SweepInterval time.Duration
}

// DefaultConfig returns a Config with the default bounds.
func DefaultConfig() Config {
	return Config{
		InitTimeout:     90 * time.Second,
		PostTimeout:     60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		SweepInterval:   60 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.InitTimeout <= 0 {
		c.InitTimeout = d.InitTimeout
	}
	if c.PostTimeout <= 0 {
		c.PostTimeout = d.PostTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the supervisor logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// WithEventEmitter registers a state change observer.
func WithEventEmitter(emitter EventEmitter) Option {
	return func(s *Supervisor) { s.emitter = emitter }
}

// Supervisor owns the actor and its lifecycle state machine.
type Supervisor struct {
	actor   ports.Actor
	cfg     Config
	logger  log.Logger
	emitter EventEmitter
	sm      *machine

	gate   chan struct{}
	kick   chan struct{}
	flight singleflight.Group

	// held is true while the actor may own resources. Guarded by gate.
	held bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
	lastErr error

	inits atomic.Int64
}

// New creates a supervisor for actor. The session starts Uninitialized.
func New(actor ports.Actor, cfg Config, opts ...Option) *Supervisor {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		actor:  actor,
		cfg:    cfg,
		logger: log.NewNoopLogger(),
		gate:   make(chan struct{}, 1),
		kick:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sm = newMachine(s.logger, s.emitter)
	return s
}

// Start launches the background health sweep.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrClosed
	}
	if s.started {
		return domain.ErrAlreadyRunning
	}
	s.started = true

	s.wg.Add(1)
	go s.sweepLoop()
	return nil
}

// State returns the current session state.
func (s *Supervisor) State() State { return s.sm.State() }

// Ready reports whether the session is Ready.
func (s *Supervisor) Ready() bool { return s.sm.State() == StateReady }

// Initializations returns how many times Initialize has been called.
func (s *Supervisor) Initializations() int64 { return s.inits.Load() }

// LastError returns the most recent initialization failure, if any.
func (s *Supervisor) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// EnsureReady returns nil once the session is Ready, initializing it if
// needed. Failures wrap domain.ErrSessionUnavailable.
func (s *Supervisor) EnsureReady(ctx context.Context) error {
	if s.isClosed() {
		return domain.ErrClosed
	}
	if s.Ready() {
		return nil
	}

	ch := s.flight.DoChan("init", func() (interface{}, error) {
		return nil, s.initialize()
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrSessionUnavailable, ctx.Err())
	}
}

// WithSession runs fn against the actor while holding the gate. fn's context
// is bounded by PostTimeout. It returns domain.ErrSessionUnavailable without
// calling fn when the session is not Ready.
func (s *Supervisor) WithSession(ctx context.Context, fn func(ctx context.Context, actor ports.Actor) error) error {
	if err := s.acquire(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSessionUnavailable, err)
	}
	defer s.release()

	if s.isClosed() {
		return domain.ErrClosed
	}
	if s.sm.State() != StateReady {
		return domain.ErrSessionUnavailable
	}

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.PostTimeout)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	return fn(opCtx, s.actor)
}

// MarkDegraded records that the session is broken. The actor is torn down
// right away and the sweep is asked to re-initialize it.
func (s *Supervisor) MarkDegraded(reason string) {
	if err := s.acquire(s.ctx); err != nil {
		return
	}
	if s.sm.State() != StateReady {
		s.release()
		return
	}

	_ = s.sm.transitionTo(StateDegraded, reason)
	s.teardown(reason)
	_ = s.sm.transitionTo(StateUninitialized, "torn down after degrade")
	s.release()

	s.kickSweep()
}

// Reset tears down the current session on request. It returns
// domain.ErrNoSession when no session is held. The next EnsureReady or
// sweep tick starts a new one.
func (s *Supervisor) Reset(ctx context.Context, reason string) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	if s.isClosed() {
		return domain.ErrClosed
	}
	state := s.sm.State()
	if state == StateUninitialized && !s.held {
		return domain.ErrNoSession
	}

	s.teardown(reason)
	if state != StateUninitialized {
		_ = s.sm.transitionTo(StateUninitialized, reason)
	}
	return nil
}

// Shutdown stops the sweep and releases the actor. Safe to call more than once.
func (s *Supervisor) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Cancels any in-flight init or post.
	s.cancel()
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	// Last resort: the gate holder is stuck in an actor call that ignored
	// cancellation. Teardown then runs concurrently with it, so actors must
	// tolerate Shutdown during Initialize or PostMessage.
	if err := s.acquire(ctx); err != nil {
		s.logger.Warn("session gate not released in time, forcing teardown",
			log.Duration("timeout", s.cfg.ShutdownTimeout),
		)
		s.teardown("shutdown")
		return domain.ErrShutdownTimeout
	}
	defer s.release()

	state := s.sm.State()
	if s.held {
		s.teardown("shutdown")
	}
	if state == StateReady || state == StateDegraded {
		_ = s.sm.transitionTo(StateUninitialized, "shutdown")
	}
	return nil
}

// initialize runs one Uninitialized -> Ready attempt under the gate.
func (s *Supervisor) initialize() error {
	if err := s.acquire(s.ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSessionUnavailable, err)
	}
	defer s.release()

	if s.isClosed() {
		return domain.ErrClosed
	}
	switch s.sm.State() {
	case StateReady:
		return nil
	case StateDegraded:
		s.teardown("degraded before init")
		_ = s.sm.transitionTo(StateUninitialized, "torn down before init")
	}
	if s.held {
		s.teardown("stale resources before init")
	}

	if err := s.sm.transitionTo(StateInitializing, "initialize"); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSessionUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.InitTimeout)
	defer cancel()

	s.inits.Add(1)
	s.held = true
	start := time.Now()
	err := s.actor.Initialize(ctx)
	if err != nil {
		s.logger.Warn("session initialization failed",
			log.Err(err),
			log.Duration("elapsed", time.Since(start)),
		)
		s.teardown("initialize failed")
		_ = s.sm.transitionTo(StateUninitialized, "initialize failed")
		s.setLastErr(err)
		return fmt.Errorf("%w: %w", domain.ErrSessionUnavailable, err)
	}

	s.setLastErr(nil)
	s.logger.Info("session initialized", log.Duration("elapsed", time.Since(start)))
	return s.sm.transitionTo(StateReady, "initialized")
}

// teardown shuts the actor down. Caller holds the gate.
func (s *Supervisor) teardown(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.actor.Shutdown(ctx); err != nil {
		s.logger.Warn("actor teardown failed", log.String("reason", reason), log.Err(err))
	} else {
		s.logger.Debug("actor torn down", log.String("reason", reason))
	}
	s.held = false
}

func (s *Supervisor) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		case <-s.kick:
		}

		if s.Ready() {
			continue
		}
		s.logger.Info("session sweep: not ready, attempting initialization",
			log.String("state", s.State().String()),
		)
		if err := s.EnsureReady(s.ctx); err != nil && s.ctx.Err() == nil {
			s.logger.Warn("session sweep: initialization failed", log.Err(err))
		}
	}
}

func (s *Supervisor) kickSweep() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Supervisor) acquire(ctx context.Context) error {
	select {
	case s.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) release() { <-s.gate }

func (s *Supervisor) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Supervisor) setLastErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
