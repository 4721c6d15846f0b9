package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bft-labs/zonecast/internal/adapters/transport/httpapi"
	"github.com/bft-labs/zonecast/internal/dispatch"
	"github.com/bft-labs/zonecast/internal/ports"
	"github.com/bft-labs/zonecast/internal/session"
	"github.com/bft-labs/zonecast/pkg/log"
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	HTTP     httpapi.Config
	Session  session.Config
	Dispatch dispatch.Config

	// ShutdownTimeout bounds the HTTP drain on exit.
	// Default: 15 seconds
	ShutdownTimeout time.Duration
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger log.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithEventPublisher fans session and delivery events out to pub.
func WithEventPublisher(pub ports.EventPublisher) ServiceOption {
	return func(s *Service) { s.publisher = pub }
}

// Service runs the dispatch server: the supervised actor session, the
// dispatcher and the HTTP transport in front of them.
type Service struct {
	cfg       ServiceConfig
	logger    log.Logger
	publisher ports.EventPublisher

	events     *EventFanout
	supervisor *session.Supervisor
	dispatcher *dispatch.Dispatcher
	server     *httpapi.Server
	lc         *lifecycle
}

// NewService wires the server components around actor.
func NewService(cfg ServiceConfig, actor ports.Actor, opts ...ServiceOption) (*Service, error) {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	s := &Service{cfg: cfg, logger: log.NewNoopLogger()}
	for _, opt := range opts {
		opt(s)
	}

	sessOpts := []session.Option{session.WithLogger(s.logger)}
	dispOpts := []dispatch.Option{dispatch.WithLogger(s.logger)}
	if s.publisher != nil {
		s.events = NewEventFanout(s.publisher, s.logger)
		sessOpts = append(sessOpts, session.WithEventEmitter(s.events))
		dispOpts = append(dispOpts, dispatch.WithAttemptFunc(s.events.OnAttempt))
	}

	s.supervisor = session.New(actor, cfg.Session, sessOpts...)
	d, err := dispatch.New(s.supervisor, cfg.Dispatch, dispOpts...)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	s.dispatcher = d
	s.server = httpapi.New(cfg.HTTP, d, s.supervisor, s.logger)
	s.lc = newLifecycle("service", s.logger)
	return s, nil
}

// Supervisor returns the session supervisor.
func (s *Service) Supervisor() *session.Supervisor { return s.supervisor }

// Dispatcher returns the dispatcher.
func (s *Service) Dispatcher() *dispatch.Dispatcher { return s.dispatcher }

// Run serves on l until ctx is canceled, then releases the actor session.
// An initialization failure at startup is logged; the sweep retries it.
func (s *Service) Run(ctx context.Context, l net.Listener) error {
	if err := s.lc.transitionTo(StateStarting, "run"); err != nil {
		return err
	}
	if err := s.supervisor.Start(); err != nil {
		_ = s.lc.transitionTo(StateCrashed, err.Error())
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.lc.goWorker(func() {
		if err := s.supervisor.EnsureReady(runCtx); err != nil {
			s.logger.Warn("startup session initialization failed, will retry in background", log.Err(err))
			return
		}
		s.logger.Info("actor session ready")
	})

	serveErr := make(chan error, 1)
	s.lc.goWorker(func() {
		serveErr <- s.server.Serve(runCtx, l)
	})
	_ = s.lc.transitionTo(StateRunning, "serving")

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if err == nil {
			err = errors.New("dispatch server stopped unexpectedly")
		}
	}
	cancel()
	_ = s.lc.transitionTo(StateStopping, "shutdown")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancelShutdown()
	if serr := s.server.Shutdown(shutdownCtx); serr != nil {
		s.logger.Warn("http shutdown", log.Err(serr))
	}
	if serr := s.supervisor.Shutdown(); serr != nil {
		s.logger.Warn("session shutdown", log.Err(serr))
	}
	if werr := s.lc.waitWithTimeout(s.cfg.ShutdownTimeout); werr != nil && err == nil {
		err = werr
	}
	if cerr := s.events.Close(s.cfg.ShutdownTimeout); cerr != nil {
		s.logger.Warn("event publisher close", log.Err(cerr))
	}

	if err != nil {
		_ = s.lc.transitionTo(StateCrashed, err.Error())
		return err
	}
	_ = s.lc.transitionTo(StateStopped, "shutdown")
	s.logger.Info("service stopped")
	return nil
}
