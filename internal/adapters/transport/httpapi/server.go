// Package httpapi is the server side of the dispatch transport: a gin
// router exposing POST /deliver, GET /status and POST /stop.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bft-labs/zonecast/internal/adapters/transport"
	"github.com/bft-labs/zonecast/internal/dispatch"
	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/session"
	"github.com/bft-labs/zonecast/pkg/log"
)

// Deliverer delivers one record. Implemented by *dispatch.Dispatcher.
type Deliverer interface {
	DeliverRecord(ctx context.Context, record domain.TriggerRecord) (dispatch.Result, error)
}

// SessionControl is the part of the session supervisor exposed over HTTP.
// Implemented by *session.Supervisor.
type SessionControl interface {
	State() session.State
	Initializations() int64
	LastError() error
	Reset(ctx context.Context, reason string) error
}

// Config configures the HTTP server.
type Config struct {
	ListenAddr string
	AuthToken  string
	// RateLimit is the number of /deliver requests a client may make per
	// RateWindow. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
	// TrustedProxies lists the proxy IPs or CIDRs whose X-Forwarded-For
	// is honoured when keying the rate limiter. Empty trusts none.
	TrustedProxies []string
}

// Server serves the dispatch transport.
type Server struct {
	cfg       Config
	deliverer Deliverer
	session   SessionControl
	logger    log.Logger
	limiter   *RateLimiter
	now       func() time.Time

	engine *gin.Engine
	srv    *http.Server
}

// New builds the router.
func New(cfg Config, deliverer Deliverer, sess SessionControl, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	s := &Server{
		cfg:       cfg,
		deliverer: deliverer,
		session:   sess,
		logger:    logger,
		now:       time.Now,
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Warn("invalid trusted proxies, trusting none", log.Err(err))
		_ = engine.SetTrustedProxies(nil)
	}
	engine.Use(gin.Recovery(), RequestLogger(logger))

	engine.GET(transport.StatusPath, s.handleStatus)

	authed := engine.Group("/", BearerAuth(cfg.AuthToken))
	deliver := []gin.HandlerFunc{}
	if cfg.RateLimit > 0 && cfg.RateWindow > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
		deliver = append(deliver, RateLimit(s.limiter))
	}
	deliver = append(deliver, s.handleDeliver)
	authed.POST(transport.DeliverPath, deliver...)
	authed.POST(transport.StopPath, s.handleStop)

	s.engine = engine
	s.srv = &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	if s.limiter != nil {
		go s.limiter.Run(ctx)
	}
	s.logger.Info("dispatch server listening", log.String("addr", l.Addr().String()))
	if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleDeliver(c *gin.Context) {
	var req transport.DeliverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, transport.DeliverResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.Text() == "" {
		c.JSON(http.StatusBadRequest, transport.DeliverResponse{Error: "payload is required"})
		return
	}

	res, err := s.deliverer.DeliverRecord(c.Request.Context(), req.Record())
	if err != nil {
		status, retryable := deliveryStatus(err)
		c.Error(err)
		c.JSON(status, transport.DeliverResponse{Error: err.Error(), Retryable: retryable})
		return
	}

	now := s.now().UTC()
	c.JSON(http.StatusOK, transport.DeliverResponse{
		Accepted:  true,
		Message:   "Message posted successfully",
		Comment:   res.Message,
		Duplicate: res.Duplicate,
		Timestamp: &now,
	})
}

// deliveryStatus maps a delivery failure to an HTTP status.
func deliveryStatus(err error) (int, bool) {
	var de *domain.DeliveryError
	retryable := errors.As(err, &de) && de.Retryable
	switch {
	case errors.Is(err, domain.ErrSessionUnavailable), errors.Is(err, domain.ErrSessionInvalidated),
		errors.Is(err, domain.ErrClosed):
		return http.StatusServiceUnavailable, retryable
	case retryable:
		return http.StatusBadGateway, true
	default:
		return http.StatusInternalServerError, false
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	state := s.session.State()
	resp := transport.StatusResponse{
		Ready:           state == session.StateReady,
		State:           state.String(),
		Initializations: s.session.Initializations(),
	}
	if resp.Ready {
		resp.Message = "Session is ready"
	} else {
		resp.Message = "Session is not ready"
	}
	if err := s.session.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStop(c *gin.Context) {
	err := s.session.Reset(c.Request.Context(), "stop requested")
	switch {
	case err == nil:
		c.JSON(http.StatusOK, transport.MessageResponse{Message: "Stopped session"})
	case errors.Is(err, domain.ErrNoSession):
		c.JSON(http.StatusBadRequest, transport.MessageResponse{Error: "No active session"})
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, transport.MessageResponse{Error: err.Error()})
	}
}
