package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bft-labs/zonecast/internal/adapters/actor/fake"
	"github.com/bft-labs/zonecast/internal/adapters/transport"
	"github.com/bft-labs/zonecast/internal/dispatch"
	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/ports"
	"github.com/bft-labs/zonecast/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testStack struct {
	server *Server
	actor  *fake.Actor
	sup    *session.Supervisor
}

func newStack(t *testing.T, cfg Config) *testStack {
	t.Helper()
	actor := fake.New(nil)
	sup := session.New(actor, session.Config{
		InitTimeout:     time.Second,
		PostTimeout:     time.Second,
		ShutdownTimeout: time.Second,
		SweepInterval:   time.Hour,
	})
	t.Cleanup(func() { _ = sup.Shutdown() })

	dcfg := dispatch.DefaultConfig()
	dcfg.RetryDelay = time.Millisecond
	dcfg.MessageFormat = "Fact: %s Keep walking to discover more!"
	d, err := dispatch.New(sup, dcfg)
	if err != nil {
		t.Fatalf("dispatch.New: %v", err)
	}
	return &testStack{server: New(cfg, d, sup, nil), actor: actor, sup: sup}
}

func (s *testStack) do(t *testing.T, method, path string, body any, header ...string) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(w, req)

	out := map[string]any{}
	json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func TestDeliver_Success(t *testing.T) {
	s := newStack(t, Config{})

	code, body := s.do(t, http.MethodPost, "/deliver", transport.DeliverRequest{ID: "r1", ZoneID: "3", Payload: "The fountain is the center of campus."})
	if code != http.StatusOK {
		t.Fatalf("status = %d, body = %v", code, body)
	}
	if body["accepted"] != true {
		t.Errorf("accepted = %v", body["accepted"])
	}
	want := "Fact: The fountain is the center of campus. Keep walking to discover more!"
	if body["comment"] != want {
		t.Errorf("comment = %v", body["comment"])
	}
	if got := s.actor.Posted(); len(got) != 1 || got[0] != want {
		t.Errorf("posted = %v", got)
	}
}

func TestDeliver_PayloadAliases(t *testing.T) {
	for _, field := range []string{"payload", "fact", "message"} {
		t.Run(field, func(t *testing.T) {
			s := newStack(t, Config{})
			code, _ := s.do(t, http.MethodPost, "/deliver", map[string]string{field: "hello"})
			if code != http.StatusOK {
				t.Fatalf("status = %d", code)
			}
			if got := s.actor.Posted(); len(got) != 1 {
				t.Errorf("posted = %v", got)
			}
		})
	}
}

func TestDeliver_BadRequests(t *testing.T) {
	s := newStack(t, Config{})
	tests := []struct {
		name string
		body any
	}{
		{"malformed json", "{not json"},
		{"empty payload", map[string]string{"payload": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(t, http.MethodPost, "/deliver", tt.body)
			if code != http.StatusBadRequest {
				t.Errorf("status = %d, body = %v", code, body)
			}
		})
	}
	if s.actor.Attempts() != 0 {
		t.Errorf("actor attempts = %d, want 0", s.actor.Attempts())
	}
}

func TestDeliver_FailureStatuses(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(a *fake.Actor)
		status    int
		retryable bool
	}{
		{
			name:   "session unavailable",
			setup:  func(a *fake.Actor) { a.FailInit(errors.New("login failed")) },
			status: http.StatusServiceUnavailable,
		},
		{
			name: "session invalidated",
			setup: func(a *fake.Actor) {
				a.FailPosts(&ports.ActorError{Op: "post", Err: errors.New("stale element reference")})
			},
			status:    http.StatusServiceUnavailable,
			retryable: true,
		},
		{
			name: "budget exhausted",
			setup: func(a *fake.Actor) {
				e := &ports.ActorError{Op: "post", Retryable: true, Err: errors.New("timeout")}
				a.FailPosts(e, e, e)
			},
			status:    http.StatusBadGateway,
			retryable: true,
		},
		{
			name: "fatal",
			setup: func(a *fake.Actor) {
				a.FailPosts(&ports.ActorError{Op: "post", Err: errors.New("comments disabled")})
			},
			status: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStack(t, Config{})
			tt.setup(s.actor)

			code, body := s.do(t, http.MethodPost, "/deliver", map[string]string{"payload": "x"})
			if code != tt.status {
				t.Errorf("status = %d, want %d (body %v)", code, tt.status, body)
			}
			if got, _ := body["retryable"].(bool); got != tt.retryable {
				t.Errorf("retryable = %v, want %v", got, tt.retryable)
			}
			if body["accepted"] != false {
				t.Errorf("accepted = %v", body["accepted"])
			}
		})
	}
}

func TestDeliver_RateLimit(t *testing.T) {
	s := newStack(t, Config{RateLimit: 2, RateWindow: time.Minute})
	for i := 0; i < 2; i++ {
		if code, _ := s.do(t, http.MethodPost, "/deliver", map[string]string{"payload": "x"}); code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, code)
		}
	}
	code, body := s.do(t, http.MethodPost, "/deliver", map[string]string{"payload": "x"})
	if code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", code)
	}
	if body["retryable"] != true {
		t.Errorf("retryable = %v", body["retryable"])
	}
}

func TestDeliver_RateLimitIgnoresForwardedFor(t *testing.T) {
	s := newStack(t, Config{RateLimit: 1, RateWindow: time.Minute})
	spoofed := []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"}

	codes := make([]int, 0, len(spoofed))
	for _, ip := range spoofed {
		code, _ := s.do(t, http.MethodPost, "/deliver", map[string]string{"payload": "x"}, "X-Forwarded-For", ip)
		codes = append(codes, code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests || codes[2] != http.StatusTooManyRequests {
		t.Errorf("statuses = %v, want one 200 then 429s", codes)
	}
}

func TestDeliver_RateLimitTrustedProxy(t *testing.T) {
	// httptest requests come from 192.0.2.1.
	s := newStack(t, Config{RateLimit: 1, RateWindow: time.Minute, TrustedProxies: []string{"192.0.2.0/24"}})

	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		if code, _ := s.do(t, http.MethodPost, "/deliver", map[string]string{"payload": "x"}, "X-Forwarded-For", ip); code != http.StatusOK {
			t.Errorf("client %s: status = %d, want 200", ip, code)
		}
	}
	if code, _ := s.do(t, http.MethodPost, "/deliver", map[string]string{"payload": "x"}, "X-Forwarded-For", "203.0.113.1"); code != http.StatusTooManyRequests {
		t.Errorf("repeat client: status = %d, want 429", code)
	}
}

func TestAuth(t *testing.T) {
	s := newStack(t, Config{AuthToken: "secret"})

	if code, _ := s.do(t, http.MethodPost, "/deliver", map[string]string{"payload": "x"}); code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/deliver", map[string]string{"payload": "x"}, "Authorization", "Bearer wrong"); code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/deliver", map[string]string{"payload": "x"}, "Authorization", "Bearer secret"); code != http.StatusOK {
		t.Errorf("valid token: status = %d", code)
	}
	// Status stays public.
	if code, _ := s.do(t, http.MethodGet, "/status", nil); code != http.StatusOK {
		t.Errorf("status endpoint: %d", code)
	}
}

func TestStatusAndStop(t *testing.T) {
	s := newStack(t, Config{})

	_, body := s.do(t, http.MethodGet, "/status", nil)
	if body["ready"] != false || body["state"] != "Uninitialized" {
		t.Errorf("initial status = %v", body)
	}

	code, body := s.do(t, http.MethodPost, "/stop", nil)
	if code != http.StatusBadRequest || body["error"] != "No active session" {
		t.Errorf("stop without session = %d %v", code, body)
	}

	if err := s.sup.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	_, body = s.do(t, http.MethodGet, "/status", nil)
	if body["ready"] != true || body["state"] != "Ready" {
		t.Errorf("ready status = %v", body)
	}

	code, body = s.do(t, http.MethodPost, "/stop", nil)
	if code != http.StatusOK {
		t.Errorf("stop = %d %v", code, body)
	}
	if s.sup.State() != session.StateUninitialized || s.actor.Shutdowns() == 0 {
		t.Errorf("state = %s, shutdowns = %d", s.sup.State(), s.actor.Shutdowns())
	}
}

func TestDeliveryStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&domain.DeliveryError{Err: domain.ErrSessionUnavailable}, http.StatusServiceUnavailable},
		{&domain.DeliveryError{Err: domain.ErrClosed}, http.StatusServiceUnavailable},
		{&domain.DeliveryError{Retryable: true, Err: errors.New("timeout")}, http.StatusBadGateway},
		{&domain.DeliveryError{Err: errors.New("boom")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := deliveryStatus(tt.err); got != tt.status {
			t.Errorf("deliveryStatus(%v) = %d, want %d", tt.err, got, tt.status)
		}
	}
}

func TestRateLimiter_Window(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || rl.Allow("a") {
		t.Fatal("limit of 1 not enforced")
	}
	if !rl.Allow("b") {
		t.Error("clients share a window")
	}
	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Error("window did not slide")
	}
	now = now.Add(2 * time.Minute)
	rl.evict()
	if len(rl.requests) != 0 {
		t.Errorf("evict left %d clients", len(rl.requests))
	}
}
