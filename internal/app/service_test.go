package app

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/bft-labs/zonecast/internal/adapters/actor/fake"
	"github.com/bft-labs/zonecast/internal/adapters/transport/client"
	"github.com/bft-labs/zonecast/internal/adapters/transport/httpapi"
	"github.com/bft-labs/zonecast/internal/dispatch"
	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/session"
)

func serviceConfig() ServiceConfig {
	d := dispatch.DefaultConfig()
	d.RetryDelay = time.Millisecond
	d.MessageFormat = "Fact: %s Keep walking to discover more!"
	return ServiceConfig{
		HTTP: httpapi.Config{AuthToken: "token"},
		Session: session.Config{
			InitTimeout:     time.Second,
			PostTimeout:     time.Second,
			ShutdownTimeout: time.Second,
			SweepInterval:   time.Hour,
		},
		Dispatch:        d,
		ShutdownTimeout: 2 * time.Second,
	}
}

func startService(t *testing.T, svc *Service) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx, l) }()
	return "http://" + l.Addr().String(), cancel, done
}

func TestService_TrackerToServer(t *testing.T) {
	actor := fake.New(nil)
	pub := &mockPublisher{}
	svc, err := NewService(serviceConfig(), actor, WithEventPublisher(pub))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	url, cancel, done := startService(t, svc)

	c, err := client.New(client.Config{ServerURL: url, AuthToken: "token"}, nil, nil)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	waitFor(t, "startup initialization", func() bool {
		st, err := c.Status(context.Background())
		return err == nil && st.Ready
	})

	// The tracker side, driven over HTTP.
	provider := newTestProvider()
	tr, err := NewTracker(TrackerConfig{Gate: defaultGate()}, catalogOf(t, fountain), provider, c)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	trDone := startTracker(t, tr)
	provider.waitSubscribed(t)

	start := time.Unix(1715003456, 0)
	for i, meters := range []float64{200, 10, 10, 200} {
		provider.send(sampleAt(fountain.Center, meters, start.Add(time.Duration(i)*3*time.Second)))
	}
	provider.end()
	if err := waitRun(t, trDone); err != nil {
		t.Fatalf("tracker Run: %v", err)
	}

	want := "Fact: The fountain is the center of campus. Keep walking to discover more!"
	if got := actor.Posted(); len(got) != 1 || got[0] != want {
		t.Errorf("posted = %v", got)
	}

	cancel()
	if err := waitRun(t, done); err != nil {
		t.Fatalf("service Run: %v", err)
	}
	if actor.Shutdowns() == 0 {
		t.Error("actor not shut down on exit")
	}
	if pub.closed != 1 {
		t.Errorf("publisher closed %d times", pub.closed)
	}
	var sawReady bool
	for _, ev := range pub.Events() {
		if ev.Type == EventSessionState && ev.Fields["to"] == "Ready" {
			sawReady = true
		}
	}
	if !sawReady {
		t.Error("no session Ready event published")
	}
}

func TestService_StartupInitFailureIsNotFatal(t *testing.T) {
	actor := fake.New(nil)
	actor.FailInit(errors.New("login page did not load"))
	svc, err := NewService(serviceConfig(), actor)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	url, cancel, done := startService(t, svc)
	defer cancel()

	c, _ := client.New(client.Config{ServerURL: url, AuthToken: "token"}, nil, nil)
	waitFor(t, "failed startup init", func() bool { return actor.Inits() == 1 && svc.Supervisor().LastError() != nil })

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Ready || st.LastError == "" {
		t.Errorf("status = %+v", st)
	}

	// The next delivery initializes on demand.
	if err := c.Deliver(context.Background(), domain.TriggerRecord{ID: "r1", Payload: "hello"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(actor.Posted()) != 1 {
		t.Errorf("posted = %v", actor.Posted())
	}

	cancel()
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The supervisor is closed for good once the service has stopped.
	if err := svc.Run(context.Background(), nil); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("second Run = %v, want ErrClosed", err)
	}
}

func TestNewService_InvalidDispatchConfig(t *testing.T) {
	cfg := serviceConfig()
	cfg.Dispatch.MessageFormat = "no placeholder"
	if _, err := NewService(cfg, fake.New(nil)); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("NewService = %v, want ErrInvalidConfig", err)
	}
}
