package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/ports"
)

type recorder struct {
	mu       sync.Mutex
	texts    []string
	auth     []string
	statuses []int
}

func (r *recorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.auth = append(r.auth, req.Header.Get("Authorization"))
		if req.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body postBody
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		r.texts = append(r.texts, body.Text)
		status := http.StatusOK
		if len(r.statuses) > 0 {
			status = r.statuses[0]
			r.statuses = r.statuses[1:]
		}
		w.WriteHeader(status)
	}
}

func newActor(t *testing.T, rec *recorder) *Actor {
	t.Helper()
	srv := httptest.NewServer(rec.handler(t))
	t.Cleanup(srv.Close)

	a, err := New(Config{URL: srv.URL, Token: "secret"}, srv.Client(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return a
}

func TestActor_PostMessage(t *testing.T) {
	rec := &recorder{}
	a := newActor(t, rec)

	if err := a.PostMessage(context.Background(), "hello from the fountain"); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if len(rec.texts) != 1 || rec.texts[0] != "hello from the fountain" {
		t.Errorf("texts = %v", rec.texts)
	}
	for _, h := range rec.auth {
		if h != "Bearer secret" {
			t.Errorf("Authorization = %q", h)
		}
	}
}

func TestActor_StatusClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		retryable   bool
		sessionLost bool
	}{
		{"server error", http.StatusInternalServerError, true, false},
		{"bad gateway", http.StatusBadGateway, true, false},
		{"rate limited", http.StatusTooManyRequests, true, false},
		{"unauthorized", http.StatusUnauthorized, false, true},
		{"gone", http.StatusGone, false, true},
		{"not found", http.StatusNotFound, false, true},
		{"bad request", http.StatusBadRequest, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{statuses: []int{tt.status}}
			a := newActor(t, rec)

			err := a.PostMessage(context.Background(), "x")
			var ae *ports.ActorError
			if !errors.As(err, &ae) {
				t.Fatalf("error = %v, want *ports.ActorError", err)
			}
			if ae.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", ae.Retryable, tt.retryable)
			}
			if got := errors.Is(err, domain.ErrSessionLost); got != tt.sessionLost {
				t.Errorf("session lost = %v, want %v", got, tt.sessionLost)
			}
		})
	}
}

func TestActor_PostBeforeInitialize(t *testing.T) {
	a, err := New(Config{URL: "http://127.0.0.1:1"}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.PostMessage(context.Background(), "x"); !errors.Is(err, domain.ErrSessionLost) {
		t.Errorf("PostMessage = %v, want ErrSessionLost", err)
	}
}

func TestActor_InitializeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	a, _ := New(Config{URL: srv.URL}, srv.Client(), nil)
	if err := a.Initialize(context.Background()); err == nil {
		t.Fatal("Initialize succeeded against a 403 endpoint")
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNew_RequiresURL(t *testing.T) {
	if _, err := New(Config{}, nil, nil); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("New = %v, want ErrInvalidConfig", err)
	}
}
