// Package fake provides an in-memory actor. It logs every message it is
// asked to post and can be scripted to fail, which makes it the backend of
// choice for tests and dry runs.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/ports"
	"github.com/bft-labs/zonecast/pkg/log"
)

// Actor is a scriptable ports.Actor.
type Actor struct {
	mu     sync.Mutex
	logger log.Logger

	initErrs []error
	postErrs []error
	delay    time.Duration

	ready     bool
	posted    []string
	attempts  int
	inits     int
	shutdowns int
}

var _ ports.Actor = (*Actor)(nil)

// New creates a fake actor that always succeeds until scripted otherwise.
func New(logger log.Logger) *Actor {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Actor{logger: logger}
}

// FailInit queues errors returned by the next Initialize calls, in order.
// A nil entry lets that call succeed.
func (a *Actor) FailInit(errs ...error) {
	a.mu.Lock()
	a.initErrs = append(a.initErrs, errs...)
	a.mu.Unlock()
}

// FailPosts queues errors returned by the next PostMessage calls, in order.
func (a *Actor) FailPosts(errs ...error) {
	a.mu.Lock()
	a.postErrs = append(a.postErrs, errs...)
	a.mu.Unlock()
}

// SetDelay makes every PostMessage take d, honouring ctx.
func (a *Actor) SetDelay(d time.Duration) {
	a.mu.Lock()
	a.delay = d
	a.mu.Unlock()
}

func (a *Actor) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.inits++
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(a.initErrs) > 0 {
		err := a.initErrs[0]
		a.initErrs = a.initErrs[1:]
		if err != nil {
			return err
		}
	}
	a.ready = true
	a.logger.Info("fake actor ready")
	return nil
}

func (a *Actor) PostMessage(ctx context.Context, text string) error {
	a.mu.Lock()
	a.attempts++
	delay := a.delay
	ready := a.ready
	var scripted error
	if len(a.postErrs) > 0 {
		scripted = a.postErrs[0]
		a.postErrs = a.postErrs[1:]
	}
	a.mu.Unlock()

	if !ready {
		return &ports.ActorError{Op: "post", Err: domain.ErrSessionLost}
	}
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return &ports.ActorError{Op: "post", Retryable: true, Err: ctx.Err()}
		}
	}
	if scripted != nil {
		return scripted
	}

	a.mu.Lock()
	a.posted = append(a.posted, text)
	a.mu.Unlock()
	a.logger.Info("fake actor posted message", log.String("text", text))
	return nil
}

func (a *Actor) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdowns++
	a.ready = false
	return nil
}

// Posted returns the messages posted successfully.
func (a *Actor) Posted() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.posted...)
}

// Attempts returns the number of PostMessage calls.
func (a *Actor) Attempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts
}

// Inits returns the number of Initialize calls.
func (a *Actor) Inits() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inits
}

// Shutdowns returns the number of Shutdown calls.
func (a *Actor) Shutdowns() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shutdowns
}
