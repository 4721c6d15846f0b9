// Package dispatch delivers trigger records through the supervised actor
// session.
//
// Deliveries are processed one at a time. Each delivery makes sure the
// session is Ready, then posts with a bounded number of attempts. Failures
// that break the session mark it degraded and stop immediately.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/ports"
	"github.com/bft-labs/zonecast/pkg/log"
)

// Session is the part of the session supervisor the dispatcher uses.
type Session interface {
	EnsureReady(ctx context.Context) error
	WithSession(ctx context.Context, fn func(ctx context.Context, actor ports.Actor) error) error
	MarkDegraded(reason string)
}

// Config configures a Dispatcher.
type Config struct {
	// MaxAttempts is the per-delivery attempt budget.
	// Default: 3
	MaxAttempts int

	// RetryDelay is the fixed pause between attempts.
	// Default: 2 seconds
	RetryDelay time.Duration

	// MessageFormat wraps the payload; its single %s is replaced.
	// Default: "%s"
	MessageFormat string

	// InvalidationPatterns override DefaultInvalidationPatterns when non-nil.
	InvalidationPatterns []string

	// DedupSize is how many delivered record ids are remembered. Zero disables.
	// Default: 256
	DedupSize int
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		RetryDelay:    2 * time.Second,
		MessageFormat: "%s",
		DedupSize:     256,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1", domain.ErrInvalidConfig)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry delay must not be negative", domain.ErrInvalidConfig)
	}
	if strings.Count(c.MessageFormat, "%s") != 1 {
		return fmt.Errorf("%w: message format must contain exactly one %%s", domain.ErrInvalidConfig)
	}
	if c.DedupSize < 0 {
		return fmt.Errorf("%w: dedup size must not be negative", domain.ErrInvalidConfig)
	}
	return nil
}

// Result describes a successful delivery.
type Result struct {
	// Message is the text that was posted.
	Message  string
	Attempts int
	// Duplicate is set when the record id had already been delivered and
	// nothing was posted.
	Duplicate bool
}

// AttemptFunc observes every post attempt.
type AttemptFunc func(attempt domain.DeliveryAttempt)

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger log.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithAttemptFunc registers an attempt observer.
func WithAttemptFunc(fn AttemptFunc) Option {
	return func(d *Dispatcher) { d.onAttempt = fn }
}

// Dispatcher serializes deliveries against the supervised session.
type Dispatcher struct {
	session    Session
	cfg        Config
	classifier *Classifier
	logger     log.Logger
	onAttempt  AttemptFunc

	// lock admits one delivery at a time. Waiters queue, they are not dropped.
	lock   chan struct{}
	recent *recentIDs
}

var _ ports.TriggerSink = (*Dispatcher)(nil)

// New creates a dispatcher.
func New(session Session, cfg Config, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Dispatcher{
		session:    session,
		cfg:        cfg,
		classifier: NewClassifier(cfg.InvalidationPatterns),
		logger:     log.NewNoopLogger(),
		lock:       make(chan struct{}, 1),
		recent:     newRecentIDs(cfg.DedupSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Format renders the text posted for payload.
func (d *Dispatcher) Format(payload string) string {
	return strings.Replace(d.cfg.MessageFormat, "%s", payload, 1)
}

// Deliver implements ports.TriggerSink.
func (d *Dispatcher) Deliver(ctx context.Context, record domain.TriggerRecord) error {
	_, err := d.DeliverRecord(ctx, record)
	return err
}

// DeliverRecord delivers one record. Failures are *domain.DeliveryError.
func (d *Dispatcher) DeliverRecord(ctx context.Context, record domain.TriggerRecord) (Result, error) {
	select {
	case d.lock <- struct{}{}:
	case <-ctx.Done():
		return Result{}, &domain.DeliveryError{RecordID: record.ID, Retryable: true, Err: ctx.Err()}
	}
	defer func() { <-d.lock }()

	text := d.Format(record.Payload)

	if record.ID != "" && d.recent.contains(record.ID) {
		d.logger.Info("duplicate trigger acknowledged without posting",
			log.String("record", record.ID),
			log.String("zone", record.ZoneID),
		)
		return Result{Message: text, Duplicate: true}, nil
	}

	if err := d.session.EnsureReady(ctx); err != nil {
		if !errors.Is(err, domain.ErrSessionUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrSessionUnavailable, err)
		}
		d.logger.Warn("session not ready, failing delivery",
			log.String("record", record.ID),
			log.Err(err),
		)
		return Result{}, &domain.DeliveryError{RecordID: record.ID, Retryable: false, Err: err}
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		start := time.Now()
		err := d.session.WithSession(ctx, func(ctx context.Context, actor ports.Actor) error {
			return actor.PostMessage(ctx, text)
		})
		elapsed := time.Since(start)

		if err == nil {
			d.emit(domain.DeliveryAttempt{
				Record:        record,
				AttemptNumber: attempt,
				Outcome:       domain.Success,
				Duration:      elapsed,
			})
			d.logger.Info("message posted",
				log.String("record", record.ID),
				log.String("zone", record.ZoneID),
				log.Int("attempt", attempt),
				log.Duration("elapsed", elapsed),
			)
			if record.ID != "" {
				d.recent.add(record.ID)
			}
			return Result{Message: text, Attempts: attempt}, nil
		}
		lastErr = err

		// The session went away under us (reset, sweep teardown or shutdown).
		if errors.Is(err, domain.ErrSessionUnavailable) || errors.Is(err, domain.ErrClosed) {
			d.emit(domain.DeliveryAttempt{Record: record, AttemptNumber: attempt, Outcome: domain.FatalFailure, Err: err, Duration: elapsed})
			return Result{}, &domain.DeliveryError{RecordID: record.ID, Attempts: attempt, Retryable: false, Err: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			d.emit(domain.DeliveryAttempt{Record: record, AttemptNumber: attempt, Outcome: domain.RetryableFailure, Err: err, Duration: elapsed})
			return Result{}, &domain.DeliveryError{RecordID: record.ID, Attempts: attempt, Retryable: true, Err: ctxErr}
		}

		class := d.classifier.Classify(err)
		d.logger.Warn("post attempt failed",
			log.String("record", record.ID),
			log.Int("attempt", attempt),
			log.String("class", class.String()),
			log.Err(err),
		)

		switch class {
		case ClassInvalidating:
			d.emit(domain.DeliveryAttempt{Record: record, AttemptNumber: attempt, Outcome: domain.FatalFailure, Invalidating: true, Err: err, Duration: elapsed})
			d.session.MarkDegraded(err.Error())
			return Result{}, &domain.DeliveryError{
				RecordID:  record.ID,
				Attempts:  attempt,
				Retryable: true,
				Err:       fmt.Errorf("%w: %w", domain.ErrSessionInvalidated, err),
			}
		case ClassFatal:
			d.emit(domain.DeliveryAttempt{Record: record, AttemptNumber: attempt, Outcome: domain.FatalFailure, Err: err, Duration: elapsed})
			return Result{}, &domain.DeliveryError{RecordID: record.ID, Attempts: attempt, Retryable: false, Err: err}
		}

		d.emit(domain.DeliveryAttempt{Record: record, AttemptNumber: attempt, Outcome: domain.RetryableFailure, Err: err, Duration: elapsed})
		if attempt == d.cfg.MaxAttempts {
			break
		}
		if err := sleep(ctx, d.cfg.RetryDelay); err != nil {
			return Result{}, &domain.DeliveryError{RecordID: record.ID, Attempts: attempt, Retryable: true, Err: err}
		}
	}

	return Result{}, &domain.DeliveryError{
		RecordID:  record.ID,
		Attempts:  d.cfg.MaxAttempts,
		Retryable: true,
		Err:       lastErr,
	}
}

func (d *Dispatcher) emit(a domain.DeliveryAttempt) {
	if d.onAttempt != nil {
		d.onAttempt(a)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recentIDs remembers the last n delivered record ids.
type recentIDs struct {
	ring []string
	set  map[string]struct{}
	next int
}

func newRecentIDs(n int) *recentIDs {
	return &recentIDs{ring: make([]string, n), set: make(map[string]struct{}, n)}
}

func (r *recentIDs) contains(id string) bool {
	_, ok := r.set[id]
	return ok
}

func (r *recentIDs) add(id string) {
	if len(r.ring) == 0 {
		return
	}
	if old := r.ring[r.next]; old != "" {
		delete(r.set, old)
	}
	r.ring[r.next] = id
	r.set[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ring)
}
