package app

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/ports"
	"github.com/bft-labs/zonecast/internal/session"
	"github.com/bft-labs/zonecast/pkg/log"
)

// Event types published by EventFanout.
const (
	EventSessionState    = "session.state"
	EventDeliveryAttempt = "delivery.attempt"
	EventTriggerFired    = "trigger.fired"
	EventTriggerResult   = "trigger.result"
)

const (
	fanoutBuffer         = 64
	fanoutPublishTimeout = 5 * time.Second
)

// EventFanout forwards session and delivery notifications to an
// EventPublisher on its own goroutine. Callers never block: events that do
// not fit in the buffer are dropped. A nil *EventFanout is a no-op.
type EventFanout struct {
	pub    ports.EventPublisher
	logger log.Logger
	now    func() time.Time

	mu      sync.Mutex
	ch      chan ports.Event
	closed  bool
	dropped int
	done    chan struct{}
}

var _ session.EventEmitter = (*EventFanout)(nil)

// NewEventFanout starts publishing to pub.
func NewEventFanout(pub ports.EventPublisher, logger log.Logger) *EventFanout {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	f := &EventFanout{
		pub:    pub,
		logger: logger,
		now:    time.Now,
		ch:     make(chan ports.Event, fanoutBuffer),
		done:   make(chan struct{}),
	}
	go f.loop()
	return f
}

func (f *EventFanout) loop() {
	defer close(f.done)
	for ev := range f.ch {
		ctx, cancel := context.WithTimeout(context.Background(), fanoutPublishTimeout)
		if err := f.pub.Publish(ctx, ev); err != nil {
			f.logger.Warn("event publish failed", log.String("type", ev.Type), log.Err(err))
		}
		cancel()
	}
}

// Emit queues an event.
func (f *EventFanout) Emit(eventType string, fields map[string]string) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- ports.Event{Type: eventType, Timestamp: f.now().UTC(), Fields: fields}:
	default:
		f.dropped++
	}
}

// OnStateChange implements session.EventEmitter.
func (f *EventFanout) OnStateChange(previous, current session.State, reason string) {
	f.Emit(EventSessionState, map[string]string{
		"from":   previous.String(),
		"to":     current.String(),
		"reason": reason,
	})
}

// OnAttempt reports a dispatcher post attempt.
func (f *EventFanout) OnAttempt(a domain.DeliveryAttempt) {
	fields := map[string]string{
		"record":       a.Record.ID,
		"zone":         a.Record.ZoneID,
		"attempt":      strconv.Itoa(a.AttemptNumber),
		"outcome":      a.Outcome.String(),
		"invalidating": strconv.FormatBool(a.Invalidating),
		"duration_ms":  strconv.FormatInt(a.Duration.Milliseconds(), 10),
	}
	if a.Err != nil {
		fields["error"] = a.Err.Error()
	}
	f.Emit(EventDeliveryAttempt, fields)
}

// OnTrigger reports a record emitted by the trigger gate.
func (f *EventFanout) OnTrigger(rec domain.TriggerRecord) {
	f.Emit(EventTriggerFired, map[string]string{
		"record":  rec.ID,
		"zone":    rec.ZoneID,
		"payload": rec.Payload,
	})
}

// OnResult reports the final outcome of a queued record.
func (f *EventFanout) OnResult(rec domain.TriggerRecord, err error) {
	fields := map[string]string{
		"record":    rec.ID,
		"zone":      rec.ZoneID,
		"delivered": strconv.FormatBool(err == nil),
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	f.Emit(EventTriggerResult, fields)
}

// Dropped returns how many events did not fit in the buffer.
func (f *EventFanout) Dropped() int {
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Close publishes what is buffered, waiting at most timeout, then closes
// the publisher.
func (f *EventFanout) Close(timeout time.Duration) error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.ch)
	f.mu.Unlock()

	var err error
	select {
	case <-f.done:
	case <-time.After(timeout):
		err = domain.ErrShutdownTimeout
	}
	if cerr := f.pub.Close(); err == nil {
		err = cerr
	}
	return err
}
