// Package queue decouples trigger production from delivery.
//
// Enqueue never blocks the location path: when the buffer is full the
// record is dropped and ErrQueueFull is reported. A single consumer drains
// the buffer into a ports.TriggerSink, so deliveries never overlap.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/ports"
	"github.com/bft-labs/zonecast/pkg/log"
)

// DefaultCapacity is the buffer size used when none is configured.
const DefaultCapacity = 16

// ResultFunc observes the outcome of each delivered record. err is nil on success.
type ResultFunc func(record domain.TriggerRecord, err error)

// Option customizes a Queue.
type Option func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(logger log.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// WithResultFunc registers a delivery observer. It runs on the consumer goroutine.
func WithResultFunc(fn ResultFunc) Option {
	return func(q *Queue) { q.onResult = fn }
}

// Queue is a bounded single-consumer delivery queue.
type Queue struct {
	sink     ports.TriggerSink
	logger   log.Logger
	onResult ResultFunc

	mu      sync.Mutex
	ch      chan domain.TriggerRecord
	closed  bool
	started bool
	done    chan struct{}
	dropped int
}

// New creates a queue that hands records to sink.
func New(sink ports.TriggerSink, capacity int, opts ...Option) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue{
		sink:   sink,
		logger: log.NewNoopLogger(),
		ch:     make(chan domain.TriggerRecord, capacity),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the consumer. It stops when ctx is canceled or Close is called.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.ErrClosed
	}
	if q.started {
		return domain.ErrAlreadyRunning
	}
	q.started = true
	go q.consume(ctx)
	return nil
}

// Enqueue adds a record without blocking.
func (q *Queue) Enqueue(record domain.TriggerRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.ErrClosed
	}
	select {
	case q.ch <- record:
		return nil
	default:
		q.dropped++
		q.logger.Warn("delivery queue full, dropping trigger",
			log.String("record_id", record.ID),
			log.String("zone_id", record.ZoneID),
		)
		return domain.ErrQueueFull
	}
}

// Len returns the number of buffered records.
func (q *Queue) Len() int { return len(q.ch) }

// Dropped returns how many records were rejected because the queue was full.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close stops accepting records and waits for the consumer to finish the
// buffered ones, or for timeout.
func (q *Queue) Close(timeout time.Duration) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	started := q.started
	q.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-q.done:
		return nil
	case <-time.After(timeout):
		q.logger.Warn("delivery queue did not drain in time", log.Duration("timeout", timeout))
		return domain.ErrShutdownTimeout
	}
}

func (q *Queue) consume(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case record, ok := <-q.ch:
			if !ok {
				return
			}
			err := q.sink.Deliver(ctx, record)
			if err != nil {
				q.logger.Warn("trigger delivery failed",
					log.String("record_id", record.ID),
					log.String("zone_id", record.ZoneID),
					log.Err(err),
				)
			} else {
				q.logger.Debug("trigger delivered",
					log.String("record_id", record.ID),
					log.String("zone_id", record.ZoneID),
				)
			}
			if q.onResult != nil {
				q.onResult(record, err)
			}
		}
	}
}
