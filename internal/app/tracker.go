package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/ports"
	"github.com/bft-labs/zonecast/internal/queue"
	"github.com/bft-labs/zonecast/internal/trigger"
	"github.com/bft-labs/zonecast/internal/zone"
	"github.com/bft-labs/zonecast/pkg/log"
)

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	Subscribe ports.SubscribeConfig
	Gate      trigger.Config

	// QueueSize bounds pending deliveries.
	// Default: queue.DefaultCapacity
	QueueSize int

	// DrainTimeout is how long Run waits for queued deliveries on exit.
	// Default: 10 seconds
	DrainTimeout time.Duration

	// StatusLogSize is the number of status lines kept.
	// Default: 20
	StatusLogSize int
}

// ZoneStatus is the last computed relation between the user and a zone.
type ZoneStatus struct {
	ID       string
	Name     string
	Distance float64
	Bearing  float64
	Inside   bool
}

// Snapshot is a point-in-time view of a tracking session.
type Snapshot struct {
	State State
	// Sample is nil until the first sample arrives.
	Sample *domain.LocationSample
	Zones  []ZoneStatus
	// Inside holds the names of the zones currently Inside, in catalog order.
	Inside     []string
	Triggers   int
	Deliveries int
	Failures   int
	Dropped    int
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the tracker logger.
func WithTrackerLogger(logger log.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = logger }
}

// WithTrackerEvents publishes trigger events through f.
func WithTrackerEvents(f *EventFanout) TrackerOption {
	return func(t *Tracker) { t.events = f }
}

// WithGateOptions passes options to every trigger gate the tracker creates.
func WithGateOptions(opts ...trigger.Option) TrackerOption {
	return func(t *Tracker) { t.gateOpts = append(t.gateOpts, opts...) }
}

// Tracker runs the client pipeline: location samples are evaluated
// against the zone catalog, the trigger gate decides what fires, and
// fired records are queued for delivery without blocking evaluation.
type Tracker struct {
	cfg      TrackerConfig
	provider ports.LocationProvider
	sink     ports.TriggerSink
	logger   log.Logger
	events   *EventFanout
	gateOpts []trigger.Option
	lc       *lifecycle
	status   *StatusLog

	reload chan *domain.Catalog

	mu      sync.Mutex
	catalog *domain.Catalog
	gate    *trigger.Gate
	snap    Snapshot
}

// NewTracker creates a tracker for catalog.
func NewTracker(cfg TrackerConfig, catalog *domain.Catalog, provider ports.LocationProvider, sink ports.TriggerSink, opts ...TrackerOption) (*Tracker, error) {
	if err := cfg.Gate.Validate(); err != nil {
		return nil, err
	}
	if catalog == nil || catalog.Len() == 0 {
		return nil, fmt.Errorf("%w: catalog has no zones", domain.ErrInvalidCatalog)
	}
	if err := cfg.Gate.CheckCatalog(catalog); err != nil {
		return nil, err
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 10 * time.Second
	}
	t := &Tracker{
		cfg:      cfg,
		provider: provider,
		sink:     sink,
		logger:   log.NewNoopLogger(),
		status:   NewStatusLog(cfg.StatusLogSize),
		reload:   make(chan *domain.Catalog, 1),
		catalog:  catalog,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.lc = newLifecycle("tracker", t.logger)
	return t, nil
}

// Run tracks until ctx is canceled or the sample stream ends. Permission
// and provider failures are returned; delivery failures are only reported.
func (t *Tracker) Run(ctx context.Context) error {
	if err := t.lc.transitionTo(StateStarting, "run"); err != nil {
		return err
	}

	if err := t.provider.RequestPermission(ctx); err != nil {
		t.status.Add("Location permission unavailable: " + err.Error())
		_ = t.lc.transitionTo(StateCrashed, err.Error())
		return fmt.Errorf("request location permission: %w", err)
	}

	// Deliveries outlive ctx long enough to drain.
	qctx, qcancel := context.WithCancel(context.Background())
	defer qcancel()
	q := queue.New(t.sink, t.cfg.QueueSize,
		queue.WithLogger(t.logger),
		queue.WithResultFunc(t.onResult),
	)
	if err := q.Start(qctx); err != nil {
		_ = t.lc.transitionTo(StateCrashed, err.Error())
		return err
	}

	_ = t.lc.transitionTo(StateRunning, "permission granted")
	err := t.loop(ctx, q)

	_ = t.lc.transitionTo(StateStopping, "tracking ended")
	if cerr := q.Close(t.cfg.DrainTimeout); cerr != nil {
		t.logger.Warn("pending deliveries abandoned", log.Int("pending", q.Len()))
	}
	t.mu.Lock()
	t.snap.Dropped = q.Dropped()
	t.mu.Unlock()

	if err != nil {
		_ = t.lc.transitionTo(StateCrashed, err.Error())
		return err
	}
	_ = t.lc.transitionTo(StateStopped, "tracking ended")
	return nil
}

// loop runs one tracking session per catalog until ctx ends.
func (t *Tracker) loop(ctx context.Context, q *queue.Queue) error {
	for {
		t.mu.Lock()
		catalog := t.catalog
		t.mu.Unlock()

		next, err := t.session(ctx, catalog, q)
		if err != nil || next == nil {
			return err
		}

		t.mu.Lock()
		t.catalog = next
		t.mu.Unlock()
		t.status.Add(fmt.Sprintf("Zone catalog reloaded (%d zones)", next.Len()))
	}
}

// session tracks against one catalog. It returns the replacement catalog
// when a reload ends the session.
func (t *Tracker) session(ctx context.Context, catalog *domain.Catalog, q *queue.Queue) (*domain.Catalog, error) {
	gate, err := trigger.New(t.cfg.Gate, catalog, t.gateOpts...)
	if err != nil {
		return nil, err
	}
	store := zone.NewMembershipStore(catalog)

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	samples, err := t.provider.Subscribe(sctx, t.cfg.Subscribe)
	if err != nil {
		t.status.Add("Failed to start location tracking: " + err.Error())
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	t.mu.Lock()
	t.gate = gate
	t.snap.Sample = nil
	t.snap.Zones = nil
	t.snap.Inside = nil
	t.mu.Unlock()

	t.status.Add("Location tracking started")
	t.logger.Info("tracking session started",
		log.Int("zones", catalog.Len()),
		log.String("policy", string(gate.Policy())),
	)

	for {
		select {
		case <-ctx.Done():
			t.status.Add("Location tracking stopped")
			return nil, nil

		case next := <-t.reload:
			t.logger.Info("restarting tracking session with reloaded catalog", log.Int("zones", next.Len()))
			return next, nil

		case sample, ok := <-samples:
			if !ok {
				t.status.Add("Location tracking stopped")
				t.logger.Info("location stream ended")
				return nil, nil
			}
			t.handle(sample, catalog, store, gate, q)
		}
	}
}

// handle runs one evaluate and gate pass. It never waits on a delivery.
func (t *Tracker) handle(sample domain.LocationSample, catalog *domain.Catalog, store *zone.MembershipStore, gate *trigger.Gate, q *queue.Queue) {
	ev := zone.Evaluate(sample, catalog, store)
	records := gate.OnTransitions(ev)

	zones := make([]ZoneStatus, 0, catalog.Len())
	var inside []string
	for i := 0; i < catalog.Len(); i++ {
		z := catalog.At(i)
		m, _ := store.Get(z.ID)
		zones = append(zones, ZoneStatus{
			ID:       z.ID,
			Name:     z.Name,
			Distance: ev.Distances[z.ID],
			Bearing:  ev.Bearings[z.ID],
			Inside:   m.State == domain.Inside,
		})
		if m.State == domain.Inside {
			inside = append(inside, z.Name)
		}
	}

	t.mu.Lock()
	changed := t.snap.Sample == nil || !equalStrings(t.snap.Inside, inside)
	s := sample
	t.snap.Sample = &s
	t.snap.Zones = zones
	t.snap.Inside = inside
	t.snap.Triggers += len(records)
	t.mu.Unlock()

	t.logger.Debug("sample evaluated",
		log.String("position", sample.Coordinate.String()),
		log.Int("transitions", len(ev.Transitions)),
		log.Strings("inside", inside),
	)
	if changed {
		if len(inside) == 0 {
			t.status.Add("Not in any zone")
		} else {
			t.status.Add("Currently in: " + strings.Join(inside, ", "))
		}
	}

	for _, rec := range records {
		name := zoneName(catalog, rec.ZoneID)
		t.events.OnTrigger(rec)
		if err := q.Enqueue(rec); err != nil {
			if errors.Is(err, domain.ErrQueueFull) {
				t.status.Add("Skipped message for " + name + ": delivery queue full")
			}
			continue
		}
		t.logger.Info("trigger fired",
			log.String("zone", rec.ZoneID),
			log.String("record", rec.ID),
		)
	}
}

func (t *Tracker) onResult(rec domain.TriggerRecord, err error) {
	t.mu.Lock()
	name := zoneName(t.catalog, rec.ZoneID)
	if err == nil {
		t.snap.Deliveries++
	} else {
		t.snap.Failures++
	}
	t.mu.Unlock()

	t.events.OnResult(rec, err)
	if err == nil {
		t.status.Add("Posted message for " + name)
		return
	}
	t.status.Add("Failed to post message for " + name + ": " + err.Error())
}

// Reload replaces the catalog. The running session ends and a new one
// starts with fresh membership state. Only the latest pending catalog is kept.
// A catalog the gate cannot use is rejected and tracking continues unchanged.
func (t *Tracker) Reload(catalog *domain.Catalog) {
	if catalog == nil || catalog.Len() == 0 {
		return
	}
	if err := t.cfg.Gate.CheckCatalog(catalog); err != nil {
		t.logger.Warn("reloaded catalog rejected", log.Err(err))
		t.status.Add("Zone catalog rejected: " + err.Error())
		return
	}
	for {
		select {
		case t.reload <- catalog:
			return
		default:
		}
		select {
		case <-t.reload:
		default:
		}
	}
}

// ForceNext makes the next Inside sample fire under the interval policy.
func (t *Tracker) ForceNext() {
	t.mu.Lock()
	gate := t.gate
	t.mu.Unlock()
	if gate != nil {
		gate.ForceNext()
	}
}

// Snapshot returns the current tracking view.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.snap
	snap.State = t.lc.State()
	if t.snap.Sample != nil {
		s := *t.snap.Sample
		snap.Sample = &s
	}
	snap.Zones = append([]ZoneStatus(nil), t.snap.Zones...)
	snap.Inside = append([]string(nil), t.snap.Inside...)
	return snap
}

// StatusLog returns the recent status lines, newest first.
func (t *Tracker) StatusLog() []string {
	return t.status.Entries()
}

// NearestZones returns the zone statuses ordered by distance.
func (s Snapshot) NearestZones() []ZoneStatus {
	out := append([]ZoneStatus(nil), s.Zones...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

func zoneName(catalog *domain.Catalog, id string) string {
	if z, ok := catalog.Lookup(id); ok && z.Name != "" {
		return z.Name
	}
	return id
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
