// Package trigger decides which zone transitions become dispatches.
//
// Two policies share the same Gate:
//
//   - visit-once fires on Entered and re-arms a zone only after it is Exited.
//   - interval fires at most once per Interval while any zone is Inside,
//     choosing the first Inside zone in catalog order.
package trigger

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/zone"
)

// Policy selects the trigger behaviour.
type Policy string

const (
	PolicyVisitOnce Policy = "visit-once"
	PolicyInterval  Policy = "interval"
)

// Selection decides which payload text a fired zone contributes.
type Selection string

const (
	// SelectFirst uses the zone message, or its first candidate.
	SelectFirst Selection = "first"
	// SelectRandom draws uniformly from the zone's candidates.
	SelectRandom Selection = "random"
)

// PayloadMode decides what the record carries.
type PayloadMode string

const (
	PayloadZone        PayloadMode = "zone"
	PayloadCoordinates PayloadMode = "coordinates"
)

// Config configures a Gate.
type Config struct {
	Policy      Policy
	Interval    time.Duration
	Selection   Selection
	PayloadMode PayloadMode
	// ForcePost bypasses the interval window on every sample.
	ForcePost bool
}

// DefaultConfig returns the visit-once configuration.
func DefaultConfig() Config {
	return Config{
		Policy:      PolicyVisitOnce,
		Interval:    30 * time.Second,
		Selection:   SelectRandom,
		PayloadMode: PayloadZone,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Policy {
	case PolicyVisitOnce:
	case PolicyInterval:
		if c.Interval <= 0 && !c.ForcePost {
			return fmt.Errorf("%w: interval policy needs a positive interval", domain.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown trigger policy %q", domain.ErrInvalidConfig, c.Policy)
	}
	switch c.Selection {
	case SelectFirst, SelectRandom:
	default:
		return fmt.Errorf("%w: unknown selection %q", domain.ErrInvalidConfig, c.Selection)
	}
	switch c.PayloadMode {
	case PayloadZone, PayloadCoordinates:
	default:
		return fmt.Errorf("%w: unknown payload mode %q", domain.ErrInvalidConfig, c.PayloadMode)
	}
	return nil
}

// CheckCatalog rejects zones that could never produce a message under c.
// Coordinate payloads need no zone text.
func (c Config) CheckCatalog(catalog *domain.Catalog) error {
	if c.PayloadMode != PayloadZone {
		return nil
	}
	for i := 0; i < catalog.Len(); i++ {
		if z := catalog.At(i); z.Payload.Empty() {
			return fmt.Errorf("%w: zone %s has neither a message nor candidates", domain.ErrInvalidCatalog, z.ID)
		}
	}
	return nil
}

// Option customizes a Gate.
type Option func(*Gate)

// WithRand sets the random source used for candidate selection.
func WithRand(rng *rand.Rand) Option {
	return func(g *Gate) { g.rng = rng }
}

// WithIDFunc sets the record id generator.
func WithIDFunc(fn func() string) Option {
	return func(g *Gate) { g.newID = fn }
}

// Gate turns evaluations into trigger records according to its policy.
// One Gate belongs to one tracking session.
type Gate struct {
	cfg     Config
	catalog *domain.Catalog
	rng     *rand.Rand
	newID   func() string

	mu       sync.Mutex
	armed    map[string]bool
	lastFire time.Time
	fired    bool
	forceOne bool
}

// New creates a Gate for the given catalog.
func New(cfg Config, catalog *domain.Catalog, opts ...Option) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.CheckCatalog(catalog); err != nil {
		return nil, err
	}
	g := &Gate{
		cfg:     cfg,
		catalog: catalog,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		newID:   func() string { return uuid.NewString() },
		armed:   make(map[string]bool, catalog.Len()),
	}
	for _, opt := range opts {
		opt(g)
	}
	for i := 0; i < catalog.Len(); i++ {
		g.armed[catalog.At(i).ID] = true
	}
	return g, nil
}

// Policy returns the active policy.
func (g *Gate) Policy() Policy { return g.cfg.Policy }

// ForceNext makes the next sample with an Inside zone fire regardless of the
// interval window. It has no effect under visit-once.
func (g *Gate) ForceNext() {
	g.mu.Lock()
	g.forceOne = true
	g.mu.Unlock()
}

// OnTransitions applies the policy to one evaluation. The evaluation's
// sample timestamp is the current time for interval bookkeeping.
func (g *Gate) OnTransitions(ev zone.Evaluation) []domain.TriggerRecord {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cfg.Policy == PolicyInterval {
		return g.interval(ev)
	}
	return g.visitOnce(ev)
}

func (g *Gate) visitOnce(ev zone.Evaluation) []domain.TriggerRecord {
	var out []domain.TriggerRecord
	for _, tr := range ev.Transitions {
		switch tr.Kind {
		case domain.Entered:
			if !g.armed[tr.ZoneID] {
				continue
			}
			z, ok := g.catalog.Lookup(tr.ZoneID)
			if !ok {
				continue
			}
			g.armed[tr.ZoneID] = false
			out = append(out, g.record(z, ev.Sample))
		case domain.Exited:
			g.armed[tr.ZoneID] = true
		}
	}
	return out
}

func (g *Gate) interval(ev zone.Evaluation) []domain.TriggerRecord {
	if len(ev.Inside) == 0 {
		return nil
	}
	now := ev.Sample.Timestamp
	forced := g.cfg.ForcePost || g.forceOne
	if g.fired && !forced && now.Sub(g.lastFire) < g.cfg.Interval {
		return nil
	}

	z, ok := g.catalog.Lookup(ev.Inside[0])
	if !ok {
		return nil
	}
	g.fired = true
	g.forceOne = false
	g.lastFire = now
	return []domain.TriggerRecord{g.record(z, ev.Sample)}
}

func (g *Gate) record(z domain.Zone, s domain.LocationSample) domain.TriggerRecord {
	return domain.TriggerRecord{
		ID:             g.newID(),
		ZoneID:         z.ID,
		Payload:        g.payload(z, s),
		Coordinate:     s.Coordinate,
		CauseTimestamp: s.Timestamp,
	}
}

func (g *Gate) payload(z domain.Zone, s domain.LocationSample) string {
	if g.cfg.PayloadMode == PayloadCoordinates {
		return "Location: (" + strconv.FormatFloat(s.Coordinate.Lat, 'f', -1, 64) +
			", " + strconv.FormatFloat(s.Coordinate.Lon, 'f', -1, 64) + ")"
	}
	if g.cfg.Selection == SelectRandom {
		return z.Payload.Pick(g.rng)
	}
	return z.Payload.Pick(nil)
}
