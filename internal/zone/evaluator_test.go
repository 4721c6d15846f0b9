package zone

import (
	"math/rand"
	"testing"
	"time"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/geo"
)

var fountain = domain.Zone{
	ID:           "3",
	Name:         "Lion's Head Fountain",
	Center:       domain.Coordinate{Lat: 40.426061, Lon: -86.913974},
	RadiusMeters: 30,
	Payload:      domain.Payload{Message: "You are near the Lion's Head Fountain!"},
}

func mustCatalog(t *testing.T, zones ...domain.Zone) *domain.Catalog {
	t.Helper()
	c, err := domain.NewCatalog(zones)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}

func sampleAt(c domain.Coordinate, ts time.Time) domain.LocationSample {
	return domain.LocationSample{Coordinate: c, Timestamp: ts}
}

func TestEvaluate_EnterStayExit(t *testing.T) {
	catalog := mustCatalog(t, fountain)
	store := NewMembershipStore(catalog)
	t0 := time.Unix(1715003456, 0)

	steps := []struct {
		name     string
		meters   float64
		wantKind domain.TransitionKind // 0 means no transition
		wantIn   bool
	}{
		{"far away", 200, 0, false},
		{"enter", 10, domain.Entered, true},
		{"stay", 10, 0, true},
		{"boundary counts as inside", 29.9, 0, true},
		{"exit", 200, domain.Exited, false},
		{"stay out", 250, 0, false},
		{"re-enter", 5, domain.Entered, true},
	}

	for i, s := range steps {
		ts := t0.Add(time.Duration(i) * 3 * time.Second)
		ev := Evaluate(sampleAt(geo.Offset(fountain.Center, 0, s.meters), ts), catalog, store)

		if s.wantKind == 0 {
			if len(ev.Transitions) != 0 {
				t.Fatalf("%s: unexpected transitions %v", s.name, ev.Transitions)
			}
		} else {
			if len(ev.Transitions) != 1 || ev.Transitions[0].Kind != s.wantKind || ev.Transitions[0].ZoneID != "3" {
				t.Fatalf("%s: transitions = %v, want one %v", s.name, ev.Transitions, s.wantKind)
			}
		}

		m, _ := store.Get("3")
		if (m.State == domain.Inside) != s.wantIn {
			t.Fatalf("%s: state = %v, want inside=%t", s.name, m.State, s.wantIn)
		}
		if s.wantIn && m.EnteredAt.IsZero() {
			t.Errorf("%s: EnteredAt not set while inside", s.name)
		}
		if !s.wantIn && !m.EnteredAt.IsZero() {
			t.Errorf("%s: EnteredAt = %v, want zero while outside", s.name, m.EnteredAt)
		}
		if d := ev.Distances["3"]; d < s.meters-0.5 || d > s.meters+0.5 {
			t.Errorf("%s: distance = %f, want ~%f", s.name, d, s.meters)
		}
	}
}

func TestEvaluate_EnteredAtKeptWhileInside(t *testing.T) {
	catalog := mustCatalog(t, fountain)
	store := NewMembershipStore(catalog)
	t0 := time.Unix(1715003456, 0)

	Evaluate(sampleAt(fountain.Center, t0), catalog, store)
	Evaluate(sampleAt(fountain.Center, t0.Add(time.Minute)), catalog, store)

	m, _ := store.Get("3")
	if !m.EnteredAt.Equal(t0) {
		t.Errorf("EnteredAt = %v, want %v", m.EnteredAt, t0)
	}
}

func TestEvaluate_OverlappingZonesCatalogOrder(t *testing.T) {
	center := domain.Coordinate{Lat: -6.2088, Lon: 106.8456}
	catalog := mustCatalog(t,
		domain.Zone{ID: "wide", Center: center, RadiusMeters: 100},
		domain.Zone{ID: "far", Center: domain.Coordinate{Lat: -7, Lon: 107}, RadiusMeters: 50},
		domain.Zone{ID: "narrow", Center: center, RadiusMeters: 50},
	)
	store := NewMembershipStore(catalog)

	ev := Evaluate(sampleAt(center, time.Now()), catalog, store)

	if len(ev.Transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %v", ev.Transitions)
	}
	if ev.Transitions[0].ZoneID != "wide" || ev.Transitions[1].ZoneID != "narrow" {
		t.Errorf("transitions not in catalog order: %v", ev.Transitions)
	}
	if len(ev.Inside) != 2 || ev.Inside[0] != "wide" || ev.Inside[1] != "narrow" {
		t.Errorf("Inside = %v, want [wide narrow]", ev.Inside)
	}
	if len(ev.Distances) != 3 || len(ev.Bearings) != 3 {
		t.Errorf("expected distance and bearing for every zone, got %d/%d", len(ev.Distances), len(ev.Bearings))
	}
}

func TestEvaluate_NoZones(t *testing.T) {
	catalog := mustCatalog(t)
	store := NewMembershipStore(catalog)

	ev := Evaluate(sampleAt(fountain.Center, time.Now()), catalog, store)
	if len(ev.Transitions) != 0 || len(ev.Inside) != 0 {
		t.Errorf("expected empty evaluation, got %+v", ev)
	}
}

// Membership must always agree with the most recent sample's distance.
func TestEvaluate_MembershipNeverStale(t *testing.T) {
	catalog := mustCatalog(t, fountain, domain.Zone{
		ID:           "1",
		Center:       domain.Coordinate{Lat: 40.427274, Lon: -86.914065},
		RadiusMeters: 75,
	})
	store := NewMembershipStore(catalog)
	rng := rand.New(rand.NewSource(42))
	ts := time.Unix(0, 0)

	for i := 0; i < 500; i++ {
		p := geo.Offset(fountain.Center, rng.Float64()*360, rng.Float64()*300)
		ts = ts.Add(time.Second)
		Evaluate(sampleAt(p, ts), catalog, store)

		for _, z := range catalog.Zones() {
			m, _ := store.Get(z.ID)
			want := geo.Distance(p, z.Center) <= z.RadiusMeters
			if (m.State == domain.Inside) != want {
				t.Fatalf("step %d zone %s: state %v, distance %f radius %f", i, z.ID, m.State, geo.Distance(p, z.Center), z.RadiusMeters)
			}
		}
	}
}
