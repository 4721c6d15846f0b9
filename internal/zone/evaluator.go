// Package zone turns location samples into per-zone distances, bearings and
// membership transitions.
package zone

import (
	"time"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/geo"
)

// MembershipStore holds the ZoneMembership of every zone for one tracking
// session. Only Evaluate mutates it.
type MembershipStore struct {
	byZone map[string]*domain.ZoneMembership
}

// NewMembershipStore creates a store with every zone Outside.
func NewMembershipStore(catalog *domain.Catalog) *MembershipStore {
	s := &MembershipStore{byZone: make(map[string]*domain.ZoneMembership, catalog.Len())}
	for i := 0; i < catalog.Len(); i++ {
		s.byZone[catalog.At(i).ID] = &domain.ZoneMembership{State: domain.Outside}
	}
	return s
}

// Get returns a copy of a zone's membership.
func (s *MembershipStore) Get(zoneID string) (domain.ZoneMembership, bool) {
	m, ok := s.byZone[zoneID]
	if !ok {
		return domain.ZoneMembership{}, false
	}
	return *m, true
}

func (s *MembershipStore) record(zoneID string) *domain.ZoneMembership {
	m, ok := s.byZone[zoneID]
	if !ok {
		m = &domain.ZoneMembership{State: domain.Outside}
		s.byZone[zoneID] = m
	}
	return m
}

// Evaluation is the result of evaluating one sample.
type Evaluation struct {
	Sample    domain.LocationSample
	Distances map[string]float64
	Bearings  map[string]float64
	// Transitions follow catalog order.
	Transitions []domain.Transition
	// Inside lists the ids of zones currently Inside, in catalog order.
	Inside []string
}

// Evaluate computes distance and bearing from the sample to every zone and
// applies membership transitions to store.
func Evaluate(sample domain.LocationSample, catalog *domain.Catalog, store *MembershipStore) Evaluation {
	ev := Evaluation{
		Sample:    sample,
		Distances: make(map[string]float64, catalog.Len()),
		Bearings:  make(map[string]float64, catalog.Len()),
	}

	for i := 0; i < catalog.Len(); i++ {
		z := catalog.At(i)
		d := geo.Distance(sample.Coordinate, z.Center)
		b := geo.Bearing(sample.Coordinate, z.Center)
		ev.Distances[z.ID] = d
		ev.Bearings[z.ID] = b

		m := store.record(z.ID)
		m.LastDistance = d
		m.LastBearing = b

		inside := z.Contains(d)
		switch {
		case inside && m.State == domain.Outside:
			m.State = domain.Inside
			m.EnteredAt = sample.Timestamp
			ev.Transitions = append(ev.Transitions, domain.Transition{ZoneID: z.ID, Kind: domain.Entered})
		case !inside && m.State == domain.Inside:
			m.State = domain.Outside
			m.EnteredAt = time.Time{}
			ev.Transitions = append(ev.Transitions, domain.Transition{ZoneID: z.ID, Kind: domain.Exited})
		}

		if m.State == domain.Inside {
			ev.Inside = append(ev.Inside, z.ID)
		}
	}

	return ev
}
