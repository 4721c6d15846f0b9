package domain

import (
	"fmt"
	"math/rand"
)

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Valid reports whether the coordinate lies inside the WGS84 ranges.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%f, %f)", c.Lat, c.Lon)
}

// Payload is the opaque data a zone hands to dispatch.
// When Candidates is non-empty one of them is chosen per trigger,
// otherwise Message is used.
type Payload struct {
	Message    string   `json:"message,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

// Pick returns the text to deliver. rng may be nil when there are no candidates.
func (p Payload) Pick(rng *rand.Rand) string {
	if len(p.Candidates) == 0 {
		return p.Message
	}
	if rng == nil {
		return p.Candidates[0]
	}
	return p.Candidates[rng.Intn(len(p.Candidates))]
}

// Empty reports whether the payload carries no text at all.
func (p Payload) Empty() bool {
	return p.Message == "" && len(p.Candidates) == 0
}

// Zone is a named circular geofence.
type Zone struct {
	ID           string
	Name         string
	Center       Coordinate
	RadiusMeters float64
	Payload      Payload
}

// Contains reports whether a point at distance meters from the center is inside.
// The boundary counts as inside.
func (z Zone) Contains(distance float64) bool {
	return distance <= z.RadiusMeters
}

// Validate checks the zone's own invariants.
func (z Zone) Validate() error {
	if z.ID == "" {
		return fmt.Errorf("%w: zone id is required", ErrInvalidCatalog)
	}
	if !(z.RadiusMeters > 0) {
		return fmt.Errorf("%w: zone %s: radius must be positive", ErrInvalidCatalog, z.ID)
	}
	if !z.Center.Valid() {
		return fmt.Errorf("%w: zone %s: center %s out of range", ErrInvalidCatalog, z.ID, z.Center)
	}
	return nil
}

// Catalog is the ordered, read-only set of zones for a tracking session.
// Catalog order is the deterministic tie-break for overlapping zones.
type Catalog struct {
	zones []Zone
	index map[string]int
}

// NewCatalog validates zones and freezes them in the given order.
func NewCatalog(zones []Zone) (*Catalog, error) {
	c := &Catalog{
		zones: make([]Zone, len(zones)),
		index: make(map[string]int, len(zones)),
	}
	for i, z := range zones {
		if err := z.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.index[z.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate zone id %q", ErrInvalidCatalog, z.ID)
		}
		c.index[z.ID] = i
		z.Payload.Candidates = append([]string(nil), z.Payload.Candidates...)
		c.zones[i] = z
	}
	return c, nil
}

// Zones returns a copy of the zones in catalog order.
func (c *Catalog) Zones() []Zone {
	out := make([]Zone, len(c.zones))
	copy(out, c.zones)
	return out
}

// Len returns the number of zones.
func (c *Catalog) Len() int { return len(c.zones) }

// At returns the i-th zone in catalog order.
func (c *Catalog) At(i int) Zone { return c.zones[i] }

// Lookup finds a zone by id.
func (c *Catalog) Lookup(id string) (Zone, bool) {
	i, ok := c.index[id]
	if !ok {
		return Zone{}, false
	}
	return c.zones[i], true
}
