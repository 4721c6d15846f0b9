// Package location holds the pieces shared by location provider backends:
// the sample wire format and the subscription filter.
package location

import (
	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/geo"
	"github.com/bft-labs/zonecast/internal/ports"
)

// Filter applies a SubscribeConfig to a raw sample stream.
// It is not safe for concurrent use.
type Filter struct {
	cfg  ports.SubscribeConfig
	last domain.LocationSample
	has  bool
}

// NewFilter creates a filter for cfg.
func NewFilter(cfg ports.SubscribeConfig) *Filter {
	return &Filter{cfg: cfg}
}

// Accept reports whether s should be emitted and, if so, remembers it as
// the reference for the next sample.
func (f *Filter) Accept(s domain.LocationSample) bool {
	if !s.Coordinate.Valid() {
		return false
	}
	if f.cfg.MaxErrorMeters > 0 && s.AccuracyMeters > f.cfg.MaxErrorMeters {
		return false
	}
	if f.has {
		if f.cfg.MinInterval > 0 && s.Timestamp.Sub(f.last.Timestamp) < f.cfg.MinInterval {
			return false
		}
		if f.cfg.MinDistanceMeters > 0 && geo.Distance(f.last.Coordinate, s.Coordinate) < f.cfg.MinDistanceMeters {
			return false
		}
	}
	f.last = s
	f.has = true
	return true
}
