package domain

import "time"

// LocationSample is one position reading. The core never mutates it.
// Timestamp should carry a monotonic reading when produced locally.
type LocationSample struct {
	Coordinate Coordinate
	// AccuracyMeters is the reported horizontal error; zero means unknown.
	AccuracyMeters float64
	Timestamp      time.Time
}

// MembershipState is whether the latest sample is inside a zone.
type MembershipState int

const (
	Outside MembershipState = iota
	Inside
)

func (s MembershipState) String() string {
	if s == Inside {
		return "Inside"
	}
	return "Outside"
}

// ZoneMembership is the per-zone state kept by a tracking session.
type ZoneMembership struct {
	State        MembershipState
	LastDistance float64
	LastBearing  float64
	// EnteredAt is zero while Outside.
	EnteredAt time.Time
}

// TransitionKind is the direction of a membership change.
type TransitionKind int

const (
	Entered TransitionKind = iota + 1
	Exited
)

func (k TransitionKind) String() string {
	switch k {
	case Entered:
		return "Entered"
	case Exited:
		return "Exited"
	default:
		return "Unknown"
	}
}

// Transition records a zone flipping between Outside and Inside.
type Transition struct {
	ZoneID string
	Kind   TransitionKind
}
