package domain

import "time"

// TriggerRecord is a decision to dispatch a notification for a zone.
// It is consumed exactly once by a dispatcher.
type TriggerRecord struct {
	// ID identifies the record across transport retries.
	ID             string
	ZoneID         string
	Payload        string
	Coordinate     Coordinate
	CauseTimestamp time.Time
}

// Outcome classifies a single delivery attempt.
type Outcome int

const (
	Success Outcome = iota
	RetryableFailure
	FatalFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "Success"
	case RetryableFailure:
		return "RetryableFailure"
	case FatalFailure:
		return "FatalFailure"
	default:
		return "Unknown"
	}
}

// DeliveryAttempt describes one try at posting a record. Never persisted.
type DeliveryAttempt struct {
	Record        TriggerRecord
	AttemptNumber int
	Outcome       Outcome
	// Invalidating is set when the failure broke the actor session.
	Invalidating bool
	Err          error
	Duration     time.Duration
}
