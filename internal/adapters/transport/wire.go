// Package transport holds the JSON bodies exchanged between the tracker
// and the dispatch server.
package transport

import (
	"time"

	"github.com/bft-labs/zonecast/internal/domain"
)

// Endpoint paths.
const (
	DeliverPath = "/deliver"
	StatusPath  = "/status"
	StopPath    = "/stop"
)

// DeliverRequest is the body of POST /deliver. Fact and Message are
// accepted as aliases of Payload.
type DeliverRequest struct {
	ID             string     `json:"id,omitempty"`
	ZoneID         string     `json:"zone_id,omitempty"`
	Payload        string     `json:"payload,omitempty"`
	Fact           string     `json:"fact,omitempty"`
	Message        string     `json:"message,omitempty"`
	CauseTimestamp *time.Time `json:"cause_timestamp,omitempty"`
	Latitude       float64    `json:"latitude,omitempty"`
	Longitude      float64    `json:"longitude,omitempty"`
}

// Text returns the payload, falling back to the aliases.
func (r DeliverRequest) Text() string {
	switch {
	case r.Payload != "":
		return r.Payload
	case r.Fact != "":
		return r.Fact
	default:
		return r.Message
	}
}

// Record converts the request into a trigger record.
func (r DeliverRequest) Record() domain.TriggerRecord {
	rec := domain.TriggerRecord{
		ID:         r.ID,
		ZoneID:     r.ZoneID,
		Payload:    r.Text(),
		Coordinate: domain.Coordinate{Lat: r.Latitude, Lon: r.Longitude},
	}
	if r.CauseTimestamp != nil {
		rec.CauseTimestamp = *r.CauseTimestamp
	}
	return rec
}

// NewDeliverRequest builds the request for a record.
func NewDeliverRequest(rec domain.TriggerRecord) DeliverRequest {
	req := DeliverRequest{
		ID:        rec.ID,
		ZoneID:    rec.ZoneID,
		Payload:   rec.Payload,
		Latitude:  rec.Coordinate.Lat,
		Longitude: rec.Coordinate.Lon,
	}
	if !rec.CauseTimestamp.IsZero() {
		ts := rec.CauseTimestamp
		req.CauseTimestamp = &ts
	}
	return req
}

// DeliverResponse is returned by POST /deliver.
type DeliverResponse struct {
	Accepted  bool       `json:"accepted"`
	Message   string     `json:"message,omitempty"`
	Comment   string     `json:"comment,omitempty"`
	Duplicate bool       `json:"duplicate,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Error     string     `json:"error,omitempty"`
	Retryable bool       `json:"retryable,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Ready           bool   `json:"ready"`
	State           string `json:"state"`
	Message         string `json:"message"`
	Initializations int64  `json:"initializations"`
	LastError       string `json:"last_error,omitempty"`
}

// MessageResponse is returned by POST /stop and by errors outside /deliver.
type MessageResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
