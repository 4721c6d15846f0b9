package location

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/bft-labs/zonecast/internal/domain"
)

// Message is the JSON form of one position fix, used by the replay file
// format and MQTT payloads alike.
type Message struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// Accuracy is the reported horizontal error in meters. Zero means unknown.
	Accuracy float64 `json:"accuracy,omitempty"`
	// Timestamp is Unix seconds, fractions allowed. Zero means "now".
	Timestamp float64 `json:"timestamp,omitempty"`
}

// Decode parses and validates one message.
func Decode(data []byte, now time.Time) (domain.LocationSample, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.LocationSample{}, fmt.Errorf("invalid location message: %w", err)
	}
	if err := m.validate(); err != nil {
		return domain.LocationSample{}, err
	}

	ts := now
	if m.Timestamp > 0 {
		sec, frac := math.Modf(m.Timestamp)
		ts = time.Unix(int64(sec), int64(frac*1e9))
	}
	return domain.LocationSample{
		Coordinate:     domain.Coordinate{Lat: m.Latitude, Lon: m.Longitude},
		AccuracyMeters: m.Accuracy,
		Timestamp:      ts,
	}, nil
}

// Encode renders a sample as a message.
func Encode(s domain.LocationSample) ([]byte, error) {
	m := Message{
		Latitude:  s.Coordinate.Lat,
		Longitude: s.Coordinate.Lon,
		Accuracy:  s.AccuracyMeters,
	}
	if !s.Timestamp.IsZero() {
		m.Timestamp = float64(s.Timestamp.UnixNano()) / 1e9
	}
	return json.Marshal(m)
}

func (m *Message) validate() error {
	if m.Latitude < -90 || m.Latitude > 90 {
		return fmt.Errorf("latitude: must be between -90 and 90")
	}
	if m.Longitude < -180 || m.Longitude > 180 {
		return fmt.Errorf("longitude: must be between -180 and 180")
	}
	if m.Accuracy < 0 {
		return fmt.Errorf("accuracy: must not be negative")
	}
	if m.Timestamp < 0 {
		return fmt.Errorf("timestamp: must not be negative")
	}
	return nil
}
