package domain

import (
	"errors"
	"math/rand"
	"testing"
)

func TestNewCatalog(t *testing.T) {
	tests := []struct {
		name    string
		zones   []Zone
		wantErr bool
	}{
		{"empty", nil, false},
		{"valid", []Zone{
			{ID: "1", Name: "Clock Tower", Center: Coordinate{40.427274, -86.914065}, RadiusMeters: 75},
			{ID: "2", Name: "Clapping Circle", Center: Coordinate{40.425787, -86.911866}, RadiusMeters: 50},
		}, false},
		{"duplicate id", []Zone{
			{ID: "1", Center: Coordinate{0, 0}, RadiusMeters: 10},
			{ID: "1", Center: Coordinate{1, 1}, RadiusMeters: 10},
		}, true},
		{"missing id", []Zone{{Center: Coordinate{0, 0}, RadiusMeters: 10}}, true},
		{"zero radius", []Zone{{ID: "1", Center: Coordinate{0, 0}}}, true},
		{"latitude out of range", []Zone{{ID: "1", Center: Coordinate{91, 0}, RadiusMeters: 10}}, true},
		{"longitude out of range", []Zone{{ID: "1", Center: Coordinate{0, -181}, RadiusMeters: 10}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCatalog(tt.zones)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewCatalog() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidCatalog) {
					t.Errorf("error %v does not match ErrInvalidCatalog", err)
				}
				return
			}
			if c.Len() != len(tt.zones) {
				t.Errorf("Len() = %d, want %d", c.Len(), len(tt.zones))
			}
		})
	}
}

func TestCatalog_OrderAndLookup(t *testing.T) {
	c, err := NewCatalog([]Zone{
		{ID: "b", Center: Coordinate{0, 0}, RadiusMeters: 1},
		{ID: "a", Center: Coordinate{0, 0}, RadiusMeters: 1},
	})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	if c.At(0).ID != "b" || c.At(1).ID != "a" {
		t.Errorf("catalog order not preserved: %v", c.Zones())
	}
	if _, ok := c.Lookup("a"); !ok {
		t.Error("Lookup(a) not found")
	}
	if _, ok := c.Lookup("z"); ok {
		t.Error("Lookup(z) unexpectedly found")
	}
}

func TestPayload_Pick(t *testing.T) {
	p := Payload{Message: "You are near the Clock Tower!"}
	if got := p.Pick(nil); got != p.Message {
		t.Errorf("Pick() = %q, want message", got)
	}

	facts := Payload{Candidates: []string{"a", "b", "c"}}
	rng := rand.New(rand.NewSource(1))
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		seen[facts.Pick(rng)] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected all candidates to be picked, got %v", seen)
	}
}

func TestDeliveryError_Is(t *testing.T) {
	err := &DeliveryError{RecordID: "r1", Attempts: 3, Retryable: true, Err: ErrSessionInvalidated}
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Error("DeliveryError should match ErrDeliveryFailed")
	}
	if !errors.Is(err, ErrSessionInvalidated) {
		t.Error("DeliveryError should unwrap to its cause")
	}
	var de *DeliveryError
	if !errors.As(err, &de) || !de.Retryable {
		t.Error("errors.As failed or lost retryable flag")
	}
}
