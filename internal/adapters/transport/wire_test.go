package transport

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/bft-labs/zonecast/internal/domain"
)

func TestNewDeliverRequest_Timestamp(t *testing.T) {
	tests := []struct {
		name    string
		at      time.Time
		wantKey bool
	}{
		{"set", time.Unix(1700000000, 0).UTC(), true},
		{"zero", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewDeliverRequest(domain.TriggerRecord{ID: "r1", Payload: "hi", CauseTimestamp: tt.at})
			raw, err := json.Marshal(req)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if got := strings.Contains(string(raw), "cause_timestamp"); got != tt.wantKey {
				t.Errorf("body %s: cause_timestamp present = %v, want %v", raw, got, tt.wantKey)
			}
			if strings.Contains(string(raw), "0001-01-01") {
				t.Errorf("body %s carries a zero time", raw)
			}
			if rec := req.Record(); !rec.CauseTimestamp.Equal(tt.at) {
				t.Errorf("Record().CauseTimestamp = %v, want %v", rec.CauseTimestamp, tt.at)
			}
		})
	}
}

func TestDeliverResponse_ErrorOmitsTimestamp(t *testing.T) {
	raw, err := json.Marshal(DeliverResponse{Error: "session unavailable", Retryable: true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(raw), "timestamp") {
		t.Errorf("error body %s carries a timestamp", raw)
	}
}

func TestDeliverRequest_Text(t *testing.T) {
	tests := []struct {
		req  DeliverRequest
		want string
	}{
		{DeliverRequest{Payload: "p", Fact: "f", Message: "m"}, "p"},
		{DeliverRequest{Fact: "f", Message: "m"}, "f"},
		{DeliverRequest{Message: "m"}, "m"},
		{DeliverRequest{}, ""},
	}
	for _, tt := range tests {
		if got := tt.req.Text(); got != tt.want {
			t.Errorf("%+v.Text() = %q, want %q", tt.req, got, tt.want)
		}
	}
}
