package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{"WARN", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"chatty", zerolog.NoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewZerologAdapter_UnknownFormat(t *testing.T) {
	if _, err := NewZerologAdapter("info", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	z := NewZerologAdapterWithLogger(zerolog.New(&buf)).With("dispatcher")

	z.Info("delivered",
		String("zone", "3"),
		Int("attempt", 2),
		Bool("duplicate", false),
		Duration("took", 1500*time.Millisecond),
		Err(errors.New("boom")),
	)

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}
	if got["message"] != "delivered" {
		t.Errorf("message = %v, want delivered", got["message"])
	}
	if got["component"] != "dispatcher" {
		t.Errorf("component = %v, want dispatcher", got["component"])
	}
	if got["zone"] != "3" {
		t.Errorf("zone = %v, want 3", got["zone"])
	}
	if got["attempt"] != float64(2) {
		t.Errorf("attempt = %v, want 2", got["attempt"])
	}
	if got["error"] != "boom" {
		t.Errorf("error = %v, want boom", got["error"])
	}
}

func TestZerologAdapter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	z := NewZerologAdapterWithLogger(zerolog.New(&buf).Level(zerolog.WarnLevel))

	z.Debug("hidden")
	z.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}

	z.Warn("shown")
	if buf.Len() == 0 {
		t.Fatal("expected warn output")
	}
}
