package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/ports"
)

func TestClassifier_Classify(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		err      error
		want     Class
	}{
		{
			name: "session lost sentinel",
			err:  &ports.ActorError{Op: "post", Retryable: true, Err: domain.ErrSessionLost},
			want: ClassInvalidating,
		},
		{
			name: "stale element text",
			err:  errors.New("stale element reference: element is not attached to the page document"),
			want: ClassInvalidating,
		},
		{
			name: "invalid session id",
			err:  fmt.Errorf("post: %w", errors.New("invalid session id")),
			want: ClassInvalidating,
		},
		{
			name: "no such window",
			err:  errors.New("No Such Window: target window already closed"),
			want: ClassInvalidating,
		},
		{
			name: "non-retryable actor error",
			err:  &ports.ActorError{Op: "post", Retryable: false, Err: errors.New("message rejected")},
			want: ClassFatal,
		},
		{
			name: "retryable actor error",
			err:  &ports.ActorError{Op: "post", Retryable: true, Err: errors.New("502 bad gateway")},
			want: ClassRetryable,
		},
		{
			name: "plain error",
			err:  context.DeadlineExceeded,
			want: ClassRetryable,
		},
		{
			name:     "custom patterns",
			patterns: []string{"  Logged Out "},
			err:      errors.New("user logged out"),
			want:     ClassInvalidating,
		},
		{
			name:     "custom patterns replace defaults",
			patterns: []string{"logged out"},
			err:      errors.New("stale element"),
			want:     ClassRetryable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(tt.patterns)
			if got := c.Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
