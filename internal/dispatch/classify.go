package dispatch

import (
	"errors"
	"strings"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/ports"
)

// Class is how a failed post is handled.
type Class int

const (
	// ClassRetryable failures are retried within the attempt budget.
	ClassRetryable Class = iota
	// ClassInvalidating failures break the session: no local retry, the
	// supervisor is told to rebuild it.
	ClassInvalidating
	// ClassFatal failures are not retried.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassInvalidating:
		return "invalidating"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// DefaultInvalidationPatterns match error text from automation backends
// that have lost their page or browser session.
var DefaultInvalidationPatterns = []string{"stale", "session", "element", "no such"}

// Classifier sorts actor failures into classes.
type Classifier struct {
	patterns []string
}

// NewClassifier returns a classifier using the given case-insensitive
// message patterns. A nil slice selects DefaultInvalidationPatterns.
func NewClassifier(patterns []string) *Classifier {
	if patterns == nil {
		patterns = DefaultInvalidationPatterns
	}
	lower := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lower = append(lower, p)
		}
	}
	return &Classifier{patterns: lower}
}

// Classify returns the class of err. err must be non-nil.
func (c *Classifier) Classify(err error) Class {
	if errors.Is(err, domain.ErrSessionLost) {
		return ClassInvalidating
	}

	msg := strings.ToLower(err.Error())
	for _, p := range c.patterns {
		if strings.Contains(msg, p) {
			return ClassInvalidating
		}
	}

	var actorErr *ports.ActorError
	if errors.As(err, &actorErr) && !actorErr.Retryable {
		return ClassFatal
	}
	return ClassRetryable
}
