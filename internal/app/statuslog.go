package app

import (
	"sync"
	"time"
)

// DefaultStatusLogSize is how many status lines a tracker keeps.
const DefaultStatusLogSize = 20

// StatusLog keeps the most recent human-readable status lines, each
// prefixed with its [HH:MM:SS] time.
type StatusLog struct {
	mu      sync.Mutex
	size    int
	entries []string // oldest first
	now     func() time.Time
}

// NewStatusLog creates a log holding at most size lines.
func NewStatusLog(size int) *StatusLog {
	if size <= 0 {
		size = DefaultStatusLogSize
	}
	return &StatusLog{size: size, now: time.Now}
}

// Add appends a line, evicting the oldest when full.
func (l *StatusLog) Add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	line := "[" + l.now().Format("15:04:05") + "] " + msg
	if len(l.entries) == l.size {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:l.size-1]
	}
	l.entries = append(l.entries, line)
}

// Entries returns the lines newest first.
func (l *StatusLog) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}
