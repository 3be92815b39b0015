package dedup

import (
	"context"
	"sync"
)

// MemoryLog is the bounded in-memory duplicate log: an explicit store
// object constructed once and injected, never a module-level singleton.
type MemoryLog struct {
	thresholds Thresholds
	maxSize    int

	mu      sync.RWMutex
	entries []string
}

// NewMemoryLog creates a log keeping at most maxSize messages, oldest
// evicted first.
func NewMemoryLog(maxSize int, thresholds Thresholds) *MemoryLog {
	if maxSize <= 0 {
		maxSize = 5000
	}
	return &MemoryLog{thresholds: thresholds, maxSize: maxSize}
}

// Contains reports whether text matches a previously emitted message.
func (l *MemoryLog) Contains(_ context.Context, text string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, prior := range l.entries {
		if NearDuplicate(text, prior, l.thresholds) {
			return true, nil
		}
	}
	return false, nil
}

// Append records an emitted message, evicting the oldest entry when full.
// Appends are commutative; callers may apply them out of order.
func (l *MemoryLog) Append(_ context.Context, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, text)
	if len(l.entries) > l.maxSize {
		l.entries = l.entries[len(l.entries)-l.maxSize:]
	}
	return nil
}

// Len reports the current number of logged messages.
func (l *MemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
