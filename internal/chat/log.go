package chat

import (
	"sync"
	"time"

	"github.com/samber/lo"
)

// LogOption customizes a MessageLog.
type LogOption func(*MessageLog)

// WithClock replaces the clock used to stamp appended entries.
func WithClock(now func() time.Time) LogOption {
	return func(l *MessageLog) {
		if now != nil {
			l.now = now
		}
	}
}

// MessageLog is the ordered, append-only sequence of chat entries kept in
// memory for the lifetime of the process.
type MessageLog struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// NewMessageLog seeds a log with previously persisted entries.
func NewMessageLog(entries []Entry, opts ...LogOption) *MessageLog {
	l := &MessageLog{
		entries: lo.Map(entries, func(e Entry, _ int) Entry { return e.clone() }),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append stamps the entry with the server clock, appends it and returns
// the new length of the log. Any CreatedAt set by the caller is discarded.
func (l *MessageLog) Append(entry Entry) int {
	entry = entry.clone()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry.CreatedAt = l.now()
	l.entries = append(l.entries, entry)
	return len(l.entries)
}

// Snapshot returns a copy of the whole log. Later appends are not visible
// through it.
func (l *MessageLog) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return lo.Map(l.entries, func(e Entry, _ int) Entry { return e.clone() })
}

// Len returns the number of entries.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
