package models

import (
	"sync"
	"time"
)

// DefaultLogCapacity bounds the per-profile log window kept for display.
const DefaultLogCapacity = 200

// LogRing is a bounded, append-only ring of recent log lines. Appends past
// capacity evict the oldest line. Safe for concurrent use: the tool server
// goroutine appends while status displays read.
type LogRing struct {
	mu    sync.Mutex
	lines []string
	cap   int
}

// NewLogRing creates a ring holding at most capacity lines. A non-positive
// capacity falls back to DefaultLogCapacity.
func NewLogRing(capacity int) *LogRing {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogRing{cap: capacity}
}

// Append records a log line prefixed with the current wall-clock time.
func (r *LogRing) Append(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, time.Now().Format("15:04:05")+"  "+msg)
	if len(r.lines) > r.cap {
		r.lines = r.lines[len(r.lines)-r.cap:]
	}
}

// Last returns up to n most recent lines, oldest first.
func (r *LogRing) Last(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > len(r.lines) {
		n = len(r.lines)
	}
	out := make([]string, n)
	copy(out, r.lines[len(r.lines)-n:])
	return out
}

// Len returns the number of retained lines.
func (r *LogRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

// Clear drops all retained lines. Called on every server (re)start so the
// window shows the current run only.
func (r *LogRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = nil
}
