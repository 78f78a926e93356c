// Package clock supplies the single source of "now" for SLA comparisons.
//
// Services receive a Clock instead of calling time.Now directly so that
// deadline arithmetic and breach checks can be driven deterministically
// in tests and in dry runs.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// System is the wall clock, normalized to UTC.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time { return time.Now().UTC() }

// Mock is a manually driven clock. Safe for concurrent use.
type Mock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMock returns a Mock frozen at start.
func NewMock(start time.Time) *Mock {
	return &Mock{now: start}
}

// Now returns the frozen instant.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new instant.
func (m *Mock) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}
