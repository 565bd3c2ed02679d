package data

import "time"

// TimeProvider supplies the timestamps repositories write, so tests can pin them.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider implements TimeProvider using real system time.
type RealTimeProvider struct{}

// Now returns the current system time truncated to Postgres precision.
func (RealTimeProvider) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// FixedTimeProvider implements TimeProvider with a fixed time for testing.
type FixedTimeProvider struct {
	fixedTime time.Time
}

// NewFixedTimeProvider creates a new FixedTimeProvider with the given time.
func NewFixedTimeProvider(t time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{fixedTime: t}
}

// Now returns the fixed time.
func (f *FixedTimeProvider) Now() time.Time {
	return f.fixedTime
}

// AddTime adds a duration to the current fixed time.
func (f *FixedTimeProvider) AddTime(d time.Duration) {
	f.fixedTime = f.fixedTime.Add(d)
}
