package driven

import "time"

// Clock abstracts wall-clock and monotonic time so services can be
// tested with fixed timestamps.
type Clock interface {
	// Now returns the current time. The returned value carries a
	// monotonic reading, so Since(Now()) is safe for durations.
	Now() time.Time

	// Since returns the monotonic elapsed time since t.
	Since(t time.Time) time.Duration
}
