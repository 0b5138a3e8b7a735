package deletion

import "time"

// RetentionWindow is how long a snapshot stays restorable.
const RetentionWindow = 7 * 24 * time.Hour

// Expired reports whether a snapshot captured at capturedAt is past the window at now.
// A snapshot exactly RetentionWindow old is still live.
func Expired(capturedAt, now time.Time) bool {
	return now.Sub(capturedAt) > RetentionWindow
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
