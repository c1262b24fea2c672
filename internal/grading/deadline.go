package grading

import "time"

// Deadline returns the instant at which a session's time runs out.
func Deadline(startedAt time.Time, duration time.Duration) time.Time {
	return startedAt.Add(duration)
}

// Remaining computes the time left on a session at instant now. It is
// derived exclusively from the server-recorded start instant — never from
// client-reported elapsed time — and never goes negative.
func Remaining(startedAt time.Time, duration time.Duration, now time.Time) time.Duration {
	remaining := Deadline(startedAt, duration).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the deadline (plus an optional grace) has passed.
func Expired(startedAt time.Time, duration time.Duration, grace time.Duration, now time.Time) bool {
	return now.After(Deadline(startedAt, duration).Add(grace))
}
