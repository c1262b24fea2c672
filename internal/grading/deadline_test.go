package grading

import (
	"testing"
	"time"
)

func TestRemaining(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	duration := 60 * time.Minute

	tests := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{"at start", start, 60 * time.Minute},
		{"ten minutes in", start.Add(10 * time.Minute), 50 * time.Minute},
		{"exactly at deadline", start.Add(60 * time.Minute), 0},
		{"past deadline never negative", start.Add(2 * time.Hour), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Remaining(start, duration, tt.now); got != tt.want {
				t.Errorf("Remaining = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRemainingMonotonic(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	duration := 50 * time.Minute

	prev := Remaining(start, duration, start)
	for i := 1; i <= 120; i++ {
		now := start.Add(time.Duration(i) * time.Minute)
		got := Remaining(start, duration, now)
		if got > prev {
			t.Fatalf("Remaining increased from %v to %v at minute %d", prev, got, i)
		}
		prev = got
	}
}

func TestExpired(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	duration := 30 * time.Minute
	grace := 30 * time.Second

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"well within time", start.Add(10 * time.Minute), false},
		{"at deadline", start.Add(30 * time.Minute), false},
		{"inside grace", start.Add(30*time.Minute + 15*time.Second), false},
		{"just past grace", start.Add(30*time.Minute + 31*time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expired(start, duration, grace, tt.now); got != tt.want {
				t.Errorf("Expired = %v, want %v", got, tt.want)
			}
		})
	}
}
