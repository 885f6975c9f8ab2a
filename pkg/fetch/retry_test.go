package fetch

import (
	"testing"
	"time"
)

func TestDefaultBackoffSchedule(t *testing.T) {
	schedule := DefaultBackoffSchedule()

	want := []time.Duration{1 * time.Second, 3 * time.Second, 9 * time.Second}
	if len(schedule) != len(want) {
		t.Fatalf("schedule length = %d, want %d", len(schedule), len(want))
	}
	for i, d := range want {
		if schedule[i] != d {
			t.Errorf("schedule[%d] = %v, want %v", i, schedule[i], d)
		}
	}
}

func TestBackoffFor(t *testing.T) {
	schedule := []time.Duration{1 * time.Second, 3 * time.Second, 9 * time.Second}

	tests := []struct {
		name     string
		schedule []time.Duration
		attempt  int
		want     time.Duration
	}{
		{"first retry", schedule, 1, 1 * time.Second},
		{"second retry", schedule, 2, 3 * time.Second},
		{"third retry", schedule, 3, 9 * time.Second},
		{"beyond schedule repeats last", schedule, 5, 9 * time.Second},
		{"empty schedule falls back", nil, 1, 1 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := backoffFor(tt.schedule, tt.attempt); got != tt.want {
				t.Errorf("backoffFor(%v, %d) = %v, want %v", tt.schedule, tt.attempt, got, tt.want)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  bool
	}{
		{ErrorClassClient, false},
		{ErrorClassEnvelope, false},
		{ErrorClassServer, true},
		{ErrorClassNetwork, true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			if got := shouldRetry(tt.class); got != tt.want {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.class, got, tt.want)
			}
		})
	}
}
