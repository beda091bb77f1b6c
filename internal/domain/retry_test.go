package domain

import (
	"testing"
	"time"
)

func TestRetryContextNext(t *testing.T) {
	c := RetryContext{MaxAttempts: 3, Delay: 30 * time.Minute}
	c = c.Next()
	if c.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", c.Attempt)
	}
	if c.MaxAttempts != 3 || c.Delay != 30*time.Minute {
		t.Errorf("Next must only advance the attempt: %+v", c)
	}
}

func TestRetryContextExhausted(t *testing.T) {
	tests := []struct {
		attempt, max int
		want         bool
	}{
		{0, 3, false},
		{2, 3, false},
		{3, 3, true},
		{4, 3, true},
		{0, 0, true},
	}
	for _, tt := range tests {
		c := RetryContext{Attempt: tt.attempt, MaxAttempts: tt.max}
		if got := c.Exhausted(); got != tt.want {
			t.Errorf("Exhausted(%d/%d) = %v, want %v", tt.attempt, tt.max, got, tt.want)
		}
	}
}
