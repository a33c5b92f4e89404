package remparo

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestRateLimitErrorIs(t *testing.T) {
	err := &RateLimitError{Limit: 5, Window: 300 * time.Second, RetryAfter: 290}

	if !errors.Is(err, ErrRateLimited) {
		t.Error("RateLimitError must match ErrRateLimited")
	}

	wrapped := fmt.Errorf("handling request: %w", err)
	if !errors.Is(wrapped, ErrRateLimited) {
		t.Error("wrapped RateLimitError must still match ErrRateLimited")
	}

	var rle *RateLimitError
	if !errors.As(wrapped, &rle) {
		t.Fatal("errors.As must recover the RateLimitError")
	}
	if rle.RetryAfter != 290 {
		t.Errorf("expected RetryAfter 290, got %d", rle.RetryAfter)
	}
}

func TestRateLimitErrorMessage(t *testing.T) {
	err := &RateLimitError{Limit: 5, Window: 5 * time.Minute, RetryAfter: 290}
	msg := err.Error()

	for _, want := range []string{"5 requests", "5m0s", "290s"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected message to contain %q, got %q", want, msg)
		}
	}
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited sentinel", ErrRateLimited, true},
		{"rate limit error", &RateLimitError{Limit: 1, Window: time.Second}, true},
		{"circuit open", ErrCircuitOpen, true},
		{"timeout", ErrTimeout, true},
		{"wrapped timeout", fmt.Errorf("op: %w", ErrTimeout), true},
		{"generic", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRecoverable(tt.err); got != tt.want {
				t.Errorf("IsRecoverable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
