package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitForReturnsOnCancel(t *testing.T) {
	block := make(chan struct{})
	original := sleep
	sleep = func(time.Duration) { <-block }
	t.Cleanup(func() {
		close(block)
		sleep = original
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitFor(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaitForZeroDuration(t *testing.T) {
	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("questionnaire", "narrative")
	b := Fingerprint("questionnaire", "narrative")
	if a != b {
		t.Fatalf("expected stable digest")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
	if Fingerprint("ab", "c") == Fingerprint("a", "bc") {
		t.Fatalf("expected separator to distinguish parts")
	}
}
