package resilience

import (
	"context"
	"testing"
	"time"
)

func TestBreakerOpensOnFailureRatio(t *testing.T) {
	b := NewBreaker(4, 0.5, time.Minute)
	ctx := context.Background()

	b.Report(ctx, true)
	b.Report(ctx, false)
	b.Report(ctx, false)
	if !b.Allow(ctx) {
		t.Fatal("breaker should still be closed below min requests")
	}
	b.Report(ctx, false)
	if b.Allow(ctx) {
		t.Fatal("breaker should be open after failure ratio exceeded")
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(1, 0.5, 10*time.Millisecond)
	ctx := context.Background()

	b.Report(ctx, false)
	if b.Allow(ctx) {
		t.Fatal("breaker should be open")
	}
	time.Sleep(15 * time.Millisecond)
	if !b.Allow(ctx) {
		t.Fatal("breaker should permit a half-open probe after cool-off")
	}
	b.Report(ctx, true)
	if !b.Allow(ctx) {
		t.Fatal("breaker should close after a successful probe")
	}
}

func TestBackoffGrowsExponentially(t *testing.T) {
	base := 100 * time.Millisecond
	if got := Backoff(base, 1, 0); got != base {
		t.Fatalf("attempt 1 expected %v got %v", base, got)
	}
	if got := Backoff(base, 3, 0); got != 4*base {
		t.Fatalf("attempt 3 expected %v got %v", 4*base, got)
	}
}
