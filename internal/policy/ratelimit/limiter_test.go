package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Wait(t *testing.T) {
	// 10 requests per second = 100ms interval, burst 1.
	l := New(Config{
		DefaultRPS:   10,
		DefaultBurst: 1,
		Scope:        "smtp",
	})
	ctx := context.Background()

	// Consume initial token
	if err := l.Wait(ctx, "mx.example.com"); err != nil {
		t.Fatal(err)
	}

	// Next one should wait ~100ms
	start := time.Now()
	if err := l.Wait(ctx, "MX.example.com"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiter_DifferentKeys(t *testing.T) {
	l := New(Config{
		DefaultRPS:   1,
		DefaultBurst: 1,
	})
	ctx := context.Background()

	if err := l.Wait(ctx, "mx.a.com"); err != nil {
		t.Fatal(err)
	}

	// Key B should not be blocked by A
	start := time.Now()
	if err := l.Wait(ctx, "mx.b.com"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("key B blocked unexpectedly")
	}
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	if err := l.Wait(context.Background(), "slow"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "slow"); err == nil {
		t.Fatal("expected wait to fail once the context expires")
	}
}

func TestLimiter_AllowPerMinute(t *testing.T) {
	l := New(PerMinute(3, "submit"))
	for i := 0; i < 3; i++ {
		if !l.Allow("client-1") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if l.Allow("client-1") {
		t.Fatal("fourth request within the minute should be rejected")
	}
	if !l.Allow("client-2") {
		t.Fatal("other clients keep their own allowance")
	}
}

func TestLimiter_Prune(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(2 * time.Hour)
	l.Allow("fresh")

	if removed := l.Prune(time.Hour); removed != 1 {
		t.Fatalf("expected 1 pruned key, got %d", removed)
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 remaining key, got %d", l.Len())
	}
}
