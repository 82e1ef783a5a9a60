package ratelimit

import (
	"testing"
	"time"
)

func TestAllowConsumesBurst(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		if !l.Allow("a", 3, 0) {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	if l.Allow("a", 3, 0) {
		t.Fatalf("request allowed past burst with no refill")
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l := New()
	if !l.Allow("a", 1, 0) {
		t.Fatalf("first request for a denied")
	}
	if l.Allow("a", 1, 0) {
		t.Fatalf("second request for a allowed")
	}
	if !l.Allow("b", 1, 0) {
		t.Fatalf("first request for b denied")
	}
}

func TestAllowRefills(t *testing.T) {
	l := New()
	if !l.Allow("a", 1, 1000) {
		t.Fatalf("first request denied")
	}
	time.Sleep(5 * time.Millisecond)
	if !l.Allow("a", 1, 1000) {
		t.Fatalf("request denied after refill window")
	}
}

func TestSweepDropsIdleBuckets(t *testing.T) {
	l := New()
	l.Allow("stale", 1, 0)
	l.buckets["stale"].last = time.Now().Add(-idleEvict - time.Minute)
	l.lastSweep = time.Now().Add(-idleEvict - time.Minute)

	l.Allow("fresh", 1, 0)
	if _, ok := l.buckets["stale"]; ok {
		t.Fatalf("idle bucket survived sweep")
	}
	if _, ok := l.buckets["fresh"]; !ok {
		t.Fatalf("fresh bucket missing")
	}
}
