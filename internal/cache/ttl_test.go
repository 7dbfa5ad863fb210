package cache

import (
	"testing"
	"time"

	"github.com/smallbiznis/creditmeter/internal/clock"
)

func TestTTLCacheEvictsExpiredEntry(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewTTLCache[string, string](clk).(*ttlCache[string, string])

	c.Set("org-1", "free", time.Minute)
	clk.Advance(time.Minute)

	if _, ok := c.Get("org-1"); ok {
		t.Fatal("expected entry to expire")
	}
	if _, ok := c.entries["org-1"]; ok {
		t.Fatal("expected expired entry to be removed")
	}
}

func TestTTLCacheKeepsEntryRefreshedAfterExpiredRead(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewTTLCache[string, string](clk).(*ttlCache[string, string])

	c.Set("org-1", "free", time.Minute)
	clk.Advance(time.Minute)

	// A reader saw the stale entry; a writer replaces it before eviction runs.
	c.Set("org-1", "starter", time.Minute)
	c.evictExpired("org-1")

	got, ok := c.Get("org-1")
	if !ok || got != "starter" {
		t.Fatalf("expected refreshed entry to survive, got %q (%v)", got, ok)
	}
}

func TestTTLCacheIgnoresNonPositiveTTL(t *testing.T) {
	c := NewTTLCache[string, int](clock.NewFakeClock(time.Now()))
	c.Set("k", 1, 0)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected zero ttl entry to be dropped")
	}
}
