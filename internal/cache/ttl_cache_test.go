package cache

import (
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("a", 1, 10*time.Millisecond)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected hit with 1, got %d ok=%v", v, ok)
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestTTLCacheZeroTTLPersists(t *testing.T) {
	c := NewTTLCache[string, string]()
	c.Set("k", "v", 0)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected zero-ttl entry to persist")
	}
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected deleted entry to miss")
	}
}

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe(func(key string) { got = append(got, key) })
	bus.Subscribe(func(key string) { got = append(got, "second:"+key) })

	bus.Invalidate(AccountSummaryKey("42"))

	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if got[0] != "account-settings:42" {
		t.Fatalf("unexpected key %q", got[0])
	}
}
