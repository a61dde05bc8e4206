package cache

import (
	"testing"
	"time"
)

func TestTTLCacheGetSetInvalidate(t *testing.T) {
	c := NewTTL[int](time.Hour)
	defer c.Close()

	if _, ok := c.Get("k"); ok {
		t.Error("Get on empty cache returned ok")
	}

	c.Set("k", 42)
	if v, ok := c.Get("k"); !ok || v != 42 {
		t.Errorf("Get = %v %v, want 42 true", v, ok)
	}

	c.Invalidate("k")
	if _, ok := c.Get("k"); ok {
		t.Error("Get after Invalidate returned ok")
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTL[string](10 * time.Millisecond)
	defer c.Close()

	c.Set("k", "v")
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expired entry still readable")
	}
}
