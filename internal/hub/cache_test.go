package hub

import (
	"testing"
	"time"
)

func TestEntityCache_FreshHit(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	c := newEntityCache(300*time.Second, now)

	c.set(&EntityState{EntityID: "light.grow_1", State: "on", LastUpdated: clock})

	state, ok := c.get("light.grow_1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if state.State != "on" {
		t.Errorf("State = %q, want on", state.State)
	}
}

func TestEntityCache_ExpiredMiss(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newEntityCache(300*time.Second, func() time.Time { return clock })

	c.set(&EntityState{EntityID: "light.grow_1", State: "on", LastUpdated: clock})
	clock = clock.Add(301 * time.Second)

	if _, ok := c.get("light.grow_1"); ok {
		t.Error("expected miss after TTL expiry")
	}

	// peek still returns the stale entry for old-state lookups.
	if _, ok := c.peek("light.grow_1"); !ok {
		t.Error("peek should return stale entries")
	}
}

func TestEntityCache_RejectsStaleWrite(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newEntityCache(300*time.Second, func() time.Time { return base })

	c.set(&EntityState{EntityID: "light.grow_1", State: "on", LastUpdated: base.Add(10 * time.Second)})
	c.set(&EntityState{EntityID: "light.grow_1", State: "off", LastUpdated: base})

	state, _ := c.get("light.grow_1")
	if state.State != "on" {
		t.Errorf("State = %q, stale write must not overwrite newer state", state.State)
	}
}

func TestEntityCache_Len(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newEntityCache(time.Second, func() time.Time { return clock })

	c.set(&EntityState{EntityID: "light.a", LastUpdated: clock})
	c.set(&EntityState{EntityID: "light.b", LastUpdated: clock})
	if c.len() != 2 {
		t.Errorf("len = %d, want 2", c.len())
	}

	c.delete("light.a")
	if c.len() != 1 {
		t.Errorf("len = %d, want 1 after delete", c.len())
	}
}
