package routing

import (
	"testing"
	"time"
)

func alwaysOnline(string) bool { return true }

func TestCacheKeyFlagOrderInsensitive(t *testing.T) {
	a := cacheKey("op", ComplexityModerate, "frontend", []string{"--delegate", "--uc"})
	b := cacheKey("op", ComplexityModerate, "frontend", []string{"--uc", "--delegate"})
	if a != b {
		t.Fatal("flag order changed the cache key")
	}

	c := cacheKey("op", ComplexityComplex, "frontend", []string{"--delegate", "--uc"})
	if a == c {
		t.Fatal("complexity change did not change the cache key")
	}
}

func TestCacheHitAndExpiry(t *testing.T) {
	c := newDecisionCache(20 * time.Millisecond)
	d := Decision{TargetServers: []string{"magic"}, Strategy: StrategySequential}

	c.put("k", d)
	got, ok := c.get("k", alwaysOnline)
	if !ok || got.TargetServers[0] != "magic" {
		t.Fatalf("get = %+v, %v; want cached decision", got, ok)
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := c.get("k", alwaysOnline); ok {
		t.Fatal("expired entry served")
	}
	if c.len() != 0 {
		t.Fatalf("len = %d, want expired entry evicted", c.len())
	}
}

func TestCacheRejectsOfflineTarget(t *testing.T) {
	c := newDecisionCache(time.Minute)
	c.put("k", Decision{TargetServers: []string{"magic", "context7"}})

	offline := func(id string) bool { return id != "context7" }
	if _, ok := c.get("k", offline); ok {
		t.Fatal("decision with offline target served")
	}
	if c.len() != 0 {
		t.Fatalf("len = %d, want invalid entry evicted", c.len())
	}
}

func TestCacheEvictServer(t *testing.T) {
	c := newDecisionCache(time.Minute)
	c.put("a", Decision{TargetServers: []string{"magic"}})
	c.put("b", Decision{TargetServers: []string{"context7", "magic"}})
	c.put("c", Decision{TargetServers: []string{"sequential"}})

	c.evictServer("magic")

	if c.len() != 1 {
		t.Fatalf("len = %d, want 1", c.len())
	}
	if _, ok := c.get("c", alwaysOnline); !ok {
		t.Fatal("unrelated entry evicted")
	}
}
