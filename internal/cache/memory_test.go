package cache

import (
	"testing"
	"time"
)

func TestLRUEvictsOldest(t *testing.T) {
	m := NewMemory(2, time.Minute)

	m.Put("a", []byte("1"))
	m.Put("b", []byte("2"))
	m.Put("c", []byte("3"))

	if _, ok := m.Get("a"); ok {
		t.Error("a should have been evicted")
	}
	if _, ok := m.Get("b"); !ok {
		t.Error("b should still be cached")
	}
	if _, ok := m.Get("c"); !ok {
		t.Error("c should still be cached")
	}

	if got := m.Stats().Evictions; got != 1 {
		t.Errorf("evictions: got %d, want 1", got)
	}
}

func TestGetRefreshesRecency(t *testing.T) {
	m := NewMemory(2, time.Minute)

	m.Put("a", []byte("1"))
	m.Put("b", []byte("2"))

	// Touch a, making b the least recently used.
	if _, ok := m.Get("a"); !ok {
		t.Fatal("a should be cached")
	}

	m.Put("c", []byte("3"))

	if _, ok := m.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := m.Get("a"); !ok {
		t.Error("a should have survived")
	}
}

func TestPutReplacesExisting(t *testing.T) {
	m := NewMemory(2, time.Minute)

	m.Put("a", []byte("old"))
	m.Put("a", []byte("new"))

	v, ok := m.Get("a")
	if !ok || string(v) != "new" {
		t.Errorf("Get after replace: got %q/%v", v, ok)
	}
	if got := m.Stats().Size; got != 1 {
		t.Errorf("size: got %d, want 1", got)
	}
}

func TestTTLExpiry(t *testing.T) {
	m := NewMemory(10, 20*time.Millisecond)

	m.Put("a", []byte("1"))
	if _, ok := m.Get("a"); !ok {
		t.Fatal("fresh entry should hit")
	}

	time.Sleep(40 * time.Millisecond)

	if _, ok := m.Get("a"); ok {
		t.Error("expired entry should miss")
	}
	stats := m.Stats()
	if stats.Size != 0 {
		t.Errorf("expired entry should be dropped, size %d", stats.Size)
	}
	if stats.Evictions != 1 {
		t.Errorf("evictions: got %d, want 1", stats.Evictions)
	}
}

func TestCleanupExpired(t *testing.T) {
	m := NewMemory(10, 20*time.Millisecond)

	m.Put("a", []byte("1"))
	m.Put("b", []byte("2"))
	time.Sleep(40 * time.Millisecond)
	m.Put("c", []byte("3"))

	if removed := m.CleanupExpired(); removed != 2 {
		t.Errorf("removed: got %d, want 2", removed)
	}
	if _, ok := m.Get("c"); !ok {
		t.Error("fresh entry should survive cleanup")
	}
}

func TestPurgeResetsEverything(t *testing.T) {
	m := NewMemory(10, time.Minute)

	m.Put("a", []byte("1"))
	m.Get("a")
	m.Get("missing")
	m.Purge()

	stats := m.Stats()
	if stats.Size != 0 || stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("stats after purge: %+v", stats)
	}
	if _, ok := m.Get("a"); ok {
		t.Error("purged entry should miss")
	}
}

func TestStatsHitRate(t *testing.T) {
	m := NewMemory(10, time.Minute)

	if got := m.Stats().HitRate(); got != 0 {
		t.Errorf("hit rate with no lookups: got %v", got)
	}

	m.Put("a", []byte("1"))
	m.Get("a")
	m.Get("a")
	m.Get("missing")
	m.Get("missing")

	if got := m.Stats().HitRate(); got != 0.5 {
		t.Errorf("hit rate: got %v, want 0.5", got)
	}
}
