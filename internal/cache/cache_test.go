package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/mopscov/internal/model"
)

func TestPageKey(t *testing.T) {
	q1 := model.NewPageRequest("2330", 2024, 1)
	whole := model.NewPageRequest("2330", 2024, 0)

	k1 := PageKey(q1)
	if !strings.HasPrefix(k1, "mopscov:v1:") {
		t.Errorf("expected namespaced key, got %s", k1)
	}
	if k1 != PageKey(model.NewPageRequest("2330", 2024, 1)) {
		t.Error("expected identical requests to share a key")
	}
	if k1 == PageKey(whole) {
		t.Error("expected whole-year and quarter requests to differ")
	}
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	now := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key := PageKey(model.NewPageRequest("2330", 2024, 1))
	if err := c.Set(key, []byte("<html>page</html>"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := c.Get(key)
	if !ok || string(got) != "<html>page</html>" {
		t.Fatalf("expected hit, got %q %v", got, ok)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || strings.Contains(entries[0].Name(), ":") {
		t.Errorf("expected one file without colons, got %v", entries)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get(key); ok {
		t.Error("expected expired entry to miss")
	}
	if _, err := os.Stat(filepath.Join(dir, entries[0].Name())); !os.IsNotExist(err) {
		t.Error("expected expired entry to be removed")
	}
}

func TestDiskCache_CorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := "mopscov:v1:abc"
	if err := os.WriteFile(c.path(key), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(key); ok {
		t.Error("expected corrupt entry to miss")
	}
	if err := c.Delete(key); err != nil {
		t.Errorf("deleting a missing entry should not fail: %v", err)
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	disk := NewDiskCache(dir, time.Hour)
	memory := NewMemoryCache(time.Minute, time.Minute)
	c := &LayeredCache{memory: memory, disk: disk}

	if err := disk.Set("k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if memory.Len() != 0 {
		t.Fatal("memory should start empty")
	}

	got, ok := c.Get("k")
	if !ok || string(got) != "v" {
		t.Fatalf("expected disk hit, got %q %v", got, ok)
	}
	if memory.Len() != 1 {
		t.Error("expected disk hit to be promoted to memory")
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after Clear")
	}
}

func TestNew(t *testing.T) {
	cfg := model.DefaultConfig().Cache
	cfg.Dir = t.TempDir()

	if _, ok := New(cfg).(*LayeredCache); !ok {
		t.Error("expected layered cache when enabled")
	}

	cfg.Enabled = false
	c := New(cfg)
	if _, ok := c.(NopCache); !ok {
		t.Fatal("expected no-op cache when disabled")
	}
	_ = c.Set("k", []byte("v"), 0)
	if _, ok := c.Get("k"); ok {
		t.Error("no-op cache must never hit")
	}
}
