package memorycache

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"
)

func newCache(t *testing.T, maxBytes int64) *Cache {
	t.Helper()
	c, err := New(&Config{
		MaxSizeBytes:  maxBytes,
		DefaultTTL:    time.Minute,
		EnableMetrics: true,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return c
}

func TestCache_RoundTrip(t *testing.T) {
	c := newCache(t, 1024*1024)
	ctx := context.Background()

	// The resolver stores ordered column lists keyed by relationship
	// and record type.
	cols := []string{"resource_id_0", "resource_id_1"}
	if err := c.Set(ctx, "related_resources:resource", cols, time.Minute); err != nil {
		t.Fatalf("failed to set value: %v", err)
	}

	got, found := c.Get(ctx, "related_resources:resource")
	if !found {
		t.Fatal("expected cached columns for related_resources:resource")
	}
	if !reflect.DeepEqual(got, cols) {
		t.Errorf("got %v, want %v", got, cols)
	}

	if _, found := c.Get(ctx, "subject_link:subject"); found {
		t.Error("expected no entry for an unseen key")
	}
}

func TestCache_TTLExpiration(t *testing.T) {
	c := newCache(t, 1024*1024)
	ctx := context.Background()

	if err := c.Set(ctx, "linked_agents:agent", []string{"agent_id"}, 50*time.Millisecond); err != nil {
		t.Fatalf("failed to set value: %v", err)
	}

	if _, found := c.Get(ctx, "linked_agents:agent"); !found {
		t.Error("expected entry before expiration")
	}

	time.Sleep(100 * time.Millisecond)

	if _, found := c.Get(ctx, "linked_agents:agent"); found {
		t.Error("expected entry to expire")
	}
}

func TestCache_LRUEviction(t *testing.T) {
	// Room for only a handful of entries.
	c := newCache(t, 300)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		key := fmt.Sprintf("event_link:type%d", i)
		if err := c.Set(ctx, key, []string{"event_id"}, time.Minute); err != nil {
			t.Fatalf("failed to set value: %v", err)
		}
	}

	if c.Len() >= 12 {
		t.Errorf("expected evictions, still holding %d entries", c.Len())
	}
	if c.Size() > 300 {
		t.Errorf("size %d exceeds the configured limit", c.Size())
	}

	// The most recently written entry survives.
	if _, found := c.Get(ctx, "event_link:type11"); !found {
		t.Error("expected the most recent entry to survive eviction")
	}

	if evicted := c.Metrics().KeysEvicted; evicted == 0 {
		t.Error("expected the eviction count to advance")
	}
}

func TestCache_Delete(t *testing.T) {
	c := newCache(t, 1024*1024)
	ctx := context.Background()

	c.Set(ctx, "classification:subject", []string{"subject_id"}, time.Minute)

	if err := c.Delete(ctx, "classification:subject"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, found := c.Get(ctx, "classification:subject"); found {
		t.Error("expected entry to be gone after delete")
	}

	// Deleting an absent key is a no-op.
	if err := c.Delete(ctx, "classification:resource"); err != nil {
		t.Fatalf("delete of absent key should not error: %v", err)
	}
}

func TestCache_Clear(t *testing.T) {
	c := newCache(t, 1024*1024)
	ctx := context.Background()

	c.Set(ctx, "subject_link:resource", []string{"resource_id"}, time.Minute)
	c.Set(ctx, "subject_link:accession", []string{"accession_id"}, time.Minute)
	c.Set(ctx, "subject_link:subject", []string{"subject_id"}, time.Minute)
	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("expected 0 entries after clear, got %d", c.Len())
	}
	if c.Size() != 0 {
		t.Errorf("expected size 0 after clear, got %d", c.Size())
	}
}

func TestCache_Metrics(t *testing.T) {
	c := newCache(t, 1024*1024)
	ctx := context.Background()

	m := c.Metrics()
	if m.Hits != 0 || m.Misses != 0 {
		t.Fatalf("expected zeroed metrics, got %d hits and %d misses", m.Hits, m.Misses)
	}

	c.Set(ctx, "linked_agents:event", []string{"event_id"}, time.Minute)
	c.Get(ctx, "linked_agents:event")
	c.Get(ctx, "linked_agents:repository")

	m = c.Metrics()
	if m.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", m.Hits)
	}
	if m.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", m.Misses)
	}
}

func TestCache_MetricsDisabled(t *testing.T) {
	c, err := New(&Config{MaxSizeBytes: 1024, DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	ctx := context.Background()

	c.Set(ctx, "related_resources:resource", []string{"resource_id_0"}, time.Minute)
	c.Get(ctx, "related_resources:resource")

	m := c.Metrics()
	if m.Hits != 0 || m.Misses != 0 || m.KeysEvicted != 0 {
		t.Errorf("expected zeroed metrics when disabled, got %+v", m)
	}
}

func TestCache_UpdateExisting(t *testing.T) {
	c := newCache(t, 1024*1024)
	ctx := context.Background()

	c.Set(ctx, "event_link:resource", []string{"resource_id"}, time.Minute)
	c.Set(ctx, "event_link:resource", []string{"resource_id_0", "resource_id_1"}, time.Minute)

	got, found := c.Get(ctx, "event_link:resource")
	if !found {
		t.Fatal("expected entry after update")
	}
	if !reflect.DeepEqual(got, []string{"resource_id_0", "resource_id_1"}) {
		t.Errorf("expected the updated column list, got %v", got)
	}
	if c.Len() != 1 {
		t.Errorf("update must not add an entry, got %d", c.Len())
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := newCache(t, 1024*1024)
	ctx := context.Background()
	done := make(chan struct{})

	for i := 0; i < 8; i++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			key := fmt.Sprintf("subject_link:type%d", id)
			for j := 0; j < 100; j++ {
				c.Set(ctx, key, []string{"subject_id"}, time.Minute)
				c.Get(ctx, key)
			}
		}(i)
	}

	for i := 0; i < 8; i++ {
		<-done
	}
}
