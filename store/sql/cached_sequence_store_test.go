package sqlstore

import (
	"context"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubSequenceStore struct {
	mu               sync.Mutex
	nextCalls        int
	lastAppliedCalls int
	markCalls        int
	next             int64
	lastApplied      int64
}

func (s *stubSequenceStore) Next(_ context.Context, _ string, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCalls++
	s.next++
	return s.next, nil
}

func (s *stubSequenceStore) LastApplied(_ context.Context, _ string, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAppliedCalls++
	return s.lastApplied, nil
}

func (s *stubSequenceStore) MarkApplied(_ context.Context, _ string, _ string, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markCalls++
	if seq > s.lastApplied {
		s.lastApplied = seq
	}
	return nil
}

func newTestSequenceCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestCachedSequenceStore_LastApplied_MissFetchThenHit(t *testing.T) {
	base := &stubSequenceStore{lastApplied: 3}
	store, err := NewCachedSequenceStore(base, newTestSequenceCacheService(t))
	if err != nil {
		t.Fatalf("new cached sequence store: %v", err)
	}

	value, err := store.LastApplied(context.Background(), "subscription", "sub_cache_1")
	if err != nil {
		t.Fatalf("first last applied: %v", err)
	}
	if value != 3 {
		t.Fatalf("expected watermark 3, got %d", value)
	}
	if base.lastAppliedCalls != 1 {
		t.Fatalf("expected one base read, got %d", base.lastAppliedCalls)
	}

	if _, err := store.LastApplied(context.Background(), "subscription", "sub_cache_1"); err != nil {
		t.Fatalf("second last applied: %v", err)
	}
	if base.lastAppliedCalls != 1 {
		t.Fatalf("expected second read to be a cache hit, base reads=%d", base.lastAppliedCalls)
	}
}

func TestCachedSequenceStore_WritesInvalidateCachedWatermark(t *testing.T) {
	base := &stubSequenceStore{}
	store, err := NewCachedSequenceStore(base, newTestSequenceCacheService(t))
	if err != nil {
		t.Fatalf("new cached sequence store: %v", err)
	}

	if _, err := store.LastApplied(context.Background(), "subscription", "sub_cache_2"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if err := store.MarkApplied(context.Background(), "subscription", "sub_cache_2", 1); err != nil {
		t.Fatalf("mark applied: %v", err)
	}

	value, err := store.LastApplied(context.Background(), "subscription", "sub_cache_2")
	if err != nil {
		t.Fatalf("last applied after invalidation: %v", err)
	}
	if value != 1 {
		t.Fatalf("expected refreshed watermark 1, got %d", value)
	}
	if base.lastAppliedCalls != 2 {
		t.Fatalf("expected invalidation to force a second base read, got %d", base.lastAppliedCalls)
	}

	if _, err := store.Next(context.Background(), "subscription", "sub_cache_2"); err != nil {
		t.Fatalf("next: %v", err)
	}
	if base.nextCalls != 1 {
		t.Fatalf("expected next to delegate to base, got %d", base.nextCalls)
	}
}

func TestEntitySequenceCacheKey_Contract(t *testing.T) {
	key, err := EntitySequenceCacheKey(" subscription ", "sub/alpha 1")
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}
	const expected = "webhook-ingest::entity_sequence::v1::subscription::sub%2Falpha%201"
	if key != expected {
		t.Fatalf("unexpected cache key contract: got %q want %q", key, expected)
	}

	if _, err := EntitySequenceCacheKey("", "sub_1"); err == nil {
		t.Fatalf("expected entity type requirement")
	}
}
