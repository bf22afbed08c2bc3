package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhook-ingest/core"
)

const entitySequenceCacheKeyPrefix = "webhook-ingest::entity_sequence::v1"

// CachedSequenceStore front-loads LastApplied reads with a cache. Every write
// path (Next, MarkApplied) invalidates the lane's cache entry so ordering
// decisions never run on a stale watermark.
type CachedSequenceStore struct {
	base  core.EntitySequenceStore
	cache repositorycache.CacheService
}

func NewCachedSequenceStore(
	base core.EntitySequenceStore,
	cacheService repositorycache.CacheService,
) (*CachedSequenceStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base entity sequence store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: sequence cache service is required")
	}
	return &CachedSequenceStore{base: base, cache: cacheService}, nil
}

// EntitySequenceCacheKey returns the deterministic cache key contract for
// per-lane watermark reads: webhook-ingest::entity_sequence::v1::<entity_type>::<entity_id>
// with each segment URL-path escaped.
func EntitySequenceCacheKey(entityType string, entityID string) (string, error) {
	entityType, entityID, err := normalizeEntity(entityType, entityID)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		entitySequenceCacheKeyPrefix,
		url.PathEscape(entityType),
		url.PathEscape(entityID),
	}, "::"), nil
}

func (s *CachedSequenceStore) Next(ctx context.Context, entityType string, entityID string) (int64, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return 0, fmt.Errorf("sqlstore: cached sequence store is not configured")
	}
	seq, err := s.base.Next(ctx, entityType, entityID)
	if err != nil {
		return 0, err
	}
	if err := s.invalidate(ctx, entityType, entityID); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *CachedSequenceStore) LastApplied(ctx context.Context, entityType string, entityID string) (int64, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return 0, fmt.Errorf("sqlstore: cached sequence store is not configured")
	}
	cacheKey, err := EntitySequenceCacheKey(entityType, entityID)
	if err != nil {
		return 0, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (int64, error) {
		return s.base.LastApplied(ctx, entityType, entityID)
	})
}

func (s *CachedSequenceStore) MarkApplied(ctx context.Context, entityType string, entityID string, seq int64) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached sequence store is not configured")
	}
	if err := s.base.MarkApplied(ctx, entityType, entityID, seq); err != nil {
		return err
	}
	return s.invalidate(ctx, entityType, entityID)
}

func (s *CachedSequenceStore) invalidate(ctx context.Context, entityType string, entityID string) error {
	cacheKey, err := EntitySequenceCacheKey(entityType, entityID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
