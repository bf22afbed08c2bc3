package dedupe

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

// MemoryStore is the in-process DeduplicationStore. First sighting of a
// content hash wins; every later sighting inside the window resolves to the
// original event. The ledger is bounded: when full, the entries closest to
// expiry are evicted first.
type MemoryStore struct {
	mu         sync.Mutex
	records    map[string]core.DedupRecord
	window     time.Duration
	maxEntries int

	Now func() time.Time
}

func NewMemoryStore(cfg core.DedupConfig) *MemoryStore {
	window := cfg.Window()
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 100000
	}
	return &MemoryStore{
		records:    map[string]core.DedupRecord{},
		window:     window,
		maxEntries: maxEntries,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryStore) CheckDuplicate(_ context.Context, contentHash string, eventID string) (core.DedupDecision, error) {
	if s == nil {
		return core.DedupDecision{}, fmt.Errorf("dedupe: memory store is not configured")
	}
	contentHash = strings.TrimSpace(contentHash)
	if contentHash == "" {
		return core.DedupDecision{}, badInput("dedupe: content hash is required")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return core.DedupDecision{}, badInput("dedupe: event id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.records[contentHash]; ok && existing.WindowExpiresAt.After(now) {
		return core.DedupDecision{
			Duplicate:       true,
			OriginalEventID: existing.FirstSeenEventID,
		}, nil
	}

	s.evictLocked(now)
	s.records[contentHash] = core.DedupRecord{
		ContentHash:      contentHash,
		FirstSeenEventID: eventID,
		Strategy:         core.DedupStrategyFirstWins,
		WindowExpiresAt:  now.Add(s.window),
	}
	return core.DedupDecision{}, nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("dedupe: memory store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	purged := 0
	for contentHash, record := range s.records {
		if !record.WindowExpiresAt.After(now) {
			delete(s.records, contentHash)
			purged++
		}
	}
	return purged, nil
}

// evictLocked makes room for one insert: expired entries go first, then the
// entry closest to expiry.
func (s *MemoryStore) evictLocked(now time.Time) {
	if len(s.records) < s.maxEntries {
		return
	}
	for contentHash, record := range s.records {
		if !record.WindowExpiresAt.After(now) {
			delete(s.records, contentHash)
		}
	}
	for len(s.records) >= s.maxEntries {
		var (
			oldestHash string
			oldest     time.Time
		)
		for contentHash, record := range s.records {
			if oldestHash == "" || record.WindowExpiresAt.Before(oldest) {
				oldestHash = contentHash
				oldest = record.WindowExpiresAt
			}
		}
		delete(s.records, oldestHash)
	}
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func badInput(message string) error {
	return core.NewIngestError(message, goerrors.CategoryBadInput, core.IngestErrorBadInput)
}

var _ core.DeduplicationStore = (*MemoryStore)(nil)
