package ordering

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-webhook-ingest/core"
)

// MemoryStore keeps per-entity sequence counters behind one mutex. Next hands
// out enqueue positions; MarkApplied only ever moves the applied watermark
// forward.
type MemoryStore struct {
	mu        sync.Mutex
	sequences map[string]core.EntitySequence

	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sequences: map[string]core.EntitySequence{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryStore) Next(_ context.Context, entityType string, entityID string) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("ordering: memory store is not configured")
	}
	key, err := laneKey(entityType, entityID)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sequence := s.sequences[key]
	sequence.EntityType = strings.TrimSpace(entityType)
	sequence.EntityID = strings.TrimSpace(entityID)
	sequence.NextSequence++
	sequence.UpdatedAt = s.now()
	s.sequences[key] = sequence
	return sequence.NextSequence, nil
}

func (s *MemoryStore) LastApplied(_ context.Context, entityType string, entityID string) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("ordering: memory store is not configured")
	}
	key, err := laneKey(entityType, entityID)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequences[key].LastAppliedSequence, nil
}

func (s *MemoryStore) MarkApplied(_ context.Context, entityType string, entityID string, seq int64) error {
	if s == nil {
		return fmt.Errorf("ordering: memory store is not configured")
	}
	key, err := laneKey(entityType, entityID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sequence := s.sequences[key]
	if seq <= sequence.LastAppliedSequence {
		return nil
	}
	sequence.EntityType = strings.TrimSpace(entityType)
	sequence.EntityID = strings.TrimSpace(entityID)
	sequence.LastAppliedSequence = seq
	if sequence.NextSequence < seq {
		sequence.NextSequence = seq
	}
	sequence.UpdatedAt = s.now()
	s.sequences[key] = sequence
	return nil
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func laneKey(entityType string, entityID string) (string, error) {
	entityType = strings.TrimSpace(entityType)
	entityID = strings.TrimSpace(entityID)
	if entityType == "" || entityID == "" {
		return "", fmt.Errorf("ordering: entity type and id are required")
	}
	return entityType + "\x00" + entityID, nil
}

var _ core.EntitySequenceStore = (*MemoryStore)(nil)
