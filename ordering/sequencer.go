package ordering

import (
	"context"
	"fmt"
	"sort"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

// Pending is a delivery parked until its causal predecessors apply.
type Pending struct {
	Event   core.InboundEvent
	Context core.ProcessContext
}

// Sequencer enforces per-entity causal order. A delivery is Ready only when
// its sequence is the immediate successor of the lane's applied watermark;
// gaps park in a bounded per-lane buffer, and a full buffer rejects instead
// of growing without bound.
type Sequencer struct {
	store       core.EntitySequenceStore
	bufferLimit int

	mu      sync.Mutex
	buffers map[string][]Pending
}

func NewSequencer(cfg core.OrderingConfig, store core.EntitySequenceStore) *Sequencer {
	if store == nil {
		store = NewMemoryStore()
	}
	bufferLimit := cfg.BufferLimit
	if bufferLimit <= 0 {
		bufferLimit = 100
	}
	return &Sequencer{
		store:       store,
		bufferLimit: bufferLimit,
		buffers:     map[string][]Pending{},
	}
}

// NextSequence assigns the delivery's position in its lane at enqueue time.
func (s *Sequencer) NextSequence(ctx context.Context, entityType string, entityID string) (int64, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("ordering: sequencer is not configured")
	}
	return s.store.Next(ctx, entityType, entityID)
}

// CanProcess decides the fate of a sequenced delivery. Defer parks it; the
// caller gets it back from MarkApplied once the gap closes.
func (s *Sequencer) CanProcess(ctx context.Context, pending Pending) (core.SequenceDecision, error) {
	if s == nil || s.store == nil {
		return "", fmt.Errorf("ordering: sequencer is not configured")
	}
	entityType := pending.Context.EntityType
	entityID := pending.Context.EntityID
	seq := pending.Context.SequenceNumber

	key, err := laneKey(entityType, entityID)
	if err != nil {
		return "", err
	}

	// The watermark read and the park happen under the same lock MarkApplied
	// drains under: a concurrent advance is either visible here, or its drain
	// runs after the park and releases it. Checking the watermark outside the
	// lock would let a delivery park itself against a stale value after the
	// lane's last drain already ran, stranding it forever.
	s.mu.Lock()
	defer s.mu.Unlock()

	lastApplied, err := s.store.LastApplied(ctx, entityType, entityID)
	if err != nil {
		return "", err
	}
	if seq <= lastApplied+1 {
		return core.SequenceReady, nil
	}

	buffer := s.buffers[key]
	if len(buffer) >= s.bufferLimit {
		return core.SequenceReject, overflowError(entityType, entityID, s.bufferLimit)
	}
	buffer = append(buffer, pending)
	sort.SliceStable(buffer, func(i, j int) bool {
		return buffer[i].Context.SequenceNumber < buffer[j].Context.SequenceNumber
	})
	s.buffers[key] = buffer
	return core.SequenceDefer, nil
}

// MarkApplied advances the lane watermark and drains every parked delivery
// that became the immediate successor. Returned pendings are ordered and
// already marked ready; the caller re-runs them.
func (s *Sequencer) MarkApplied(ctx context.Context, entityType string, entityID string, seq int64) ([]Pending, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("ordering: sequencer is not configured")
	}
	key, err := laneKey(entityType, entityID)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkApplied(ctx, entityType, entityID, seq); err != nil {
		return nil, err
	}

	lastApplied, err := s.store.LastApplied(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []Pending
	buffer := s.buffers[key]
	for len(buffer) > 0 && buffer[0].Context.SequenceNumber <= lastApplied+1 {
		next := buffer[0]
		buffer = buffer[1:]
		ready = append(ready, next)
		if next.Context.SequenceNumber == lastApplied+1 {
			lastApplied++
		}
	}
	if len(buffer) == 0 {
		delete(s.buffers, key)
	} else {
		s.buffers[key] = buffer
	}
	return ready, nil
}

// PendingCount reports the lane's parked depth.
func (s *Sequencer) PendingCount(entityType string, entityID string) int {
	if s == nil {
		return 0
	}
	key, err := laneKey(entityType, entityID)
	if err != nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffers[key])
}

func overflowError(entityType string, entityID string, limit int) error {
	return core.NewIngestError(
		fmt.Sprintf("ordering: buffer overflow for %s/%s, %d deliveries already deferred", entityType, entityID, limit),
		goerrors.CategoryConflict,
		core.IngestErrorOrderingRejected,
	).WithMetadata(map[string]any{
		"entity_type":  entityType,
		"entity_id":    entityID,
		"buffer_limit": limit,
	})
}
