package idempotency

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

// MemoryStore is the in-process IdempotencyStore. The map mutex is the race
// arbiter: the first reservation for a key wins, later callers observe the
// winner's state until the record expires.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]core.IdempotencyKey
	ttl     time.Duration

	Now func() time.Time
}

func NewMemoryStore(cfg core.IdempotencyConfig) *MemoryStore {
	ttl := cfg.TTL()
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &MemoryStore{
		records: map[string]core.IdempotencyKey{},
		ttl:     ttl,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryStore) CheckAndReserve(_ context.Context, keyHash string, operationType string) (core.Reservation, error) {
	if s == nil {
		return core.Reservation{}, fmt.Errorf("idempotency: memory store is not configured")
	}
	keyHash = strings.TrimSpace(keyHash)
	if keyHash == "" {
		return core.Reservation{}, badInput("idempotency: key hash is required")
	}
	operationType = strings.TrimSpace(operationType)
	if operationType == "" {
		return core.Reservation{}, badInput("idempotency: operation type is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.records[keyHash]; ok && existing.ExpiresAt.After(now) {
		switch existing.Status {
		case core.OperationStatusPending:
			return core.Reservation{Outcome: core.ReservationInProgress, Key: cloneKey(existing)}, nil
		default:
			return core.Reservation{Outcome: core.ReservationCompleted, Key: cloneKey(existing)}, nil
		}
	}

	record := core.IdempotencyKey{
		KeyHash:       keyHash,
		OperationType: operationType,
		Status:        core.OperationStatusPending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}
	s.records[keyHash] = record
	return core.Reservation{Outcome: core.ReservationNew, Key: cloneKey(record)}, nil
}

func (s *MemoryStore) Complete(_ context.Context, keyHash string, success bool, result *core.OperationResult, cause error) error {
	if s == nil {
		return fmt.Errorf("idempotency: memory store is not configured")
	}
	keyHash = strings.TrimSpace(keyHash)
	if keyHash == "" {
		return badInput("idempotency: key hash is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[keyHash]
	if !ok {
		return notFound(keyHash)
	}
	if record.Status != core.OperationStatusPending {
		// Result snapshots are immutable once terminal.
		return nil
	}

	record.Status = core.OperationStatusSucceeded
	if !success {
		record.Status = core.OperationStatusFailed
	}
	record.Result = snapshotResult(success, result, cause)
	s.records[keyHash] = record
	return nil
}

func (s *MemoryStore) Get(_ context.Context, keyHash string) (core.IdempotencyKey, error) {
	if s == nil {
		return core.IdempotencyKey{}, fmt.Errorf("idempotency: memory store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[strings.TrimSpace(keyHash)]
	if !ok || !record.ExpiresAt.After(s.now()) {
		return core.IdempotencyKey{}, notFound(keyHash)
	}
	return cloneKey(record), nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("idempotency: memory store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	purged := 0
	for keyHash, record := range s.records {
		if !record.ExpiresAt.After(now) {
			delete(s.records, keyHash)
			purged++
		}
	}
	return purged, nil
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func snapshotResult(success bool, result *core.OperationResult, cause error) *core.OperationResult {
	snapshot := core.OperationResult{Success: success}
	if result != nil {
		snapshot = *result
		snapshot.Changes = append([]string(nil), result.Changes...)
		snapshot.Success = success
	}
	if cause != nil && strings.TrimSpace(snapshot.ErrorKind) == "" {
		snapshot.ErrorKind = errorKind(cause)
	}
	if cause != nil && strings.TrimSpace(snapshot.Message) == "" {
		snapshot.Message = cause.Error()
	}
	return &snapshot
}

func errorKind(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && strings.TrimSpace(richErr.TextCode) != "" {
		return richErr.TextCode
	}
	return core.IngestErrorProcessing
}

func cloneKey(record core.IdempotencyKey) core.IdempotencyKey {
	cloned := record
	if record.Result != nil {
		result := *record.Result
		result.Changes = append([]string(nil), record.Result.Changes...)
		cloned.Result = &result
	}
	return cloned
}

func badInput(message string) error {
	return core.NewIngestError(message, goerrors.CategoryBadInput, core.IngestErrorBadInput)
}

func notFound(keyHash string) error {
	return core.NewIngestError(
		fmt.Sprintf("idempotency: key %q not found", strings.TrimSpace(keyHash)),
		goerrors.CategoryNotFound,
		core.IngestErrorInternal,
	)
}

var _ core.IdempotencyStore = (*MemoryStore)(nil)
