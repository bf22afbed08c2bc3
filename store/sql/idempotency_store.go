package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// IdempotencyStore is the durable IdempotencyStore. The unique index on
// key_hash is the race arbiter: concurrent reservations for the same key
// resolve through the insert conflict, the loser re-reads the winner's row.
type IdempotencyStore struct {
	db   *bun.DB
	repo repository.Repository[*idempotencyKeyRecord]
	ttl  time.Duration

	Now func() time.Time
}

func NewIdempotencyStore(db *bun.DB, cfg core.IdempotencyConfig) (*IdempotencyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*idempotencyKeyRecord](db, idempotencyKeyHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid idempotency repository wiring: %w", err)
		}
	}
	ttl := cfg.TTL()
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &IdempotencyStore{
		db:   db,
		repo: repo,
		ttl:  ttl,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *IdempotencyStore) CheckAndReserve(ctx context.Context, keyHash string, operationType string) (core.Reservation, error) {
	if s == nil || s.db == nil {
		return core.Reservation{}, fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	keyHash = strings.TrimSpace(keyHash)
	if keyHash == "" {
		return core.Reservation{}, badStoreInput("sqlstore: key hash is required")
	}
	operationType = strings.TrimSpace(operationType)
	if operationType == "" {
		return core.Reservation{}, badStoreInput("sqlstore: operation type is required")
	}

	now := s.now()
	if existing, err := s.findUnexpired(ctx, keyHash, now); err != nil {
		return core.Reservation{}, err
	} else if existing != nil {
		return observeReservation(existing), nil
	}

	// Expired rows surrender the key before the fresh reservation lands.
	if _, err := s.db.NewDelete().
		Model((*idempotencyKeyRecord)(nil)).
		Where("key_hash = ?", keyHash).
		Where("expires_at <= ?", now).
		Exec(ctx); err != nil {
		return core.Reservation{}, err
	}

	record := &idempotencyKeyRecord{
		ID:            uuid.NewString(),
		KeyHash:       keyHash,
		OperationType: operationType,
		Status:        string(core.OperationStatusPending),
		ResultChanges: []string{},
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return core.Reservation{}, err
		}
		winner, findErr := s.findUnexpired(ctx, keyHash, now)
		if findErr != nil {
			return core.Reservation{}, findErr
		}
		if winner == nil {
			return core.Reservation{}, fmt.Errorf("sqlstore: lost reservation race but winner row is missing for %q", keyHash)
		}
		return observeReservation(winner), nil
	}
	return core.Reservation{Outcome: core.ReservationNew, Key: idempotencyRecordToDomain(record)}, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, keyHash string, success bool, result *core.OperationResult, cause error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	keyHash = strings.TrimSpace(keyHash)
	if keyHash == "" {
		return badStoreInput("sqlstore: key hash is required")
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &idempotencyKeyRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.key_hash = ?", keyHash).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return storeNotFound(keyHash)
			}
			return err
		}
		if record.Status != string(core.OperationStatusPending) {
			// Result snapshots are immutable once terminal.
			return nil
		}

		snapshot := snapshotOperationResult(success, result, cause)
		record.Status = string(core.OperationStatusSucceeded)
		if !success {
			record.Status = string(core.OperationStatusFailed)
		}
		record.ResultSuccess = snapshot.Success
		record.ResultMessage = snapshot.Message
		record.ResultChanges = append([]string{}, snapshot.Changes...)
		record.ResultErrorKind = snapshot.ErrorKind

		_, err = tx.NewUpdate().
			Model(record).
			Column("status", "result_success", "result_message", "result_changes", "result_error_kind").
			Where("id = ?", record.ID).
			Where("status = ?", string(core.OperationStatusPending)).
			Exec(ctx)
		return err
	})
}

func (s *IdempotencyStore) Get(ctx context.Context, keyHash string) (core.IdempotencyKey, error) {
	if s == nil || s.db == nil {
		return core.IdempotencyKey{}, fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	record, err := s.findUnexpired(ctx, strings.TrimSpace(keyHash), s.now())
	if err != nil {
		return core.IdempotencyKey{}, err
	}
	if record == nil {
		return core.IdempotencyKey{}, storeNotFound(keyHash)
	}
	return idempotencyRecordToDomain(record), nil
}

func (s *IdempotencyStore) PurgeExpired(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*idempotencyKeyRecord)(nil)).
		Where("expires_at <= ?", s.now()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *IdempotencyStore) findUnexpired(ctx context.Context, keyHash string, now time.Time) (*idempotencyKeyRecord, error) {
	record := &idempotencyKeyRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.key_hash = ?", keyHash).
		Where("?TableAlias.expires_at > ?", now).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func (s *IdempotencyStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func observeReservation(record *idempotencyKeyRecord) core.Reservation {
	key := idempotencyRecordToDomain(record)
	if key.Status == core.OperationStatusPending {
		return core.Reservation{Outcome: core.ReservationInProgress, Key: key}
	}
	return core.Reservation{Outcome: core.ReservationCompleted, Key: key}
}

func idempotencyRecordToDomain(record *idempotencyKeyRecord) core.IdempotencyKey {
	if record == nil {
		return core.IdempotencyKey{}
	}
	key := core.IdempotencyKey{
		KeyHash:       record.KeyHash,
		OperationType: record.OperationType,
		Status:        core.OperationStatus(record.Status),
		CreatedAt:     record.CreatedAt,
		ExpiresAt:     record.ExpiresAt,
	}
	if key.Status != core.OperationStatusPending {
		key.Result = &core.OperationResult{
			Success:   record.ResultSuccess,
			Message:   record.ResultMessage,
			Changes:   append([]string(nil), record.ResultChanges...),
			ErrorKind: record.ResultErrorKind,
		}
	}
	return key
}

func snapshotOperationResult(success bool, result *core.OperationResult, cause error) core.OperationResult {
	snapshot := core.OperationResult{Success: success}
	if result != nil {
		snapshot = *result
		snapshot.Changes = append([]string(nil), result.Changes...)
		snapshot.Success = success
	}
	if cause != nil && strings.TrimSpace(snapshot.ErrorKind) == "" {
		snapshot.ErrorKind = storeErrorKind(cause)
	}
	if cause != nil && strings.TrimSpace(snapshot.Message) == "" {
		snapshot.Message = cause.Error()
	}
	return snapshot
}

func storeErrorKind(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && strings.TrimSpace(richErr.TextCode) != "" {
		return richErr.TextCode
	}
	return core.IngestErrorProcessing
}

func badStoreInput(message string) error {
	return core.NewIngestError(message, goerrors.CategoryBadInput, core.IngestErrorBadInput)
}

func storeNotFound(keyHash string) error {
	return core.NewIngestError(
		fmt.Sprintf("sqlstore: key %q not found", strings.TrimSpace(keyHash)),
		goerrors.CategoryNotFound,
		core.IngestErrorInternal,
	)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint") ||
		strings.Contains(message, "constraint failed: unique")
}
