package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SequenceStore is the durable EntitySequenceStore. One row per entity lane,
// arbitrated by the unique index on (entity_type, entity_id).
type SequenceStore struct {
	db   *bun.DB
	repo repository.Repository[*entitySequenceRecord]

	Now func() time.Time
}

func NewSequenceStore(db *bun.DB) (*SequenceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*entitySequenceRecord](db, entitySequenceHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid entity sequence repository wiring: %w", err)
		}
	}
	return &SequenceStore{
		db:   db,
		repo: repo,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *SequenceStore) Next(ctx context.Context, entityType string, entityID string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: sequence store is not configured")
	}
	entityType, entityID, err := normalizeEntity(entityType, entityID)
	if err != nil {
		return 0, err
	}

	var assigned int64
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findEntitySequenceTx(ctx, tx, entityType, entityID)
		if err != nil {
			return err
		}
		now := s.now()
		if record == nil {
			record = &entitySequenceRecord{
				ID:           uuid.NewString(),
				EntityType:   entityType,
				EntityID:     entityID,
				NextSequence: 1,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if !isUniqueViolation(insertErr) {
					return insertErr
				}
				record, err = findEntitySequenceTx(ctx, tx, entityType, entityID)
				if err != nil {
					return err
				}
				if record == nil {
					return fmt.Errorf("sqlstore: lost sequence race but lane row is missing for %s/%s", entityType, entityID)
				}
			} else {
				assigned = record.NextSequence
				return nil
			}
		}
		record.NextSequence++
		record.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().
			Model(record).
			Column("next_sequence", "updated_at").
			Where("id = ?", record.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		assigned = record.NextSequence
		return nil
	})
	if err != nil {
		return 0, err
	}
	return assigned, nil
}

func (s *SequenceStore) LastApplied(ctx context.Context, entityType string, entityID string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: sequence store is not configured")
	}
	entityType, entityID, err := normalizeEntity(entityType, entityID)
	if err != nil {
		return 0, err
	}
	record := &entitySequenceRecord{}
	err = s.db.NewSelect().
		Model(record).
		Where("?TableAlias.entity_type = ?", entityType).
		Where("?TableAlias.entity_id = ?", entityID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return record.LastAppliedSequence, nil
}

func (s *SequenceStore) MarkApplied(ctx context.Context, entityType string, entityID string, seq int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: sequence store is not configured")
	}
	entityType, entityID, err := normalizeEntity(entityType, entityID)
	if err != nil {
		return err
	}
	if seq <= 0 {
		return badStoreInput("sqlstore: applied sequence must be positive")
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findEntitySequenceTx(ctx, tx, entityType, entityID)
		if err != nil {
			return err
		}
		now := s.now()
		if record == nil {
			record = &entitySequenceRecord{
				ID:                  uuid.NewString(),
				EntityType:          entityType,
				EntityID:            entityID,
				NextSequence:        seq,
				LastAppliedSequence: seq,
				CreatedAt:           now,
				UpdatedAt:           now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if !isUniqueViolation(insertErr) {
					return insertErr
				}
				record, err = findEntitySequenceTx(ctx, tx, entityType, entityID)
				if err != nil {
					return err
				}
				if record == nil {
					return fmt.Errorf("sqlstore: lost sequence race but lane row is missing for %s/%s", entityType, entityID)
				}
			} else {
				return nil
			}
		}
		// Watermark only moves forward.
		if seq <= record.LastAppliedSequence {
			return nil
		}
		record.LastAppliedSequence = seq
		if record.NextSequence < seq {
			record.NextSequence = seq
		}
		record.UpdatedAt = now
		_, err = tx.NewUpdate().
			Model(record).
			Column("last_applied_sequence", "next_sequence", "updated_at").
			Where("id = ?", record.ID).
			Exec(ctx)
		return err
	})
}

func findEntitySequenceTx(ctx context.Context, tx bun.Tx, entityType string, entityID string) (*entitySequenceRecord, error) {
	record := &entitySequenceRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.entity_type = ?", entityType).
		Where("?TableAlias.entity_id = ?", entityID).
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

func normalizeEntity(entityType string, entityID string) (string, string, error) {
	entityType = strings.TrimSpace(entityType)
	entityID = strings.TrimSpace(entityID)
	if entityType == "" || entityID == "" {
		return "", "", badStoreInput("sqlstore: entity type and id are required")
	}
	return entityType, entityID, nil
}

func (s *SequenceStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
