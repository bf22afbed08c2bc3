package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DedupStore is the durable DeduplicationStore. First-wins semantics ride the
// unique index on content_hash: the first insert owns the window, later
// deliveries observe the owner through the conflict path.
type DedupStore struct {
	db     *bun.DB
	repo   repository.Repository[*dedupRecordRow]
	window time.Duration

	Now func() time.Time
}

func NewDedupStore(db *bun.DB, cfg core.DedupConfig) (*DedupStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*dedupRecordRow](db, dedupRecordHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid dedup repository wiring: %w", err)
		}
	}
	window := cfg.Window()
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	return &DedupStore{
		db:     db,
		repo:   repo,
		window: window,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *DedupStore) CheckDuplicate(ctx context.Context, contentHash string, eventID string) (core.DedupDecision, error) {
	if s == nil || s.db == nil {
		return core.DedupDecision{}, fmt.Errorf("sqlstore: dedup store is not configured")
	}
	contentHash = strings.TrimSpace(contentHash)
	if contentHash == "" {
		return core.DedupDecision{}, badStoreInput("sqlstore: content hash is required")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return core.DedupDecision{}, badStoreInput("sqlstore: event id is required")
	}

	now := s.now()
	if existing, err := s.findUnexpired(ctx, contentHash, now); err != nil {
		return core.DedupDecision{}, err
	} else if existing != nil {
		return core.DedupDecision{Duplicate: true, OriginalEventID: existing.FirstSeenEventID}, nil
	}

	if _, err := s.db.NewDelete().
		Model((*dedupRecordRow)(nil)).
		Where("content_hash = ?", contentHash).
		Where("window_expires_at <= ?", now).
		Exec(ctx); err != nil {
		return core.DedupDecision{}, err
	}

	record := &dedupRecordRow{
		ID:               uuid.NewString(),
		ContentHash:      contentHash,
		FirstSeenEventID: eventID,
		Strategy:         core.DedupStrategyFirstWins,
		WindowExpiresAt:  now.Add(s.window),
		CreatedAt:        now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return core.DedupDecision{}, err
		}
		winner, findErr := s.findUnexpired(ctx, contentHash, now)
		if findErr != nil {
			return core.DedupDecision{}, findErr
		}
		if winner == nil {
			return core.DedupDecision{}, fmt.Errorf("sqlstore: lost dedup race but owner row is missing for %q", contentHash)
		}
		return core.DedupDecision{Duplicate: true, OriginalEventID: winner.FirstSeenEventID}, nil
	}
	return core.DedupDecision{}, nil
}

func (s *DedupStore) PurgeExpired(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: dedup store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*dedupRecordRow)(nil)).
		Where("window_expires_at <= ?", s.now()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *DedupStore) findUnexpired(ctx context.Context, contentHash string, now time.Time) (*dedupRecordRow, error) {
	record := &dedupRecordRow{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.content_hash = ?", contentHash).
		Where("?TableAlias.window_expires_at > ?", now).
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

func (s *DedupStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
