package sqlstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuditStore is the durable audit ledger. Rows are append-only; metadata is
// redacted before it touches the database, never on the way out.
type AuditStore struct {
	db   *bun.DB
	repo repository.Repository[*auditRecordRow]
}

func NewAuditStore(db *bun.DB) (*AuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*auditRecordRow](db, auditRecordHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid audit repository wiring: %w", err)
		}
	}
	return &AuditStore{db: db, repo: repo}, nil
}

func (s *AuditStore) WriteBatch(ctx context.Context, records []core.AuditRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: audit store is not configured")
	}
	if len(records) == 0 {
		return nil
	}
	rows := make([]*auditRecordRow, 0, len(records))
	for _, record := range records {
		id := strings.TrimSpace(record.ID)
		if id == "" {
			id = uuid.NewString()
		}
		createdAt := record.CreatedAt.UTC()
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		severity := strings.TrimSpace(string(record.Severity))
		if severity == "" {
			severity = string(core.AuditSeverityInfo)
		}
		rows = append(rows, &auditRecordRow{
			ID:               id,
			EventID:          strings.TrimSpace(record.EventID),
			Stage:            strings.TrimSpace(string(record.Stage)),
			Severity:         severity,
			ErrorKind:        strings.TrimSpace(record.ErrorKind),
			EntityType:       strings.TrimSpace(record.EntityType),
			EntityID:         strings.TrimSpace(record.EntityID),
			ProcessingTimeMs: record.ProcessingTimeMs,
			Metadata:         core.RedactSensitiveMap(record.Metadata),
			CreatedAt:        createdAt,
		})
	}
	_, err := s.db.NewInsert().Model(&rows).Exec(ctx)
	return err
}

func (s *AuditStore) List(ctx context.Context, filter core.AuditFilter) (core.AuditPage, error) {
	if s == nil || s.repo == nil {
		return core.AuditPage{}, fmt.Errorf("sqlstore: audit store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if eventID := strings.TrimSpace(filter.EventID); eventID != "" {
		selectors = append(selectors, repository.SelectBy("event_id", "=", eventID))
	}
	if stage := strings.TrimSpace(string(filter.Stage)); stage != "" {
		selectors = append(selectors, repository.SelectBy("stage", "=", stage))
	}
	if severity := strings.TrimSpace(string(filter.Severity)); severity != "" {
		selectors = append(selectors, repository.SelectBy("severity", "=", severity))
	}
	if entityType := strings.TrimSpace(filter.EntityType); entityType != "" {
		selectors = append(selectors, repository.SelectBy("entity_type", "=", entityType))
	}
	if entityID := strings.TrimSpace(filter.EntityID); entityID != "" {
		selectors = append(selectors, repository.SelectBy("entity_id", "=", entityID))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", "<=", filter.To.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.AuditPage{}, err
	}
	items := make([]core.AuditRecord, 0, len(records))
	for _, record := range records {
		items = append(items, auditRowToDomain(record))
	}
	hasNext := offset+len(items) < total
	nextCursor := ""
	if hasNext {
		nextCursor = strconv.Itoa(offset + len(items))
	}
	return core.AuditPage{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		HasNext:    hasNext,
		NextCursor: nextCursor,
	}, nil
}

func (s *AuditStore) Prune(ctx context.Context, policy core.AuditRetentionPolicy) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: audit store is not configured")
	}
	deleted := 0
	now := time.Now().UTC()

	if policy.TTL > 0 {
		cutoff := now.Add(-policy.TTL)
		res, err := s.db.NewDelete().
			Model((*auditRecordRow)(nil)).
			Where("created_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return deleted, err
		}
		affected, _ := res.RowsAffected()
		deleted += int(affected)
	}

	if policy.RowCap > 0 {
		total, err := s.db.NewSelect().Model((*auditRecordRow)(nil)).Count(ctx)
		if err != nil {
			return deleted, err
		}
		excess := total - policy.RowCap
		if excess > 0 {
			res, err := s.db.NewRaw(
				"DELETE FROM webhook_audit_records WHERE id IN (SELECT id FROM webhook_audit_records ORDER BY created_at ASC LIMIT ?)",
				excess,
			).Exec(ctx)
			if err != nil {
				return deleted, err
			}
			affected, _ := res.RowsAffected()
			deleted += int(affected)
		}
	}

	return deleted, nil
}

func auditRowToDomain(record *auditRecordRow) core.AuditRecord {
	if record == nil {
		return core.AuditRecord{}
	}
	return core.AuditRecord{
		ID:               record.ID,
		EventID:          record.EventID,
		Stage:            core.AuditStage(record.Stage),
		Severity:         core.AuditSeverity(record.Severity),
		ErrorKind:        record.ErrorKind,
		EntityType:       record.EntityType,
		EntityID:         record.EntityID,
		ProcessingTimeMs: record.ProcessingTimeMs,
		Metadata:         copyAnyMap(record.Metadata),
		CreatedAt:        record.CreatedAt,
	}
}

func copyAnyMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		target[key] = value
	}
	return target
}
