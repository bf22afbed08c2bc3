package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type idempotencyKeyRecord struct {
	bun.BaseModel `bun:"table:webhook_idempotency_keys,alias:wik"`

	ID              string    `bun:"id,pk"`
	KeyHash         string    `bun:"key_hash,notnull"`
	OperationType   string    `bun:"operation_type,notnull"`
	Status          string    `bun:"status,notnull"`
	ResultSuccess   bool      `bun:"result_success,notnull"`
	ResultMessage   string    `bun:"result_message"`
	ResultChanges   []string  `bun:"result_changes,type:jsonb,notnull"`
	ResultErrorKind string    `bun:"result_error_kind"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt       time.Time `bun:"expires_at,notnull"`
}

type dedupRecordRow struct {
	bun.BaseModel `bun:"table:webhook_dedup_records,alias:wdr"`

	ID               string    `bun:"id,pk"`
	ContentHash      string    `bun:"content_hash,notnull"`
	FirstSeenEventID string    `bun:"first_seen_event_id,notnull"`
	Strategy         string    `bun:"strategy,notnull"`
	WindowExpiresAt  time.Time `bun:"window_expires_at,notnull"`
	CreatedAt        time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type entitySequenceRecord struct {
	bun.BaseModel `bun:"table:webhook_entity_sequences,alias:wes"`

	ID                  string    `bun:"id,pk"`
	EntityType          string    `bun:"entity_type,notnull"`
	EntityID            string    `bun:"entity_id,notnull"`
	NextSequence        int64     `bun:"next_sequence,notnull"`
	LastAppliedSequence int64     `bun:"last_applied_sequence,notnull"`
	CreatedAt           time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt           time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type auditRecordRow struct {
	bun.BaseModel `bun:"table:webhook_audit_records,alias:war"`

	ID               string         `bun:"id,pk"`
	EventID          string         `bun:"event_id,notnull"`
	Stage            string         `bun:"stage,notnull"`
	Severity         string         `bun:"severity,notnull"`
	ErrorKind        string         `bun:"error_kind"`
	EntityType       string         `bun:"entity_type"`
	EntityID         string         `bun:"entity_id"`
	ProcessingTimeMs int64          `bun:"processing_time_ms,notnull"`
	Metadata         map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt        time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
