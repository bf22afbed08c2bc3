package query

import (
	"strings"

	"github.com/goliatone/go-webhook-ingest/core"
)

const (
	TypeListAuditRecords     = "ingest.query.audit.list"
	TypeGetIdempotencyKey    = "ingest.query.idempotency.get"
	TypeGetSequenceWatermark = "ingest.query.sequence.watermark"
)

type ListAuditRecordsMessage struct {
	Filter core.AuditFilter
}

func (ListAuditRecordsMessage) Type() string { return TypeListAuditRecords }

func (m ListAuditRecordsMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "per_page must be >= 0")
	}
	if m.Filter.From != nil && m.Filter.To != nil && m.Filter.To.Before(*m.Filter.From) {
		return queryValidationError("to", "to must not be before from")
	}
	return nil
}

type GetIdempotencyKeyMessage struct {
	KeyHash string
}

func (GetIdempotencyKeyMessage) Type() string { return TypeGetIdempotencyKey }

func (m GetIdempotencyKeyMessage) Validate() error {
	if strings.TrimSpace(m.KeyHash) == "" {
		return queryValidationError("key_hash", "key hash is required")
	}
	return nil
}

type GetSequenceWatermarkMessage struct {
	EntityType string
	EntityID   string
}

func (GetSequenceWatermarkMessage) Type() string { return TypeGetSequenceWatermark }

func (m GetSequenceWatermarkMessage) Validate() error {
	if strings.TrimSpace(m.EntityType) == "" {
		return queryValidationError("entity_type", "entity type is required")
	}
	if strings.TrimSpace(m.EntityID) == "" {
		return queryValidationError("entity_id", "entity id is required")
	}
	return nil
}
