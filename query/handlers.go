package query

import (
	"context"

	"github.com/goliatone/go-webhook-ingest/core"
)

type IdempotencyKeyReader interface {
	Get(ctx context.Context, keyHash string) (core.IdempotencyKey, error)
}

type SequenceWatermarkReader interface {
	LastApplied(ctx context.Context, entityType string, entityID string) (int64, error)
}

type ListAuditRecordsQuery struct {
	reader core.AuditReader
}

func NewListAuditRecordsQuery(reader core.AuditReader) *ListAuditRecordsQuery {
	return &ListAuditRecordsQuery{reader: reader}
}

func (q *ListAuditRecordsQuery) Query(ctx context.Context, msg ListAuditRecordsMessage) (core.AuditPage, error) {
	if q == nil || q.reader == nil {
		return core.AuditPage{}, queryDependencyError("query: audit reader is required")
	}
	return q.reader.List(ctx, msg.Filter)
}

type GetIdempotencyKeyQuery struct {
	reader IdempotencyKeyReader
}

func NewGetIdempotencyKeyQuery(reader IdempotencyKeyReader) *GetIdempotencyKeyQuery {
	return &GetIdempotencyKeyQuery{reader: reader}
}

func (q *GetIdempotencyKeyQuery) Query(ctx context.Context, msg GetIdempotencyKeyMessage) (core.IdempotencyKey, error) {
	if q == nil || q.reader == nil {
		return core.IdempotencyKey{}, queryDependencyError("query: idempotency key reader is required")
	}
	return q.reader.Get(ctx, msg.KeyHash)
}

type GetSequenceWatermarkQuery struct {
	reader SequenceWatermarkReader
}

func NewGetSequenceWatermarkQuery(reader SequenceWatermarkReader) *GetSequenceWatermarkQuery {
	return &GetSequenceWatermarkQuery{reader: reader}
}

func (q *GetSequenceWatermarkQuery) Query(ctx context.Context, msg GetSequenceWatermarkMessage) (int64, error) {
	if q == nil || q.reader == nil {
		return 0, queryDependencyError("query: sequence watermark reader is required")
	}
	return q.reader.LastApplied(ctx, msg.EntityType, msg.EntityID)
}
