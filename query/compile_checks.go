package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhook-ingest/core"
)

var (
	_ gocmd.Querier[ListAuditRecordsMessage, core.AuditPage]       = (*ListAuditRecordsQuery)(nil)
	_ gocmd.Querier[GetIdempotencyKeyMessage, core.IdempotencyKey] = (*GetIdempotencyKeyQuery)(nil)
	_ gocmd.Querier[GetSequenceWatermarkMessage, int64]            = (*GetSequenceWatermarkQuery)(nil)
)
