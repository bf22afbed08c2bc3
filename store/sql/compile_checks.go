package sqlstore

import "github.com/goliatone/go-webhook-ingest/core"

var (
	_ core.IdempotencyStore     = (*IdempotencyStore)(nil)
	_ core.DeduplicationStore   = (*DedupStore)(nil)
	_ core.EntitySequenceStore  = (*SequenceStore)(nil)
	_ core.EntitySequenceStore  = (*CachedSequenceStore)(nil)
	_ core.AuditWriter          = (*AuditStore)(nil)
	_ core.AuditReader          = (*AuditStore)(nil)
	_ core.AuditRetentionPruner = (*AuditStore)(nil)
)
