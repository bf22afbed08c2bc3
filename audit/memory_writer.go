package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-webhook-ingest/core"
)

// MemoryWriter is the in-process audit trail: append-only writes, filtered
// paginated reads, and retention pruning.
type MemoryWriter struct {
	mu      sync.Mutex
	records []core.AuditRecord

	Now func() time.Time
}

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (w *MemoryWriter) WriteBatch(_ context.Context, records []core.AuditRecord) error {
	if w == nil {
		return fmt.Errorf("audit: memory writer is not configured")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, record := range records {
		record.Metadata = core.CloneFields(record.Metadata)
		w.records = append(w.records, record)
	}
	return nil
}

func (w *MemoryWriter) List(_ context.Context, filter core.AuditFilter) (core.AuditPage, error) {
	if w == nil {
		return core.AuditPage{}, fmt.Errorf("audit: memory writer is not configured")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	var matched []core.AuditRecord
	for _, record := range w.records {
		if !matchesFilter(record, filter) {
			continue
		}
		matched = append(matched, record)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 50
	}

	start := (page - 1) * perPage
	if start > len(matched) {
		start = len(matched)
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}

	items := make([]core.AuditRecord, 0, end-start)
	for _, record := range matched[start:end] {
		record.Metadata = core.CloneFields(record.Metadata)
		items = append(items, record)
	}

	result := core.AuditPage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   len(matched),
		HasNext: end < len(matched),
	}
	if result.HasNext {
		result.NextCursor = fmt.Sprintf("%d", page+1)
	}
	return result, nil
}

func (w *MemoryWriter) Prune(_ context.Context, policy core.AuditRetentionPolicy) (int, error) {
	if w == nil {
		return 0, fmt.Errorf("audit: memory writer is not configured")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	before := len(w.records)

	if policy.TTL > 0 {
		cutoff := w.now().Add(-policy.TTL)
		kept := w.records[:0]
		for _, record := range w.records {
			if record.CreatedAt.After(cutoff) {
				kept = append(kept, record)
			}
		}
		w.records = kept
	}

	if policy.RowCap > 0 && len(w.records) > policy.RowCap {
		sort.SliceStable(w.records, func(i, j int) bool {
			return w.records[i].CreatedAt.Before(w.records[j].CreatedAt)
		})
		w.records = append([]core.AuditRecord(nil), w.records[len(w.records)-policy.RowCap:]...)
	}

	return before - len(w.records), nil
}

func (w *MemoryWriter) now() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

func matchesFilter(record core.AuditRecord, filter core.AuditFilter) bool {
	if value := strings.TrimSpace(filter.EventID); value != "" && record.EventID != value {
		return false
	}
	if value := strings.TrimSpace(string(filter.Stage)); value != "" && string(record.Stage) != value {
		return false
	}
	if value := strings.TrimSpace(string(filter.Severity)); value != "" && string(record.Severity) != value {
		return false
	}
	if value := strings.TrimSpace(filter.EntityType); value != "" && record.EntityType != value {
		return false
	}
	if value := strings.TrimSpace(filter.EntityID); value != "" && record.EntityID != value {
		return false
	}
	if filter.From != nil && record.CreatedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && record.CreatedAt.After(*filter.To) {
		return false
	}
	return true
}

var (
	_ core.AuditWriter          = (*MemoryWriter)(nil)
	_ core.AuditReader          = (*MemoryWriter)(nil)
	_ core.AuditRetentionPruner = (*MemoryWriter)(nil)
)
